package authgate

import (
	"context"
	"time"
)

// Login establishes a session from backend-issued credentials: the role is
// canonicalized, email verification is resolved by the OR-of-signals rule,
// profile completeness is computed when the backend did not supply it, and
// the snapshot is persisted before Login returns. There is no async gap a
// gate evaluation could slip into.
func (c *Context) Login(ctx context.Context, cred Credentials) error {
	if cred.Token == "" || cred.User == nil {
		return ErrInvalidLogin
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = cred.Token
	c.user = cred.User.Clone()
	c.expiresAt = c.store.EnsureExpiresAt(cred.ExpiresAt, cred.Token)
	c.recomputeLocked(ctx)
	role := string(c.user.Role)
	userID := c.userIDLocked()
	c.persistLocked(ctx)

	// A login is a decision about the session; the hydration read would be
	// immediately overwritten, so the context counts as hydrated now.
	c.hydrated = true

	c.metrics.Inc(MetricLoginSuccess)
	c.emitAudit(ctx, auditEventLogin, true, userID, func() map[string]string {
		return map[string]string{"role": role}
	})
	return nil
}

// Logout destroys the session and its persisted snapshot. Idempotent.
// Pending redirect intents survive: the next login may still resume them.
func (c *Context) Logout(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	userID := c.userIDLocked()
	had := c.token != ""
	c.teardownLocked(ctx)
	if had {
		c.metrics.Inc(MetricLogout)
	}
	c.emitAudit(ctx, auditEventLogout, true, userID, nil)
}

// SetUser replaces the raw user record. The role is re-canonicalized and
// the derived status rebuilt. A nil record clears the user entirely, which
// with a token still present is an integrity violation and triggers the
// defensive self-logout.
func (c *Context) SetUser(ctx context.Context, u *UserRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setUserLocked(ctx, u)
}

// UpdateUser is the functional form of SetUser: fn receives a copy of the
// current record (nil when anonymous) and returns the replacement.
func (c *Context) UpdateUser(ctx context.Context, fn func(*UserRecord) *UserRecord) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setUserLocked(ctx, fn(c.user.Clone()))
}

func (c *Context) setUserLocked(ctx context.Context, u *UserRecord) {
	if u == nil {
		if c.token != "" {
			userID := c.userIDLocked()
			c.teardownLocked(ctx)
			c.metrics.Inc(MetricSessionSelfHeal)
			c.emitAudit(ctx, auditEventSelfHeal, true, userID, nil)
			return
		}
		c.user = nil
		c.derived = DerivedStatus{}
		c.store.Clear(ctx)
		return
	}

	c.user = u.Clone()
	c.user.Role = CanonicalizeRole(string(c.user.Role))
	c.recomputeLocked(ctx)
	if c.token != "" {
		c.persistLocked(ctx)
	} else {
		// A user without a token must never be persisted.
		c.store.Clear(ctx)
	}
	c.emitAudit(ctx, auditEventUserUpdate, true, c.userIDLocked(), nil)
}

// CompleteStepLocally merges partial wire-shaped fields into the current
// user and persists in the same step. Flows that must not wait for a
// backend round trip (a verification bypass, a just-submitted form) use it
// to unblock the gate chain immediately.
func (c *Context) CompleteStepLocally(ctx context.Context, updates map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.user == nil {
		return ErrNotAuthenticated
	}

	merged := c.user.ApplyUpdates(updates)
	merged.Role = CanonicalizeRole(string(merged.Role))
	c.user = merged
	c.recomputeLocked(ctx)
	c.persistLocked(ctx)
	c.emitAudit(ctx, auditEventUserUpdate, true, c.userIDLocked(), func() map[string]string {
		return map[string]string{"local": "true"}
	})
	return nil
}

// SetEmailVerified flips the verification flag, backfilling the verified-at
// timestamp when turning it on and clearing it when turning it off.
func (c *Context) SetEmailVerified(ctx context.Context, verified bool) error {
	updates := map[string]any{keyEmailVerified: verified}
	if verified {
		c.mu.RLock()
		needsTimestamp := c.user != nil && c.user.EmailVerifiedAt == nil
		c.mu.RUnlock()
		if needsTimestamp {
			updates[keyEmailVerifiedAt] = time.Now().UTC().Format(time.RFC3339)
		}
	} else {
		updates[keyEmailVerifiedAt] = nil
	}
	return c.CompleteStepLocally(ctx, updates)
}

// SetRequiresLocationConfirmation sets or clears the location detour flag.
func (c *Context) SetRequiresLocationConfirmation(ctx context.Context, required bool) error {
	return c.CompleteStepLocally(ctx, map[string]any{keyRequiresLocConfrm: required})
}
