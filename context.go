package authgate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/takaatuf/authgate/redirect"
	"github.com/takaatuf/authgate/storage"
)

// Context is the process-wide session state machine: the current bearer
// token and user record, the derived account status, and every operation
// that may mutate them. All mutation goes through Context methods; gates
// and middleware only ever read the [Snapshot] projection.
//
// Session-level states: hydrating → {authenticated, anonymous};
// authenticated → anonymous on logout, expiry, or integrity self-heal.
// There is no way back into hydrating.
type Context struct {
	mu      sync.RWMutex
	config  Config
	st      storage.Storage
	store   *SessionStore
	intents *redirect.IntentStore
	backend AuthBackend
	audit   *auditDispatcher
	metrics *Metrics
	log     *slog.Logger

	token     string
	user      *UserRecord
	expiresAt int64
	hydrated  bool
	derived   DerivedStatus
}

// Credentials is the input to [Context.Login]. ExpiresAt is optional
// (milliseconds since epoch); when zero, the expiry is seeded from the
// token's exp claim or the configured TTL.
type Credentials struct {
	Token     string
	User      *UserRecord
	ExpiresAt int64
}

// Snapshot is the read-only projection gates evaluate against. User is a
// normalized copy; mutating it has no effect on the session.
type Snapshot struct {
	Hydrated      bool
	Authenticated bool
	Token         string
	User          *UserRecord
	Role          Role

	EmailVerified                bool
	ProfileComplete              bool
	MissingProfileFields         []string
	RequiresLocationConfirmation bool
}

// Hydrate performs the one-time load of the persisted session. Until it (or
// a successful Login) has run, Snapshot reports Hydrated == false and every
// gate withholds judgment. Calling Hydrate again is a no-op.
func (c *Context) Hydrate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hydrated {
		return
	}

	if snap := c.store.Load(ctx); snap != nil {
		c.token = snap.Token
		c.user = snap.User
		c.expiresAt = snap.ExpiresAt
	}

	// Load enforces the both-or-neither invariant, but state handed to us
	// any other way gets the same defensive self-logout.
	if c.token != "" && c.user == nil {
		c.teardownLocked(ctx)
		c.metrics.Inc(MetricSessionSelfHeal)
		c.emitAudit(ctx, auditEventSelfHeal, true, "", nil)
	}

	c.recomputeLocked(ctx)
	if c.token != "" && c.user != nil {
		c.persistLocked(ctx)
	}

	c.hydrated = true
	c.metrics.Inc(MetricHydration)
	c.emitAudit(ctx, auditEventHydrate, true, "", func() map[string]string {
		return map[string]string{"authenticated": boolString(c.token != "")}
	})
}

// Snapshot returns the current read-only projection, first tearing the
// session down if its expiry has passed.
func (c *Context) Snapshot(ctx context.Context) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(ctx)

	snap := Snapshot{
		Hydrated:      c.hydrated,
		Authenticated: c.token != "" && c.user != nil,
		Token:         c.token,
		User:          c.user.Clone(),
	}
	if snap.User != nil {
		snap.Role = snap.User.Role
	}
	snap.EmailVerified = c.derived.EmailVerified
	snap.ProfileComplete = c.derived.ProfileComplete
	snap.RequiresLocationConfirmation = c.derived.RequiresLocationConfirmation
	snap.MissingProfileFields = append([]string(nil), c.derived.MissingProfileFields...)
	return snap
}

// Ready reports whether hydration has completed.
func (c *Context) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hydrated
}

// IsHydrating is the inverse of Ready.
func (c *Context) IsHydrating() bool {
	return !c.Ready()
}

// IsAuthenticated reports whether a token and user are both present.
func (c *Context) IsAuthenticated() bool {
	return c.Snapshot(context.Background()).Authenticated
}

// Role returns the canonical role of the current user, or the empty role.
func (c *Context) Role() Role {
	return c.Snapshot(context.Background()).Role
}

// User returns a copy of the normalized user record, or nil.
func (c *Context) User() *UserRecord {
	return c.Snapshot(context.Background()).User
}

// EmailVerified reports the derived verification state.
func (c *Context) EmailVerified() bool {
	return c.Snapshot(context.Background()).EmailVerified
}

// ProfileComplete reports the derived completeness state.
func (c *Context) ProfileComplete() bool {
	return c.Snapshot(context.Background()).ProfileComplete
}

// MissingProfileFields returns the derived missing-field list.
func (c *Context) MissingProfileFields() []string {
	return c.Snapshot(context.Background()).MissingProfileFields
}

// RequiresLocationConfirmation reports whether a location detour is pending.
func (c *Context) RequiresLocationConfirmation() bool {
	return c.Snapshot(context.Background()).RequiresLocationConfirmation
}

// Intents exposes the redirect intent store shared with the gate chain.
func (c *Context) Intents() *redirect.IntentStore {
	return c.intents
}

// Routes returns the configured route identifiers.
func (c *Context) Routes() RoutesConfig {
	return cloneConfig(c.config).Routes
}

// MetricsSnapshot copies the current counters.
func (c *Context) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return c.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (c *Context) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// Close flushes and stops the audit dispatcher.
func (c *Context) Close() {
	if c == nil {
		return
	}
	c.audit.Close()
}

// expireLocked tears the session down when its expiry has passed, exactly
// like an explicit logout, silently.
func (c *Context) expireLocked(ctx context.Context) {
	if c.token == "" || !c.store.IsExpired(c.expiresAt) {
		return
	}
	userID := c.userIDLocked()
	c.teardownLocked(ctx)
	c.metrics.Inc(MetricSessionExpired)
	c.emitAudit(ctx, auditEventExpired, true, userID, nil)
}

// teardownLocked clears all session state and storage. The single exit path
// for logout, expiry, and self-heal.
func (c *Context) teardownLocked(ctx context.Context) {
	c.token = ""
	c.user = nil
	c.expiresAt = 0
	c.derived = DerivedStatus{}
	c.store.Clear(ctx)
}

// recomputeLocked rebuilds the derived status from the raw user record and
// swaps the normalized record in. Runs on every user mutation.
func (c *Context) recomputeLocked(ctx context.Context) {
	c.derived = DeriveStatus(c.user, c.overrideLookup(ctx))
	if c.derived.UserWithProfile != nil {
		c.user = c.derived.UserWithProfile
	}
}

// persistLocked writes the snapshot in the same critical section as the
// state change, so storage can never lag behind a gate evaluation.
func (c *Context) persistLocked(ctx context.Context) {
	if c.token == "" || c.user == nil {
		c.store.Clear(ctx)
		return
	}
	c.expiresAt = c.store.EnsureExpiresAt(c.expiresAt, c.token)
	if c.store.IsExpired(c.expiresAt) {
		c.expireLocked(ctx)
		return
	}
	if !c.store.Save(ctx, &Session{Token: c.token, User: c.user, ExpiresAt: c.expiresAt}) {
		c.metrics.Inc(MetricStorageSaveFailure)
	}
}

// overrideLookup reads the manual profile-completeness override from
// storage. Absent or unreadable values mean "no override".
func (c *Context) overrideLookup(ctx context.Context) OverrideLookup {
	return func() (bool, bool) {
		v, err := c.st.Get(ctx, c.config.Profile.OverrideKey)
		if err != nil {
			return false, false
		}
		switch v {
		case "true":
			return true, true
		case "false":
			return false, true
		default:
			return false, false
		}
	}
}

func (c *Context) userIDLocked() string {
	if c.user == nil {
		return ""
	}
	return c.user.ID
}

func (c *Context) emitAudit(ctx context.Context, eventType string, success bool, userID string, meta func() map[string]string) {
	if c.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		Success:   success,
	}
	if meta != nil {
		event.Metadata = meta()
	}
	c.audit.Emit(ctx, event)
}

func (c *Context) emitAuditError(ctx context.Context, eventType, userID string, err error) {
	if c.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		Success:   err == nil,
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		event.Error = err.Error()
	}
	c.audit.Emit(ctx, event)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
