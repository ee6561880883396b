package authgate

import (
	"context"
	"fmt"
)

// Backend flows. Each awaits the AuthBackend call, then mutates session
// state only on an ok envelope. A Result{OK: false} surfaces as a
// *RejectionError with the backend's message and leaves the session
// untouched; transport failures wrap ErrBackendUnavailable.

// LoginWithEmail authenticates with email and password and establishes the
// session on success.
func (c *Context) LoginWithEmail(ctx context.Context, email, password string) error {
	res, err := c.backendCall(ctx, "login_email", func(b AuthBackend) (Result, error) {
		return b.LoginEmail(ctx, email, password)
	})
	if err != nil {
		c.metrics.Inc(MetricLoginRejected)
		return err
	}
	return c.Login(ctx, Credentials{Token: res.Token, User: res.User})
}

// Register creates an account and establishes the session on success. The
// new account typically starts unverified; the gate chain takes over from
// there.
func (c *Context) Register(ctx context.Context, fields map[string]any) error {
	res, err := c.backendCall(ctx, "register", func(b AuthBackend) (Result, error) {
		return b.Register(ctx, fields)
	})
	if err != nil {
		return err
	}
	return c.Login(ctx, Credentials{Token: res.Token, User: res.User})
}

// VerifyOAuth finishes a third-party provider round trip and establishes
// the session on success.
func (c *Context) VerifyOAuth(ctx context.Context, provider, query string) error {
	res, err := c.backendCall(ctx, "verify_oauth", func(b AuthBackend) (Result, error) {
		return b.VerifyOAuth(ctx, provider, query)
	})
	if err != nil {
		c.metrics.Inc(MetricLoginRejected)
		return err
	}
	return c.Login(ctx, Credentials{Token: res.Token, User: res.User})
}

// CompleteProfile submits profile fields. The backend's returned user
// replaces the current record; a backend that returns no user gets the
// fields merged locally so the gate chain unblocks without a refetch.
func (c *Context) CompleteProfile(ctx context.Context, fields map[string]any) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	res, err := c.backendCall(ctx, "complete_profile", func(b AuthBackend) (Result, error) {
		return b.CompleteProfile(ctx, fields)
	})
	if err != nil {
		return err
	}
	if res.User != nil {
		c.SetUser(ctx, res.User)
		return nil
	}
	return c.CompleteStepLocally(ctx, fields)
}

// ConfirmLocation reports the user's location choice. On success the
// pending-confirmation flag clears and any backend-assigned role lands on
// the record.
func (c *Context) ConfirmLocation(ctx context.Context, choice string) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	res, err := c.backendCall(ctx, "confirm_location", func(b AuthBackend) (Result, error) {
		return b.ConfirmLocation(ctx, choice)
	})
	if err != nil {
		return err
	}
	if res.User != nil {
		u := res.User.Clone()
		u.RequiresLocationConfirmation = false
		c.SetUser(ctx, u)
		return nil
	}
	updates := map[string]any{keyRequiresLocConfrm: false}
	if res.Role != "" {
		updates[keyRole] = string(res.Role)
	}
	return c.CompleteStepLocally(ctx, updates)
}

// ResendVerificationEmail asks the backend to send a fresh verification
// mail. Pure pass-through; no session state changes either way.
func (c *Context) ResendVerificationEmail(ctx context.Context, email string) error {
	_, err := c.backendCall(ctx, "resend_verification", func(b AuthBackend) (Result, error) {
		return b.ResendVerificationEmail(ctx, email)
	})
	return err
}

func (c *Context) backendCall(ctx context.Context, flow string, call func(AuthBackend) (Result, error)) (Result, error) {
	if c.backend == nil {
		return Result{}, ErrNoBackend
	}
	res, err := call(c.backend)
	if err != nil {
		c.emitAuditError(ctx, auditEventBackendFlow, "", err)
		return Result{}, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, flow, err)
	}
	if !res.OK {
		c.emitAudit(ctx, auditEventBackendRejected, false, "", func() map[string]string {
			return map[string]string{"flow": flow, "error": res.Error}
		})
		return Result{}, &RejectionError{Message: res.Error}
	}
	return res, nil
}
