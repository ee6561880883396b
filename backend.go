package authgate

import "context"

// Result is the uniform envelope every AuthBackend call returns. The core
// inspects only OK and Error; tokens and user objects are passed through to
// the session untouched.
type Result struct {
	OK    bool        `json:"ok"`
	Token string      `json:"token,omitempty"`
	User  *UserRecord `json:"user,omitempty"`
	Role  Role        `json:"role,omitempty"`
	Error string      `json:"error,omitempty"`
}

// AuthBackend is the excluded network collaborator. Implementations return
// a non-nil error only for transport-level failures; an application-level
// rejection is Result{OK: false, Error: "..."} with a nil error.
type AuthBackend interface {
	LoginEmail(ctx context.Context, email, password string) (Result, error)
	Register(ctx context.Context, fields map[string]any) (Result, error)
	CompleteProfile(ctx context.Context, fields map[string]any) (Result, error)
	ConfirmLocation(ctx context.Context, choice string) (Result, error)
	VerifyOAuth(ctx context.Context, provider, query string) (Result, error)
	ResendVerificationEmail(ctx context.Context, email string) (Result, error)
}
