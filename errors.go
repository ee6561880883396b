package authgate

import "errors"

var (
	// ErrNotReady is returned when an operation needs a built, hydrated Context.
	ErrNotReady = errors.New("session context not ready")
	// ErrNotAuthenticated is returned by operations that require a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidLogin is returned when login input violates the session
	// invariant (token and user must both be present).
	ErrInvalidLogin = errors.New("login requires both token and user")
	// ErrNoBackend is returned by backend flows when no AuthBackend was configured.
	ErrNoBackend = errors.New("no auth backend configured")
	// ErrBackendUnavailable wraps transport-level failures from the AuthBackend.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrConfigInvalid is returned by Builder.Build for unusable configuration.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// RejectionError carries the user-visible message of an ok:false backend
// envelope. Session state is left untouched when one is returned.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	if e == nil || e.Message == "" {
		return "request rejected"
	}
	return e.Message
}

// IsRejection reports whether err is a backend rejection, returning the
// user-visible message when it is.
func IsRejection(err error) (string, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Error(), true
	}
	return "", false
}
