package middleware

import (
	"net/http"

	"github.com/takaatuf/authgate"
)

// RequireAuth wraps a handler in the default onboarding chain.
func RequireAuth(c *authgate.Context) func(http.Handler) http.Handler {
	return Gatekeeper(c.DefaultChain())
}

// RequireRole wraps a handler in the onboarding chain plus a role
// allow-list.
func RequireRole(c *authgate.Context, allow ...authgate.Role) func(http.Handler) http.Handler {
	return Gatekeeper(c.RoleChain(allow...))
}

// GuestOnly guards guest pages such as login and register; fallbackTo may
// be empty to use the role home.
func GuestOnly(c *authgate.Context, fallbackTo string) func(http.Handler) http.Handler {
	return Gatekeeper(c.GuestChain(fallbackTo))
}
