package middleware

import (
	"context"
	"net/http"

	"github.com/takaatuf/authgate"
)

type decisionContextKey struct{}

// DecisionFromContext returns the chain decision recorded for the request.
// Handlers behind a guard always see a DecisionAllow.
func DecisionFromContext(ctx context.Context) (authgate.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(authgate.Decision)
	return d, ok
}

// NavigationFromRequest maps a request onto a gate navigation. The resume
// origin, edit mode, and registration-handoff email travel as query
// parameters ("from", "edit", "email"); they are stripped from the query
// the gates see so intents never capture them.
func NavigationFromRequest(r *http.Request) authgate.Navigation {
	q := r.URL.Query()
	nav := authgate.Navigation{
		Path:       r.URL.Path,
		From:       q.Get("from"),
		StateEmail: q.Get("email"),
		AllowEdit:  q.Get("edit") == "1" || q.Get("edit") == "true",
	}
	q.Del("from")
	q.Del("edit")
	q.Del("email")
	nav.Query = q
	return nav
}

// Gatekeeper evaluates chain for every request. Redirect decisions become
// 302 responses, pending decisions answer 204 No Content so a client can
// retry after hydration, and allows fall through to next with the decision
// in the request context.
func Gatekeeper(chain *authgate.Chain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if chain == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			nav := NavigationFromRequest(r)
			d := chain.Evaluate(r.Context(), nav)
			switch d.Kind {
			case authgate.DecisionRedirect:
				http.Redirect(w, r, d.Target, http.StatusFound)
				return
			case authgate.DecisionPending:
				w.WriteHeader(http.StatusNoContent)
				return
			}

			ctx := context.WithValue(r.Context(), decisionContextKey{}, d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
