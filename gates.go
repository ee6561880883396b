package authgate

import (
	"context"
	"net/url"
	"strings"

	"github.com/takaatuf/authgate/redirect"
)

// DecisionKind is the outcome class of a gate evaluation.
type DecisionKind uint8

const (
	// DecisionAllow renders the guarded page.
	DecisionAllow DecisionKind = iota
	// DecisionRedirect sends the user to Decision.Target instead.
	DecisionRedirect
	// DecisionPending means hydration has not completed; render nothing and
	// make no navigation decision yet.
	DecisionPending
)

// Decision is the result of evaluating a gate or a chain.
type Decision struct {
	Kind   DecisionKind
	Target string
	// Gate names the evaluator that produced a redirect, for audit trails.
	Gate string
}

// Navigation describes the navigation being gated.
type Navigation struct {
	// Path is the current path, without query or fragment.
	Path string
	// Query carries the current query parameters.
	Query url.Values
	// From is the router-state origin the navigation wants to resume, if
	// the application passed one along (takes precedence over stored
	// intents in the guest gate).
	From string
	// StateEmail is an email carried in navigation state, set when arriving
	// at CheckEmail straight from registration.
	StateEmail string
	// AllowEdit marks an explicit profile-edit navigation, letting a user
	// with a complete profile back onto the setup page.
	AllowEdit bool
}

// FullPath reconstructs path plus encoded query, the form intents are
// stored in so a resume lands on the exact original URL.
func (n Navigation) FullPath() string {
	if len(n.Query) == 0 {
		return n.Path
	}
	return n.Path + "?" + n.Query.Encode()
}

// Gate is one guard evaluator. Gates are pure with respect to session
// state: they read the snapshot and decide; their only side effect is
// recording a redirect intent. Each gate is idempotent and independent
// within its own concern; the onboarding order comes from chain position.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, snap Snapshot, nav Navigation) Decision
}

func allowHere() Decision {
	return Decision{Kind: DecisionAllow}
}

func pendingHere() Decision {
	return Decision{Kind: DecisionPending}
}

func redirectTo(gate, target string) Decision {
	return Decision{Kind: DecisionRedirect, Target: target, Gate: gate}
}

func isInternalPath(v string) bool {
	return strings.HasPrefix(v, "/")
}

func pathOnly(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

// MapPublicToDashboard launders a resume target so an authenticated user is
// never bounced back to a public auth page: auth pages map to the dashboard
// redirect, in-app paths pass through, anything else falls back to the
// dashboard redirect.
func (r RoutesConfig) MapPublicToDashboard(path string) string {
	if path == "" {
		return ""
	}
	switch path {
	case r.Login, r.Register, r.CheckEmail, r.Home:
		return r.DashboardRedirect
	}
	if strings.HasPrefix(path, r.AppBase) {
		return path
	}
	return r.DashboardRedirect
}

// ---------------------------------------------------------------------------
// Chain
// ---------------------------------------------------------------------------

// Chain runs an ordered list of gates against one navigation. The first
// non-allow decision wins. A redirect whose target path equals the current
// path is suppressed (self-loop prevention) and evaluation continues.
type Chain struct {
	sc    *Context
	gates []Gate
}

// NewChain builds a chain over the given gates, in evaluation order.
func NewChain(sc *Context, gates ...Gate) *Chain {
	return &Chain{sc: sc, gates: gates}
}

// Evaluate snapshots the session and runs the chain. While the context is
// still hydrating the result is DecisionPending: gates never redirect
// before the one-time storage load has finished.
func (ch *Chain) Evaluate(ctx context.Context, nav Navigation) Decision {
	snap := ch.sc.Snapshot(ctx)
	if !snap.Hydrated {
		ch.sc.metrics.Inc(MetricGatePending)
		return pendingHere()
	}

	for _, g := range ch.gates {
		d := g.Evaluate(ctx, snap, nav)
		switch d.Kind {
		case DecisionAllow:
			continue
		case DecisionPending:
			ch.sc.metrics.Inc(MetricGatePending)
			return d
		case DecisionRedirect:
			if pathOnly(d.Target) == nav.Path {
				continue
			}
			ch.sc.metrics.Inc(MetricGateRedirect)
			ch.sc.emitAudit(ctx, auditEventGateRedirect, true, snap.userID(), func() map[string]string {
				return map[string]string{"gate": d.Gate, "path": nav.Path, "target": d.Target}
			})
			return d
		}
	}

	ch.sc.metrics.Inc(MetricGateAllow)
	return allowHere()
}

func (s Snapshot) userID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// DefaultChain is the onboarding pipeline for authenticated application
// pages: authentication, email presence, email verification, profile
// completeness, location confirmation — in that order.
func (c *Context) DefaultChain() *Chain {
	return NewChain(c,
		NewAuthGate(c),
		NewMissingEmailGate(c),
		NewEmailVerifiedGate(c),
		NewProfileCompleteGate(c),
		NewLocationConfirmedGate(c),
	)
}

// RoleChain extends DefaultChain with a role allow-list, for role-gated
// dashboards.
func (c *Context) RoleChain(allow ...Role) *Chain {
	ch := c.DefaultChain()
	ch.gates = append(ch.gates, NewRoleGate(c, allow...))
	return ch
}

// GuestChain guards guest-only pages (Login, Register): authenticated users
// are bounced to their highest-priority pending intent or a role-appropriate
// home. fallbackTo overrides the computed home when it is an internal path.
func (c *Context) GuestChain(fallbackTo string) *Chain {
	return NewChain(c, NewRedirectIfAuthenticatedGate(c, fallbackTo))
}

// CheckEmailChain guards the CheckEmail page itself.
func (c *Context) CheckEmailChain() *Chain {
	return NewChain(c, NewCheckEmailAccessGate(c))
}

// CompleteProfileChain guards the CompleteProfile page itself.
func (c *Context) CompleteProfileChain() *Chain {
	return NewChain(c, NewAuthGate(c), NewProfileIncompleteGate(c))
}

// UpdateEmailChain guards the UpdateEmail page, which only makes sense for
// signed-in accounts whose address is still unverified (or missing).
func (c *Context) UpdateEmailChain() *Chain {
	return NewChain(c, NewEmailUnverifiedGate(c))
}

// ---------------------------------------------------------------------------
// AuthGate
// ---------------------------------------------------------------------------

// AuthGate requires a live session. Anonymous visitors to application pages
// get their destination remembered in the login slot before the bounce to
// Login; the login slot is always overwritten (latest attempt wins).
type AuthGate struct {
	routes  RoutesConfig
	intents *redirect.IntentStore
}

// NewAuthGate builds the gate from the context's routes and intent store.
func NewAuthGate(c *Context) *AuthGate {
	return &AuthGate{routes: c.Routes(), intents: c.intents}
}

func (g *AuthGate) Name() string { return "auth" }

func (g *AuthGate) Evaluate(ctx context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if snap.Authenticated {
		return allowHere()
	}
	// Public auth pages stay reachable even when wrapped by this gate.
	if nav.Path == g.routes.Login || nav.Path == g.routes.Register {
		return allowHere()
	}
	if strings.HasPrefix(nav.Path, g.routes.AppBase) {
		g.intents.StoreLogin(ctx, nav.FullPath())
	}
	return redirectTo(g.Name(), g.routes.Login)
}

// ---------------------------------------------------------------------------
// MissingEmailGate
// ---------------------------------------------------------------------------

// MissingEmailGate handles accounts created by OAuth providers that do not
// share an email address: no email means UpdateEmail is the only page, and
// an account with an email has no business on it.
type MissingEmailGate struct {
	routes RoutesConfig
}

// NewMissingEmailGate builds the gate from the context's routes.
func NewMissingEmailGate(c *Context) *MissingEmailGate {
	return &MissingEmailGate{routes: c.Routes()}
}

func (g *MissingEmailGate) Name() string { return "missing_email" }

func (g *MissingEmailGate) Evaluate(_ context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if !snap.Authenticated {
		return allowHere()
	}
	hasEmail := snap.User != nil && snap.User.Email != ""
	if !hasEmail && nav.Path != g.routes.UpdateEmail {
		return redirectTo(g.Name(), g.routes.UpdateEmail)
	}
	if hasEmail && nav.Path == g.routes.UpdateEmail {
		return redirectTo(g.Name(), g.routes.Home)
	}
	return allowHere()
}

// ---------------------------------------------------------------------------
// EmailVerifiedGate
// ---------------------------------------------------------------------------

// EmailVerifiedGate holds unverified accounts on CheckEmail (UpdateEmail
// stays reachable so a wrong address can be fixed) and bounces verified
// accounts off CheckEmail — the terminal-state escape that prevents a
// freshly verified user from being stuck there.
type EmailVerifiedGate struct {
	routes RoutesConfig
}

// NewEmailVerifiedGate builds the gate from the context's routes.
func NewEmailVerifiedGate(c *Context) *EmailVerifiedGate {
	return &EmailVerifiedGate{routes: c.Routes()}
}

func (g *EmailVerifiedGate) Name() string { return "email_verified" }

func (g *EmailVerifiedGate) Evaluate(_ context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if !snap.Authenticated {
		return allowHere()
	}
	if !snap.EmailVerified {
		if nav.Path != g.routes.CheckEmail && nav.Path != g.routes.UpdateEmail {
			return redirectTo(g.Name(), g.routes.CheckEmail)
		}
		return allowHere()
	}
	if nav.Path == g.routes.CheckEmail {
		return redirectTo(g.Name(), g.routes.Home)
	}
	return allowHere()
}

// ---------------------------------------------------------------------------
// ProfileCompleteGate
// ---------------------------------------------------------------------------

// ProfileCompleteGate forces incomplete accounts through CompleteProfile,
// remembering the original destination in the profile slot (first writer
// wins). The setup pages themselves are exempt so the detour cannot loop,
// and a complete account visiting CompleteProfile is sent to its role home.
type ProfileCompleteGate struct {
	routes  RoutesConfig
	intents *redirect.IntentStore
}

// NewProfileCompleteGate builds the gate from the context's routes and
// intent store.
func NewProfileCompleteGate(c *Context) *ProfileCompleteGate {
	return &ProfileCompleteGate{routes: c.Routes(), intents: c.intents}
}

func (g *ProfileCompleteGate) Name() string { return "profile_complete" }

func (g *ProfileCompleteGate) Evaluate(ctx context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if !snap.Authenticated {
		return allowHere()
	}
	if snap.ProfileComplete {
		if nav.Path == g.routes.CompleteProfile {
			return redirectTo(g.Name(), g.routes.RoleHome(snap.Role))
		}
		return allowHere()
	}
	switch nav.Path {
	case g.routes.CompleteProfile, g.routes.CheckEmail, g.routes.ConfirmLocation:
		return allowHere()
	}
	g.intents.StoreProfileOnce(ctx, nav.FullPath())
	return redirectTo(g.Name(), g.routes.CompleteProfile)
}

// ---------------------------------------------------------------------------
// LocationConfirmedGate
// ---------------------------------------------------------------------------

// LocationConfirmedGate intercepts accounts flagged for location
// confirmation, carrying a reason query parameter through for the UI.
type LocationConfirmedGate struct {
	routes  RoutesConfig
	intents *redirect.IntentStore
}

// NewLocationConfirmedGate builds the gate from the context's routes and
// intent store.
func NewLocationConfirmedGate(c *Context) *LocationConfirmedGate {
	return &LocationConfirmedGate{routes: c.Routes(), intents: c.intents}
}

func (g *LocationConfirmedGate) Name() string { return "location_confirmed" }

func (g *LocationConfirmedGate) Evaluate(ctx context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if !snap.Authenticated {
		return allowHere()
	}
	if nav.Path == g.routes.ConfirmLocation {
		return allowHere()
	}
	if !snap.RequiresLocationConfirmation {
		return allowHere()
	}

	g.intents.StoreLocationOnce(ctx, nav.FullPath())

	reason := nav.Query.Get("reason")
	if reason == "" {
		reason = "unknown"
	}
	params := url.Values{"reason": {reason}}
	return redirectTo(g.Name(), g.routes.ConfirmLocation+"?"+params.Encode())
}

// ---------------------------------------------------------------------------
// RoleGate
// ---------------------------------------------------------------------------

// RoleGate restricts a page to an allow-list of canonical roles. An account
// with no role yet is "not yet eligible", not denied: it goes through the
// profile-completion path. Only a recognized-but-unlisted role lands on
// Forbidden.
type RoleGate struct {
	routes  RoutesConfig
	intents *redirect.IntentStore
	allow   map[Role]bool
}

// NewRoleGate builds the gate; the allow-list is canonicalized once.
func NewRoleGate(c *Context, allow ...Role) *RoleGate {
	set := make(map[Role]bool, len(allow))
	for _, r := range allow {
		if canonical := CanonicalizeRole(string(r)); canonical != "" {
			set[canonical] = true
		}
	}
	return &RoleGate{routes: c.Routes(), intents: c.intents, allow: set}
}

func (g *RoleGate) Name() string { return "role" }

func (g *RoleGate) Evaluate(ctx context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if !snap.Authenticated {
		g.intents.StoreLogin(ctx, nav.FullPath())
		return redirectTo(g.Name(), g.routes.Login)
	}
	role := CanonicalizeRole(string(snap.Role))
	if role == "" {
		g.intents.StoreLogin(ctx, nav.FullPath())
		return redirectTo(g.Name(), g.routes.CompleteProfile)
	}
	if !g.allow[role] {
		return redirectTo(g.Name(), g.routes.Forbidden)
	}
	return allowHere()
}

// ---------------------------------------------------------------------------
// RedirectIfAuthenticatedGate
// ---------------------------------------------------------------------------

// RedirectIfAuthenticatedGate is the inverse gate for guest-only pages.
// Authenticated visitors resume, in order of precedence: the router-state
// origin, the highest-priority stored intent (consuming clears all slots),
// or a status-appropriate fallback — CheckEmail when unverified,
// CompleteProfile when incomplete, otherwise the configured fallback or the
// role home. Resume targets are laundered through MapPublicToDashboard so
// the bounce can never land back on a public auth page.
type RedirectIfAuthenticatedGate struct {
	routes     RoutesConfig
	intents    *redirect.IntentStore
	metrics    *Metrics
	fallbackTo string
}

// NewRedirectIfAuthenticatedGate builds the gate; fallbackTo may be empty.
func NewRedirectIfAuthenticatedGate(c *Context, fallbackTo string) *RedirectIfAuthenticatedGate {
	return &RedirectIfAuthenticatedGate{
		routes:     c.Routes(),
		intents:    c.intents,
		metrics:    c.metrics,
		fallbackTo: fallbackTo,
	}
}

func (g *RedirectIfAuthenticatedGate) Name() string { return "redirect_if_authenticated" }

func (g *RedirectIfAuthenticatedGate) Evaluate(ctx context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if !snap.Authenticated {
		return allowHere()
	}

	// Onboarding outranks resumption: an account that still has steps to
	// finish goes to the next step, keeping any stored intent pending.
	if !snap.EmailVerified {
		return redirectTo(g.Name(), g.routes.CheckEmail)
	}
	if !snap.ProfileComplete {
		return redirectTo(g.Name(), g.routes.CompleteProfile)
	}

	if target := g.resumeTarget(ctx, nav); target != "" {
		return redirectTo(g.Name(), target)
	}
	return redirectTo(g.Name(), g.fallback(snap))
}

func (g *RedirectIfAuthenticatedGate) resumeTarget(ctx context.Context, nav Navigation) string {
	if isInternalPath(nav.From) {
		return g.routes.MapPublicToDashboard(nav.From)
	}
	if next := g.intents.ConsumeNext(ctx); isInternalPath(next) {
		g.metrics.Inc(MetricIntentConsumed)
		return g.routes.MapPublicToDashboard(next)
	}
	return ""
}

func (g *RedirectIfAuthenticatedGate) fallback(snap Snapshot) string {
	if g.fallbackTo != "" && isInternalPath(g.fallbackTo) {
		return g.fallbackTo
	}
	return g.routes.RoleHome(snap.Role)
}

// ---------------------------------------------------------------------------
// CheckEmailAccessGate
// ---------------------------------------------------------------------------

// CheckEmailAccessGate guards the CheckEmail page itself: guests need the
// registration handoff email in navigation state, accounts without an email
// belong on UpdateEmail, and verified accounts have nothing to check.
type CheckEmailAccessGate struct {
	routes RoutesConfig
}

// NewCheckEmailAccessGate builds the gate from the context's routes.
func NewCheckEmailAccessGate(c *Context) *CheckEmailAccessGate {
	return &CheckEmailAccessGate{routes: c.Routes()}
}

func (g *CheckEmailAccessGate) Name() string { return "check_email_access" }

func (g *CheckEmailAccessGate) Evaluate(_ context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if !snap.Authenticated {
		if nav.StateEmail == "" {
			return redirectTo(g.Name(), g.routes.Register)
		}
		return allowHere()
	}
	if snap.User == nil || snap.User.Email == "" {
		return redirectTo(g.Name(), g.routes.UpdateEmail)
	}
	if snap.EmailVerified {
		return redirectTo(g.Name(), g.routes.Login)
	}
	return allowHere()
}

// ---------------------------------------------------------------------------
// ProfileIncompleteGate
// ---------------------------------------------------------------------------

// ProfileIncompleteGate guards the CompleteProfile page itself: complete
// accounts are sent home unless the navigation explicitly asks for edit
// mode; incomplete accounts get their spot re-remembered so an interrupted
// setup can resume.
type ProfileIncompleteGate struct {
	routes  RoutesConfig
	intents *redirect.IntentStore
}

// NewProfileIncompleteGate builds the gate from the context's routes and
// intent store.
func NewProfileIncompleteGate(c *Context) *ProfileIncompleteGate {
	return &ProfileIncompleteGate{routes: c.Routes(), intents: c.intents}
}

func (g *ProfileIncompleteGate) Name() string { return "profile_incomplete" }

func (g *ProfileIncompleteGate) Evaluate(ctx context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if nav.AllowEdit {
		return allowHere()
	}
	if snap.ProfileComplete {
		return redirectTo(g.Name(), g.routes.RoleHome(snap.Role))
	}
	g.intents.StoreLogin(ctx, nav.FullPath())
	return allowHere()
}

// ---------------------------------------------------------------------------
// EmailUnverifiedGate
// ---------------------------------------------------------------------------

// EmailUnverifiedGate admits only signed-in accounts that still need
// verification; everyone else is sent where they belong.
type EmailUnverifiedGate struct {
	routes RoutesConfig
}

// NewEmailUnverifiedGate builds the gate from the context's routes.
func NewEmailUnverifiedGate(c *Context) *EmailUnverifiedGate {
	return &EmailUnverifiedGate{routes: c.Routes()}
}

func (g *EmailUnverifiedGate) Name() string { return "email_unverified" }

func (g *EmailUnverifiedGate) Evaluate(_ context.Context, snap Snapshot, nav Navigation) Decision {
	if !snap.Hydrated {
		return pendingHere()
	}
	if !snap.Authenticated {
		return redirectTo(g.Name(), g.routes.Login)
	}
	if snap.EmailVerified {
		return redirectTo(g.Name(), g.routes.DashboardRedirect)
	}
	return allowHere()
}
