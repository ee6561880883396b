// Package middleware exposes HTTP adapters for authgate gate chains.
//
// # Guards
//
//   - [Gatekeeper] — evaluates an arbitrary chain per request.
//   - [RequireAuth] — the default onboarding chain.
//   - [RequireRole] — onboarding chain plus a role allow-list.
//   - [GuestOnly] — bounces authenticated users off guest pages.
//
// Each guard builds a [authgate.Navigation] from the request, asks the chain
// for a decision, and either serves the wrapped handler, issues a 302 to the
// decision target, or answers 204 while the session is still hydrating.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into chain calls. It does NOT make
// gate decisions itself — all routing logic lives in the gates.
package middleware
