// Package authgate implements the session and onboarding-gate state machine
// for the Takaatuf marketplace front ends: a persisted bearer-token session,
// derived account-completeness status, role normalization, and an ordered
// chain of authorization gates that decide, on every navigation, whether a
// page may render and where to send the user otherwise.
//
// The package is the public surface. It exposes [Context], [Builder],
// [Config], the gate types ([Chain], [Decision], [Navigation]), and value
// types (UserRecord, DerivedStatus, Session). Durable storage drivers live
// under storage/, the redirect-intent slots under redirect/, and HTTP
// integration under middleware/.
//
// # Architecture boundaries
//
//   - authgate consumes a bearer token and a JSON user object; it never
//     issues or verifies tokens. The only token inspection performed is an
//     unverified read of a JWT exp claim to seed session expiry.
//   - All network authentication goes through the [AuthBackend] capability.
//     The package inspects only the uniform {ok, error} envelope, never
//     transport status codes.
//   - No failure in this package is fatal: storage corruption, quota errors,
//     and expiry all degrade to "logged out", which is always recoverable.
//
// # Concurrency
//
// Context methods are safe for concurrent use after [Builder.Build].
// Persistence of a session mutation is synchronous with the state update so
// a gate evaluation can never observe a pre-login snapshot in storage.
package authgate
