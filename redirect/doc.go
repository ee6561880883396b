// Package redirect remembers where a user was trying to go across a
// multi-step onboarding detour.
//
// Three independent slots exist — login, profile, location — each holding a
// path to resume once its gate is satisfied. When several are pending,
// consumption resolves location before profile before login, and consuming
// any slot clears all three so a stale lower-priority intent can never fire
// after a higher one resolved. The profile and location slots are
// first-writer-wins within a detour; the login slot always takes the latest
// write (the most recent login attempt wins).
package redirect
