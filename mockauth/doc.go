// Package mockauth is an in-process AuthBackend for demos and tests. It
// keeps a user registry in a pluggable storage backend, issues random
// opaque tokens, and mimics the rejection and onboarding behavior of a real
// backend without any network.
package mockauth
