// Package storage defines the durable key-value contract the session
// snapshot, redirect intents, and overrides persist through, plus three
// drivers: an in-process map, an atomic JSON file, and Redis.
//
// The contract is intentionally tiny — string keys to string values — so a
// driver can sit on anything resembling browser localStorage. Drivers must
// return ErrNotFound for absent keys and treat Delete of an absent key as a
// no-op.
package storage
