package redirect

import (
	"context"
	"errors"

	"github.com/takaatuf/authgate/storage"
)

// Keys names the storage keys of the three slots.
type Keys struct {
	Login    string
	Profile  string
	Location string
}

// DefaultKeys returns the key names used by the Takaatuf front end.
func DefaultKeys() Keys {
	return Keys{
		Login:    "redirect_after_login",
		Profile:  "redirect_after_profile",
		Location: "redirect_after_location",
	}
}

// IntentStore persists pending redirect intents. All operations are
// best-effort: a failing storage driver degrades to "no intent pending",
// never to an error the caller must handle.
type IntentStore struct {
	st   storage.Storage
	keys Keys
}

// NewIntentStore builds a store over st. Zero-value keys fall back to
// DefaultKeys.
func NewIntentStore(st storage.Storage, keys Keys) *IntentStore {
	if keys == (Keys{}) {
		keys = DefaultKeys()
	}
	return &IntentStore{st: st, keys: keys}
}

func (s *IntentStore) read(ctx context.Context, key string) string {
	v, err := s.st.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return ""
		}
		return ""
	}
	return v
}

// PeekLogin returns the pending login intent without consuming it.
func (s *IntentStore) PeekLogin(ctx context.Context) string {
	return s.read(ctx, s.keys.Login)
}

// PeekProfile returns the pending profile intent without consuming it.
func (s *IntentStore) PeekProfile(ctx context.Context) string {
	return s.read(ctx, s.keys.Profile)
}

// PeekLocation returns the pending location intent without consuming it.
func (s *IntentStore) PeekLocation(ctx context.Context) string {
	return s.read(ctx, s.keys.Location)
}

// PeekNext returns the highest-priority pending intent without consuming:
// location, then profile, then login. Empty string means none pending.
func (s *IntentStore) PeekNext(ctx context.Context) string {
	if v := s.PeekLocation(ctx); v != "" {
		return v
	}
	if v := s.PeekProfile(ctx); v != "" {
		return v
	}
	return s.PeekLogin(ctx)
}

// HasPending reports whether any slot holds an intent.
func (s *IntentStore) HasPending(ctx context.Context) bool {
	return s.PeekNext(ctx) != ""
}

// StoreLogin records a login intent. The slot is always overwritable: the
// latest login attempt wins.
func (s *IntentStore) StoreLogin(ctx context.Context, target string) {
	if target == "" {
		return
	}
	_ = s.st.Set(ctx, s.keys.Login, target)
}

// StoreProfileOnce records a profile intent unless the profile slot already
// holds one (first-writer-wins). Other slots are independent: a pending
// login or location intent does not block the write, priority is resolved
// at consume time.
func (s *IntentStore) StoreProfileOnce(ctx context.Context, target string) {
	if target == "" || s.PeekProfile(ctx) != "" {
		return
	}
	_ = s.st.Set(ctx, s.keys.Profile, target)
}

// StoreLocationOnce records a location intent unless the location slot
// already holds one.
func (s *IntentStore) StoreLocationOnce(ctx context.Context, target string) {
	if target == "" || s.PeekLocation(ctx) != "" {
		return
	}
	_ = s.st.Set(ctx, s.keys.Location, target)
}

// ConsumeLogin returns and clears only the login slot.
func (s *IntentStore) ConsumeLogin(ctx context.Context) string {
	v := s.read(ctx, s.keys.Login)
	_ = s.st.Delete(ctx, s.keys.Login)
	return v
}

// ConsumeNext returns the highest-priority pending intent and clears all
// three slots regardless of which one was returned. A second call with no
// intervening stores returns the empty string.
func (s *IntentStore) ConsumeNext(ctx context.Context) string {
	next := s.PeekNext(ctx)
	if next == "" {
		return ""
	}
	s.Clear(ctx)
	return next
}

// Clear removes all three slots. Idempotent.
func (s *IntentStore) Clear(ctx context.Context) {
	_ = s.st.Delete(ctx, s.keys.Location)
	_ = s.st.Delete(ctx, s.keys.Profile)
	_ = s.st.Delete(ctx, s.keys.Login)
}
