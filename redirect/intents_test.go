package redirect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takaatuf/authgate/storage"
)

func newStore(t *testing.T) *IntentStore {
	t.Helper()
	return NewIntentStore(storage.NewMemory(), DefaultKeys())
}

func TestStoreLoginAlwaysOverwrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.StoreLogin(ctx, "/app/a")
	s.StoreLogin(ctx, "/app/b")
	assert.Equal(t, "/app/b", s.PeekLogin(ctx))

	s.StoreLogin(ctx, "")
	assert.Equal(t, "/app/b", s.PeekLogin(ctx), "empty targets are ignored")
}

func TestStoreProfileOnceFirstWriterWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.StoreProfileOnce(ctx, "/app/a")
	s.StoreProfileOnce(ctx, "/app/b")
	assert.Equal(t, "/app/a", s.PeekProfile(ctx))
}

func TestSlotsAreIndependent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// A pending profile intent does not block the location slot, and the
	// location path wins at consume time without erasing profile first.
	s.StoreProfileOnce(ctx, "/app/p")
	s.StoreLocationOnce(ctx, "/app/loc")
	assert.Equal(t, "/app/p", s.PeekProfile(ctx))
	assert.Equal(t, "/app/loc", s.PeekLocation(ctx))
	assert.Equal(t, "/app/loc", s.ConsumeNext(ctx))
	assert.False(t, s.HasPending(ctx))

	// The login slot stays overwritable regardless of the others.
	s.StoreProfileOnce(ctx, "/app/p2")
	s.StoreLogin(ctx, "/app/d")
	s.StoreLogin(ctx, "/app/e")
	assert.Equal(t, "/app/e", s.PeekLogin(ctx))
}

func TestPeekNextPriority(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.StoreLogin(ctx, "/l")
	assert.Equal(t, "/l", s.PeekNext(ctx))

	s.StoreProfileOnce(ctx, "/p")
	assert.Equal(t, "/p", s.PeekNext(ctx), "profile outranks login")

	s.StoreLocationOnce(ctx, "/loc")
	assert.Equal(t, "/loc", s.PeekNext(ctx), "location outranks profile and login")
}

func TestConsumeNextClearsAllSlots(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	s := NewIntentStore(st, DefaultKeys())
	require.NoError(t, st.Set(ctx, DefaultKeys().Login, "/l"))
	require.NoError(t, st.Set(ctx, DefaultKeys().Profile, "/p"))

	assert.Equal(t, "/p", s.ConsumeNext(ctx))
	assert.False(t, s.HasPending(ctx), "consuming must clear every slot")
	assert.Empty(t, s.ConsumeNext(ctx), "second consume returns nothing")
}

func TestConsumeLoginLeavesOtherSlots(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	s := NewIntentStore(st, DefaultKeys())
	require.NoError(t, st.Set(ctx, DefaultKeys().Login, "/l"))
	require.NoError(t, st.Set(ctx, DefaultKeys().Profile, "/p"))

	assert.Equal(t, "/l", s.ConsumeLogin(ctx))
	assert.Equal(t, "/p", s.PeekProfile(ctx))
}

func TestClearIsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.StoreLogin(ctx, "/app/a")
	s.Clear(ctx)
	s.Clear(ctx)
	assert.False(t, s.HasPending(ctx))
}

func TestZeroKeysFallBackToDefaults(t *testing.T) {
	s := NewIntentStore(storage.NewMemory(), Keys{})
	ctx := context.Background()
	s.StoreLogin(ctx, "/app/a")
	assert.Equal(t, "/app/a", s.PeekLogin(ctx))
}
