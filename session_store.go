package authgate

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/takaatuf/authgate/storage"
)

// SessionStore persists the {token, user, expiresAt} snapshot under one
// namespaced key.
//
// Reads self-heal: corrupt JSON, a passed expiry, or a token/user integrity
// violation wipe the stored record and report "no session". Writes are
// best-effort; persistence failures are logged and swallowed so a full or
// unavailable store can never break a login.
type SessionStore struct {
	st  storage.Storage
	cfg SessionConfig
	log *slog.Logger

	now func() time.Time
}

// NewSessionStore builds a store over st. A nil logger falls back to
// slog.Default().
func NewSessionStore(st storage.Storage, cfg SessionConfig, log *slog.Logger) *SessionStore {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultConfig().Session.TTL
	}
	if cfg.StorageKey == "" {
		cfg.StorageKey = defaultConfig().Session.StorageKey
	}
	return &SessionStore{st: st, cfg: cfg, log: log, now: time.Now}
}

func (s *SessionStore) nowMillis() int64 {
	return s.now().UnixMilli()
}

// Load reads the persisted snapshot. It returns nil — after wiping storage —
// when the record is missing, corrupt, expired, or violates the
// both-or-neither token/user invariant.
func (s *SessionStore) Load(ctx context.Context) *Session {
	raw, err := s.st.Get(ctx, s.cfg.StorageKey)
	if err != nil {
		return nil
	}

	var snap Session
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.log.Warn("session snapshot corrupt, wiping", "err", err)
		s.Clear(ctx)
		return nil
	}
	if snap.ExpiresAt > 0 && s.IsExpired(snap.ExpiresAt) {
		s.Clear(ctx)
		return nil
	}
	if (snap.Token != "" && snap.User == nil) || (snap.Token == "" && snap.User != nil) {
		s.log.Warn("session snapshot integrity violation, wiping")
		s.Clear(ctx)
		return nil
	}
	if snap.Token == "" {
		return nil
	}
	return &snap
}

// Save persists the snapshot. Failures are swallowed and logged; the
// returned bool reports whether the write landed (callers use it for
// metrics only, never control flow).
func (s *SessionStore) Save(ctx context.Context, snap *Session) bool {
	if snap == nil {
		return false
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Warn("session snapshot not serializable", "err", err)
		return false
	}
	if err := s.st.Set(ctx, s.cfg.StorageKey, string(data)); err != nil {
		s.log.Warn("failed to save session snapshot", "err", err)
		return false
	}
	return true
}

// Clear removes the snapshot. Idempotent; storage errors are ignored.
func (s *SessionStore) Clear(ctx context.Context) {
	_ = s.st.Delete(ctx, s.cfg.StorageKey)
}

// EnsureExpiresAt resolves an expiry in millisecond-epoch terms: a positive
// value passes through; otherwise the exp claim of a JWT bearer token is
// used when present; otherwise now + TTL.
func (s *SessionStore) EnsureExpiresAt(value int64, token string) int64 {
	if value > 0 {
		return value
	}
	if exp := tokenExpiryMillis(token); exp > 0 {
		return exp
	}
	return s.MakeExpiresAt()
}

// MakeExpiresAt returns a fresh expiry of now + TTL.
func (s *SessionStore) MakeExpiresAt() int64 {
	return s.nowMillis() + s.cfg.TTL.Milliseconds()
}

// IsExpired reports whether a millisecond-epoch expiry has passed. Zero and
// negative values never expire (no expiry recorded yet).
func (s *SessionStore) IsExpired(value int64) bool {
	return value > 0 && value <= s.nowMillis()
}

// tokenExpiryMillis reads the exp claim of a JWT without verifying the
// signature. Opaque tokens and tokens without exp yield zero. Verification
// is the backend's job; this is only an expiry hint for the local snapshot.
func tokenExpiryMillis(token string) int64 {
	if token == "" {
		return 0
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Time.UnixMilli()
}
