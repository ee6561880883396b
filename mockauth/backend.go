package mockauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/takaatuf/authgate"
	"github.com/takaatuf/authgate/storage"
)

// DefaultUsersKey is the storage key holding the user registry.
const DefaultUsersKey = "takaatuf_users"

// account is one registry entry. The password is stored as-is; mockauth is
// not a credential store.
type account struct {
	Password string               `json:"password"`
	User     *authgate.UserRecord `json:"user"`
}

// Backend implements authgate.AuthBackend against a storage.Storage
// registry. The profile and location calls operate on the most recently
// authenticated account, the way a cookie-bound backend would resolve the
// caller.
type Backend struct {
	mu       sync.Mutex
	st       storage.Storage
	usersKey string
	current  string
	now      func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithUsersKey overrides the registry storage key.
func WithUsersKey(key string) Option {
	return func(b *Backend) { b.usersKey = key }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New builds a Backend over st. A nil st gets an in-memory registry.
func New(st storage.Storage, opts ...Option) *Backend {
	b := &Backend{st: st, usersKey: DefaultUsersKey, now: time.Now}
	if b.st == nil {
		b.st = storage.NewMemory()
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

var _ authgate.AuthBackend = (*Backend)(nil)

func reject(msg string) authgate.Result {
	return authgate.Result{OK: false, Error: msg}
}

// LoginEmail authenticates against the registry and issues a fresh token.
func (b *Backend) LoginEmail(ctx context.Context, email, password string) (authgate.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	email = normalizeEmail(email)
	reg, err := b.load(ctx)
	if err != nil {
		return authgate.Result{}, err
	}
	acct, ok := reg[email]
	if !ok || acct.Password != password {
		return reject("invalid email or password"), nil
	}
	b.current = email
	return authgate.Result{
		OK:    true,
		Token: uuid.NewString(),
		User:  acct.User.Clone(),
		Role:  acct.User.Role,
	}, nil
}

// Register creates an unverified account from the submitted fields. The
// fields map must carry at least "email" and "password"; anything else is
// folded into the new user record.
func (b *Backend) Register(ctx context.Context, fields map[string]any) (authgate.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	email := normalizeEmail(str(fields["email"]))
	password := str(fields["password"])
	if email == "" || password == "" {
		return reject("email and password are required"), nil
	}

	reg, err := b.load(ctx)
	if err != nil {
		return authgate.Result{}, err
	}
	if _, exists := reg[email]; exists {
		return reject("an account with this email already exists"), nil
	}

	user := &authgate.UserRecord{
		ID:    uuid.NewString(),
		Email: email,
		Name:  str(fields["name"]),
	}
	user = applyExtras(user, fields, "email", "password", "name")

	reg[email] = &account{Password: password, User: user}
	if err := b.save(ctx, reg); err != nil {
		return authgate.Result{}, err
	}
	b.current = email
	return authgate.Result{
		OK:    true,
		Token: uuid.NewString(),
		User:  user.Clone(),
	}, nil
}

// CompleteProfile merges the submitted fields into the current account and
// returns the updated record.
func (b *Backend) CompleteProfile(ctx context.Context, fields map[string]any) (authgate.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, acct, err := b.currentAccount(ctx)
	if err != nil {
		return authgate.Result{}, err
	}
	if acct == nil {
		return reject("not signed in"), nil
	}
	acct.User = acct.User.ApplyUpdates(fields)
	acct.User.Role = authgate.CanonicalizeRole(string(acct.User.Role))
	if err := b.save(ctx, reg); err != nil {
		return authgate.Result{}, err
	}
	return authgate.Result{OK: true, User: acct.User.Clone(), Role: acct.User.Role}, nil
}

// ConfirmLocation clears the location-confirmation flag on the current
// account. The choice string is recorded on the user for inspection.
func (b *Backend) ConfirmLocation(ctx context.Context, choice string) (authgate.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, acct, err := b.currentAccount(ctx)
	if err != nil {
		return authgate.Result{}, err
	}
	if acct == nil {
		return reject("not signed in"), nil
	}
	acct.User = acct.User.ApplyUpdates(map[string]any{"locationChoice": choice})
	acct.User.RequiresLocationConfirmation = false
	if err := b.save(ctx, reg); err != nil {
		return authgate.Result{}, err
	}
	return authgate.Result{OK: true, User: acct.User.Clone(), Role: acct.User.Role}, nil
}

// VerifyOAuth simulates the provider callback. The query must carry an
// "email" parameter except for facebook, which may withhold it; a missing
// email produces an account that the missing-email gate will route to the
// update-email page. Unknown accounts are created on the fly, verified,
// since the provider vouched for them.
func (b *Backend) VerifyOAuth(ctx context.Context, provider, query string) (authgate.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	params, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return reject("malformed oauth callback"), nil
	}
	if params.Get("error") != "" {
		return reject(params.Get("error")), nil
	}

	email := normalizeEmail(params.Get("email"))
	if email == "" && provider != "facebook" {
		return reject(fmt.Sprintf("%s did not return an email", provider)), nil
	}

	reg, err := b.load(ctx)
	if err != nil {
		return authgate.Result{}, err
	}

	key := email
	if key == "" {
		key = provider + ":" + params.Get("id")
	}
	acct, ok := reg[key]
	if !ok {
		verifiedAt := b.now().UTC()
		user := &authgate.UserRecord{
			ID:    uuid.NewString(),
			Email: email,
			Name:  params.Get("name"),
		}
		if email != "" {
			v := true
			user.EmailVerified = &v
			user.EmailVerifiedAt = &verifiedAt
		}
		acct = &account{Password: uuid.NewString(), User: user}
		reg[key] = acct
		if err := b.save(ctx, reg); err != nil {
			return authgate.Result{}, err
		}
	}
	b.current = key
	return authgate.Result{
		OK:    true,
		Token: uuid.NewString(),
		User:  acct.User.Clone(),
		Role:  acct.User.Role,
	}, nil
}

// ResendVerificationEmail succeeds for any known unverified account.
func (b *Backend) ResendVerificationEmail(ctx context.Context, email string) (authgate.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, err := b.load(ctx)
	if err != nil {
		return authgate.Result{}, err
	}
	if _, ok := reg[normalizeEmail(email)]; !ok {
		return reject("no account with this email"), nil
	}
	return authgate.Result{OK: true}, nil
}

// MarkEmailVerified flips the verification signals on an account, standing
// in for the user clicking the emailed link.
func (b *Backend) MarkEmailVerified(ctx context.Context, email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, err := b.load(ctx)
	if err != nil {
		return err
	}
	acct, ok := reg[normalizeEmail(email)]
	if !ok {
		return storage.ErrNotFound
	}
	v := true
	at := b.now().UTC()
	acct.User.EmailVerified = &v
	acct.User.EmailVerifiedAt = &at
	return b.save(ctx, reg)
}

// Seed installs an account directly, for tests and demos.
func (b *Backend) Seed(ctx context.Context, email, password string, user *authgate.UserRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	email = normalizeEmail(email)
	reg, err := b.load(ctx)
	if err != nil {
		return err
	}
	if user.Email == "" {
		user.Email = email
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	reg[email] = &account{Password: password, User: user.Clone()}
	return b.save(ctx, reg)
}

func (b *Backend) currentAccount(ctx context.Context) (map[string]*account, *account, error) {
	reg, err := b.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if b.current == "" {
		return reg, nil, nil
	}
	return reg, reg[b.current], nil
}

func (b *Backend) load(ctx context.Context) (map[string]*account, error) {
	raw, err := b.st.Get(ctx, b.usersKey)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]*account{}, nil
	}
	if err != nil {
		return nil, err
	}
	reg := map[string]*account{}
	if err := json.Unmarshal([]byte(raw), &reg); err != nil {
		return nil, fmt.Errorf("mockauth: corrupt registry: %w", err)
	}
	return reg, nil
}

func (b *Backend) save(ctx context.Context, reg map[string]*account) error {
	raw, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	return b.st.Set(ctx, b.usersKey, string(raw))
}

func applyExtras(u *authgate.UserRecord, fields map[string]any, skip ...string) *authgate.UserRecord {
	extras := make(map[string]any, len(fields))
	for k, v := range fields {
		skipped := false
		for _, s := range skip {
			if k == s {
				skipped = true
				break
			}
		}
		if !skipped {
			extras[k] = v
		}
	}
	if len(extras) == 0 {
		return u
	}
	return u.ApplyUpdates(extras)
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
