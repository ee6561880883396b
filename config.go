package authgate

import (
	"errors"
	"fmt"
	"time"
)

// Config defines all tunables of the session and gate subsystem.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Session  SessionConfig
	Routes   RoutesConfig
	Redirect RedirectConfig
	Profile  ProfileConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// SessionConfig controls the persisted session snapshot.
type SessionConfig struct {
	// TTL is applied when neither the caller nor the bearer token supplies
	// an expiry. The default is deliberately long (365 days): re-auth is
	// infrequent by design for this audience.
	TTL time.Duration

	// StorageKey is the single namespaced key holding {token, user, expiresAt}.
	StorageKey string
}

// RoutesConfig names the logical destinations the gate chain redirects
// between. The gates treat these as stable identifiers for self-loop
// detection; the actual URL strings are the host application's concern.
type RoutesConfig struct {
	Home            string
	Login           string
	Register        string
	CheckEmail      string
	UpdateEmail     string
	CompleteProfile string
	ConfirmLocation string
	Forbidden       string

	// AppBase prefixes authenticated application pages. Login intents are
	// captured only for paths under it.
	AppBase string

	// DashboardRedirect is the neutral post-auth landing path that routes
	// by role on the application side.
	DashboardRedirect string

	// RoleHomes maps canonical roles to their dashboard. Unknown or empty
	// roles fall back to the requester home.
	RoleHomes map[Role]string
}

// RoleHome resolves the home dashboard for a role. The requester dashboard
// is the fallback for unknown and unassigned roles.
func (r RoutesConfig) RoleHome(role Role) string {
	if home, ok := r.RoleHomes[CanonicalizeRole(string(role))]; ok {
		return home
	}
	return r.RoleHomes[RoleKR]
}

// RedirectConfig names the storage keys of the three intent slots.
type RedirectConfig struct {
	LoginKey    string
	ProfileKey  string
	LocationKey string
}

// ProfileConfig controls account-completeness derivation.
type ProfileConfig struct {
	// OverrideKey is the storage key of the manual profile-completeness
	// override ("true"/"false"). It exists so the gate chain can be walked
	// end to end without a backend.
	OverrideKey string
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	DropIfFull bool
}

// MetricsConfig toggles the atomic counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults of the Takaatuf front end.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:        365 * 24 * time.Hour,
			StorageKey: "takaatuf_auth",
		},
		Routes: RoutesConfig{
			Home:              "/",
			Login:             "/login",
			Register:          "/register",
			CheckEmail:        "/check-email",
			UpdateEmail:       "/update-email",
			CompleteProfile:   "/complete-profile",
			ConfirmLocation:   "/confirm-location",
			Forbidden:         "/403",
			AppBase:           "/app",
			DashboardRedirect: "/app",
			RoleHomes: map[Role]string{
				RoleKP:    "/app/dashboard/kp",
				RoleKR:    "/app/dashboard/requester",
				RoleAdmin: "/app/dashboard/admin",
			},
		},
		Redirect: RedirectConfig{
			LoginKey:    "redirect_after_login",
			ProfileKey:  "redirect_after_profile",
			LocationKey: "redirect_after_location",
		},
		Profile: ProfileConfig{
			OverrideKey: "profile_complete_mock",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Routes.RoleHomes != nil {
		out.Routes.RoleHomes = make(map[Role]string, len(cfg.Routes.RoleHomes))
		for k, v := range cfg.Routes.RoleHomes {
			out.Routes.RoleHomes[k] = v
		}
	}
	return out
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: session TTL must be positive", ErrConfigInvalid)
	}
	if c.Session.StorageKey == "" {
		return fmt.Errorf("%w: session storage key is empty", ErrConfigInvalid)
	}
	for name, v := range map[string]string{
		"login route":            c.Routes.Login,
		"register route":         c.Routes.Register,
		"check-email route":      c.Routes.CheckEmail,
		"update-email route":     c.Routes.UpdateEmail,
		"complete-profile route": c.Routes.CompleteProfile,
		"confirm-location route": c.Routes.ConfirmLocation,
		"forbidden route":        c.Routes.Forbidden,
		"app base":               c.Routes.AppBase,
	} {
		if v == "" {
			return fmt.Errorf("%w: %s is empty", ErrConfigInvalid, name)
		}
	}
	if len(c.Routes.RoleHomes) == 0 {
		return fmt.Errorf("%w: no role homes configured", ErrConfigInvalid)
	}
	keys := map[string]string{
		"login redirect key":    c.Redirect.LoginKey,
		"profile redirect key":  c.Redirect.ProfileKey,
		"location redirect key": c.Redirect.LocationKey,
	}
	seen := make(map[string]string, len(keys))
	for name, k := range keys {
		if k == "" {
			return fmt.Errorf("%w: %s is empty", ErrConfigInvalid, name)
		}
		if other, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s collides with %s", ErrConfigInvalid, name, other)
		}
		seen[k] = name
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.Join(ErrConfigInvalid, errors.New("audit buffer size is negative"))
	}
	return nil
}
