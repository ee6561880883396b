package authgate

import (
	"errors"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	mutations := map[string]func(*Config){
		"zero ttl":             func(c *Config) { c.Session.TTL = 0 },
		"empty storage key":    func(c *Config) { c.Session.StorageKey = "" },
		"empty login route":    func(c *Config) { c.Routes.Login = "" },
		"empty app base":       func(c *Config) { c.Routes.AppBase = "" },
		"no role homes":        func(c *Config) { c.Routes.RoleHomes = nil },
		"empty redirect key":   func(c *Config) { c.Redirect.LoginKey = "" },
		"colliding redirects":  func(c *Config) { c.Redirect.ProfileKey = c.Redirect.LocationKey },
		"negative audit queue": func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = -1 },
	}
	for name, mutate := range mutations {
		cfg := DefaultConfig()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation failure", name)
		}
		if !errors.Is(err, ErrConfigInvalid) {
			t.Fatalf("%s: expected ErrConfigInvalid, got %v", name, err)
		}
	}
}

func TestRoleHomeFallsBackToRequester(t *testing.T) {
	r := DefaultConfig().Routes
	if got := r.RoleHome(RoleAdmin); got != "/app/dashboard/admin" {
		t.Fatalf("unexpected admin home %q", got)
	}
	if got := r.RoleHome("moderator"); got != "/app/dashboard/requester" {
		t.Fatalf("unknown roles fall back to the requester home, got %q", got)
	}
	if got := r.RoleHome(""); got != "/app/dashboard/requester" {
		t.Fatalf("empty role falls back to the requester home, got %q", got)
	}
	if got := r.RoleHome(Role("Knowledge_Provider")); got != "/app/dashboard/kp" {
		t.Fatalf("aliases resolve before lookup, got %q", got)
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	clone := cloneConfig(cfg)
	clone.Routes.RoleHomes[RoleKP] = "/elsewhere"
	if cfg.Routes.RoleHomes[RoleKP] != "/app/dashboard/kp" {
		t.Fatal("clone shares the role-home map")
	}
}
