package authcore

import (
	"net/http"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.Tokens.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.Tokens.RefreshSecret = []byte("refresh-secret-refresh-secret-01")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with secrets valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "access ttl zero invalid",
			mutate: func(c *Config) {
				c.Tokens.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "refresh ttl not above access ttl invalid",
			mutate: func(c *Config) {
				c.Tokens.RefreshTTL = c.Tokens.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "short access secret invalid",
			mutate: func(c *Config) {
				c.Tokens.AccessSecret = []byte("too-short")
			},
			wantValid: false,
		},
		{
			name: "identical secrets invalid",
			mutate: func(c *Config) {
				c.Tokens.RefreshSecret = c.Tokens.AccessSecret
			},
			wantValid: false,
		},
		{
			name: "negative leeway invalid",
			mutate: func(c *Config) {
				c.Tokens.Leeway = -time.Second
			},
			wantValid: false,
		},
		{
			name: "password memory below floor invalid",
			mutate: func(c *Config) {
				c.Password.Memory = 4096
			},
			wantValid: false,
		},
		{
			name: "password salt below floor invalid",
			mutate: func(c *Config) {
				c.Password.SaltLength = 8
			},
			wantValid: false,
		},
		{
			name: "login throttle without attempts invalid",
			mutate: func(c *Config) {
				c.Security.EnableLoginThrottle = true
				c.Security.MaxLoginAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "login throttle configured valid",
			mutate: func(c *Config) {
				c.Security.EnableLoginThrottle = true
			},
			wantValid: true,
		},
		{
			name: "refresh throttle without cooldown invalid",
			mutate: func(c *Config) {
				c.Security.EnableRefreshThrottle = true
				c.Security.RefreshCooldownDuration = 0
			},
			wantValid: false,
		},
		{
			name: "blank cookie name invalid",
			mutate: func(c *Config) {
				c.Cookies.RefreshName = ""
			},
			wantValid: false,
		},
		{
			name: "matching cookie names invalid",
			mutate: func(c *Config) {
				c.Cookies.RefreshName = c.Cookies.AccessName
			},
			wantValid: false,
		},
		{
			name: "samesite none without secure invalid",
			mutate: func(c *Config) {
				c.Cookies.SameSite = http.SameSiteNoneMode
				c.Cookies.Secure = false
			},
			wantValid: false,
		},
		{
			name: "samesite lax without secure valid",
			mutate: func(c *Config) {
				c.Cookies.SameSite = http.SameSiteLaxMode
				c.Cookies.Secure = false
			},
			wantValid: true,
		},
		{
			name: "account creation without default roles invalid",
			mutate: func(c *Config) {
				c.Account.Enabled = true
				c.Account.DefaultRoles = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestCloneConfigCopiesSecrets(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)

	clone.Tokens.AccessSecret[0] ^= 0xFF
	if cfg.Tokens.AccessSecret[0] == clone.Tokens.AccessSecret[0] {
		t.Fatal("expected cloned secret to be independent of the original")
	}
}
