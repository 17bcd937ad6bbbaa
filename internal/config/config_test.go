package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:         "8375",
		Env:          "development",
		StoreBackend: BackendSQLite,
		IdentityProv: IdentityJWT,
		JWTSecret:    "secure-secret-at-least-32-chars-long",
		DBPassword:   "secure-password",
		FeedWindow:   100,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid development", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"unknown backend", func(c *Config) { c.StoreBackend = "mongo" }, true},
		{"firestore without project", func(c *Config) { c.StoreBackend = BackendFirestore }, true},
		{"firestore with project", func(c *Config) {
			c.StoreBackend = BackendFirestore
			c.FirestoreProj = "pawfeed-dev"
		}, false},
		{"unknown identity provider", func(c *Config) { c.IdentityProv = "saml" }, true},
		{"empty jwt secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"zero feed window", func(c *Config) { c.FeedWindow = 0 }, true},
		{"production sqlite", func(c *Config) { c.Env = "production" }, true},
		{"production default secret", func(c *Config) {
			c.Env = "production"
			c.StoreBackend = BackendPostgres
			c.JWTSecret = defaultJWTSecret
		}, true},
		{"production weak db password", func(c *Config) {
			c.Env = "prod"
			c.StoreBackend = BackendPostgres
			c.DBPassword = "password"
		}, true},
		{"production postgres", func(c *Config) {
			c.Env = "production"
			c.StoreBackend = BackendPostgres
		}, false},
		{"production firebase identity", func(c *Config) {
			c.Env = "production"
			c.StoreBackend = BackendFirestore
			c.FirestoreProj = "pawfeed"
			c.IdentityProv = IdentityFirebase
			c.JWTSecret = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Moderators(t *testing.T) {
	t.Parallel()
	c := &Config{ModeratorIDs: " mod-1, ,mod-2 "}
	assert.Equal(t, map[string]bool{"mod-1": true, "mod-2": true}, c.Moderators())
	assert.Empty(t, (&Config{}).Moderators())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("FEED_WINDOW", "25")
	t.Setenv("MODERATOR_IDS", "mod-1")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, c.StoreBackend)
	assert.Equal(t, 25, c.FeedWindow)
	assert.True(t, c.Moderators()["mod-1"])
	assert.Equal(t, "8375", c.Port)
}
