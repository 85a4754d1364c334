package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:          defaultAddr,
		DatabaseURL:   "postgres://localhost/storefront",
		SessionPepper: "pepper",
		Session:       SessionConfig{TTL: 24 * time.Hour, PurgeInterval: 10 * time.Minute},
		Order:         OrderConfig{Pricing: "client"},
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, want: "database URL"},
		{name: "no pepper", mutate: func(c *Config) { c.SessionPepper = "" }, want: "session pepper"},
		{name: "bad pricing", mutate: func(c *Config) { c.Order.Pricing = "server" }, want: "pricing"},
		{name: "bad proxy", mutate: func(c *Config) { c.RateLimit.TrustedProxies = []string{"proxy.local"} }, want: "trusted proxies"},
		{name: "zero ttl", mutate: func(c *Config) { c.Session.TTL = 0 }, want: "TTL"},
		{name: "zero purge", mutate: func(c *Config) { c.Session.PurgeInterval = 0 }, want: "purge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	custom := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	custom.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", custom.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", custom.Addr)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DATABASE_URL", "postgres://env/db")
	t.Setenv("STORE_SESSION_PEPPER", "secret")
	t.Setenv("STORE_ORDER_PRICING", "catalog")

	cfg, err := loadConfig(true)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "catalog", cfg.Order.Pricing)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "sid", cfg.Session.CookieName)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.Origins)
	assert.True(t, cfg.CORS.AllowCredentials)
}
