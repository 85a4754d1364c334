package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL  string `default:"" usage:"Base URL prepended to relative product image paths" flag:"image-base-url"`
	SessionPepper string `usage:"HMAC pepper for session token hashing (STORE_SESSION_PEPPER)" flag:"session-pepper"`
	BcryptCost    int    `default:"10" usage:"bcrypt cost for password hashing" flag:"bcrypt-cost"`
	SeedCatalog   bool   `default:"true" usage:"Insert the default catalog when the products table is empty" flag:"seed-catalog"`
	Compression   int    `default:"4" usage:"Brotli level for responses, -1 disables" flag:"compression"`
	Session       SessionConfig
	Order         OrderConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// SessionConfig controls the login session cookie.
type SessionConfig struct {
	CookieName    string        `default:"sid" usage:"Session cookie name"`
	TTL           time.Duration `default:"24h" usage:"Session lifetime"`
	Secure        bool          `default:"false" usage:"Mark the session cookie Secure (requires TLS)"`
	PurgeInterval time.Duration `default:"10m" usage:"How often expired sessions are deleted"`
}

// OrderConfig controls order placement.
type OrderConfig struct {
	Pricing string `default:"client" usage:"Unit price source: client or catalog"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	// TrustedProxies holds CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For header identifies the client. Empty keys clients by
	// connection address.
	TrustedProxies []string `usage:"Reverse proxy CIDRs trusted for X-Forwarded-For" flag:"trusted-proxies"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"http://localhost:3000" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (cookies)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a local .env file, environment
// variables and YAML config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(false)
}

func loadConfig(skipFlags bool) (*Config, error) {
	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: skipFlags,
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if c.SessionPepper == "" {
		return errors.New("session pepper is required: set STORE_SESSION_PEPPER")
	}
	if _, err := order.ParsePricingPolicy(c.Order.Pricing); err != nil {
		return errors.Wrap(err, "order pricing")
	}
	if _, err := httpmiddleware.ParsePrefixes(c.RateLimit.TrustedProxies); err != nil {
		return errors.Wrap(err, "trusted proxies")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.PurgeInterval <= 0 {
		return errors.New("session purge interval must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
