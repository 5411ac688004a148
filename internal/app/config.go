package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (ARTVIBE_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (ARTVIBE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL  string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	SessionPepper string `usage:"HMAC pepper for session token hashing (ARTVIBE_SESSION_PEPPER)" flag:"session-pepper"`
	Khalti        KhaltiConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// KhaltiConfig configures the payment gateway client.
type KhaltiConfig struct {
	BaseURL       string        `default:"https://dev.khalti.com/api/v2" usage:"Khalti ePayment API root" flag:"khalti-base-url"`
	SecretKey     string        `usage:"Khalti merchant secret key (ARTVIBE_KHALTI_SECRET_KEY)" flag:"khalti-secret-key"`
	ReturnURL     string        `usage:"URL the gateway redirects shoppers back to" flag:"khalti-return-url"`
	WebsiteURL    string        `usage:"Merchant site URL reported to the gateway" flag:"khalti-website-url"`
	Timeout       time.Duration `default:"10s" usage:"Per-attempt gateway call timeout" flag:"khalti-timeout"`
	LookupRetries int           `default:"2" usage:"Extra lookup attempts on transport failure or 5xx" flag:"khalti-lookup-retries"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit refill window"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ARTVIBE",
		Files:     []string{"config.yaml", "/etc/artvibe/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ARTVIBE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.SessionPepper == "" {
		return nil, errors.New("session pepper is required: set ARTVIBE_SESSION_PEPPER")
	}
	if cfg.Khalti.SecretKey == "" {
		return nil, errors.New("gateway secret is required: set ARTVIBE_KHALTI_SECRET_KEY")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's ARTVIBE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
