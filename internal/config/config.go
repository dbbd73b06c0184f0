package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL   string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`
	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`

	// Scanner handoff. AppLinkBase is the universal-link page of the
	// biometric scanner application; AppScheme is its custom URI scheme.
	AppLinkBase  string `mapstructure:"APP_LINK_BASE"`
	AppScheme    string `mapstructure:"APP_SCHEME"`
	ReturnOrigin string `mapstructure:"RETURN_ORIGIN"`
	ReturnPath   string `mapstructure:"RETURN_PATH"`

	RightsCheckURL        string `mapstructure:"RIGHTS_CHECK_URL"`
	RightsCheckTimeoutSec int    `mapstructure:"RIGHTS_CHECK_TIMEOUT_SEC"`

	AMQPURL string `mapstructure:"AMQP_URL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("APP_LINK_BASE", "https://scan.clinsura.app/app")
	v.SetDefault("APP_SCHEME", "clinsurascan")
	v.SetDefault("RETURN_PATH", "/api/v1/handoff/return")
	v.SetDefault("RIGHTS_CHECK_TIMEOUT_SEC", 15)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("JWT_SIGNING_KEY")
	v.BindEnv("APP_LINK_BASE")
	v.BindEnv("APP_SCHEME")
	v.BindEnv("RETURN_ORIGIN")
	v.BindEnv("RETURN_PATH")
	v.BindEnv("RIGHTS_CHECK_URL")
	v.BindEnv("RIGHTS_CHECK_TIMEOUT_SEC")
	v.BindEnv("AMQP_URL")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production a real
// token verifier must be configured (issuer/JWKS or an HMAC signing key), and
// the handoff settings must be well-formed so deeplinks can be built.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" && c.JWTSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or JWT_SIGNING_KEY must be set in production")
	}

	if c.AppLinkBase != "" {
		u, err := url.Parse(c.AppLinkBase)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("APP_LINK_BASE must be an absolute URL, got %q", c.AppLinkBase)
		}
	}
	if c.AppScheme == "" {
		return fmt.Errorf("APP_SCHEME is required")
	}
	if c.ReturnOrigin != "" {
		u, err := url.Parse(c.ReturnOrigin)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("RETURN_ORIGIN must be an absolute URL, got %q", c.ReturnOrigin)
		}
	}
	if !strings.HasPrefix(c.ReturnPath, "/") {
		return fmt.Errorf("RETURN_PATH must start with /, got %q", c.ReturnPath)
	}

	if c.RightsCheckTimeoutSec <= 0 {
		return fmt.Errorf("RIGHTS_CHECK_TIMEOUT_SEC must be positive, got %d", c.RightsCheckTimeoutSec)
	}

	return nil
}
