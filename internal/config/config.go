// Package config loads process configuration from the environment.
//
// Load is called exactly once, in main. The returned *Config is treated
// as read-only from then on and passed by pointer to whoever needs it;
// nothing in the codebase mutates it after startup.
//
// Values come from real environment variables, optionally seeded from a
// .env file in the working directory (real variables win).
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// SupportedAlgorithms lists the symmetric JWT algorithms the token
// service accepts.
var SupportedAlgorithms = []string{"HS256", "HS384", "HS512"}

type Config struct {
	Port     int    `env:"PORT, default=8080"`
	Env      string `env:"ENV, default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
	// LogPretty switches zerolog to its console writer.
	LogPretty bool `env:"LOG_PRETTY, default=false"`

	// DatabaseURL selects the driver by scheme: sqlite://, postgres://,
	// postgresql://, mysql:// or a bare sqlite file path.
	DatabaseURL string `env:"DATABASE_URL, default=sqlite://data/todo.db"`

	BcryptCost  int      `env:"BCRYPT_COST, default=12"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=http://localhost:3000"`

	JWT       JWTConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	AMQP      AMQPConfig
}

type JWTConfig struct {
	Secret      string `env:"JWT_SECRET, required"`
	Algorithm   string `env:"JWT_ALGORITHM, default=HS256"`
	ExpiryHours int    `env:"JWT_EXPIRY_HOURS, default=24"`
}

// RedisConfig is optional: an empty Addr disables rate limiting.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

// RateLimitConfig drives the token bucket on the /api/auth endpoints.
// Capacity tokens per key, one token added back every RefillInterval.
type RateLimitConfig struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED, default=true"`
	Capacity       int           `env:"RATE_LIMIT_CAPACITY, default=20"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL, default=3s"`
	Prefix         string        `env:"RATE_LIMIT_PREFIX, default=rl"`
}

// AMQPConfig is optional: an empty URL disables task event publishing.
type AMQPConfig struct {
	URL   string `env:"AMQP_URL"`
	Queue string `env:"AMQP_QUEUE, default=task.events"`
}

// TokenTTL is the lifetime of issued access tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWT.ExpiryHours) * time.Hour
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads an optional .env file, then the process environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load without the .env step and with a pluggable source,
// so tests can feed an envconfig.MapLookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.JWT.Algorithm = strings.ToUpper(strings.TrimSpace(c.JWT.Algorithm))

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
}

func (c *Config) validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL must not be empty"))
	}
	if len(c.JWT.Secret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if !slices.Contains(SupportedAlgorithms, c.JWT.Algorithm) {
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM must be one of %s, got %q",
			strings.Join(SupportedAlgorithms, ", "), c.JWT.Algorithm))
	}
	if c.JWT.ExpiryHours < 1 {
		errs = append(errs, fmt.Errorf("JWT_EXPIRY_HOURS must be positive, got %d", c.JWT.ExpiryHours))
	}
	// bcrypt.MinCost .. bcrypt.MaxCost
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	if c.RateLimit.Capacity < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_CAPACITY must be at least 1, got %d", c.RateLimit.Capacity))
	}
	if c.RateLimit.RefillInterval <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REFILL_INTERVAL must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
