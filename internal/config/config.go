package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// DevJWTSecret is used when JWT_SECRET is not set. It keeps local development
// working out of the box; production deployments must set their own secret.
const DevJWTSecret = "enclave-dev-secret-do-not-use-in-production"

// Config holds application configuration populated from environment variables.
type Config struct {
	// Core
	ServerPort int
	Debug      bool

	// Database
	DatabasePath string

	// Argon2 password hashing
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32

	// JWT
	JWTSecret string
	JWTTTL    time.Duration

	// Gateway
	GatewaySendQueueDepth int

	// CORS
	CORSAllowOrigins string
}

// Load reads configuration from environment variables with defaults. It
// returns an error if any variable is set but cannot be parsed, or if a value
// fails validation.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		ServerPort: p.int("PORT", 8080),
		Debug:      p.bool("DEBUG", false),

		DatabasePath: envStr("DATABASE_PATH", "enclave.db"),

		Argon2Memory:      p.uint32("ARGON2_MEMORY", 65536),
		Argon2Iterations:  p.uint32("ARGON2_ITERATIONS", 3),
		Argon2Parallelism: p.uint8("ARGON2_PARALLELISM", 2),
		Argon2SaltLength:  p.uint32("ARGON2_SALT_LENGTH", 16),
		Argon2KeyLength:   p.uint32("ARGON2_KEY_LENGTH", 32),

		JWTSecret: envStr("JWT_SECRET", ""),
		JWTTTL:    p.duration("JWT_TTL", 7*24*time.Hour),

		GatewaySendQueueDepth: p.int("GATEWAY_SEND_QUEUE_DEPTH", 256),

		// Any origin is accepted by default, matching the WebSocket upgrade
		// policy. Set an explicit origin for production deployments.
		CORSAllowOrigins: envStr("CORS_ALLOW_ORIGINS", "*"),
	}

	if parseErr := errors.Join(p.errs...); parseErr != nil {
		return nil, parseErr
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = DevJWTSecret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UsesDevSecret returns true when the process is running with the built-in
// development JWT secret.
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecret == DevJWTSecret
}

func (c *Config) validate() error {
	var errs []error

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535"))
	}

	if c.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("DATABASE_PATH must not be empty"))
	}

	if c.JWTTTL < time.Second {
		errs = append(errs, fmt.Errorf("JWT_TTL must be at least 1s"))
	}

	if c.Argon2Memory == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_MEMORY must be greater than 0"))
	}
	if c.Argon2Iterations == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_ITERATIONS must be greater than 0"))
	}
	if c.Argon2Parallelism == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_PARALLELISM must be greater than 0"))
	}

	if c.GatewaySendQueueDepth < 1 {
		errs = append(errs, fmt.Errorf("GATEWAY_SEND_QUEUE_DEPTH must be at least 1"))
	}

	return errors.Join(errs...)
}

// parser collects parse errors so Load can report all invalid values at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected boolean)", key, v))
		return fallback
	}
	return b
}

func (p *parser) uint32(key string, fallback uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 32-bit integer)", key, v))
		return fallback
	}
	return uint32(n)
}

func (p *parser) uint8(key string, fallback uint8) uint8 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 8-bit integer)", key, v))
		return fallback
	}
	return uint8(n)
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected duration like \"168h\" or \"30m\")", key, v))
		return fallback
	}
	return d
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
