// Package config loads service configuration from an optional TOML file,
// expands ${VAR} references, and applies KEYGATE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"keygate.org/internal/identity"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Tokens   TokenConfig    `toml:"tokens"`
	Admin    AdminConfig    `toml:"admin"`
	Hash     HashConfig     `toml:"hash"`

	// Parsed from the raw strings below.
	TokenTTL time.Duration `toml:"-"`
}

type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

type DatabaseConfig struct {
	// DSN selects the postgres backend; empty means in-memory stores.
	DSN string `toml:"dsn"`
}

type TokenConfig struct {
	TTLRaw string `toml:"ttl"`
}

type AdminConfig struct {
	// Secret signs and verifies the HS256 bearer tokens that upstream
	// operators present to act with the admin flag. Empty disables the
	// admin bearer path entirely.
	Secret string `toml:"secret"`
}

type HashConfig struct {
	MemoryKiB   uint32 `toml:"memory_kib"`
	Iterations  uint32 `toml:"iterations"`
	Parallelism uint8  `toml:"parallelism"`
}

// Default returns the configuration used when no file and no overrides are
// present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{ListenAddr: ":8080"},
		Tokens:   TokenConfig{TTLRaw: "24h"},
		TokenTTL: 24 * time.Hour,
	}
}

// Load reads the TOML file at path when path is non-empty, then applies
// environment overrides. Environment variables referenced as ${VAR} inside
// the file are expanded before decoding.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv maps flat environment variables onto the config. Environment
// wins over the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("KEYGATE_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("KEYGATE_PG_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("KEYGATE_TOKEN_TTL"); v != "" {
		cfg.Tokens.TTLRaw = v
	}
	if v := os.Getenv("KEYGATE_ADMIN_SECRET"); v != "" {
		cfg.Admin.Secret = v
	}
}

func (c *Config) finalize() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Tokens.TTLRaw != "" {
		ttl, err := time.ParseDuration(c.Tokens.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing tokens.ttl %q: %w", c.Tokens.TTLRaw, err)
		}
		if ttl <= 0 {
			return fmt.Errorf("tokens.ttl must be positive, got %q", c.Tokens.TTLRaw)
		}
		c.TokenTTL = ttl
	}
	return nil
}

// HashParams maps the [hash] section onto the password hasher's parameters.
// Unset fields keep their defaults.
func (c *Config) HashParams() identity.HashParams {
	p := identity.DefaultHashParams
	if c.Hash.MemoryKiB > 0 {
		p.Memory = c.Hash.MemoryKiB
	}
	if c.Hash.Iterations > 0 {
		p.Iterations = c.Hash.Iterations
	}
	if c.Hash.Parallelism > 0 {
		p.Parallelism = c.Hash.Parallelism
	}
	return p
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}
