package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// DevServer is the YAML configuration of `gitdm devserver`.
type DevServer struct {
	Tokens    TokenConfig                 `yaml:"tokens"`
	Users     []UserConfig                `yaml:"users"`
	Resources map[string][]map[string]any `yaml:"resources"`
	Audit     AuditConfig                 `yaml:"audit"`
}

// AuditConfig holds configuration for auditing token grants.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Type    string `yaml:"type"` // "file" or "memory"
}

type TokenConfig struct {
	// SigningKey signs access tokens (HS256). A random key is generated when
	// left empty, which invalidates tokens on restart.
	SigningKey string `yaml:"signing_key"`

	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`

	// Rotate controls whether a refresh also replaces the refresh token.
	// Defaults to true.
	Rotate *bool `yaml:"rotate"`
}

// UserConfig is an account accepted by the token endpoint.
// Exactly one of Password and PasswordHash (bcrypt) must be set.
type UserConfig struct {
	Email        string `yaml:"email"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// RotateRefresh reports whether refresh tokens rotate.
func (t TokenConfig) RotateRefresh() bool {
	return t.Rotate == nil || *t.Rotate
}

// Load reads and parses the dev server configuration file at the given path.
func Load(path string) (*DevServer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML dev server configuration.
func Parse(data []byte) (*DevServer, error) {
	var cfg DevServer
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *DevServer) Validate() error {
	seen := make(map[string]struct{})
	for idx, u := range c.Users {
		if u.Email == "" {
			return fmt.Errorf("user at index %d has empty email", idx)
		}
		if _, dup := seen[u.Email]; dup {
			return fmt.Errorf("user '%s' is not unique", u.Email)
		}
		seen[u.Email] = struct{}{}

		if (u.Password == "") == (u.PasswordHash == "") {
			return fmt.Errorf("user '%s' needs exactly one of password and password_hash", u.Email)
		}
	}

	if c.Tokens.AccessTTL < 0 || c.Tokens.RefreshTTL < 0 {
		return fmt.Errorf("token lifetimes must not be negative")
	}

	if c.Audit.Enabled {
		switch c.Audit.Type {
		case "memory":
		case "file", "":
			if c.Audit.Path == "" {
				return fmt.Errorf("audit.path is required for file auditing")
			}
		default:
			return fmt.Errorf("unknown audit type '%s'", c.Audit.Type)
		}
	}

	for name, items := range c.Resources {
		for idx, item := range items {
			if _, ok := item["id"]; !ok {
				return fmt.Errorf("resource '%s' item at index %d has no id", name, idx)
			}
		}
	}
	return nil
}
