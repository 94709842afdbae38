// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// AuthModeNone and AuthModeForwardAuth are the supported identity modes.
const (
	AuthModeNone        = "none"
	AuthModeForwardAuth = "forwardauth"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Auth     AuthConfig     `koanf:"auth"`
	Database DatabaseConfig `koanf:"database"`
	Media    MediaConfig    `koanf:"media"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type AuthConfig struct {
	// Mode is "none" (fixed local admin identity) or "forwardauth"
	// (identity injected by a trusted reverse proxy).
	Mode               string `koanf:"mode"`
	AllowInsecureLocal bool   `koanf:"allow_insecure_local"`

	HeaderUser   string `koanf:"header_user"`
	HeaderEmail  string `koanf:"header_email"`
	HeaderGroups string `koanf:"header_groups"`

	AdminGroup  string `koanf:"admin_group"`
	EditorGroup string `koanf:"editor_group"`
	KidGroup    string `koanf:"kid_group"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file, used unless PGDSN is set.
	Path  string `koanf:"path"`
	PGDSN string `koanf:"pg_dsn"`
}

type MediaConfig struct {
	PhotosDir string `koanf:"photos_dir"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Auth: AuthConfig{
			Mode:               AuthModeNone,
			AllowInsecureLocal: false,
			HeaderUser:         "X-Forwarded-User",
			HeaderEmail:        "X-Forwarded-Email",
			HeaderGroups:       "X-Forwarded-Groups",
			AdminGroup:         "dolls_admin",
			EditorGroup:        "dolls_editor",
			KidGroup:           "dolls_kid",
		},
		Database: DatabaseConfig{Path: "/data/db/app.sqlite"},
		Media:    MediaConfig{PhotosDir: "/data/photos"},
		Log:      LogConfig{Level: "info"},
	}
}

// envKeys maps the documented environment variables onto config paths.
// Names are part of the deployment contract and stay flat (no prefix).
var envKeys = map[string]string{
	"LISTEN_ADDR":          "server.addr",
	"AUTH_MODE":            "auth.mode",
	"ALLOW_INSECURE_LOCAL": "auth.allow_insecure_local",
	"AUTH_HEADER_USER":     "auth.header_user",
	"AUTH_HEADER_EMAIL":    "auth.header_email",
	"AUTH_HEADER_GROUPS":   "auth.header_groups",
	"ADMIN_GROUP":          "auth.admin_group",
	"EDITOR_GROUP":         "auth.editor_group",
	"KID_GROUP":            "auth.kid_group",
	"DB_PATH":              "database.path",
	"PG_DSN":               "database.pg_dsn",
	"PHOTOS_DIR":           "media.photos_dir",
	"LOG_LEVEL":            "log.level",
}

// Load builds the configuration: struct defaults, then an optional YAML
// file, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", func(name string) string {
		return envKeys[name]
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	switch strings.TrimSpace(c.Auth.Mode) {
	case AuthModeNone:
		if !c.Auth.AllowInsecureLocal {
			return fmt.Errorf("AUTH_MODE=none requires ALLOW_INSECURE_LOCAL=true")
		}
	case AuthModeForwardAuth:
		if c.Auth.HeaderUser == "" || c.Auth.HeaderEmail == "" {
			return fmt.Errorf("forwardauth mode requires user and email header names")
		}
	default:
		return fmt.Errorf("invalid AUTH_MODE %q (must be %q or %q)", c.Auth.Mode, AuthModeNone, AuthModeForwardAuth)
	}
	if c.Database.Path == "" && c.Database.PGDSN == "" {
		return fmt.Errorf("either DB_PATH or PG_DSN must be set")
	}
	return nil
}
