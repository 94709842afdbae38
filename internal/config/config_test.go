package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv blanks every documented variable so host state cannot leak
// into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	os.Unsetenv(ConfigPathEnvVar)
}

func TestLoadDefaultsRequireInsecureOptIn(t *testing.T) {
	clearEnv(t)
	// Mode none without the explicit opt-in must refuse to start.
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for default config")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_MODE", "forwardauth")
	t.Setenv("AUTH_HEADER_USER", "X-User")
	t.Setenv("AUTH_HEADER_EMAIL", "X-Email")
	t.Setenv("AUTH_HEADER_GROUPS", "X-Groups")
	t.Setenv("ADMIN_GROUP", "admins")
	t.Setenv("DB_PATH", "/tmp/test.sqlite")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Mode != AuthModeForwardAuth {
		t.Fatalf("AUTH_MODE not applied: %q", cfg.Auth.Mode)
	}
	if cfg.Auth.HeaderUser != "X-User" || cfg.Auth.HeaderEmail != "X-Email" || cfg.Auth.HeaderGroups != "X-Groups" {
		t.Fatalf("header overrides not applied: %+v", cfg.Auth)
	}
	if cfg.Auth.AdminGroup != "admins" {
		t.Fatalf("ADMIN_GROUP not applied: %q", cfg.Auth.AdminGroup)
	}
	if cfg.Auth.EditorGroup != "dolls_editor" {
		t.Fatalf("untouched keys must keep defaults: %q", cfg.Auth.EditorGroup)
	}
	if cfg.Server.Addr != ":9090" || cfg.Database.Path != "/tmp/test.sqlite" || cfg.Log.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadInsecureLocalMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_MODE", "none")
	t.Setenv("ALLOW_INSECURE_LOCAL", "true")
	t.Setenv("DB_PATH", "/tmp/test.sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Mode != AuthModeNone || !cfg.Auth.AllowInsecureLocal {
		t.Fatalf("insecure local mode not applied: %+v", cfg.Auth)
	}
}

func TestLoadYAMLFileThenEnvWins(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := strings.Join([]string{
		"server:",
		"  addr: \":7070\"",
		"auth:",
		"  mode: forwardauth",
		"  header_user: X-User",
		"  header_email: X-Email",
		"database:",
		"  path: /tmp/from-file.sqlite",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LISTEN_ADDR", ":6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Path != "/tmp/from-file.sqlite" {
		t.Fatalf("file value not applied: %q", cfg.Database.Path)
	}
	if cfg.Server.Addr != ":6060" {
		t.Fatalf("env must override file: %q", cfg.Server.Addr)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Auth.Mode = "oauth"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestValidateRequiresAStore(t *testing.T) {
	cfg := defaultConfig()
	cfg.Auth.AllowInsecureLocal = true
	cfg.Database.Path = ""
	cfg.Database.PGDSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when no store is configured")
	}
}
