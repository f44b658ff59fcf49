package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port        int           `env:"TIMELINER_TEST_PORT" envDefault:"123"`
	AuthTimeout time.Duration `env:"TIMELINER_TEST_AUTH_TIMEOUT" envDefault:"30s"`
	Secret      string        `env:"TIMELINER_TEST_SECRET"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
	if cfg.AuthTimeout != 30*time.Second {
		t.Fatalf("expected default auth timeout 30s, got %s", cfg.AuthTimeout)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TIMELINER_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDotEnvDoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "TIMELINER_TEST_SECRET=from-file\nTIMELINER_TEST_PORT=9000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("TIMELINER_TEST_PORT", "8080")
	t.Setenv("TIMELINER_TEST_SECRET", "")
	os.Unsetenv("TIMELINER_TEST_SECRET")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected process env to win, got port %d", cfg.Port)
	}
	if cfg.Secret != "from-file" {
		t.Fatalf("expected secret from file, got %q", cfg.Secret)
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), ""); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}
