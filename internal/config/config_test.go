package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SELFHEAL_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Models.SeqLen != 10 || cfg.Models.ErrorThreshold != 2000 {
		t.Fatalf("unexpected model defaults: %+v", cfg.Models)
	}
	if cfg.Store.Backend != "file" || cfg.Store.Dir != "models" {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Server.HTTPAddress != ":5000" {
		t.Fatalf("unexpected http address %q", cfg.Server.HTTPAddress)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selfheal.yaml")
	if err := os.WriteFile(path, []byte(`server:
  httpAddress: ":8080"
  gracefulTimeout: 3s
models:
  seqLen: 20
store:
  backend: sqlite
  sql:
    dsn: /tmp/artifacts.db
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SELFHEAL_STORE_BACKEND", "valkey")
	t.Setenv("SELFHEAL_VALKEY_ADDR", "valkey:6379")
	t.Setenv("SELFHEAL_RATE_LIMIT_ENABLED", "true")
	t.Setenv("SELFHEAL_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddress != ":8080" || cfg.Server.GracefulTimeout != 3*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Models.SeqLen != 20 || cfg.Models.Trees != 100 {
		t.Fatalf("expected file override with remaining defaults: %+v", cfg.Models)
	}
	if cfg.Store.Backend != "valkey" || cfg.Store.Valkey.Addr != "valkey:6379" {
		t.Fatalf("env overrides not applied: %+v", cfg.Store)
	}
	if cfg.Store.SQL.DSN != "/tmp/artifacts.db" {
		t.Fatalf("expected sql dsn from file, got %q", cfg.Store.SQL.DSN)
	}
	if !cfg.Server.RateLimit.Enabled || !cfg.Logging.JSON {
		t.Fatalf("boolean env overrides not applied")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadRejectsInvalidModels(t *testing.T) {
	t.Setenv("SELFHEAL_CONFIG", "")
	t.Setenv("SELFHEAL_SEQ_LEN", "0")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "seqLen") {
		t.Fatalf("expected seqLen validation error, got %v", err)
	}
}
