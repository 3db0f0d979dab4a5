package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
)

// setTestEnv は設定の読み込みに必要な環境変数を設定する。
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("CATALOG_API_KEYS", "key-a,key-b")
	t.Setenv("STORAGE_PATH", t.TempDir())
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FILE", "")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, closer, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer closer.Close()

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if len(cfg.CatalogAPIKeys) != 2 {
		t.Errorf("CatalogAPIKeys = %v, want 2 keys", cfg.CatalogAPIKeys)
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_AppliesLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	_, closer, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer closer.Close()

	slog.Default().Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info log should be suppressed at warn level, got %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("CATALOG_API_KEYS", "")

	var buf bytes.Buffer
	cfg, _, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}
