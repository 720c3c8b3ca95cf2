package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.AutoSubmitMinConfidence != 85 || cfg.StalledAfterDays != 60 || cfg.PriorityWindowDays != 30 {
		t.Fatalf("unexpected gate/queue defaults: %+v", cfg)
	}
	if cfg.ClaimTTL != 10*time.Minute {
		t.Fatalf("claim ttl = %v", cfg.ClaimTTL)
	}
	if cfg.BackupRetention() != 365*24*time.Hour {
		t.Fatalf("retention = %v", cfg.BackupRetention())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTO_SUBMIT_MIN_CONFIDENCE", "90")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("AUTH_MODE", "JWT")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AutoSubmitMinConfidence != 90 {
		t.Fatalf("threshold = %d", cfg.AutoSubmitMinConfidence)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("sweep interval = %v", cfg.SweepInterval)
	}
	if cfg.AuthMode != "jwt" {
		t.Fatalf("auth mode = %q", cfg.AuthMode)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vermietify.yaml")
	body := []byte(`
gate:
  form_thresholds:
    Anlage_V: 95
deadlines:
  ust: "05-31"
batch_concurrency: 8
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FormThresholds["anlage_v"] != 95 {
		t.Fatalf("form thresholds = %v", cfg.FormThresholds)
	}
	if cfg.Deadlines["ust"] != "05-31" {
		t.Fatalf("deadlines = %v", cfg.Deadlines)
	}
	if cfg.BatchConcurrency != 8 {
		t.Fatalf("batch concurrency = %d", cfg.BatchConcurrency)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadThresholdBounds(t *testing.T) {
	t.Setenv("AUTO_SUBMIT_MIN_CONFIDENCE", "0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AutoSubmitMinConfidence != 0 {
		t.Fatalf("threshold 0 must be kept, got %d", cfg.AutoSubmitMinConfidence)
	}

	for _, raw := range []string{"101", "-1", "high", "85.5"} {
		t.Setenv("AUTO_SUBMIT_MIN_CONFIDENCE", raw)
		if _, err := Load(""); err == nil {
			t.Fatalf("threshold %q: expected error", raw)
		}
	}
}

func TestLoadRejectsMalformedFormThreshold(t *testing.T) {
	for _, value := range []string{"lots", "150"} {
		path := filepath.Join(t.TempDir(), "vermietify.yaml")
		body := []byte("gate:\n  form_thresholds:\n    anlage_v: " + value + "\n")
		if err := os.WriteFile(path, body, 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "gate.form_thresholds.anlage_v") {
			t.Fatalf("threshold %q: err = %v", value, err)
		}
	}
}
