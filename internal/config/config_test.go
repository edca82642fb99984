package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jariyo_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DetectionLookback != 6*time.Hour {
		t.Errorf("lookback = %v, want 6h", cfg.DetectionLookback)
	}
	if cfg.DedupWindow != 24*time.Hour {
		t.Errorf("dedup window = %v, want 24h", cfg.DedupWindow)
	}
	if cfg.APIPort != 8000 {
		t.Errorf("port = %d, want 8000", cfg.APIPort)
	}
	if cfg.IsProduction() {
		t.Error("default environment must not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jariyo_test")
	t.Setenv("TO_DETECTION_LOOKBACK_HOURS", "12")
	t.Setenv("TO_DETECTION_DEDUP_HOURS", "48")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://jariyo.kr, https://admin.jariyo.kr")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DetectionLookback != 12*time.Hour {
		t.Errorf("lookback = %v, want 12h", cfg.DetectionLookback)
	}
	if cfg.DedupWindow != 48*time.Hour {
		t.Errorf("dedup window = %v, want 48h", cfg.DedupWindow)
	}
	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	want := []string{"https://jariyo.kr", "https://admin.jariyo.kr"}
	if len(cfg.CORSAllowOrigins) != 2 || cfg.CORSAllowOrigins[0] != want[0] || cfg.CORSAllowOrigins[1] != want[1] {
		t.Errorf("cors origins = %v, want %v", cfg.CORSAllowOrigins, want)
	}
}
