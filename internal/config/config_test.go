package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.HoldDuration != 2*time.Minute {
		t.Fatalf("expected 2m hold duration, got %v", cfg.HoldDuration)
	}
	if cfg.MaxHoldQty != 100 {
		t.Fatalf("expected max qty 100, got %d", cfg.MaxHoldQty)
	}
	if !cfg.AdmissionFailOpen {
		t.Fatal("expected admission lock to fail open by default")
	}
	if cfg.StockCacheTTL != 5*time.Second {
		t.Fatalf("expected 5s cache ttl, got %v", cfg.StockCacheTTL)
	}
	if cfg.SweepPeriod != time.Minute {
		t.Fatalf("expected 60s sweep period, got %v", cfg.SweepPeriod)
	}
	if cfg.TxnMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.TxnMaxAttempts)
	}
	if cfg.DeadlockBackoffMin != 10*time.Millisecond || cfg.DeadlockBackoffMax != 50*time.Millisecond {
		t.Fatalf("unexpected backoff window %v..%v", cfg.DeadlockBackoffMin, cfg.DeadlockBackoffMax)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("HOLD_DURATION_MINUTES", "5")
	t.Setenv("MAX_HOLD_QTY", "10")
	t.Setenv("ADMISSION_FAIL_OPEN", "false")
	t.Setenv("CORS_ORIGINS", "http://a.local, http://b.local")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("expected :9999, got %s", cfg.HTTPAddr)
	}
	if cfg.HoldDuration != 5*time.Minute {
		t.Fatalf("expected 5m, got %v", cfg.HoldDuration)
	}
	if cfg.MaxHoldQty != 10 {
		t.Fatalf("expected 10, got %d", cfg.MaxHoldQty)
	}
	if cfg.AdmissionFailOpen {
		t.Fatal("expected fail open disabled")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.local" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"HOLD_DURATION_MINUTES", "zero"},
		{"HOLD_DURATION_MINUTES", "0"},
		{"MAX_HOLD_QTY", "-1"},
		{"ADMISSION_FAIL_OPEN", "maybe"},
		{"DEADLOCK_BACKOFF_MS_MIN", "60"}, // above the default max
		{"SWEEP_PERIOD_SECONDS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
