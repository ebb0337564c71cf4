package config

import (
	"testing"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	t.Setenv("ATTENDANCE_EMBEDDING_DIM", "")
	t.Setenv("ATTENDANCE_MATCH_THRESHOLD", "")
	t.Setenv("ATTENDANCE_TIMEZONE", "")

	cfg := Load()

	if cfg.Recognition.Dim != 128 {
		t.Errorf("expected default dim 128, got %d", cfg.Recognition.Dim)
	}
	if cfg.Recognition.Threshold != 0.6 {
		t.Errorf("expected default threshold 0.6, got %f", cfg.Recognition.Threshold)
	}
	if cfg.Attendance.Timezone != "Local" {
		t.Errorf("expected default timezone 'Local', got '%s'", cfg.Attendance.Timezone)
	}
	if cfg.Recognition.ANN {
		t.Error("expected ANN disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ATTENDANCE_EMBEDDING_DIM", "512")
	t.Setenv("ATTENDANCE_MATCH_THRESHOLD", "0.45")
	t.Setenv("ATTENDANCE_TIMEZONE", "Europe/Prague")
	t.Setenv("ATTENDANCE_ANN", "true")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "10")

	cfg := Load()

	if cfg.Recognition.Dim != 512 {
		t.Errorf("expected dim 512, got %d", cfg.Recognition.Dim)
	}
	if cfg.Recognition.Threshold != 0.45 {
		t.Errorf("expected threshold 0.45, got %f", cfg.Recognition.Threshold)
	}
	if cfg.Attendance.Timezone != "Europe/Prague" {
		t.Errorf("expected timezone 'Europe/Prague', got '%s'", cfg.Attendance.Timezone)
	}
	if !cfg.Recognition.ANN {
		t.Error("expected ANN enabled")
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected 10 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("ATTENDANCE_EMBEDDING_DIM", "not-a-number")
	t.Setenv("ATTENDANCE_MATCH_THRESHOLD", "-1")
	t.Setenv("DATABASE_MAX_IDLE_CONNS", "0")

	cfg := Load()

	if cfg.Recognition.Dim != 128 {
		t.Errorf("expected fallback dim 128, got %d", cfg.Recognition.Dim)
	}
	if cfg.Recognition.Threshold != 0.6 {
		t.Errorf("expected fallback threshold 0.6, got %f", cfg.Recognition.Threshold)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected fallback 5 idle conns, got %d", cfg.Database.MaxIdleConns)
	}
}
