package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_MinimalConfig(t *testing.T) {
	t.Setenv("RG_CORE_URL", "http://aethercore:8000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8050 {
		t.Errorf("Port = %d, ожидается 8050", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.CoreURL != "http://aethercore:8000" {
		t.Errorf("CoreURL = %q, ожидается http://aethercore:8000", cfg.CoreURL)
	}
	if cfg.CoreTimeout != 10*time.Second {
		t.Errorf("CoreTimeout = %v, ожидается 10s", cfg.CoreTimeout)
	}
	if cfg.SessionCheckInterval != 5*time.Minute {
		t.Errorf("SessionCheckInterval = %v, ожидается 5m", cfg.SessionCheckInterval)
	}
	if cfg.SessionExpiryHorizon != 10*time.Minute {
		t.Errorf("SessionExpiryHorizon = %v, ожидается 10m", cfg.SessionExpiryHorizon)
	}
	if cfg.ReloadDelay != 3*time.Second {
		t.Errorf("ReloadDelay = %v, ожидается 3s", cfg.ReloadDelay)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
	if cfg.DephealthGroup != "aethercore" {
		t.Errorf("DephealthGroup = %q, ожидается aethercore", cfg.DephealthGroup)
	}
}

func TestLoad_MissingCoreURL(t *testing.T) {
	_, err := Load()
	if err == nil {
		t.Fatal("ожидалась ошибка при отсутствии RG_CORE_URL")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RG_CORE_URL", "https://core.aethercore.lan")
	t.Setenv("RG_PORT", "8055")
	t.Setenv("RG_LOG_LEVEL", "debug")
	t.Setenv("RG_LOG_FORMAT", "text")
	t.Setenv("RG_CORE_TIMEOUT", "15s")
	t.Setenv("RG_RELOAD_DELAY", "500ms")
	t.Setenv("RG_SESSION_CHECK_INTERVAL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8055 {
		t.Errorf("Port = %d, ожидается 8055", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.CoreTimeout != 15*time.Second {
		t.Errorf("CoreTimeout = %v, ожидается 15s", cfg.CoreTimeout)
	}
	if cfg.ReloadDelay != 500*time.Millisecond {
		t.Errorf("ReloadDelay = %v, ожидается 500ms", cfg.ReloadDelay)
	}
	if cfg.SessionCheckInterval != time.Minute {
		t.Errorf("SessionCheckInterval = %v, ожидается 1m", cfg.SessionCheckInterval)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"некорректный порт", "RG_PORT", "не-число"},
		{"некорректный уровень логирования", "RG_LOG_LEVEL", "verbose"},
		{"некорректный формат логов", "RG_LOG_FORMAT", "xml"},
		{"некорректный таймаут", "RG_CORE_TIMEOUT", "10 секунд"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RG_CORE_URL", "http://aethercore:8000")
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%q", tt.key, tt.val)
			}
		})
	}
}
