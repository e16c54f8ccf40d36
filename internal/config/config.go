// Пакет config — загрузка и валидация конфигурации Review Gateway
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Review Gateway.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8050-8059)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Core API (AetherCore) ---

	// Базовый URL Core API (обязательный параметр)
	CoreURL string
	// Таймаут HTTP-запросов к Core API (по умолчанию 10s,
	// зафиксирован контрактом REST-коллаборатора)
	CoreTimeout time.Duration

	// --- Сессия оператора ---

	// Интервал фоновой проверки сессии (по умолчанию 5m)
	SessionCheckInterval time.Duration
	// Горизонт признака "сессия скоро истечёт" (по умолчанию 10m)
	SessionExpiryHorizon time.Duration

	// --- Очередь ---

	// Задержка перед перезагрузкой snapshot после stale-reference
	// (по умолчанию 3s)
	ReloadDelay time.Duration

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Topologymetrics ---

	// Имя группы в метриках dephealth (по умолчанию aethercore)
	DephealthGroup string
	// Интервал проверки зависимостей (по умолчанию 30s)
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RG_PORT — порт HTTP-сервера (по умолчанию 8050)
	cfg.Port, err = getEnvInt("RG_PORT", 8050)
	if err != nil {
		return nil, fmt.Errorf("RG_PORT: %w", err)
	}

	// RG_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("RG_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("RG_LOG_LEVEL: %w", err)
	}

	// RG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RG_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Core API ---

	// RG_CORE_URL — базовый URL Core API (обязательная)
	cfg.CoreURL, err = getEnvRequired("RG_CORE_URL")
	if err != nil {
		return nil, err
	}
	if _, err := url.Parse(cfg.CoreURL); err != nil {
		return nil, fmt.Errorf("RG_CORE_URL: некорректный URL %q: %w", cfg.CoreURL, err)
	}

	// RG_CORE_TIMEOUT — таймаут запросов к Core API (по умолчанию 10s)
	cfg.CoreTimeout, err = getEnvDuration("RG_CORE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RG_CORE_TIMEOUT: %w", err)
	}

	// --- Сессия оператора ---

	// RG_SESSION_CHECK_INTERVAL — интервал проверки сессии (по умолчанию 5m)
	cfg.SessionCheckInterval, err = getEnvDuration("RG_SESSION_CHECK_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RG_SESSION_CHECK_INTERVAL: %w", err)
	}

	// RG_SESSION_EXPIRY_HORIZON — горизонт expiringSoon (по умолчанию 10m)
	cfg.SessionExpiryHorizon, err = getEnvDuration("RG_SESSION_EXPIRY_HORIZON", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RG_SESSION_EXPIRY_HORIZON: %w", err)
	}

	// --- Очередь ---

	// RG_RELOAD_DELAY — задержка отложенной перезагрузки (по умолчанию 3s)
	cfg.ReloadDelay, err = getEnvDuration("RG_RELOAD_DELAY", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RG_RELOAD_DELAY: %w", err)
	}

	// --- HTTP Server Timeouts ---

	// RG_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("RG_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RG_HTTP_READ_TIMEOUT: %w", err)
	}

	// RG_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 60s)
	cfg.HTTPWriteTimeout, err = getEnvDuration("RG_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RG_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// RG_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("RG_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RG_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	// RG_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("RG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RG_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Topologymetrics ---

	// RG_DEPHEALTH_GROUP — имя группы в метриках (по умолчанию aethercore)
	cfg.DephealthGroup = getEnvDefault("RG_DEPHEALTH_GROUP", "aethercore")

	// RG_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 30s)
	cfg.DephealthCheckInterval, err = getEnvDuration("RG_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
