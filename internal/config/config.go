// Пакет config — загрузка и валидация конфигурации QR Module
// из переменных окружения (префикс QR_).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации QR Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Хранилище изображений ---

	// Корневая директория изображений (общая для всех воркеров)
	CodeDir string
	// Размер LRU-кэша изображений в памяти процесса (0 — кэш отключён)
	ImageCacheSize int
	// TTL записей LRU-кэша
	ImageCacheTTL time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум соединений пула на процесс
	DBMaxConns int

	// --- Генерация ---

	// Максимальная длина содержимого в байтах
	MaxContentLength int
	// Дедлайн работы владельца (не зависит от отмены клиентом)
	GenerationTimeout time.Duration
	// Первый шаг backoff ожидающего воркера
	PendingPollInitial time.Duration
	// Максимальное время ожидания чужой генерации
	PendingWaitMax time.Duration
	// Pending старше этого значения может быть перехвачен
	StalePendingTimeout time.Duration

	// --- Фоновые задачи ---

	// Интервал запуска janitor
	JanitorInterval time.Duration
	// Возраст temp файлов, после которого они считаются брошенными
	TempMaxAge time.Duration
	// Максимум изображений, хэшируемых за один запуск janitor (0 — только проверка размера)
	JanitorHashLimit int

	// --- topologymetrics ---

	DephealthCheckInterval time.Duration
	DephealthGroup         string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// QR_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("QR_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("QR_PORT: %w", err)
	}
	if cfg.Port < 8040 || cfg.Port > 8049 {
		return nil, fmt.Errorf("QR_PORT: значение %d вне допустимого диапазона 8040-8049", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("QR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("QR_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("QR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("QR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvPositiveDuration("QR_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPWriteTimeout, err = getEnvPositiveDuration("QR_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPIdleTimeout, err = getEnvPositiveDuration("QR_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvPositiveDuration("QR_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	// --- Хранилище изображений ---

	// QR_CODE_DIR — обязательный
	cfg.CodeDir, err = getEnvRequired("QR_CODE_DIR")
	if err != nil {
		return nil, err
	}

	cfg.ImageCacheSize, err = getEnvInt("QR_IMAGE_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("QR_IMAGE_CACHE_SIZE: %w", err)
	}
	if cfg.ImageCacheSize < 0 {
		return nil, fmt.Errorf("QR_IMAGE_CACHE_SIZE: значение %d не может быть отрицательным", cfg.ImageCacheSize)
	}
	cfg.ImageCacheTTL, err = getEnvDuration("QR_IMAGE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("QR_IMAGE_CACHE_TTL: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("QR_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("QR_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("QR_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("QR_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("QR_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("QR_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("QR_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("QR_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("QR_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("QR_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 1000 {
		return nil, fmt.Errorf("QR_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-1000", cfg.DBMaxConns)
	}

	// --- Генерация ---

	// QR_MAX_CONTENT_LENGTH — по умолчанию 2953 байта (ёмкость версии 40-L в байтовом режиме)
	cfg.MaxContentLength, err = getEnvInt("QR_MAX_CONTENT_LENGTH", 2953)
	if err != nil {
		return nil, fmt.Errorf("QR_MAX_CONTENT_LENGTH: %w", err)
	}
	if cfg.MaxContentLength < 1 || cfg.MaxContentLength > 2953 {
		return nil, fmt.Errorf("QR_MAX_CONTENT_LENGTH: значение %d вне допустимого диапазона 1-2953", cfg.MaxContentLength)
	}

	if cfg.GenerationTimeout, err = getEnvPositiveDuration("QR_GENERATION_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PendingPollInitial, err = getEnvPositiveDuration("QR_PENDING_POLL_INITIAL", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PendingWaitMax, err = getEnvPositiveDuration("QR_PENDING_WAIT_MAX", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.PendingWaitMax < cfg.PendingPollInitial {
		return nil, fmt.Errorf("QR_PENDING_WAIT_MAX: значение %s меньше QR_PENDING_POLL_INITIAL (%s)",
			cfg.PendingWaitMax, cfg.PendingPollInitial)
	}
	if cfg.StalePendingTimeout, err = getEnvPositiveDuration("QR_STALE_PENDING_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	// Живой владелец не должен считаться зависшим до истечения своего дедлайна
	if cfg.StalePendingTimeout <= cfg.GenerationTimeout {
		return nil, fmt.Errorf("QR_STALE_PENDING_TIMEOUT: значение %s должно превышать QR_GENERATION_TIMEOUT (%s)",
			cfg.StalePendingTimeout, cfg.GenerationTimeout)
	}

	// --- Фоновые задачи ---

	if cfg.JanitorInterval, err = getEnvPositiveDuration("QR_JANITOR_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TempMaxAge, err = getEnvPositiveDuration("QR_TEMP_MAX_AGE", time.Hour); err != nil {
		return nil, err
	}
	cfg.JanitorHashLimit, err = getEnvInt("QR_JANITOR_HASH_LIMIT", 200)
	if err != nil {
		return nil, fmt.Errorf("QR_JANITOR_HASH_LIMIT: %w", err)
	}
	if cfg.JanitorHashLimit < 0 {
		return nil, fmt.Errorf("QR_JANITOR_HASH_LIMIT: значение %d не может быть отрицательным", cfg.JanitorHashLimit)
	}

	// --- topologymetrics ---

	cfg.DephealthCheckInterval, err = getEnvDuration("QR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("QR_DEPHEALTH_GROUP", "qr-module")

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// DatabaseURL возвращает URL подключения (для dephealth и golang-migrate).
func (c *Config) DatabaseURL(scheme string) string {
	return fmt.Sprintf(
		"%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
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

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

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

// getEnvPositiveDuration — getEnvDuration с проверкой d > 0.
// Ошибка уже содержит имя переменной.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: значение %s должно быть положительным", key, d)
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
