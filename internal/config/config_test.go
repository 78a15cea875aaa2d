package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"QR_CODE_DIR":    "/var/lib/qr-codes",
		"QR_DB_HOST":     "localhost",
		"QR_DB_NAME":     "artstore",
		"QR_DB_USER":     "artstore",
		"QR_DB_PASSWORD": "secret",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.CodeDir != "/var/lib/qr-codes" {
		t.Errorf("CodeDir = %q, ожидается /var/lib/qr-codes", cfg.CodeDir)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d, ожидается 10", cfg.DBMaxConns)
	}
	if cfg.MaxContentLength != 2953 {
		t.Errorf("MaxContentLength = %d, ожидается 2953", cfg.MaxContentLength)
	}
	if cfg.GenerationTimeout != 30*time.Second {
		t.Errorf("GenerationTimeout = %v, ожидается 30s", cfg.GenerationTimeout)
	}
	if cfg.PendingPollInitial != 50*time.Millisecond {
		t.Errorf("PendingPollInitial = %v, ожидается 50ms", cfg.PendingPollInitial)
	}
	if cfg.PendingWaitMax != 5*time.Second {
		t.Errorf("PendingWaitMax = %v, ожидается 5s", cfg.PendingWaitMax)
	}
	if cfg.StalePendingTimeout != time.Minute {
		t.Errorf("StalePendingTimeout = %v, ожидается 1m", cfg.StalePendingTimeout)
	}
	if cfg.JanitorInterval != 10*time.Minute {
		t.Errorf("JanitorInterval = %v, ожидается 10m", cfg.JanitorInterval)
	}
	if cfg.TempMaxAge != time.Hour {
		t.Errorf("TempMaxAge = %v, ожидается 1h", cfg.TempMaxAge)
	}
	if cfg.JanitorHashLimit != 200 {
		t.Errorf("JanitorHashLimit = %d, ожидается 200", cfg.JanitorHashLimit)
	}
	if cfg.ImageCacheSize != 256 {
		t.Errorf("ImageCacheSize = %d, ожидается 256", cfg.ImageCacheSize)
	}
	if cfg.ImageCacheTTL != 10*time.Minute {
		t.Errorf("ImageCacheTTL = %v, ожидается 10m", cfg.ImageCacheTTL)
	}
	if cfg.HTTPReadTimeout != 30*time.Second || cfg.HTTPWriteTimeout != time.Minute || cfg.HTTPIdleTimeout != 2*time.Minute {
		t.Errorf("HTTP таймауты = %v/%v/%v, ожидается 30s/1m/2m",
			cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout, cfg.HTTPIdleTimeout)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.DephealthGroup != "qr-module" {
		t.Errorf("DephealthGroup = %q, ожидается qr-module", cfg.DephealthGroup)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["QR_PORT"] = "8045"
	envs["QR_LOG_LEVEL"] = "debug"
	envs["QR_LOG_FORMAT"] = "text"
	envs["QR_DB_SSL_MODE"] = "require"
	envs["QR_GENERATION_TIMEOUT"] = "10s"
	envs["QR_STALE_PENDING_TIMEOUT"] = "20s"
	envs["QR_IMAGE_CACHE_SIZE"] = "0"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Port != 8045 {
		t.Errorf("Port = %d, ожидается 8045", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("DBSSLMode = %q, ожидается require", cfg.DBSSLMode)
	}
	if cfg.StalePendingTimeout != 20*time.Second {
		t.Errorf("StalePendingTimeout = %v, ожидается 20s", cfg.StalePendingTimeout)
	}
	if cfg.ImageCacheSize != 0 {
		t.Errorf("ImageCacheSize = %d, ожидается 0", cfg.ImageCacheSize)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"нет QR_CODE_DIR", "QR_CODE_DIR", "", "QR_CODE_DIR"},
		{"нет QR_DB_HOST", "QR_DB_HOST", "", "QR_DB_HOST"},
		{"нет QR_DB_PASSWORD", "QR_DB_PASSWORD", "", "QR_DB_PASSWORD"},
		{"порт вне диапазона", "QR_PORT", "8000", "QR_PORT"},
		{"порт не число", "QR_PORT", "abc", "QR_PORT"},
		{"уровень логирования", "QR_LOG_LEVEL", "trace", "QR_LOG_LEVEL"},
		{"формат логов", "QR_LOG_FORMAT", "xml", "QR_LOG_FORMAT"},
		{"ssl mode", "QR_DB_SSL_MODE", "prefer", "QR_DB_SSL_MODE"},
		{"max conns", "QR_DB_MAX_CONNS", "0", "QR_DB_MAX_CONNS"},
		{"длина содержимого", "QR_MAX_CONTENT_LENGTH", "5000", "QR_MAX_CONTENT_LENGTH"},
		{"отрицательный таймаут", "QR_GENERATION_TIMEOUT", "-1s", "QR_GENERATION_TIMEOUT"},
		{"некорректная длительность", "QR_JANITOR_INTERVAL", "10", "QR_JANITOR_INTERVAL"},
		{"ожидание меньше первого шага", "QR_PENDING_WAIT_MAX", "10ms", "QR_PENDING_WAIT_MAX"},
		{"зависание меньше дедлайна", "QR_STALE_PENDING_TIMEOUT", "30s", "QR_STALE_PENDING_TIMEOUT"},
		{"отрицательный кэш", "QR_IMAGE_CACHE_SIZE", "-5", "QR_IMAGE_CACHE_SIZE"},
		{"отрицательный лимит хэширования", "QR_JANITOR_HASH_LIMIT", "-1", "QR_JANITOR_HASH_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Fatal("Load() должен вернуть ошибку")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка %q не содержит %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "pg", DBPort: 5433, DBName: "db", DBUser: "u", DBPassword: "p",
		DBSSLMode: "disable", DBMaxConns: 4,
	}
	want := "host=pg port=5433 dbname=db user=u password=p sslmode=disable pool_max_conns=4"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}
	wantURL := "pgx5://u:p@pg:5433/db?sslmode=disable"
	if got := cfg.DatabaseURL("pgx5"); got != wantURL {
		t.Errorf("DatabaseURL() = %q, ожидается %q", got, wantURL)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if err != nil {
			t.Errorf("parseLogLevel(%q) ошибка: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, ожидается %v", tt.input, got, tt.want)
		}
	}
}
