// Пакет config — загрузка и валидация конфигурации File Server
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации File Server.
// Runtime-параметры очистки метаданных сюда не входят: они хранятся
// в таблице cleanup_config и изменяются через API.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уникальный идентификатор экземпляра (например, "fs-main-01")
	InstanceID string
	// Путь к корневой директории хранения файлов
	StorageRoot string
	// Путь к файлу базы метаданных SQLite
	DBPath string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// URL JWKS endpoint провайдера аутентификации (пусто = без аутентификации)
	JWKSUrl string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Размер LRU-кэша метаданных (записей)
	CacheSize int
	// TTL записи в кэше метаданных
	CacheTTL time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости (целевого сервиса) в метриках topologymetrics
	DephealthDepName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// FS_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("FS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FS_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("FS_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// FS_INSTANCE_ID — идентификатор экземпляра (по умолчанию "file-server")
	cfg.InstanceID = getEnvDefault("FS_INSTANCE_ID", "file-server")

	// FS_STORAGE_ROOT — обязательный
	cfg.StorageRoot, err = getEnvRequired("FS_STORAGE_ROOT")
	if err != nil {
		return nil, err
	}

	// FS_DB_PATH — путь к базе метаданных (по умолчанию внутри storage root)
	cfg.DBPath = getEnvDefault("FS_DB_PATH", filepath.Join(cfg.StorageRoot, "metadata.db"))

	// FS_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 10 MiB)
	maxFileSize, err := getEnvInt64("FS_MAX_FILE_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("FS_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("FS_MAX_FILE_SIZE: значение должно быть положительным")
	}
	cfg.MaxFileSize = maxFileSize

	// FS_JWKS_URL — опциональный: пустое значение отключает аутентификацию
	cfg.JWKSUrl = getEnvDefault("FS_JWKS_URL", "")

	// FS_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 5m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("FS_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FS_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// FS_JWT_LEEWAY — отклонение времени при валидации JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("FS_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FS_JWT_LEEWAY: %w", err)
	}

	// FS_TLS_CERT / FS_TLS_KEY — опциональная пара
	cfg.TLSCert = getEnvDefault("FS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("FS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("FS_TLS_CERT и FS_TLS_KEY должны задаваться вместе")
	}

	// FS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FS_LOG_LEVEL: %w", err)
	}

	// FS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// FS_CACHE_SIZE — размер LRU-кэша метаданных (по умолчанию 1024)
	cacheSize, err := getEnvInt("FS_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("FS_CACHE_SIZE: %w", err)
	}
	if cacheSize <= 0 {
		return nil, fmt.Errorf("FS_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.CacheSize = cacheSize

	// FS_CACHE_TTL — TTL записи в кэше (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("FS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FS_CACHE_TTL: %w", err)
	}

	// FS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("FS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// FS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("FS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// FS_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("FS_DEPHEALTH_GROUP", "file-server")

	// FS_DEPHEALTH_DEP_NAME — имя зависимости в метриках topologymetrics
	cfg.DephealthDepName = getEnvDefault("FS_DEPHEALTH_DEP_NAME", "auth-jwks")

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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
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
