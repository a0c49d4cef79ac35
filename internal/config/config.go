package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config aggregates every setting the service reads from the
// environment.
type Config struct {
	Server       ServerConfig
	Storage      StorageConfig
	Verification VerificationConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	verification, err := loadVerificationConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:       server,
		Storage:      loadStorageConfig(),
		Verification: verification,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr     string
	LogLevel slog.Level
}

func loadServerConfig() (ServerConfig, error) {
	level, err := parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port, LogLevel: level}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, LogLevel: level}, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %q", raw)
	}
}

// StorageConfig locates the SQLite database and the upload directory.
type StorageConfig struct {
	DatabasePath string
	UploadDir    string
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		DatabasePath: getEnvOrDefault("DATABASE_PATH", "db/database.sqlite"),
		UploadDir:    getEnvOrDefault("UPLOAD_DIR", "uploads"),
	}
}

// VerificationConfig describes the Turnstile bot-check provider.
type VerificationConfig struct {
	SecretKey string
	VerifyURL string
	Disabled  bool
}

// Enabled reports whether tokens will actually be checked. An unset
// secret means the provider is not configured, so requests pass.
func (c VerificationConfig) Enabled() bool {
	return !c.Disabled && c.SecretKey != ""
}

func loadVerificationConfig() (VerificationConfig, error) {
	disabled, err := parseBoolEnv("DISABLE_TURNSTILE", false)
	if err != nil {
		return VerificationConfig{}, err
	}

	return VerificationConfig{
		SecretKey: strings.TrimSpace(os.Getenv("TURNSTILE_SECRET_KEY")),
		VerifyURL: getEnvOrDefault("TURNSTILE_VERIFY_URL", ""),
		Disabled:  disabled,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
