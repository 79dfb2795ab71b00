package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// EnvConfig holds environment-driven configuration for the service.
type EnvConfig struct {
	Port     int
	Env      string
	LogLevel string
	DataDir  string

	// Vision provider settings
	VisionBaseURL     string
	VisionModel       string
	VisionMaxTokens   int
	AttemptTimeoutSec int // per-attempt HTTP timeout
	MaxAttempts       int
	BackoffBaseMs     int

	// Developer limits boost (multiplies usage limits by 250).
	// Refused outside the development environment.
	DevLimitsBoost bool

	EnableCORS bool
	CORSOrigin string

	// Log file settings
	LogDir        string
	LogFile       string
	LogMaxSize    int // max size of a single log file (MB)
	LogMaxBackups int
	LogMaxAge     int // days
	LogCompress   bool
	LogToConsole  bool
}

// NewEnvConfig builds an EnvConfig from environment variables.
func NewEnvConfig() *EnvConfig {
	cfg := &EnvConfig{
		Port:     getEnvAsInt("PORT", 3200),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DataDir:  getEnv("DATA_DIR", ".config"),

		VisionBaseURL:     getEnv("VISION_BASE_URL", "https://api.anthropic.com"),
		VisionModel:       getEnv("VISION_MODEL", "claude-sonnet-4-20250514"),
		VisionMaxTokens:   getEnvAsInt("VISION_MAX_TOKENS", 1024),
		AttemptTimeoutSec: getEnvAsInt("ATTEMPT_TIMEOUT_SECONDS", 30),
		MaxAttempts:       getEnvAsInt("MAX_ATTEMPTS", 3),
		BackoffBaseMs:     getEnvAsInt("BACKOFF_BASE_MS", 1000),

		DevLimitsBoost: getEnv("SCORELENS_DEV_LIMITS", "false") == "true",

		EnableCORS: getEnv("ENABLE_CORS", "true") != "false",
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		LogDir:        getEnv("LOG_DIR", "logs"),
		LogFile:       getEnv("LOG_FILE", "scorelens.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 50),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
		LogCompress:   getEnv("LOG_COMPRESS", "true") != "false",
		LogToConsole:  getEnv("LOG_TO_CONSOLE", "true") != "false",
	}

	// The boost is a debug affordance only.
	if cfg.DevLimitsBoost && !cfg.IsDevelopment() {
		cfg.DevLimitsBoost = false
	}

	return cfg
}

// DatabasePath returns the path of the service SQLite database.
func (c *EnvConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "scorelens.db")
}

// LimitsFilePath returns the path of the usage limits override file.
func (c *EnvConfig) LimitsFilePath() string {
	return filepath.Join(c.DataDir, "usage_limits.json")
}

// IsDevelopment reports whether the service runs in development mode.
func (c *EnvConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction reports whether the service runs in production mode.
func (c *EnvConfig) IsProduction() bool {
	return c.Env == "production"
}

// ShouldLog reports whether messages at the given level should be logged.
func (c *EnvConfig) ShouldLog(level string) bool {
	levels := map[string]int{
		"error": 0,
		"warn":  1,
		"info":  2,
		"debug": 3,
	}

	currentLevel, ok := levels[c.LogLevel]
	if !ok {
		currentLevel = 2
	}

	requestLevel, ok := levels[level]
	if !ok {
		return false
	}

	return requestLevel <= currentLevel
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable parsed as int, or a default.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
