package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds log output configuration.
type Config struct {
	LogDir     string
	LogFile    string
	MaxSize    int // max size of a single log file (MB)
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	Console    bool
}

// DefaultConfig returns the default log configuration.
func DefaultConfig() *Config {
	return &Config{
		LogDir:     "logs",
		LogFile:    "scorelens.log",
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
		Console:    true,
	}
}

// Setup initializes the logging system with size-based rotation.
func Setup(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(cfg.LogDir, cfg.LogFile)
	rotating := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var writer io.Writer = rotating
	if cfg.Console {
		writer = io.MultiWriter(os.Stdout, rotating)
	}

	log.SetOutput(writer)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	log.Printf("📝 Logging initialized")
	log.Printf("📂 Log file: %s (rotate at %dMB, keep %d backups, %d days)",
		logPath, cfg.MaxSize, cfg.MaxBackups, cfg.MaxAge)

	return nil
}
