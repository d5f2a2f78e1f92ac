package logx

import (
	"io"
	"os"
	"strings"
	"time"
)

// Format represents the output format
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config holds the logger configuration
type Config struct {
	Level        Level
	Format       Format
	EnableColors bool
	EnableCaller bool
	TimeFormat   string

	// Output defaults to os.Stdout
	Output io.Writer
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:        LevelInfo,
		Format:       FormatConsole,
		EnableColors: true,
		TimeFormat:   time.RFC3339,
		Output:       os.Stdout,
	}
}

// LoadFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_COLOR, LOG_CALLER and LOG_TIME_FORMAT
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = ParseLevel(level)
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		config.Format = FormatJSON
	}
	if color := os.Getenv("LOG_COLOR"); color != "" {
		config.EnableColors = isTrue(color)
	}
	if caller := os.Getenv("LOG_CALLER"); caller != "" {
		config.EnableCaller = isTrue(caller)
	}
	if tf := os.Getenv("LOG_TIME_FORMAT"); tf != "" {
		switch strings.ToUpper(tf) {
		case "RFC3339":
			config.TimeFormat = time.RFC3339
		case "RFC3339NANO":
			config.TimeFormat = time.RFC3339Nano
		default:
			config.TimeFormat = tf
		}
	}

	return config
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
