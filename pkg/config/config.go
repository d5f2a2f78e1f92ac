package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Jobx       JobxConfig
	Connectors ConnectorsConfig
	Assistant  AssistantConfig
	Auth       AuthConfig
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Port        string
	CORSOrigins []string
	Version     string
	Debug       bool
}

// Load reads configuration from environment variables with defaults for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnvStringSlice("CORS_ORIGINS", []string{"*"}),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Debug:       getEnvBool("DEBUG", false),
		},
		Database:   loadDatabaseConfig(),
		Redis:      loadRedisConfig(),
		Jobx:       loadJobxConfig(),
		Connectors: loadConnectorsConfig(),
		Assistant:  loadAssistantConfig(),
		Auth:       loadAuthConfig(),
	}
}

// Validate rejects settings the container cannot wire.
func (c *Config) Validate() error {
	switch c.Jobx.Backend {
	case JobxBackendMemory, JobxBackendPostgres, JobxBackendRedis:
	default:
		return fmt.Errorf("config: unknown JOBX_BACKEND %q", c.Jobx.Backend)
	}
	if c.Jobx.PollInterval <= 0 {
		return fmt.Errorf("config: JOBX_POLL_INTERVAL must be positive")
	}
	if c.Jobx.MaxRetries < 1 {
		return fmt.Errorf("config: JOBX_MAX_RETRIES must be at least 1")
	}

	switch c.Assistant.Provider {
	case ProviderAnthropic:
		if c.Assistant.AnthropicAPIKey == "" {
			return fmt.Errorf("config: ANTHROPIC_API_KEY is required for provider %q", c.Assistant.Provider)
		}
	case ProviderOpenAI:
		if c.Assistant.OpenAIAPIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required for provider %q", c.Assistant.Provider)
		}
	default:
		return fmt.Errorf("config: unknown ASSISTANT_PROVIDER %q", c.Assistant.Provider)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: AUTH_JWT_SECRET is required")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
