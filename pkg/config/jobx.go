package config

import "time"

const (
	JobxBackendMemory   = "memory"
	JobxBackendPostgres = "postgres"
	JobxBackendRedis    = "redis"
)

// JobxConfig configures the background job queue.
type JobxConfig struct {
	Backend      string
	PollInterval time.Duration
	NudgeDelay   time.Duration
	MaxRetries   int
	RedisPrefix  string
}

func loadJobxConfig() JobxConfig {
	return JobxConfig{
		Backend:      getEnv("JOBX_BACKEND", JobxBackendPostgres),
		PollInterval: getEnvDuration("JOBX_POLL_INTERVAL", 2*time.Second),
		NudgeDelay:   getEnvDuration("JOBX_NUDGE_DELAY", 10*time.Millisecond),
		MaxRetries:   getEnvInt("JOBX_MAX_RETRIES", 3),
		RedisPrefix:  getEnv("JOBX_REDIS_PREFIX", "jobx"),
	}
}
