package config

import "time"

// ConnectorsConfig configures the connector registry and the concrete connectors.
type ConnectorsConfig struct {
	ConnectTimeout      time.Duration
	InvalidationChannel string
	AWSRegion           string
	SESFrom             string
	WebhookTimeout      time.Duration
}

func loadConnectorsConfig() ConnectorsConfig {
	return ConnectorsConfig{
		ConnectTimeout:      getEnvDuration("CONNECTORS_CONNECT_TIMEOUT", 10*time.Second),
		InvalidationChannel: getEnv("CONNECTORS_INVALIDATION_CHANNEL", "connectors:invalidate"),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		SESFrom:             getEnv("CONNECTORS_SES_FROM", "assistant@localhost"),
		WebhookTimeout:      getEnvDuration("CONNECTORS_WEBHOOK_TIMEOUT", 15*time.Second),
	}
}
