package config

import "time"

// AuthConfig configures JWT validation and webhook ingress authentication.
type AuthConfig struct {
	JWTSecret     string
	Issuer        string
	TokenTTL      time.Duration
	WebhookSecret string
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:     getEnv("AUTH_JWT_SECRET", ""),
		Issuer:        getEnv("AUTH_ISSUER", "openassistant"),
		TokenTTL:      getEnvDuration("AUTH_TOKEN_TTL", 15*time.Minute),
		WebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
	}
}
