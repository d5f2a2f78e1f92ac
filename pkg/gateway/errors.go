package gateway

import "github.com/ryan12324/openassistant/pkg/errx"

var gatewayErrors = errx.NewRegistry("GATEWAY")

var (
	ErrInvalidBody        = gatewayErrors.Register("INVALID_BODY", errx.TypeValidation, 400, "Invalid request body")
	ErrWebhookDisabled    = gatewayErrors.Register("WEBHOOK_DISABLED", errx.TypeAuthorization, 503, "Webhook ingress is not configured")
	ErrBadWebhookSecret   = gatewayErrors.Register("BAD_WEBHOOK_SECRET", errx.TypeAuthorization, 401, "Invalid webhook secret")
	ErrUnknownSource      = gatewayErrors.Register("UNKNOWN_SOURCE", errx.TypeNotFound, 404, "Unknown inbound source")
	ErrInboundUnsupported = gatewayErrors.Register("INBOUND_UNSUPPORTED", errx.TypeValidation, 400, "Connector does not accept inbound messages")
	ErrUnknownConnector   = gatewayErrors.Register("UNKNOWN_CONNECTOR", errx.TypeNotFound, 404, "Connector definition not found")
	ErrMissingField       = gatewayErrors.Register("MISSING_CONFIG_FIELD", errx.TypeValidation, 400, "Required configuration field is missing")
	ErrJobNotFound        = gatewayErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrUnauthenticated    = gatewayErrors.Register("UNAUTHENTICATED", errx.TypeAuthorization, 401, "Authentication required")
	ErrConfigSaveFailed   = gatewayErrors.Register("CONFIG_SAVE_FAILED", errx.TypeInternal, 500, "Failed to save connector configuration")
)
