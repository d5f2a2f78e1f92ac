package authx

import (
	"net/http"

	"github.com/ryan12324/openassistant/pkg/errx"
)

var (
	authErrors = errx.NewRegistry("AUTHX")

	ErrMissingToken      = authErrors.Register("MISSING_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Missing bearer token")
	ErrInvalidToken      = authErrors.Register("INVALID_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired token")
	ErrTokenGeneration   = authErrors.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to sign token")
	ErrMissingSecret     = authErrors.Register("MISSING_SECRET", errx.TypeInternal, http.StatusInternalServerError, "JWT secret is not configured")
	ErrInsufficientScope = authErrors.Register("INSUFFICIENT_SCOPE", errx.TypeAuthorization, http.StatusForbidden, "Token lacks the required scope")
)
