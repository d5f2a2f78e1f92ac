package authx

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

var localsKey = string(kernel.AuthContextKey)

// TokenValidator is satisfied by JWTService.
type TokenValidator interface {
	ValidateAccessToken(token string) (*kernel.AuthContext, error)
}

// Authenticate requires a valid "Authorization: Bearer" token and stores the
// caller's *kernel.AuthContext in c.Locals("auth").
func Authenticate(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return reject(c, authErrors.New(ErrMissingToken))
		}

		ac, err := tokens.ValidateAccessToken(strings.TrimSpace(token))
		if err != nil {
			return reject(c, err)
		}

		c.Locals(localsKey, ac)
		return c.Next()
	}
}

// RequireScope must run after Authenticate.
func RequireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := FromContext(c)
		if !ok {
			return reject(c, authErrors.New(ErrMissingToken))
		}
		if !ac.HasScope(scope) {
			return reject(c, authErrors.New(ErrInsufficientScope).WithDetail("scope", scope))
		}
		return c.Next()
	}
}

// FromContext returns the caller stored by Authenticate.
func FromContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(localsKey).(*kernel.AuthContext)
	return ac, ok && ac.IsValid()
}

func reject(c *fiber.Ctx, err error) error {
	status := fiber.StatusUnauthorized
	code := ""
	if e, ok := err.(*errx.Error); ok {
		status = e.HTTPStatus
		code = e.Code
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
