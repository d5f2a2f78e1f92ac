package gateway

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 3 * time.Second

func (h *Handler) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.deps.Checks))
	for name := range h.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	health := fiber.Map{"status": "healthy"}
	for _, name := range names {
		if err := h.deps.Checks[name](ctx); err != nil {
			health[name] = "unhealthy"
			health[name+"_error"] = err.Error()
			health["status"] = "degraded"
			continue
		}
		health[name] = "healthy"
	}

	status := fiber.StatusOK
	if health["status"] == "degraded" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}
