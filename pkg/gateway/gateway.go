// Package gateway is the HTTP front door: webhook ingress that turns inbound
// messages into jobs, job inspection and per-user connector management.
package gateway

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

// Jobs is the part of *jobx.Client the gateway uses.
type Jobs interface {
	Enqueue(ctx context.Context, job jobx.NewJob) (string, error)
	GetJob(ctx context.Context, jobID string) (*jobx.Job, error)
	List(ctx context.Context, filter jobx.ListFilter) ([]*jobx.Job, error)
}

// Connectors is the part of *connectorx.Registry the gateway uses.
type Connectors interface {
	AllDefinitions() []connectorx.Definition
	Definition(id string) (connectorx.Definition, bool)
	ByCategory(category string) []connectorx.Definition
	HydrateUserIntegrations(ctx context.Context, userID kernel.UserID) connectorx.HydrationResult
	ActiveInstancesForUser(userID kernel.UserID) []connectorx.Instance
	InvalidateUser(ctx context.Context, userID kernel.UserID)
}

// ConfigStore reads and writes per-user connector configuration rows.
type ConfigStore interface {
	connectorx.ConfigStore
	Save(ctx context.Context, cfg connectorx.StoredConfig) error
}

// Publisher tells other processes that a user's connectors changed.
type Publisher interface {
	Publish(ctx context.Context, userID kernel.UserID) error
}

// HealthCheck reports one dependency's health.
type HealthCheck func(ctx context.Context) error

// Deps groups what the handlers need. Publisher may be nil.
type Deps struct {
	Jobs          Jobs
	Connectors    Connectors
	Configs       ConfigStore
	Publisher     Publisher
	WebhookSecret string
	Checks        map[string]HealthCheck
}

// Handler serves the gateway routes.
type Handler struct {
	deps Deps
}

// NewHandler returns a Handler over deps.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// RegisterRoutes mounts the routes on app. auth guards everything that acts
// on behalf of a user.
func (h *Handler) RegisterRoutes(app fiber.Router, auth fiber.Handler) {
	app.Get("/health", h.health)

	v1 := app.Group("/api/v1")
	v1.Post("/inbound/:source", h.inbound)

	jobs := v1.Group("/jobs", auth)
	jobs.Get("/", h.listJobs)
	jobs.Get("/:id", h.getJob)

	connectors := v1.Group("/connectors", auth)
	connectors.Get("/", h.listDefinitions)
	connectors.Get("/categories/:category", h.definitionsByCategory)

	me := v1.Group("/me/connectors", auth)
	me.Get("/", h.myConnectors)
	me.Post("/invalidate", h.invalidate)
	me.Put("/:id", h.saveConnector)
}
