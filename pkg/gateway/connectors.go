package gateway

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/kernel"
	"github.com/ryan12324/openassistant/pkg/logx"
)

func (h *Handler) listDefinitions(c *fiber.Ctx) error {
	return c.JSON(h.deps.Connectors.AllDefinitions())
}

func (h *Handler) definitionsByCategory(c *fiber.Ctx) error {
	defs := h.deps.Connectors.ByCategory(c.Params("category"))
	if defs == nil {
		defs = []connectorx.Definition{}
	}
	return c.JSON(defs)
}

type instanceView struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Scope  connectorx.Scope  `json:"scope"`
	Status connectorx.Status `json:"status"`
}

// myConnectors hydrates the caller's integrations and lists every active
// instance they can use, global ones included.
func (h *Handler) myConnectors(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}

	hydration := h.deps.Connectors.HydrateUserIntegrations(c.UserContext(), ac.UserID)
	instances := h.deps.Connectors.ActiveInstancesForUser(ac.UserID)

	views := make([]instanceView, 0, len(instances))
	for _, inst := range instances {
		def := inst.Definition()
		views = append(views, instanceView{
			ID:     def.ID,
			Name:   def.Name,
			Scope:  inst.Scope(),
			Status: inst.Status(),
		})
	}
	return c.JSON(fiber.Map{
		"connectors": views,
		"hydration":  hydration,
	})
}

type saveConnectorRequest struct {
	Enabled *bool          `json:"enabled"`
	Config  map[string]any `json:"config"`
}

// saveConnector stores the caller's configuration for one connector and
// drops their live instances so the next hydration picks it up.
func (h *Handler) saveConnector(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	def, ok := h.deps.Connectors.Definition(id)
	if !ok {
		return gatewayErrors.New(ErrUnknownConnector).WithDetail("connector_id", id)
	}

	var req saveConnectorRequest
	if err := c.BodyParser(&req); err != nil {
		return gatewayErrors.NewWithCause(ErrInvalidBody, err)
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if enabled {
		for _, f := range def.ConfigFields {
			if !f.Required {
				continue
			}
			if v, ok := req.Config[f.Key]; !ok || v == nil || v == "" {
				return gatewayErrors.New(ErrMissingField).
					WithDetail("connector_id", id).
					WithDetail("field", f.Key)
			}
		}
	}

	row := connectorx.StoredConfig{UserID: ac.UserID, SkillID: id, Enabled: enabled}
	if req.Config != nil {
		raw, err := json.Marshal(req.Config)
		if err != nil {
			return gatewayErrors.NewWithCause(ErrInvalidBody, err)
		}
		s := string(raw)
		row.Config = &s
	}

	if err := h.deps.Configs.Save(c.UserContext(), row); err != nil {
		return gatewayErrors.NewWithCause(ErrConfigSaveFailed, err).WithDetail("connector_id", id)
	}
	h.refresh(c, ac.UserID)

	return c.JSON(fiber.Map{"id": id, "enabled": enabled})
}

func (h *Handler) invalidate(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}
	h.refresh(c, ac.UserID)
	return c.SendStatus(fiber.StatusNoContent)
}

// refresh invalidates locally and tells the other processes. A failed
// broadcast is logged; this process is already consistent.
func (h *Handler) refresh(c *fiber.Ctx, userID kernel.UserID) {
	h.deps.Connectors.InvalidateUser(c.UserContext(), userID)
	if h.deps.Publisher == nil {
		return
	}
	if err := h.deps.Publisher.Publish(c.UserContext(), userID); err != nil {
		logx.WithFields(logx.Fields{
			"component": "gateway",
			"user_id":   userID,
		}).WithError(err).Warn("failed to broadcast connector invalidation")
	}
}
