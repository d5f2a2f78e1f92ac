package gateway

import (
	"crypto/subtle"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/ryan12324/openassistant/pkg/assistant"
	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/kernel"
	"github.com/ryan12324/openassistant/pkg/logx"
)

// WebhookSecretHeader carries the shared secret on inbound webhook calls.
const WebhookSecretHeader = "X-Webhook-Secret"

type inboundRequest struct {
	UserID         kernel.UserID          `json:"userId"`
	SenderID       string                 `json:"senderId"`
	SenderName     string                 `json:"senderName"`
	Content        string                 `json:"content"`
	ExternalChatID string                 `json:"externalChatId"`
	Attachments    []assistant.Attachment `json:"attachments"`
	Metadata       map[string]any         `json:"metadata"`
}

// inbound accepts a message from an external channel and queues it. It
// answers 202 as soon as the job is stored.
func (h *Handler) inbound(c *fiber.Ctx) error {
	if err := h.checkWebhookSecret(c.Get(WebhookSecretHeader)); err != nil {
		return err
	}

	source := c.Params("source")
	def, ok := h.deps.Connectors.Definition(source)
	if !ok {
		return gatewayErrors.New(ErrUnknownSource).WithDetail("source", source)
	}
	if !def.SupportsInbound {
		return gatewayErrors.New(ErrInboundUnsupported).WithDetail("source", source)
	}

	var req inboundRequest
	if err := c.BodyParser(&req); err != nil {
		return gatewayErrors.NewWithCause(ErrInvalidBody, err)
	}

	msg := assistant.InboundMessage{
		Source:         source,
		SenderID:       req.SenderID,
		SenderName:     req.SenderName,
		Content:        req.Content,
		ExternalChatID: req.ExternalChatID,
		Attachments:    req.Attachments,
		Metadata:       req.Metadata,
		UserID:         req.UserID,
		DefinitionName: def.Name,
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	msg.StoredConfig = h.storedConfig(c, req.UserID, source)

	payload, err := json.Marshal(msg)
	if err != nil {
		return gatewayErrors.NewWithCause(ErrInvalidBody, err)
	}

	id, err := h.deps.Jobs.Enqueue(c.UserContext(), jobx.NewJob{
		Type:    assistant.JobTypeInbound,
		Payload: payload,
		UserID:  req.UserID,
	})
	if err != nil {
		return errx.Wrap(err, "failed to queue inbound message", errx.TypeInternal).WithDetail("source", source)
	}

	logx.WithFields(logx.Fields{
		"component": "gateway",
		"source":    source,
		"user_id":   req.UserID,
		"job_id":    id,
	}).Info("inbound message queued")

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": id})
}

func (h *Handler) checkWebhookSecret(got string) error {
	want := h.deps.WebhookSecret
	if want == "" {
		return gatewayErrors.New(ErrWebhookDisabled)
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return gatewayErrors.New(ErrBadWebhookSecret)
	}
	return nil
}

// storedConfig snapshots the user's saved configuration for source so the
// worker can connect it even if hydration has not seen it yet. Lookup
// failures only cost the snapshot.
func (h *Handler) storedConfig(c *fiber.Ctx, userID kernel.UserID, source string) *connectorx.StoredConfig {
	if h.deps.Configs == nil {
		return nil
	}
	rows, err := h.deps.Configs.ListEnabledForUser(c.UserContext(), userID)
	if err != nil {
		logx.WithFields(logx.Fields{
			"component": "gateway",
			"user_id":   userID,
			"source":    source,
		}).WithError(err).Warn("could not load stored config for inbound source")
		return nil
	}
	for i := range rows {
		if rows[i].SkillID == source {
			return &rows[i]
		}
	}
	return nil
}
