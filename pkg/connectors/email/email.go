// Package email sends mail on behalf of a user through Amazon SES.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/ryan12324/openassistant/pkg/connectorx"
)

const ID = "email"

// API is the subset of the SES client the connector uses.
type API interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	GetSendQuota(ctx context.Context, in *ses.GetSendQuotaInput, optFns ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error)
}

func Definition() connectorx.Definition {
	return connectorx.Definition{
		ID:       ID,
		Name:     "Email",
		Category: "communication",
		ConfigFields: []connectorx.ConfigField{
			{Key: "from", Label: "From address", Type: connectorx.FieldString},
			{Key: "reply_to", Label: "Reply-To address", Type: connectorx.FieldString},
		},
		Capabilities: []connectorx.Capability{
			{
				ID:          "send_email",
				Name:        "Send email",
				Description: "Send an email to one or more recipients.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"to":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"cc":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"subject": map[string]any{"type": "string"},
						"body":    map[string]any{"type": "string"},
						"html":    map[string]any{"type": "boolean", "description": "Send body as HTML"},
					},
					"required": []string{"to", "subject", "body"},
				},
			},
		},
		SupportsOutbound: true,
	}
}

type Connector struct {
	*connectorx.Base
	api         API
	defaultFrom string
}

// Factory builds email instances sharing one SES client. Instances without a
// from address fall back to defaultFrom.
func Factory(api API, defaultFrom string) connectorx.Factory {
	return func(spec connectorx.InstanceSpec) (connectorx.Instance, error) {
		return &Connector{Base: connectorx.NewBase(spec), api: api, defaultFrom: defaultFrom}, nil
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	return c.Open(ctx, func(ctx context.Context) error {
		if c.api == nil {
			return errors.New("email delivery is not configured")
		}
		if _, err := mail.ParseAddress(c.from()); err != nil {
			return fmt.Errorf("invalid from address %q: %w", c.from(), err)
		}
		out, err := c.api.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
		if err != nil {
			return err
		}
		if out.Max24HourSend > 0 && out.SentLast24Hours >= out.Max24HourSend {
			return errors.New("daily send quota exhausted")
		}
		return nil
	})
}

func (c *Connector) Disconnect(ctx context.Context) error {
	return c.Close(ctx, nil)
}

func (c *Connector) from() string {
	if from := c.Config().String("from"); from != "" {
		return from
	}
	return c.defaultFrom
}

func (c *Connector) ExecuteCapability(ctx context.Context, capabilityID string, args map[string]any) (*connectorx.CapabilityResult, error) {
	if res := c.Guard(capabilityID); res != nil {
		return res, nil
	}

	to := addresses(args["to"])
	a := connectorx.Config(args)
	subject, body := a.String("subject"), a.String("body")
	if len(to) == 0 || subject == "" || body == "" {
		return &connectorx.CapabilityResult{Success: false, Output: "to, subject and body are required"}, nil
	}
	for _, addr := range to {
		if _, err := mail.ParseAddress(addr); err != nil {
			return &connectorx.CapabilityResult{Success: false, Output: fmt.Sprintf("invalid recipient %q", addr)}, nil
		}
	}

	content := &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")}
	msgBody := &types.Body{Text: content}
	if a.Bool("html") {
		msgBody = &types.Body{Html: content}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(c.from()),
		Destination: &types.Destination{
			ToAddresses: to,
			CcAddresses: addresses(args["cc"]),
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body:    msgBody,
		},
	}
	if replyTo := c.Config().String("reply_to"); replyTo != "" {
		input.ReplyToAddresses = []string{replyTo}
	}

	out, err := c.api.SendEmail(ctx, input)
	if err != nil {
		return connectorx.Failure(err), nil
	}
	return &connectorx.CapabilityResult{
		Success: true,
		Output:  "Email sent to " + strings.Join(to, ", "),
		Data:    map[string]any{"message_id": aws.ToString(out.MessageId)},
	}, nil
}

// addresses accepts a single address, a comma separated list or a JSON array.
func addresses(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
