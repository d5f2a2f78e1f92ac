// Package webhook is a generic two-way connector: inbound events arrive on the
// gateway's ingress route and replies are POSTed to a configured callback URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ryan12324/openassistant/pkg/connectorx"
)

const ID = "webhook"

func Definition() connectorx.Definition {
	return connectorx.Definition{
		ID:       ID,
		Name:     "Webhook",
		Category: "messaging",
		ConfigFields: []connectorx.ConfigField{
			{Key: "callback_url", Label: "Callback URL", Type: connectorx.FieldURL, Required: true},
			{Key: "auth_token", Label: "Bearer token", Type: connectorx.FieldSecret},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: connectorx.FieldNumber, Default: float64(15)},
		},
		Capabilities: []connectorx.Capability{
			{
				ID:          "send_message",
				Name:        "Send message",
				Description: "Send a text message to the conversation through the webhook callback.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text":    map[string]any{"type": "string", "description": "Message text"},
						"chat_id": map[string]any{"type": "string", "description": "External chat id to reply in"},
					},
					"required": []string{"text"},
				},
			},
		},
		SupportsInbound:  true,
		SupportsOutbound: true,
	}
}

// Connector posts messages to callback_url.
type Connector struct {
	*connectorx.Base
	client *http.Client

	// set once by the factory; Connect reports callbackErr
	callback    *url.URL
	callbackErr error
}

// Factory builds webhook instances sharing client. A nil client uses http.DefaultClient.
func Factory(client *http.Client) connectorx.Factory {
	if client == nil {
		client = http.DefaultClient
	}
	return func(spec connectorx.InstanceSpec) (connectorx.Instance, error) {
		c := &Connector{Base: connectorx.NewBase(spec), client: client}
		c.callback, c.callbackErr = parseCallback(c.Config().String("callback_url"))
		return c, nil
	}
}

func parseCallback(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("callback_url must be an absolute http(s) URL")
	}
	return u, nil
}

func (c *Connector) Connect(ctx context.Context) error {
	return c.Open(ctx, func(context.Context) error { return c.callbackErr })
}

func (c *Connector) Disconnect(ctx context.Context) error {
	return c.Close(ctx, nil)
}

func (c *Connector) ExecuteCapability(ctx context.Context, capabilityID string, args map[string]any) (*connectorx.CapabilityResult, error) {
	if res := c.Guard(capabilityID); res != nil {
		return res, nil
	}

	a := connectorx.Config(args)
	text := a.String("text")
	if text == "" {
		return &connectorx.CapabilityResult{Success: false, Output: "text is required"}, nil
	}

	status, err := c.post(ctx, message{
		Text:   text,
		ChatID: a.String("chat_id"),
		UserID: c.UserID().String(),
	})
	if err != nil {
		return connectorx.Failure(err), nil
	}
	return &connectorx.CapabilityResult{
		Success: true,
		Output:  "Message delivered",
		Data:    map[string]any{"status": status},
	}, nil
}

type message struct {
	Text   string `json:"text"`
	ChatID string `json:"chat_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func (c *Connector) post(ctx context.Context, msg message) (int, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	timeout := time.Duration(c.Config().Int("timeout_seconds", 15)) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.callback.String(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Config().String("auth_token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("callback returned HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
