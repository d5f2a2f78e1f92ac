// Package notes is a per-user scratchpad connector backed by a Redis hash.
package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ryan12324/openassistant/pkg/connectorx"
)

const ID = "notes"

func Definition() connectorx.Definition {
	return connectorx.Definition{
		ID:       ID,
		Name:     "Notes",
		Category: "productivity",
		ConfigFields: []connectorx.ConfigField{
			{Key: "namespace", Label: "Namespace", Type: connectorx.FieldString, Default: "notes"},
		},
		Capabilities: []connectorx.Capability{
			{
				ID:          "add_note",
				Name:        "Add note",
				Description: "Save a short note for later.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"text": map[string]any{"type": "string"}},
					"required":   []string{"text"},
				},
			},
			{
				ID:          "list_notes",
				Name:        "List notes",
				Description: "List saved notes, newest first.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
			{
				ID:          "delete_note",
				Name:        "Delete note",
				Description: "Delete a note by id.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"id": map[string]any{"type": "string"}},
					"required":   []string{"id"},
				},
			},
		},
	}
}

// Note is one stored entry.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Connector struct {
	*connectorx.Base
	rdb redis.UniversalClient
	now func() time.Time
}

func Factory(rdb redis.UniversalClient) connectorx.Factory {
	return func(spec connectorx.InstanceSpec) (connectorx.Instance, error) {
		return &Connector{Base: connectorx.NewBase(spec), rdb: rdb, now: time.Now}, nil
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	return c.Open(ctx, func(ctx context.Context) error {
		if c.rdb == nil {
			return errors.New("redis is not configured")
		}
		return c.rdb.Ping(ctx).Err()
	})
}

func (c *Connector) Disconnect(ctx context.Context) error {
	return c.Close(ctx, nil)
}

// key is per owner; global instances share one hash.
func (c *Connector) key() string {
	owner := c.UserID().String()
	if owner == "" {
		owner = "global"
	}
	return fmt.Sprintf("%s:%s", c.Config().String("namespace"), owner)
}

func (c *Connector) ExecuteCapability(ctx context.Context, capabilityID string, args map[string]any) (*connectorx.CapabilityResult, error) {
	if res := c.Guard(capabilityID); res != nil {
		return res, nil
	}

	a := connectorx.Config(args)
	switch capabilityID {
	case "add_note":
		return c.add(ctx, a.String("text"))
	case "list_notes":
		return c.list(ctx)
	case "delete_note":
		return c.delete(ctx, a.String("id"))
	}
	return connectorx.UnknownCapability(), nil
}

func (c *Connector) add(ctx context.Context, text string) (*connectorx.CapabilityResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &connectorx.CapabilityResult{Success: false, Output: "text is required"}, nil
	}

	note := Note{ID: uuid.NewString(), Text: text, CreatedAt: c.now().UTC()}
	raw, err := json.Marshal(note)
	if err != nil {
		return connectorx.Failure(err), nil
	}
	if err := c.rdb.HSet(ctx, c.key(), note.ID, raw).Err(); err != nil {
		return connectorx.Failure(err), nil
	}
	return &connectorx.CapabilityResult{Success: true, Output: "Saved note " + note.ID, Data: note}, nil
}

func (c *Connector) list(ctx context.Context) (*connectorx.CapabilityResult, error) {
	all, err := c.rdb.HGetAll(ctx, c.key()).Result()
	if err != nil {
		return connectorx.Failure(err), nil
	}

	notes := make([]Note, 0, len(all))
	for _, raw := range all {
		var n Note
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })

	if len(notes) == 0 {
		return &connectorx.CapabilityResult{Success: true, Output: "No notes", Data: notes}, nil
	}
	lines := make([]string, len(notes))
	for i, n := range notes {
		lines[i] = fmt.Sprintf("[%s] %s", n.ID, n.Text)
	}
	return &connectorx.CapabilityResult{Success: true, Output: strings.Join(lines, "\n"), Data: notes}, nil
}

func (c *Connector) delete(ctx context.Context, id string) (*connectorx.CapabilityResult, error) {
	if id == "" {
		return &connectorx.CapabilityResult{Success: false, Output: "id is required"}, nil
	}
	n, err := c.rdb.HDel(ctx, c.key(), id).Result()
	if err != nil {
		return connectorx.Failure(err), nil
	}
	if n == 0 {
		return &connectorx.CapabilityResult{Success: false, Output: "Note " + id + " not found"}, nil
	}
	return &connectorx.CapabilityResult{Success: true, Output: "Deleted note " + id}, nil
}
