package assistant_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryan12324/openassistant/pkg/assistant"
	"github.com/ryan12324/openassistant/pkg/connectorx"
)

func TestToolName_RoundTrip(t *testing.T) {
	name := assistant.ToolName("s3files", "read_file")
	assert.Equal(t, "s3files__read_file", name)

	conn, capID, ok := assistant.SplitToolName(name)
	require.True(t, ok)
	assert.Equal(t, "s3files", conn)
	assert.Equal(t, "read_file", capID)

	_, _, ok = assistant.SplitToolName("plain")
	assert.False(t, ok)
}

type panicky struct{ *connectorx.Base }

func (p *panicky) Connect(ctx context.Context) error    { return p.Open(ctx, nil) }
func (p *panicky) Disconnect(ctx context.Context) error { return p.Close(ctx, nil) }
func (p *panicky) ExecuteCapability(context.Context, string, map[string]any) (*connectorx.CapabilityResult, error) {
	panic("kaboom")
}

func TestToolset_SkipsDisconnectedAndSurvivesPanics(t *testing.T) {
	def := connectorx.Definition{ID: "p", Name: "P", Capabilities: []connectorx.Capability{{ID: "go", Description: "run"}}}

	live := &panicky{connectorx.NewBase(connectorx.InstanceSpec{Definition: def})}
	require.NoError(t, live.Connect(context.Background()))

	idleDef := def
	idleDef.ID = "idle"
	idle := &panicky{connectorx.NewBase(connectorx.InstanceSpec{Definition: idleDef})}

	ts := assistant.NewToolset([]connectorx.Instance{live, idle})
	require.Equal(t, 1, ts.Len())
	assert.Equal(t, "p__go", ts.Specs()[0].Name)
	assert.Equal(t, "[P] run", ts.Specs()[0].Description)

	var res connectorx.CapabilityResult
	out := ts.Execute(context.Background(), assistant.ToolCall{ID: "1", Name: "p__go"})
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "kaboom")

	out = ts.Execute(context.Background(), assistant.ToolCall{ID: "2", Name: "p__go", Arguments: json.RawMessage(`"nope"`)})
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "arguments must be a JSON object", res.Output)

	out = ts.Execute(context.Background(), assistant.ToolCall{ID: "3", Name: "nonsense"})
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, connectorx.OutputUnknownCapability, res.Output)
}
