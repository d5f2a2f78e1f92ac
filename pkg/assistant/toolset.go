package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/logx"
)

const toolSeparator = "__"

// ToolName is the model-facing name of a connector capability.
func ToolName(connectorID, capabilityID string) string {
	return connectorID + toolSeparator + capabilityID
}

// SplitToolName reverses ToolName.
func SplitToolName(name string) (connectorID, capabilityID string, ok bool) {
	return strings.Cut(name, toolSeparator)
}

// Toolset exposes the capabilities of a fixed set of connected instances as tools.
type Toolset struct {
	byConnector map[string]connectorx.Instance
	specs       []ToolSpec
}

// NewToolset indexes instances by connector id. Instances that are not connected are skipped.
func NewToolset(instances []connectorx.Instance) *Toolset {
	ts := &Toolset{byConnector: make(map[string]connectorx.Instance, len(instances))}
	for _, inst := range instances {
		if inst.Status() != connectorx.StatusConnected {
			continue
		}
		def := inst.Definition()
		ts.byConnector[def.ID] = inst
		for _, c := range def.Capabilities {
			ts.specs = append(ts.specs, ToolSpec{
				Name:        ToolName(def.ID, c.ID),
				Description: fmt.Sprintf("[%s] %s", def.Name, c.Description),
				Parameters:  c.Parameters,
			})
		}
	}
	return ts
}

func (t *Toolset) Specs() []ToolSpec { return t.specs }

func (t *Toolset) Len() int { return len(t.specs) }

// Instance returns the connected instance for connectorID.
func (t *Toolset) Instance(connectorID string) (connectorx.Instance, bool) {
	inst, ok := t.byConnector[connectorID]
	return inst, ok
}

// Execute runs call and renders the outcome as tool output. Failures of any
// kind are reported in the output, never returned.
func (t *Toolset) Execute(ctx context.Context, call ToolCall) string {
	connectorID, capabilityID, ok := SplitToolName(call.Name)
	if !ok {
		return render(connectorx.UnknownCapability())
	}
	inst, ok := t.byConnector[connectorID]
	if !ok {
		return render(connectorx.NotConnected())
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return render(&connectorx.CapabilityResult{Success: false, Output: "arguments must be a JSON object"})
		}
	}

	res, err := safeExecute(ctx, inst, capabilityID, args)
	if err != nil {
		logx.WithFields(logx.Fields{
			"component":  "assistant",
			"tool":       call.Name,
			"connector":  connectorID,
			"capability": capabilityID,
		}).WithError(err).Warn("Tool execution failed")
		res = connectorx.Failure(err)
	}
	return render(res)
}

func safeExecute(ctx context.Context, inst connectorx.Instance, capabilityID string, args map[string]any) (res *connectorx.CapabilityResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()
	res, err = inst.ExecuteCapability(ctx, capabilityID, args)
	if err == nil && res == nil {
		err = fmt.Errorf("capability %s returned no result", capabilityID)
	}
	return res, err
}

func render(res *connectorx.CapabilityResult) string {
	data, err := json.Marshal(res)
	if err != nil {
		return res.Output
	}
	return string(data)
}
