package connectorx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ryan12324/openassistant/pkg/kernel"
)

// Status is the connection state of an instance.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Scope says who owns an instance.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeUser   Scope = "user"
)

// Config is the owner-supplied key/value configuration of an instance.
type Config map[string]any

// ParseConfig decodes a stored JSON configuration object.
func ParseConfig(raw string) (Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, connectorErrors.NewWithCause(ErrInvalidConfig, err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}

func (c Config) clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String returns the value at key as a string. Non-string values are formatted.
func (c Config) String(key string) string {
	switch v := c[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the value at key interpreted as a boolean.
func (c Config) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1"
	default:
		return false
	}
}

// Int returns the value at key as an int, or def when absent or not numeric.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// CapabilityResult is the structured outcome of ExecuteCapability. Failures
// that the caller should see, such as an unknown capability, are results with
// Success false rather than errors.
type CapabilityResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Data    any    `json:"data,omitempty"`
}

// Instance is a live binding of a definition to a configuration.
type Instance interface {
	Definition() Definition
	Config() Config
	Status() Status
	Scope() Scope
	UserID() kernel.UserID

	// Connect moves the instance to connected or error.
	Connect(ctx context.Context) error

	// Disconnect always leaves the instance disconnected, even when it returns an error.
	Disconnect(ctx context.Context) error

	ExecuteCapability(ctx context.Context, capabilityID string, args map[string]any) (*CapabilityResult, error)
}

// InstanceSpec is what a factory receives to build an instance.
type InstanceSpec struct {
	Definition Definition
	Config     Config
	Scope      Scope
	UserID     kernel.UserID
}

// Factory builds an unconnected instance for one definition.
type Factory func(spec InstanceSpec) (Instance, error)
