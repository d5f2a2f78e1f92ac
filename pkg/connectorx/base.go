package connectorx

import (
	"context"
	"strings"
	"sync"

	"github.com/ryan12324/openassistant/pkg/kernel"
)

const (
	OutputUnknownCapability = "Unknown capability"
	OutputNotConnected      = "Connector not connected"
)

// UnknownCapability is the result returned for capability ids the definition does not declare.
func UnknownCapability() *CapabilityResult {
	return &CapabilityResult{Success: false, Output: OutputUnknownCapability}
}

// NotConnected is the result returned when a capability runs before Connect succeeded.
func NotConnected() *CapabilityResult {
	return &CapabilityResult{Success: false, Output: OutputNotConnected}
}

// Failure wraps a provider error as a failed result.
func Failure(err error) *CapabilityResult {
	return &CapabilityResult{Success: false, Output: err.Error()}
}

// Base carries the shared state machine of every connector. Concrete
// connectors embed *Base and implement Connect, Disconnect and
// ExecuteCapability on top of Open, Close and Guard.
type Base struct {
	mu      sync.RWMutex
	def     Definition
	cfg     Config
	scope   Scope
	userID  kernel.UserID
	status  Status
	lastErr error
}

// NewBase copies spec, filling unset config keys from the field defaults.
func NewBase(spec InstanceSpec) *Base {
	cfg := spec.Config.clone()
	for _, f := range spec.Definition.ConfigFields {
		if _, set := cfg[f.Key]; !set && f.Default != nil {
			cfg[f.Key] = f.Default
		}
	}

	scope := spec.Scope
	if scope == "" {
		scope = ScopeGlobal
	}

	return &Base{
		def:    spec.Definition,
		cfg:    cfg,
		scope:  scope,
		userID: spec.UserID,
		status: StatusDisconnected,
	}
}

func (b *Base) Definition() Definition { return b.def.clone() }
func (b *Base) Config() Config         { return b.cfg.clone() }
func (b *Base) Scope() Scope           { return b.scope }
func (b *Base) UserID() kernel.UserID  { return b.userID }

func (b *Base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// LastError is the error of the most recent failed Open, if any.
func (b *Base) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

func (b *Base) setStatus(s Status, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
	b.lastErr = err
}

// Validate checks that every required field has a non-empty value.
func (b *Base) Validate() error {
	var missing []string
	for _, f := range b.def.ConfigFields {
		if f.Required && strings.TrimSpace(b.cfg.String(f.Key)) == "" {
			missing = append(missing, f.Key)
		}
	}
	if len(missing) > 0 {
		return connectorErrors.New(ErrInvalidConfig).
			WithDetail("connector", b.def.ID).
			WithDetail("missing", missing)
	}
	return nil
}

// Open validates the config, then runs dial while the instance reports
// connecting. It ends in connected when dial succeeds and error otherwise.
func (b *Base) Open(ctx context.Context, dial func(ctx context.Context) error) error {
	b.setStatus(StatusConnecting, nil)

	if err := b.Validate(); err != nil {
		b.setStatus(StatusError, err)
		return err
	}

	if dial != nil {
		if err := dial(ctx); err != nil {
			wrapped := connectorErrors.NewWithCause(ErrConnectFailed, err).WithDetail("connector", b.def.ID)
			b.setStatus(StatusError, wrapped)
			return wrapped
		}
	}

	b.setStatus(StatusConnected, nil)
	return nil
}

// Close runs hangup, if any, and leaves the instance disconnected regardless of its result.
func (b *Base) Close(ctx context.Context, hangup func(ctx context.Context) error) error {
	var err error
	if hangup != nil {
		err = hangup(ctx)
	}
	b.setStatus(StatusDisconnected, nil)
	return err
}

// Guard returns the failure result a capability call must produce before
// doing any work, or nil when the call may proceed.
func (b *Base) Guard(capabilityID string) *CapabilityResult {
	if _, ok := b.def.Capability(capabilityID); !ok {
		return UnknownCapability()
	}
	if b.Status() != StatusConnected {
		return NotConnected()
	}
	return nil
}
