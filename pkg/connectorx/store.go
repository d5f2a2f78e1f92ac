package connectorx

import (
	"context"

	"github.com/ryan12324/openassistant/pkg/kernel"
)

// StoredConfig is one persisted per-user connector configuration row.
// SkillID is the connector definition id; Config is a JSON object or nil.
type StoredConfig struct {
	UserID  kernel.UserID `json:"userId" db:"user_id"`
	SkillID string        `json:"skillId" db:"skill_id"`
	Enabled bool          `json:"enabled" db:"enabled"`
	Config  *string       `json:"config" db:"config"`
}

// ConfigStore reads persisted connector configuration during hydration.
type ConfigStore interface {
	ListEnabledForUser(ctx context.Context, userID kernel.UserID) ([]StoredConfig, error)
}

// Observer receives registry events, typically to feed metrics.
type Observer interface {
	Hydrated(outcome string)
	Connected(connectorID string, err error)
}

type nopObserver struct{}

func (nopObserver) Hydrated(string)         {}
func (nopObserver) Connected(string, error) {}

const (
	HydrationOK      = "ok"
	HydrationPartial = "partial"
	HydrationCached  = "cached"
	HydrationError   = "error"
)
