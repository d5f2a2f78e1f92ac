// Package connectorpostgres persists per-user connector configuration in the
// user_skill_configs table.
package connectorpostgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

var pgErrors = errx.NewRegistry("CONNECTORX_POSTGRES")

var (
	ErrList    = pgErrors.Register("LIST", errx.TypeExternal, 500, "Failed to list connector configurations")
	ErrSave    = pgErrors.Register("SAVE", errx.TypeExternal, 500, "Failed to save connector configuration")
	ErrMigrate = pgErrors.Register("MIGRATE", errx.TypeExternal, 500, "Connector configuration migration failed")
)

const schema = `
CREATE TABLE IF NOT EXISTS user_skill_configs (
	user_id    TEXT        NOT NULL,
	skill_id   TEXT        NOT NULL,
	enabled    BOOLEAN     NOT NULL DEFAULT true,
	config     TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, skill_id)
);
`

// ConfigRepository implements connectorx.ConfigStore.
type ConfigRepository struct {
	db *sqlx.DB
}

var _ connectorx.ConfigStore = (*ConfigRepository)(nil)

func NewConfigRepository(db *sqlx.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return pgErrors.NewWithCause(ErrMigrate, err)
	}
	return nil
}

func (r *ConfigRepository) ListEnabledForUser(ctx context.Context, userID kernel.UserID) ([]connectorx.StoredConfig, error) {
	query := `
		SELECT user_id, skill_id, enabled, config
		FROM user_skill_configs
		WHERE user_id = $1 AND enabled = true
		ORDER BY skill_id`

	var rows []connectorx.StoredConfig
	if err := r.db.SelectContext(ctx, &rows, query, userID.String()); err != nil {
		return nil, pgErrors.NewWithCause(ErrList, err).WithDetail("user_id", userID)
	}
	return rows, nil
}

// Save upserts one configuration row.
func (r *ConfigRepository) Save(ctx context.Context, cfg connectorx.StoredConfig) error {
	query := `
		INSERT INTO user_skill_configs (user_id, skill_id, enabled, config, updated_at)
		VALUES (:user_id, :skill_id, :enabled, :config, :updated_at)
		ON CONFLICT (user_id, skill_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at`

	arg := struct {
		connectorx.StoredConfig
		UpdatedAt time.Time `db:"updated_at"`
	}{cfg, time.Now().UTC()}

	if _, err := r.db.NamedExecContext(ctx, query, arg); err != nil {
		return pgErrors.NewWithCause(ErrSave, err).
			WithDetail("user_id", cfg.UserID).
			WithDetail("skill_id", cfg.SkillID)
	}
	return nil
}
