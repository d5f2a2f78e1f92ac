package connectorpostgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*ConfigRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewConfigRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestConfigRepository_ListEnabledForUser(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_skill_configs")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "skill_id", "enabled", "config"}).
			AddRow("u1", "github", true, `{"token":"x"}`).
			AddRow("u1", "webhook", true, nil))

	rows, err := repo.ListEnabledForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "github", rows[0].SkillID)
	require.NotNil(t, rows[0].Config)
	assert.Equal(t, `{"token":"x"}`, *rows[0].Config)
	assert.Nil(t, rows[1].Config)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigRepository_ListError(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_skill_configs")).WillReturnError(errors.New("timeout"))

	_, err := repo.ListEnabledForUser(context.Background(), "u1")
	assert.Equal(t, "CONNECTORX_POSTGRES_LIST", errx.CodeOf(err))
}

func TestConfigRepository_Save(t *testing.T) {
	repo, mock := newRepo(t)
	cfg := `{"callback_url":"https://example.com/hook"}`

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_skill_configs")).
		WithArgs("u1", "webhook", true, cfg, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), connectorx.StoredConfig{
		UserID: "u1", SkillID: "webhook", Enabled: true, Config: &cfg,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigRepository_Migrate(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS user_skill_configs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
}
