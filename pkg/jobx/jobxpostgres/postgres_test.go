package jobxpostgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

var jobColumns = []string{
	"id", "type", "payload", "status", "attempts", "max_retries",
	"error", "result", "user_id", "created_at", "updated_at",
}

func TestPostgresStore_Enqueue(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
		WithArgs(sqlmock.AnyArg(), "inbound_message", []byte(`{"a":1}`), "pending", 2, "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Enqueue(context.Background(), jobx.NewJob{
		Type:       "inbound_message",
		Payload:    json.RawMessage(`{"a":1}`),
		UserID:     "u1",
		MaxRetries: 2,
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueuePropagatesFailure(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).WillReturnError(errors.New("db down"))

	_, err := store.Enqueue(context.Background(), jobx.NewJob{Type: "t", Payload: json.RawMessage(`{}`)})
	assert.Equal(t, "JOBX_POSTGRES_ENQUEUE", errx.CodeOf(err))
}

func TestPostgresStore_DequeueClaimsWithSkipLocked(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE jobs\s+SET status = 'processing', attempts = attempts \+ 1.*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
			"0b5f3f8e-5a4e-4c1f-9a6b-1a2b3c4d5e6f", "inbound_message", []byte(`{"a":1}`), "processing",
			1, 3, nil, nil, "u1", now, now,
		))

	job, err := store.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobx.JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "u1", job.UserID.String())
	assert.Nil(t, job.Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DequeueEmpty(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`UPDATE jobs`).WillReturnRows(sqlmock.NewRows(jobColumns))

	job, err := store.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestPostgresStore_DequeueError(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`UPDATE jobs`).WillReturnError(errors.New("connection reset"))

	_, err := store.Dequeue(context.Background())
	assert.Equal(t, "JOBX_POSTGRES_DEQUEUE", errx.CodeOf(err))
}

func TestPostgresStore_FailRetryAndDeadLetter(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	failQuery := `UPDATE jobs\s+SET status = CASE WHEN attempts < max_retries THEN 'pending' ELSE 'failed' END`

	mock.ExpectQuery(failQuery).WithArgs("j1", "boom").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectQuery(failQuery).WithArgs("j1", "boom").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))
	mock.ExpectQuery(failQuery).WithArgs("j1", "boom").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	retried, err := store.Fail(ctx, "j1", "boom")
	require.NoError(t, err)
	assert.True(t, retried)

	retried, err = store.Fail(ctx, "j1", "boom")
	require.NoError(t, err)
	assert.False(t, retried)

	_, err = store.Fail(ctx, "j1", "boom")
	assert.Equal(t, "JOBX_POSTGRES_NOT_CLAIMED", errx.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Complete(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'completed'")).
		WithArgs("j1", []byte(`{"ok":true}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'completed'")).
		WithArgs("j2", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Complete(ctx, "j1", json.RawMessage(`{"ok":true}`)))

	err := store.Complete(ctx, "j2", nil)
	assert.Equal(t, "JOBX_POSTGRES_NOT_CLAIMED", errx.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJobNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobColumns))

	_, err := store.GetJob(context.Background(), "missing")
	assert.Equal(t, "JOBX_POSTGRES_NOT_FOUND", errx.CodeOf(err))
}

func TestPostgresStore_ListBuildsFilter(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE status = $1 AND user_id = $2 ORDER BY created_at DESC, id DESC LIMIT $3")).
		WithArgs("failed", "u1", 10).
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
			"j1", "inbound_message", []byte(`{}`), "failed", 3, 3, "boom", nil, "u1", now, now,
		))

	jobs, err := store.List(context.Background(), jobx.ListFilter{
		Status: jobx.JobStatusFailed,
		UserID: "u1",
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "boom", jobs[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS jobs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
