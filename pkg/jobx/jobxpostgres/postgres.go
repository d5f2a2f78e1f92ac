// Package jobxpostgres implements jobx.Store on a Postgres "jobs" table.
// The claim is a single UPDATE over a SKIP LOCKED sub-select, so concurrent
// pollers in different processes never receive the same row.
package jobxpostgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          UUID PRIMARY KEY,
	type        TEXT        NOT NULL,
	payload     JSONB       NOT NULL DEFAULT '{}',
	status      TEXT        NOT NULL DEFAULT 'pending',
	attempts    INTEGER     NOT NULL DEFAULT 0,
	max_retries INTEGER     NOT NULL DEFAULT 3,
	error       TEXT,
	result      JSONB,
	user_id     TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS jobs_pending_idx ON jobs (created_at, id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS jobs_user_status_idx ON jobs (user_id, status);
`

const columns = `id, type, payload, status, attempts, max_retries, error, result, user_id, created_at, updated_at`

// PostgresStore implements jobx.Store and jobx.Inspector.
type PostgresStore struct {
	db *sqlx.DB
}

var (
	_ jobx.Store     = (*PostgresStore)(nil)
	_ jobx.Inspector = (*PostgresStore)(nil)
)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the jobs table and its indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return pgErrors.NewWithCause(ErrMigrate, err)
	}
	return nil
}

type jobRow struct {
	ID         string         `db:"id"`
	Type       string         `db:"type"`
	Payload    []byte         `db:"payload"`
	Status     string         `db:"status"`
	Attempts   int            `db:"attempts"`
	MaxRetries int            `db:"max_retries"`
	Error      sql.NullString `db:"error"`
	Result     []byte         `db:"result"`
	UserID     sql.NullString `db:"user_id"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r jobRow) toDomain() *jobx.Job {
	job := &jobx.Job{
		ID:         r.ID,
		Type:       r.Type,
		Payload:    json.RawMessage(r.Payload),
		Status:     jobx.JobStatus(r.Status),
		Attempts:   r.Attempts,
		MaxRetries: r.MaxRetries,
		Error:      r.Error.String,
		UserID:     kernel.UserID(r.UserID.String),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Result) > 0 {
		job.Result = json.RawMessage(r.Result)
	}
	return job
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PostgresStore) Enqueue(ctx context.Context, nj jobx.NewJob) (string, error) {
	job := nj.ToJob(time.Now().UTC())

	query := `
		INSERT INTO jobs (id, type, payload, status, attempts, max_retries, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $7)`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.Type, []byte(job.Payload), string(job.Status), job.MaxRetries,
		nullableString(job.UserID.String()), job.CreatedAt,
	)
	if err != nil {
		return "", pgErrors.NewWithCause(ErrEnqueue, err).WithDetail("type", job.Type)
	}
	return job.ID, nil
}

// Dequeue claims the oldest pending row. Rows locked by a concurrent claim are skipped.
func (s *PostgresStore) Dequeue(ctx context.Context) (*jobx.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + columns

	var row jobRow
	if err := s.db.QueryRowxContext(ctx, query).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, pgErrors.NewWithCause(ErrDequeue, err)
	}
	return row.toDomain(), nil
}

// Complete is a no-op in effect when the job is already completed.
func (s *PostgresStore) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	query := `
		UPDATE jobs
		SET status = 'completed', result = $2, updated_at = now()
		WHERE id = $1 AND status IN ('processing', 'completed')`

	res, err := s.db.ExecContext(ctx, query, jobID, nullableJSON(result))
	if err != nil {
		return pgErrors.NewWithCause(ErrComplete, err).WithDetail("job_id", jobID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return pgErrors.NewWithCause(ErrComplete, err).WithDetail("job_id", jobID)
	}
	if n == 0 {
		return pgErrors.New(ErrNotClaimed).WithDetail("job_id", jobID)
	}
	return nil
}

// Fail decides between retry and dead-letter inside the UPDATE itself.
func (s *PostgresStore) Fail(ctx context.Context, jobID string, errMsg string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = CASE WHEN attempts < max_retries THEN 'pending' ELSE 'failed' END,
			error = $2,
			updated_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING status`

	var status string
	if err := s.db.QueryRowxContext(ctx, query, jobID, errMsg).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, pgErrors.New(ErrNotClaimed).WithDetail("job_id", jobID)
		}
		return false, pgErrors.NewWithCause(ErrFail, err).WithDetail("job_id", jobID)
	}
	return jobx.JobStatus(status) == jobx.JobStatusPending, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*jobx.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+columns+` FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pgErrors.New(ErrNotFound).WithDetail("job_id", jobID)
		}
		return nil, pgErrors.NewWithCause(ErrGetJob, err).WithDetail("job_id", jobID)
	}
	return row.toDomain(), nil
}

// List returns matching jobs, newest first.
func (s *PostgresStore) List(ctx context.Context, filter jobx.ListFilter) ([]*jobx.Job, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.UserID.IsEmpty() {
		args = append(args, filter.UserID.String())
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = jobx.DefaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + columns + ` FROM jobs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, pgErrors.NewWithCause(ErrList, err)
	}

	jobs := make([]*jobx.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toDomain())
	}
	return jobs, nil
}
