package jobx

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition can happen from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// NewJob is a unit of work to be enqueued.
type NewJob struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	UserID  kernel.UserID   `json:"user_id,omitempty"`

	// MaxRetries caps the number of claims. Zero means the client default.
	MaxRetries int `json:"max_retries"`
}

// Job is the full representation of a job stored in the backend.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	UserID     kernel.UserID   `json:"user_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ToJob materializes a pending job with a fresh id. Backends call it on insert.
func (nj NewJob) ToJob(now time.Time) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Type:       nj.Type,
		Payload:    nj.Payload,
		Status:     JobStatusPending,
		Attempts:   0,
		MaxRetries: nj.MaxRetries,
		UserID:     nj.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return jobxErrors.NewWithCause(ErrInvalidPayload, err).
			WithDetail("job_id", j.ID).
			WithDetail("type", j.Type)
	}
	return nil
}

// ListFilter narrows an inspection query. Zero values match everything.
type ListFilter struct {
	Status JobStatus
	UserID kernel.UserID
	Limit  int
}

// DefaultListLimit bounds List when the filter carries no limit.
const DefaultListLimit = 50
