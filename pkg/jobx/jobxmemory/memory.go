// Package jobxmemory is a process-local jobx.Store, used in tests and single-node development.
package jobxmemory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ryan12324/openassistant/pkg/jobx"
)

// MemoryStore keeps jobs in insertion order behind one mutex.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*jobx.Job
	order []string
	now   func() time.Time
}

var (
	_ jobx.Store     = (*MemoryStore)(nil)
	_ jobx.Inspector = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*jobx.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, nj jobx.NewJob) (string, error) {
	job := nj.ToJob(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return job.ID, nil
}

// Dequeue claims the first pending job in insertion order.
func (s *MemoryStore) Dequeue(ctx context.Context) (*jobx.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != jobx.JobStatusPending {
			continue
		}
		job.Status = jobx.JobStatusProcessing
		job.Attempts++
		job.UpdatedAt = s.now()
		return clone(job), nil
	}
	return nil, nil
}

func (s *MemoryStore) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return memoryErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	if job.Status != jobx.JobStatusProcessing && job.Status != jobx.JobStatusCompleted {
		return memoryErrors.New(ErrNotClaimed).WithDetail("job_id", jobID).WithDetail("status", job.Status)
	}

	job.Status = jobx.JobStatusCompleted
	job.Result = append(json.RawMessage(nil), result...)
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, jobID string, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, memoryErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	if job.Status != jobx.JobStatusProcessing {
		return false, memoryErrors.New(ErrNotClaimed).WithDetail("job_id", jobID).WithDetail("status", job.Status)
	}

	job.Error = errMsg
	job.UpdatedAt = s.now()

	if job.Attempts < job.MaxRetries {
		job.Status = jobx.JobStatusPending
		return true, nil
	}
	job.Status = jobx.JobStatusFailed
	return false, nil
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, memoryErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	return clone(job), nil
}

// List returns matching jobs, newest first.
func (s *MemoryStore) List(ctx context.Context, filter jobx.ListFilter) ([]*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*jobx.Job, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]]
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if !filter.UserID.IsEmpty() && job.UserID != filter.UserID {
			continue
		}
		out = append(out, clone(job))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func clone(j *jobx.Job) *jobx.Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &c
}
