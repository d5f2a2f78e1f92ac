package jobx

import (
	"context"
	"encoding/json"
)

// Store is the durable job table. Implementations must make Dequeue an atomic
// claim so that two concurrent callers never receive the same job.
type Store interface {
	// Enqueue inserts a pending job with zero attempts and returns its id.
	Enqueue(ctx context.Context, job NewJob) (string, error)

	// Dequeue claims the oldest pending job, marking it processing and
	// incrementing its attempts. It returns nil, nil when nothing is pending.
	Dequeue(ctx context.Context) (*Job, error)

	// Complete marks a claimed job completed and stores its result.
	Complete(ctx context.Context, jobID string, result json.RawMessage) error

	// Fail records errMsg and re-queues the job while attempts < max retries,
	// otherwise parks it as failed. retried reports which happened.
	Fail(ctx context.Context, jobID string, errMsg string) (retried bool, err error)

	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// Inspector is implemented by stores that support listing jobs, e.g. to review dead letters.
type Inspector interface {
	List(ctx context.Context, filter ListFilter) ([]*Job, error)
}
