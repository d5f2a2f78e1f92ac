package jobx

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ryan12324/openassistant/pkg/logx"
)

// Client is the main entry point for enqueuing and processing jobs.
type Client struct {
	store  Store
	opts   Options
	mux    *Mux
	poller *Poller
}

// NewClient creates a client over store. Handlers are added with Register and
// processing starts with Start.
func NewClient(store Store, options ...Option) *Client {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}

	c := &Client{
		store:  store,
		opts:   opts,
		mux:    NewMux(),
		poller: NewPoller(store, options...),
	}
	return c
}

// Register adds a handler for a given job type.
func (c *Client) Register(jobType string, handler HandlerFunc) {
	c.mux.Handle(jobType, handler)
	c.poller.SetHandler(c.mux.Process)
}

// Types lists the registered job types.
func (c *Client) Types() []string {
	return c.mux.Types()
}

// Enqueue persists job and nudges the poller. It returns as soon as the job
// is stored and never waits for processing.
func (c *Client) Enqueue(ctx context.Context, job NewJob) (string, error) {
	if strings.TrimSpace(job.Type) == "" {
		return "", jobxErrors.NewWithMessage(ErrInvalidJob, "job type is required")
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage(`{}`)
	} else if !json.Valid(job.Payload) {
		return "", jobxErrors.New(ErrInvalidPayload).WithDetail("type", job.Type)
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = c.opts.DefaultMaxRetries
	}

	id, err := c.store.Enqueue(ctx, job)
	if err != nil {
		return "", err
	}

	c.opts.Observer.JobEnqueued(job.Type)
	logx.WithFields(logx.Fields{
		"component": "jobx",
		"job_id":    id,
		"type":      job.Type,
	}).Debug("job enqueued")

	c.poller.Nudge()
	return id, nil
}

// GetJob returns the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return c.store.GetJob(ctx, jobID)
}

// List lists jobs when the store implements Inspector.
func (c *Client) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	insp, ok := c.store.(Inspector)
	if !ok {
		return nil, jobxErrors.New(ErrInspectUnsupported)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, jobxErrors.New(ErrInvalidListFilter).WithDetail("status", filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	return insp.List(ctx, filter)
}

// Poller exposes the underlying poller, mostly for tests and manual drains.
func (c *Client) Poller() *Poller {
	return c.poller
}

// Start begins processing jobs. It blocks until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	logx.WithFields(logx.Fields{
		"component": "jobx",
		"types":     c.mux.Types(),
	}).Info("starting job processing")
	return c.poller.Run(ctx)
}
