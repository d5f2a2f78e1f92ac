package jobx_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/jobx/jobxmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	enqueued, completed, retried, dead, pollErrors atomic.Int32
}

func (o *countingObserver) JobEnqueued(string)                 { o.enqueued.Add(1) }
func (o *countingObserver) JobCompleted(string, time.Duration) { o.completed.Add(1) }
func (o *countingObserver) JobRetried(string)                  { o.retried.Add(1) }
func (o *countingObserver) JobDeadLettered(string)             { o.dead.Add(1) }
func (o *countingObserver) PollError()                         { o.pollErrors.Add(1) }

func newClient(t *testing.T, opts ...jobx.Option) (*jobx.Client, *jobxmemory.MemoryStore) {
	t.Helper()
	store := jobxmemory.NewMemoryStore()
	opts = append([]jobx.Option{jobx.WithPollInterval(time.Hour)}, opts...)
	return jobx.NewClient(store, opts...), store
}

func getJob(t *testing.T, c *jobx.Client, id string) *jobx.Job {
	t.Helper()
	job, err := c.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestPoller_RetriesThenCompletes(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	var calls int
	c.Register("inbound_message", func(ctx context.Context, job *jobx.Job) (json.RawMessage, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("transient")
		}
		return json.RawMessage(`{"reply":"hi"}`), nil
	})

	id, err := c.Enqueue(ctx, jobx.NewJob{
		Type:       "inbound_message",
		Payload:    json.RawMessage(`{"content":"hello"}`),
		UserID:     "u1",
		MaxRetries: 3,
	})
	require.NoError(t, err)

	for range 3 {
		assert.True(t, c.Poller().PollOnce(ctx))
	}

	job := getJob(t, c, id)
	assert.Equal(t, jobx.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.JSONEq(t, `{"reply":"hi"}`, string(job.Result))
}

func TestPoller_DeadLettersAfterMaxRetries(t *testing.T) {
	obs := &countingObserver{}
	c, _ := newClient(t, jobx.WithObserver(obs))
	ctx := context.Background()

	c.Register("inbound_message", func(ctx context.Context, job *jobx.Job) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})

	id, err := c.Enqueue(ctx, jobx.NewJob{Type: "inbound_message", MaxRetries: 1})
	require.NoError(t, err)

	assert.True(t, c.Poller().PollOnce(ctx))
	assert.False(t, c.Poller().PollOnce(ctx), "a failed job must not be claimed again")

	job := getJob(t, c, id)
	assert.Equal(t, jobx.JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)
	assert.Equal(t, 1, job.Attempts)
	assert.EqualValues(t, 1, obs.dead.Load())
	assert.EqualValues(t, 0, obs.retried.Load())
}

func TestPoller_AttemptsTrackFailures(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	c.Register("t", func(ctx context.Context, job *jobx.Job) (json.RawMessage, error) {
		return nil, errors.New("always")
	})

	const maxRetries = 4
	id, err := c.Enqueue(ctx, jobx.NewJob{Type: "t", MaxRetries: maxRetries})
	require.NoError(t, err)

	for n := 1; n <= maxRetries; n++ {
		require.True(t, c.Poller().PollOnce(ctx))
		job := getJob(t, c, id)
		assert.Equal(t, n, job.Attempts)
		if n < maxRetries {
			assert.Equal(t, jobx.JobStatusPending, job.Status, "failed before attempts reached max retries")
		} else {
			assert.Equal(t, jobx.JobStatusFailed, job.Status)
		}
	}
}

func TestPoller_NudgeDrainsBurstWithoutFallback(t *testing.T) {
	c, _ := newClient(t, jobx.WithNudgeDelay(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var processed atomic.Int32
	c.Register("t", func(ctx context.Context, job *jobx.Job) (json.RawMessage, error) {
		processed.Add(1)
		return nil, nil
	})

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	ids := make([]string, 0, 5)
	for range 5 {
		id, err := c.Enqueue(ctx, jobx.NewJob{Type: "t"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Eventually(t, func() bool {
		for _, id := range ids {
			if getJob(t, c, id).Status != jobx.JobStatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 5, processed.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

func TestPoller_SingleFlight(t *testing.T) {
	c, store := newClient(t)
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{})
	c.Register("t", func(ctx context.Context, job *jobx.Job) (json.RawMessage, error) {
		close(entered)
		<-release
		return nil, nil
	})

	_, err := c.Enqueue(ctx, jobx.NewJob{Type: "t"})
	require.NoError(t, err)
	second, err := c.Enqueue(ctx, jobx.NewJob{Type: "t"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Poller().PollOnce(ctx)
	}()
	<-entered

	assert.False(t, c.Poller().PollOnce(ctx))
	job, err := store.GetJob(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusPending, job.Status)

	close(release)
	wg.Wait()
}

func TestPoller_NoHandlerLeavesJobPending(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	id, err := c.Enqueue(ctx, jobx.NewJob{Type: "t"})
	require.NoError(t, err)

	assert.False(t, c.Poller().PollOnce(ctx))
	assert.Equal(t, jobx.JobStatusPending, getJob(t, c, id).Status)
}

func TestPoller_UnknownTypeFails(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	c.Register("known", func(ctx context.Context, job *jobx.Job) (json.RawMessage, error) { return nil, nil })

	id, err := c.Enqueue(ctx, jobx.NewJob{Type: "unknown", MaxRetries: 1})
	require.NoError(t, err)

	require.True(t, c.Poller().PollOnce(ctx))
	job := getJob(t, c, id)
	assert.Equal(t, jobx.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "JOBX_NO_HANDLER")
}

func TestPoller_RecoversHandlerPanic(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	c.Register("t", func(ctx context.Context, job *jobx.Job) (json.RawMessage, error) {
		panic("kaboom")
	})

	id, err := c.Enqueue(ctx, jobx.NewJob{Type: "t", MaxRetries: 2})
	require.NoError(t, err)

	require.True(t, c.Poller().PollOnce(ctx))
	job := getJob(t, c, id)
	assert.Equal(t, jobx.JobStatusPending, job.Status)
	assert.True(t, strings.Contains(job.Error, "kaboom"))
}

type brokenStore struct {
	jobx.Store
}

func (brokenStore) Dequeue(context.Context) (*jobx.Job, error) {
	return nil, errors.New("connection refused")
}

func TestPoller_DequeueErrorIsSwallowed(t *testing.T) {
	obs := &countingObserver{}
	p := jobx.NewPoller(brokenStore{}, jobx.WithObserver(obs))
	p.SetHandler(func(ctx context.Context, job *jobx.Job) (json.RawMessage, error) { return nil, nil })

	assert.False(t, p.PollOnce(context.Background()))
	assert.EqualValues(t, 1, obs.pollErrors.Load())
}

func TestPoller_RunTwice(t *testing.T) {
	p := jobx.NewPoller(jobxmemory.NewMemoryStore(), jobx.WithPollInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = p.Run(ctx) }()
	require.Eventually(t, p.Running, time.Second, 5*time.Millisecond)

	err := p.Run(ctx)
	assert.Equal(t, "JOBX_ALREADY_RUNNING", errx.CodeOf(err))

	cancel()
	assert.Eventually(t, func() bool { return !p.Running() }, time.Second, 5*time.Millisecond)
}

func TestClient_EnqueueValidation(t *testing.T) {
	c, _ := newClient(t, jobx.WithDefaultMaxRetries(5))
	ctx := context.Background()

	_, err := c.Enqueue(ctx, jobx.NewJob{Type: "  "})
	assert.Equal(t, "JOBX_INVALID_JOB", errx.CodeOf(err))

	_, err = c.Enqueue(ctx, jobx.NewJob{Type: "t", Payload: json.RawMessage(`{not json`)})
	assert.Equal(t, "JOBX_INVALID_PAYLOAD", errx.CodeOf(err))

	id, err := c.Enqueue(ctx, jobx.NewJob{Type: "t"})
	require.NoError(t, err)
	job := getJob(t, c, id)
	assert.Equal(t, 5, job.MaxRetries)
	assert.Equal(t, 0, job.Attempts)
	assert.JSONEq(t, `{}`, string(job.Payload))
}

func TestClient_List(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, jobx.NewJob{Type: "t", UserID: "u1"})
	require.NoError(t, err)

	jobs, err := c.List(ctx, jobx.ListFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	_, err = c.List(ctx, jobx.ListFilter{Status: "bogus"})
	assert.Equal(t, "JOBX_INVALID_LIST_FILTER", errx.CodeOf(err))

	plain := jobx.NewClient(brokenStore{})
	_, err = plain.List(ctx, jobx.ListFilter{})
	assert.Equal(t, "JOBX_INSPECT_UNSUPPORTED", errx.CodeOf(err))
}

func TestJob_Decode(t *testing.T) {
	job := &jobx.Job{ID: "j1", Type: "t", Payload: json.RawMessage(`{"a":1}`)}
	var v struct{ A int }
	require.NoError(t, job.Decode(&v))
	assert.Equal(t, 1, v.A)

	job.Payload = json.RawMessage(`[]`)
	assert.Equal(t, "JOBX_INVALID_PAYLOAD", errx.CodeOf(job.Decode(&v)))
}
