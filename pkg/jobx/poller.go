package jobx

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ryan12324/openassistant/pkg/logx"
)

// Poller is a cooperative single-flight loop: at most one dequeue+handle
// cycle runs at a time in a process. Cycles are triggered by a fallback timer
// and by debounced nudges fired after every enqueue.
type Poller struct {
	store Store
	opts  Options

	handlerMu sync.RWMutex
	handler   HandlerFunc

	busy    atomic.Bool
	running atomic.Bool

	wake     chan struct{}
	nudgeMu  sync.Mutex
	nudgeTmr *time.Timer
}

// NewPoller creates a poller over store. It does nothing until Run is called.
func NewPoller(store Store, options ...Option) *Poller {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Poller{
		store: store,
		opts:  opts,
		wake:  make(chan struct{}, 1),
	}
}

// SetHandler installs the function that processes claimed jobs.
func (p *Poller) SetHandler(h HandlerFunc) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.handler = h
}

func (p *Poller) currentHandler() HandlerFunc {
	p.handlerMu.RLock()
	defer p.handlerMu.RUnlock()
	return p.handler
}

// Nudge requests a poll soon. Repeated calls within the nudge delay collapse
// into one wake-up. It never blocks.
func (p *Poller) Nudge() {
	p.nudgeMu.Lock()
	defer p.nudgeMu.Unlock()

	if p.nudgeTmr != nil {
		p.nudgeTmr.Stop()
	}
	p.nudgeTmr = time.AfterFunc(p.opts.NudgeDelay, p.signal)
}

func (p *Poller) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) stopNudge() {
	p.nudgeMu.Lock()
	defer p.nudgeMu.Unlock()
	if p.nudgeTmr != nil {
		p.nudgeTmr.Stop()
		p.nudgeTmr = nil
	}
}

// Running reports whether Run is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Run drives the loop until ctx is cancelled. A job in flight when ctx is
// cancelled is abandoned in the processing state.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return jobxErrors.New(ErrAlreadyRunning)
	}
	defer p.running.Store(false)
	defer p.stopNudge()

	logx.WithFields(logx.Fields{
		"component":     "jobx.poller",
		"poll_interval": p.opts.PollInterval.String(),
	}).Info("poller started")

	fallback := time.NewTimer(p.opts.PollInterval)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			logx.WithField("component", "jobx.poller").Info("poller stopped")
			return nil
		case <-fallback.C:
		case <-p.wake:
		}

		claimed := p.PollOnce(ctx)

		if !fallback.Stop() {
			select {
			case <-fallback.C:
			default:
			}
		}
		fallback.Reset(p.opts.PollInterval)

		if claimed {
			p.Nudge()
		}
	}
}

// PollOnce runs a single cycle and reports whether a job was claimed. It
// returns false without touching the store when another cycle is in flight
// or no handler is installed.
func (p *Poller) PollOnce(ctx context.Context) bool {
	if !p.busy.CompareAndSwap(false, true) {
		return false
	}
	defer p.busy.Store(false)

	handler := p.currentHandler()
	if handler == nil {
		return false
	}

	job, err := p.store.Dequeue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.opts.Observer.PollError()
			logx.WithError(err).WithField("component", "jobx.poller").Warn("dequeue failed, falling back to timer")
		}
		return false
	}
	if job == nil {
		return false
	}

	p.process(ctx, job, handler)
	return true
}

func (p *Poller) process(ctx context.Context, job *Job, handler HandlerFunc) {
	log := logx.WithFields(logx.Fields{
		"component": "jobx.poller",
		"job_id":    job.ID,
		"type":      job.Type,
		"attempt":   job.Attempts,
	})

	start := time.Now()
	result, err := invoke(ctx, handler, job)

	if err == nil {
		if cerr := p.store.Complete(ctx, job.ID, result); cerr != nil {
			log.WithError(cerr).Error("failed to mark job completed")
			return
		}
		p.opts.Observer.JobCompleted(job.Type, time.Since(start))
		log.Debug("job completed")
		return
	}

	retried, ferr := p.store.Fail(ctx, job.ID, err.Error())
	if ferr != nil {
		log.WithError(ferr).Error("failed to mark job failed")
		return
	}

	if retried {
		p.opts.Observer.JobRetried(job.Type)
		log.WithError(err).Warnf("job failed, re-queued (%d/%d)", job.Attempts, job.MaxRetries)
		return
	}
	p.opts.Observer.JobDeadLettered(job.Type)
	log.WithError(err).Errorf("job failed permanently after %d attempts", job.Attempts)
}

func invoke(ctx context.Context, handler HandlerFunc, job *Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithFields(logx.Fields{
				"component": "jobx.poller",
				"job_id":    job.ID,
				"stack":     string(debug.Stack()),
			}).Error("job handler panicked")
			err = jobxErrors.NewWithCause(ErrHandlerPanic, fmt.Errorf("%v", r))
		}
	}()

	if len(job.Payload) > 0 && !json.Valid(job.Payload) {
		return nil, jobxErrors.New(ErrInvalidPayload).WithDetail("job_id", job.ID)
	}
	return handler(ctx, job)
}
