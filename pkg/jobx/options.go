package jobx

import "time"

// Options configures the client and its poller.
type Options struct {
	PollInterval      time.Duration
	NudgeDelay        time.Duration
	DefaultMaxRetries int
	Observer          Observer
}

func defaultOptions() Options {
	return Options{
		PollInterval:      2 * time.Second,
		NudgeDelay:        10 * time.Millisecond,
		DefaultMaxRetries: 3,
		Observer:          nopObserver{},
	}
}

// Option is a functional option for configuring the client.
type Option func(*Options)

// WithPollInterval sets the fallback timer used when no nudge arrives.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// WithNudgeDelay sets the debounce window for enqueue nudges.
func WithNudgeDelay(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.NudgeDelay = d
		}
	}
}

// WithDefaultMaxRetries sets the max retries applied to jobs enqueued without one.
func WithDefaultMaxRetries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.DefaultMaxRetries = n
		}
	}
}

// WithObserver installs metrics hooks.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		if obs != nil {
			o.Observer = obs
		}
	}
}

// Observer receives job lifecycle events, typically to feed metrics.
type Observer interface {
	JobEnqueued(jobType string)
	JobCompleted(jobType string, took time.Duration)
	JobRetried(jobType string)
	JobDeadLettered(jobType string)
	PollError()
}

type nopObserver struct{}

func (nopObserver) JobEnqueued(string)                 {}
func (nopObserver) JobCompleted(string, time.Duration) {}
func (nopObserver) JobRetried(string)                  {}
func (nopObserver) JobDeadLettered(string)             {}
func (nopObserver) PollError()                         {}
