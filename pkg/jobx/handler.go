package jobx

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// HandlerFunc processes a claimed job. A nil error completes the job with the
// returned result; any error fails it, which may re-queue it.
type HandlerFunc func(ctx context.Context, job *Job) (json.RawMessage, error)

// Mux dispatches jobs to handlers by type.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for jobType, replacing any previous handler.
func (m *Mux) Handle(jobType string, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[jobType] = h
}

// Len returns the number of registered job types.
func (m *Mux) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

// Types lists the registered job types in sorted order.
func (m *Mux) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Process is a HandlerFunc routing job to the handler registered for its type.
func (m *Mux) Process(ctx context.Context, job *Job) (json.RawMessage, error) {
	m.mu.RLock()
	h, ok := m.handlers[job.Type]
	m.mu.RUnlock()

	if !ok {
		return nil, jobxErrors.New(ErrNoHandler).WithDetail("type", job.Type)
	}
	return h(ctx, job)
}
