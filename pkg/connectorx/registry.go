package connectorx

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ryan12324/openassistant/pkg/kernel"
	"github.com/ryan12324/openassistant/pkg/logx"
)

type instanceKey struct {
	scope       Scope
	userID      kernel.UserID
	connectorID string
}

func globalKey(id string) instanceKey { return instanceKey{scope: ScopeGlobal, connectorID: id} }

func userKey(userID kernel.UserID, id string) instanceKey {
	return instanceKey{scope: ScopeUser, userID: userID, connectorID: id}
}

// Registry owns every connector instance of the process, global and per
// user, plus the per-user hydration records. Build one with NewRegistry and
// pass it where it is needed.
type Registry struct {
	catalog        *Catalog
	factories      map[string]Factory
	store          ConfigStore
	observer       Observer
	connectTimeout time.Duration

	mu        sync.RWMutex
	instances map[instanceKey]Instance
	hydrated  map[kernel.UserID]map[string]struct{}

	userLocksMu sync.Mutex
	userLocks   map[kernel.UserID]*userLock
}

// userLock serializes hydration and invalidation for one user. refs counts
// holders and waiters; the entry is dropped when it reaches zero.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithObserver installs metrics hooks.
func WithObserver(obs Observer) RegistryOption {
	return func(r *Registry) {
		if obs != nil {
			r.observer = obs
		}
	}
}

// WithConnectTimeout bounds each Connect issued during hydration.
func WithConnectTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.connectTimeout = d
	}
}

// NewRegistry creates an empty registry. factories maps definition ids to constructors.
func NewRegistry(catalog *Catalog, factories map[string]Factory, store ConfigStore, opts ...RegistryOption) *Registry {
	r := &Registry{
		catalog:   catalog,
		factories: make(map[string]Factory, len(factories)),
		store:     store,
		observer:  nopObserver{},
		instances: make(map[instanceKey]Instance),
		hydrated:  make(map[kernel.UserID]map[string]struct{}),
		userLocks: make(map[kernel.UserID]*userLock),
	}
	for id, f := range factories {
		r.factories[id] = f
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) AllDefinitions() []Definition { return r.catalog.All() }

func (r *Registry) Definition(id string) (Definition, bool) { return r.catalog.Get(id) }

func (r *Registry) ByCategory(category string) []Definition { return r.catalog.ByCategory(category) }

// CreateInstance builds the global instance for id without connecting it.
// An existing global instance for id is replaced and disconnected.
func (r *Registry) CreateInstance(ctx context.Context, id string, cfg Config) (Instance, error) {
	return r.create(ctx, globalKey(id), cfg)
}

// CreateUserInstance builds userID's instance for id without connecting it.
// It coexists with any global instance of the same definition.
func (r *Registry) CreateUserInstance(ctx context.Context, userID kernel.UserID, id string, cfg Config) (Instance, error) {
	return r.create(ctx, userKey(userID, id), cfg)
}

func (r *Registry) create(ctx context.Context, key instanceKey, cfg Config) (Instance, error) {
	def, ok := r.catalog.Get(key.connectorID)
	if !ok {
		return nil, connectorErrors.NewWithMessage(ErrNotFound,
			fmt.Sprintf("Connector definition %q not found", key.connectorID)).
			WithDetail("id", key.connectorID)
	}

	factory, ok := r.factories[key.connectorID]
	if !ok {
		return nil, connectorErrors.New(ErrNoFactory).WithDetail("id", key.connectorID)
	}

	if cfg == nil {
		cfg = Config{}
	}
	inst, err := factory(InstanceSpec{
		Definition: def,
		Config:     cfg,
		Scope:      key.scope,
		UserID:     key.userID,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	replaced := r.instances[key]
	r.instances[key] = inst
	r.mu.Unlock()

	if replaced != nil {
		r.disconnect(ctx, key, replaced)
	}
	return inst, nil
}

// Instance returns the global instance for id.
func (r *Registry) Instance(id string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[globalKey(id)]
	return inst, ok
}

// UserInstance returns userID's own instance for id, ignoring global ones.
func (r *Registry) UserInstance(userID kernel.UserID, id string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[userKey(userID, id)]
	return inst, ok
}

// ActiveInstances returns connected global instances sorted by definition id.
func (r *Registry) ActiveInstances() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := make(map[string]Instance)
	for k, inst := range r.instances {
		if k.scope == ScopeGlobal && inst.Status() == StatusConnected {
			byID[k.connectorID] = inst
		}
	}
	return sortedByID(byID)
}

// ActiveInstancesForUser returns the user's connected instances together with
// connected global ones, at most one per definition id. When both scopes are
// connected for the same id the user's instance wins.
func (r *Registry) ActiveInstancesForUser(userID kernel.UserID) []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := make(map[string]Instance)
	for k, inst := range r.instances {
		if inst.Status() != StatusConnected {
			continue
		}
		switch {
		case k.scope == ScopeUser && k.userID == userID:
			byID[k.connectorID] = inst
		case k.scope == ScopeGlobal:
			if _, taken := byID[k.connectorID]; !taken {
				byID[k.connectorID] = inst
			}
		}
	}
	return sortedByID(byID)
}

func sortedByID(byID map[string]Instance) []Instance {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

// IsHydrated reports whether userID has a hydration record.
func (r *Registry) IsHydrated(userID kernel.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hydrated[userID]
	return ok
}

// InvalidateUser drops userID's hydration record and disconnects all of the
// user's instances so that the next hydration reads fresh configuration.
func (r *Registry) InvalidateUser(ctx context.Context, userID kernel.UserID) {
	unlock := r.lockUser(userID)
	defer unlock()

	r.mu.Lock()
	delete(r.hydrated, userID)
	victims := make(map[instanceKey]Instance)
	for k, inst := range r.instances {
		if k.scope == ScopeUser && k.userID == userID {
			victims[k] = inst
			delete(r.instances, k)
		}
	}
	r.mu.Unlock()

	for k, inst := range victims {
		r.disconnect(ctx, k, inst)
	}

	logx.WithFields(logx.Fields{
		"component":    "connectorx",
		"user_id":      userID,
		"disconnected": len(victims),
	}).Debug("user integrations invalidated")
}

// DisconnectAll disconnects and forgets every instance. Each disconnect is
// attempted even when others fail.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	victims := r.instances
	r.instances = make(map[instanceKey]Instance)
	r.hydrated = make(map[kernel.UserID]map[string]struct{})
	r.mu.Unlock()

	for k, inst := range victims {
		r.disconnect(ctx, k, inst)
	}

	logx.WithFields(logx.Fields{
		"component": "connectorx",
		"count":     len(victims),
	}).Info("all connector instances disconnected")
}

func (r *Registry) disconnect(ctx context.Context, key instanceKey, inst Instance) {
	defer func() {
		if rec := recover(); rec != nil {
			logx.WithFields(logx.Fields{
				"component": "connectorx",
				"connector": key.connectorID,
				"scope":     key.scope,
				"user_id":   key.userID,
			}).Errorf("disconnect panicked: %v", rec)
		}
	}()

	if err := inst.Disconnect(ctx); err != nil {
		logx.WithError(err).WithFields(logx.Fields{
			"component": "connectorx",
			"connector": key.connectorID,
			"scope":     key.scope,
			"user_id":   key.userID,
		}).Warn("connector disconnect failed")
	}
}

func (r *Registry) lockUser(userID kernel.UserID) (unlock func()) {
	r.userLocksMu.Lock()
	l, ok := r.userLocks[userID]
	if !ok {
		l = &userLock{}
		r.userLocks[userID] = l
	}
	l.refs++
	r.userLocksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		r.userLocksMu.Lock()
		defer r.userLocksMu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(r.userLocks, userID)
		}
	}
}
