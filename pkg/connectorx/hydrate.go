package connectorx

import (
	"context"
	"errors"

	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/kernel"
	"github.com/ryan12324/openassistant/pkg/logx"
)

// HydrationFailure names a connector that could not be hydrated.
type HydrationFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// HydrationResult lists what one hydration call materialized. Both slices
// are empty, never nil, when nothing happened.
type HydrationResult struct {
	Loaded []string           `json:"loaded"`
	Failed []HydrationFailure `json:"failed"`
}

func emptyHydration() HydrationResult {
	return HydrationResult{Loaded: []string{}, Failed: []HydrationFailure{}}
}

// HydrateUserIntegrations materializes and connects userID's persisted
// connector configurations. Only the first call after creation or
// invalidation reads the store; later calls return an empty result.
// Per-connector failures are collected in Failed. A store failure yields an
// empty result and leaves the user unhydrated so the next call retries.
// Calls for the same user are serialized.
func (r *Registry) HydrateUserIntegrations(ctx context.Context, userID kernel.UserID) HydrationResult {
	log := logx.WithFields(logx.Fields{"component": "connectorx", "user_id": userID})

	unlock := r.lockUser(userID)
	defer unlock()

	if r.IsHydrated(userID) {
		r.observer.Hydrated(HydrationCached)
		return emptyHydration()
	}

	rows, err := r.store.ListEnabledForUser(ctx, userID)
	if err != nil {
		r.observer.Hydrated(HydrationError)
		log.WithError(err).Warn("failed to read connector configuration, continuing without user integrations")
		return emptyHydration()
	}

	result := emptyHydration()
	record := make(map[string]struct{})

	for _, row := range rows {
		if !row.Enabled || row.Config == nil || *row.Config == "" {
			continue
		}
		if _, ok := r.catalog.Get(row.SkillID); !ok {
			log.WithField("connector", row.SkillID).Debug("skipping unknown connector")
			continue
		}
		if inst, ok := r.UserInstance(userID, row.SkillID); ok && inst.Status() == StatusConnected {
			continue
		}

		if err := r.hydrateOne(ctx, userID, row); err != nil {
			log.WithError(err).WithField("connector", row.SkillID).Warn("connector hydration failed")
			result.Failed = append(result.Failed, HydrationFailure{ID: row.SkillID, Error: describe(err)})
			continue
		}
		result.Loaded = append(result.Loaded, row.SkillID)
		record[row.SkillID] = struct{}{}
	}

	r.mu.Lock()
	r.hydrated[userID] = record
	r.mu.Unlock()

	outcome := HydrationOK
	if len(result.Failed) > 0 {
		outcome = HydrationPartial
	}
	r.observer.Hydrated(outcome)

	log.WithFields(logx.Fields{
		"loaded": len(result.Loaded),
		"failed": len(result.Failed),
	}).Info("user integrations hydrated")
	return result
}

func (r *Registry) hydrateOne(ctx context.Context, userID kernel.UserID, row StoredConfig) error {
	cfg, err := ParseConfig(*row.Config)
	if err != nil {
		return err
	}

	inst, err := r.CreateUserInstance(ctx, userID, row.SkillID, cfg)
	if err != nil {
		return err
	}

	connectCtx := ctx
	if r.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, r.connectTimeout)
		defer cancel()
	}

	err = inst.Connect(connectCtx)
	r.observer.Connected(row.SkillID, err)
	return err
}

// describe returns the message of err's cause when it wraps one.
func describe(err error) string {
	var e *errx.Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
