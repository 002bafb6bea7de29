// Package service holds the engine's background jobs.
package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/ontology/registry/store"
	"github.com/robfig/cron/v3"
)

// ExpiryService periodically disables policies whose expiration has passed.
// HasPerm already filters expired policies at query time; the sweep records
// the expiry in the disabled flag and leaves the entitlement rows in place.
type ExpiryService struct {
	store     registrystore.Store
	schedule  string
	batchSize int
	cron      *cron.Cron
}

// NewExpiryService creates a sweeper on the given cron schedule.
func NewExpiryService(store registrystore.Store, schedule string, batchSize int) *ExpiryService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ExpiryService{store: store, schedule: schedule, batchSize: batchSize}
}

// Start schedules the sweep. Returns after registration; the sweep stops when
// ctx is cancelled.
func (e *ExpiryService) Start(ctx context.Context) error {
	if e.schedule == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(e.schedule, func() { e.Sweep(ctx) }); err != nil {
		return err
	}
	c.Start()
	e.cron = c
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}

// Sweep disables one batch of expired policies.
func (e *ExpiryService) Sweep(ctx context.Context) {
	policies, err := e.store.FindExpiredPolicies(ctx, time.Now(), e.batchSize)
	if err != nil {
		log.Error("Expiry sweep: find failed", "err", err)
		return
	}
	if len(policies) == 0 {
		return
	}
	disabled := 0
	for _, policy := range policies {
		if err := e.store.SetPolicyDisabled(ctx, policy.ID, true); err != nil {
			log.Error("Expiry sweep: disable failed", "policy", policy.ID, "err", err)
			continue
		}
		disabled++
	}
	log.Info("Expiry sweep: completed", "expired", len(policies), "disabled", disabled)
}
