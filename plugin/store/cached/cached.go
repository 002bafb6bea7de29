// Package cached wraps a Store so every mutation that can move an
// authorization decision invalidates the decision cache. Reads pass through
// untouched.
package cached

import (
	"context"
	"time"

	"github.com/chirino/ontology/model"
	registrycache "github.com/chirino/ontology/registry/cache"
	"github.com/chirino/ontology/registry/store"
)

// Wrap returns a Store that invalidates cache after each successful mutation.
func Wrap(inner store.Store, cache registrycache.DecisionCache) store.Store {
	return &cachedStore{Store: inner, cache: cache}
}

type cachedStore struct {
	store.Store
	cache registrycache.DecisionCache
}

func (c *cachedStore) bump(ctx context.Context, err error) error {
	if err == nil {
		c.cache.Invalidate(ctx)
	}
	return err
}

func (c *cachedStore) DeleteEntity(ctx context.Context, id int64, hard bool) error {
	return c.bump(ctx, c.Store.DeleteEntity(ctx, id, hard))
}

func (c *cachedStore) UndeleteEntity(ctx context.Context, id int64) error {
	return c.bump(ctx, c.Store.UndeleteEntity(ctx, id))
}

func (c *cachedStore) BulkDeleteEntities(ctx context.Context, ids []int64, hard bool) error {
	return c.bump(ctx, c.Store.BulkDeleteEntities(ctx, ids, hard))
}

func (c *cachedStore) BulkUndeleteEntities(ctx context.Context, ids []int64) error {
	return c.bump(ctx, c.Store.BulkUndeleteEntities(ctx, ids))
}

func (c *cachedStore) CreateComponent(ctx context.Context, comp model.Component, entityID *int64) error {
	return c.bump(ctx, c.Store.CreateComponent(ctx, comp, entityID))
}

func (c *cachedStore) DeleteComponent(ctx context.Context, entityID int64, componentType string, hard, isolated bool) error {
	return c.bump(ctx, c.Store.DeleteComponent(ctx, entityID, componentType, hard, isolated))
}

func (c *cachedStore) UndeleteComponent(ctx context.Context, entityID int64, componentType string) error {
	return c.bump(ctx, c.Store.UndeleteComponent(ctx, entityID, componentType))
}

func (c *cachedStore) AddAttr(ctx context.Context, entityID, domainID int64, key, value string) (*model.Attribute, error) {
	attr, err := c.Store.AddAttr(ctx, entityID, domainID, key, value)
	return attr, c.bump(ctx, err)
}

func (c *cachedStore) RemoveAttr(ctx context.Context, entityID, domainID int64, key, value string) error {
	return c.bump(ctx, c.Store.RemoveAttr(ctx, entityID, domainID, key, value))
}

func (c *cachedStore) AddToDomain(ctx context.Context, entityID, domainID int64) error {
	return c.bump(ctx, c.Store.AddToDomain(ctx, entityID, domainID))
}

func (c *cachedStore) RemoveFromDomain(ctx context.Context, entityID, domainID int64) error {
	return c.bump(ctx, c.Store.RemoveFromDomain(ctx, entityID, domainID))
}

func (c *cachedStore) CreatePolicy(ctx context.Context, domainID int64, label string, sourceAttrs, perms, targetAttrs []string) (*model.Policy, error) {
	policy, err := c.Store.CreatePolicy(ctx, domainID, label, sourceAttrs, perms, targetAttrs)
	return policy, c.bump(ctx, err)
}

func (c *cachedStore) SetPolicyDisabled(ctx context.Context, policyID int64, disabled bool) error {
	return c.bump(ctx, c.Store.SetPolicyDisabled(ctx, policyID, disabled))
}

func (c *cachedStore) SetPolicyExpiry(ctx context.Context, policyID int64, expiresAt *time.Time) error {
	return c.bump(ctx, c.Store.SetPolicyExpiry(ctx, policyID, expiresAt))
}

func (c *cachedStore) AddPolicySourceAttrs(ctx context.Context, policyID int64, attrs []string) error {
	return c.bump(ctx, c.Store.AddPolicySourceAttrs(ctx, policyID, attrs))
}

func (c *cachedStore) RemovePolicySourceAttrs(ctx context.Context, policyID int64, attrs []string) error {
	return c.bump(ctx, c.Store.RemovePolicySourceAttrs(ctx, policyID, attrs))
}

func (c *cachedStore) AddPolicyTargetAttrs(ctx context.Context, policyID int64, attrs []string) error {
	return c.bump(ctx, c.Store.AddPolicyTargetAttrs(ctx, policyID, attrs))
}

func (c *cachedStore) RemovePolicyTargetAttrs(ctx context.Context, policyID int64, attrs []string) error {
	return c.bump(ctx, c.Store.RemovePolicyTargetAttrs(ctx, policyID, attrs))
}

func (c *cachedStore) AddPolicyPermissions(ctx context.Context, policyID int64, perms []string) error {
	return c.bump(ctx, c.Store.AddPolicyPermissions(ctx, policyID, perms))
}

func (c *cachedStore) RemovePolicyPermissions(ctx context.Context, policyID int64, perms []string) error {
	return c.bump(ctx, c.Store.RemovePolicyPermissions(ctx, policyID, perms))
}

func (c *cachedStore) SavePolicy(ctx context.Context, policyID int64) error {
	return c.bump(ctx, c.Store.SavePolicy(ctx, policyID))
}

func (c *cachedStore) ResetEntitlements(ctx context.Context, policyIDs ...int64) error {
	return c.bump(ctx, c.Store.ResetEntitlements(ctx, policyIDs...))
}
