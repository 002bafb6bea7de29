// Package metrics wraps a Store so every operation records its latency.
package metrics

import (
	"context"
	"time"

	coremetrics "github.com/chirino/ontology/metrics"
	"github.com/chirino/ontology/model"
	"github.com/chirino/ontology/registry/store"
)

// Wrap returns a Store that records StoreLatency for every operation.
func Wrap(inner store.Store) store.Store {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.Store
}

func observe(op string, start time.Time) {
	if coremetrics.StoreLatency != nil {
		coremetrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) GetEntity(ctx context.Context, id int64, view store.View) (*model.Entity, error) {
	defer observe("get_entity", time.Now())
	return m.inner.GetEntity(ctx, id, view)
}

func (m *metricsStore) SetEntityNotes(ctx context.Context, id int64, notes *string) error {
	defer observe("set_entity_notes", time.Now())
	return m.inner.SetEntityNotes(ctx, id, notes)
}

func (m *metricsStore) EntityContentTypes(ctx context.Context, id int64) ([]string, error) {
	defer observe("entity_content_types", time.Now())
	return m.inner.EntityContentTypes(ctx, id)
}

func (m *metricsStore) DeleteEntity(ctx context.Context, id int64, hard bool) error {
	defer observe("delete_entity", time.Now())
	return m.inner.DeleteEntity(ctx, id, hard)
}

func (m *metricsStore) UndeleteEntity(ctx context.Context, id int64) error {
	defer observe("undelete_entity", time.Now())
	return m.inner.UndeleteEntity(ctx, id)
}

func (m *metricsStore) BulkDeleteEntities(ctx context.Context, ids []int64, hard bool) error {
	defer observe("bulk_delete_entities", time.Now())
	return m.inner.BulkDeleteEntities(ctx, ids, hard)
}

func (m *metricsStore) BulkUndeleteEntities(ctx context.Context, ids []int64) error {
	defer observe("bulk_undelete_entities", time.Now())
	return m.inner.BulkUndeleteEntities(ctx, ids)
}

func (m *metricsStore) CreateComponent(ctx context.Context, comp model.Component, entityID *int64) error {
	defer observe("create_component", time.Now())
	return m.inner.CreateComponent(ctx, comp, entityID)
}

func (m *metricsStore) GetComponent(ctx context.Context, entityID int64, componentType string, view store.View) (model.Component, error) {
	defer observe("get_component", time.Now())
	return m.inner.GetComponent(ctx, entityID, componentType, view)
}

func (m *metricsStore) Components(ctx context.Context, entityID int64) (map[string]model.Component, error) {
	defer observe("components", time.Now())
	return m.inner.Components(ctx, entityID)
}

func (m *metricsStore) DeleteComponent(ctx context.Context, entityID int64, componentType string, hard, isolated bool) error {
	defer observe("delete_component", time.Now())
	return m.inner.DeleteComponent(ctx, entityID, componentType, hard, isolated)
}

func (m *metricsStore) UndeleteComponent(ctx context.Context, entityID int64, componentType string) error {
	defer observe("undelete_component", time.Now())
	return m.inner.UndeleteComponent(ctx, entityID, componentType)
}

func (m *metricsStore) InternAttribute(ctx context.Context, domainID int64, key, value string) (*model.Attribute, error) {
	defer observe("intern_attribute", time.Now())
	return m.inner.InternAttribute(ctx, domainID, key, value)
}

func (m *metricsStore) AddAttr(ctx context.Context, entityID, domainID int64, key, value string) (*model.Attribute, error) {
	defer observe("add_attr", time.Now())
	return m.inner.AddAttr(ctx, entityID, domainID, key, value)
}

func (m *metricsStore) HasAttr(ctx context.Context, entityID, domainID int64, key, value string) (bool, error) {
	defer observe("has_attr", time.Now())
	return m.inner.HasAttr(ctx, entityID, domainID, key, value)
}

func (m *metricsStore) RemoveAttr(ctx context.Context, entityID, domainID int64, key, value string) error {
	defer observe("remove_attr", time.Now())
	return m.inner.RemoveAttr(ctx, entityID, domainID, key, value)
}

func (m *metricsStore) AttrsWithKey(ctx context.Context, entityID, domainID int64, key string) ([]model.Attribute, error) {
	defer observe("attrs_with_key", time.Now())
	return m.inner.AttrsWithKey(ctx, entityID, domainID, key)
}

func (m *metricsStore) CreateDomain(ctx context.Context, slug string) (*model.Domain, error) {
	defer observe("create_domain", time.Now())
	return m.inner.CreateDomain(ctx, slug)
}

func (m *metricsStore) GetDomain(ctx context.Context, slug string) (*model.Domain, error) {
	defer observe("get_domain", time.Now())
	return m.inner.GetDomain(ctx, slug)
}

func (m *metricsStore) AddToDomain(ctx context.Context, entityID, domainID int64) error {
	defer observe("add_to_domain", time.Now())
	return m.inner.AddToDomain(ctx, entityID, domainID)
}

func (m *metricsStore) RemoveFromDomain(ctx context.Context, entityID, domainID int64) error {
	defer observe("remove_from_domain", time.Now())
	return m.inner.RemoveFromDomain(ctx, entityID, domainID)
}

func (m *metricsStore) IsInDomain(ctx context.Context, entityID, domainID int64, recursive bool) (bool, error) {
	defer observe("is_in_domain", time.Now())
	return m.inner.IsInDomain(ctx, entityID, domainID, recursive)
}

func (m *metricsStore) DomainEntities(ctx context.Context, domainID int64) ([]int64, error) {
	defer observe("domain_entities", time.Now())
	return m.inner.DomainEntities(ctx, domainID)
}

func (m *metricsStore) Subdomains(ctx context.Context, domainID int64) ([]model.Domain, error) {
	defer observe("subdomains", time.Now())
	return m.inner.Subdomains(ctx, domainID)
}

func (m *metricsStore) Superdomains(ctx context.Context, domainID int64) ([]model.Domain, error) {
	defer observe("superdomains", time.Now())
	return m.inner.Superdomains(ctx, domainID)
}

func (m *metricsStore) HasSubdomainRecursive(ctx context.Context, domainID, candidateID int64) (bool, error) {
	defer observe("has_subdomain_recursive", time.Now())
	return m.inner.HasSubdomainRecursive(ctx, domainID, candidateID)
}

func (m *metricsStore) EnsurePermission(ctx context.Context, appLabel, codename, contentType string) (*model.Permission, error) {
	defer observe("ensure_permission", time.Now())
	return m.inner.EnsurePermission(ctx, appLabel, codename, contentType)
}

func (m *metricsStore) LookupPermission(ctx context.Context, perm string) (*model.Permission, error) {
	defer observe("lookup_permission", time.Now())
	return m.inner.LookupPermission(ctx, perm)
}

func (m *metricsStore) CreatePolicy(ctx context.Context, domainID int64, label string, sourceAttrs, perms, targetAttrs []string) (*model.Policy, error) {
	defer observe("create_policy", time.Now())
	return m.inner.CreatePolicy(ctx, domainID, label, sourceAttrs, perms, targetAttrs)
}

func (m *metricsStore) GetPolicy(ctx context.Context, domainID int64, label string) (*model.Policy, error) {
	defer observe("get_policy", time.Now())
	return m.inner.GetPolicy(ctx, domainID, label)
}

func (m *metricsStore) SetPolicyDisabled(ctx context.Context, policyID int64, disabled bool) error {
	defer observe("set_policy_disabled", time.Now())
	return m.inner.SetPolicyDisabled(ctx, policyID, disabled)
}

func (m *metricsStore) SetPolicyExpiry(ctx context.Context, policyID int64, expiresAt *time.Time) error {
	defer observe("set_policy_expiry", time.Now())
	return m.inner.SetPolicyExpiry(ctx, policyID, expiresAt)
}

func (m *metricsStore) AddPolicySourceAttrs(ctx context.Context, policyID int64, attrs []string) error {
	defer observe("add_policy_source_attrs", time.Now())
	return m.inner.AddPolicySourceAttrs(ctx, policyID, attrs)
}

func (m *metricsStore) RemovePolicySourceAttrs(ctx context.Context, policyID int64, attrs []string) error {
	defer observe("remove_policy_source_attrs", time.Now())
	return m.inner.RemovePolicySourceAttrs(ctx, policyID, attrs)
}

func (m *metricsStore) AddPolicyTargetAttrs(ctx context.Context, policyID int64, attrs []string) error {
	defer observe("add_policy_target_attrs", time.Now())
	return m.inner.AddPolicyTargetAttrs(ctx, policyID, attrs)
}

func (m *metricsStore) RemovePolicyTargetAttrs(ctx context.Context, policyID int64, attrs []string) error {
	defer observe("remove_policy_target_attrs", time.Now())
	return m.inner.RemovePolicyTargetAttrs(ctx, policyID, attrs)
}

func (m *metricsStore) AddPolicyPermissions(ctx context.Context, policyID int64, perms []string) error {
	defer observe("add_policy_permissions", time.Now())
	return m.inner.AddPolicyPermissions(ctx, policyID, perms)
}

func (m *metricsStore) RemovePolicyPermissions(ctx context.Context, policyID int64, perms []string) error {
	defer observe("remove_policy_permissions", time.Now())
	return m.inner.RemovePolicyPermissions(ctx, policyID, perms)
}

func (m *metricsStore) SavePolicy(ctx context.Context, policyID int64) error {
	defer observe("save_policy", time.Now())
	return m.inner.SavePolicy(ctx, policyID)
}

func (m *metricsStore) PolicySources(ctx context.Context, policyID int64) ([]int64, error) {
	defer observe("policy_sources", time.Now())
	return m.inner.PolicySources(ctx, policyID)
}

func (m *metricsStore) PolicyTargets(ctx context.Context, policyID int64) ([]int64, error) {
	defer observe("policy_targets", time.Now())
	return m.inner.PolicyTargets(ctx, policyID)
}

func (m *metricsStore) ResetEntitlements(ctx context.Context, policyIDs ...int64) error {
	defer observe("reset_entitlements", time.Now())
	return m.inner.ResetEntitlements(ctx, policyIDs...)
}

func (m *metricsStore) FindExpiredPolicies(ctx context.Context, cutoff time.Time, limit int) ([]model.Policy, error) {
	defer observe("find_expired_policies", time.Now())
	return m.inner.FindExpiredPolicies(ctx, cutoff, limit)
}

func (m *metricsStore) HasPerm(ctx context.Context, sourceEntityID int64, perm string, targetEntityID int64) (bool, error) {
	defer observe("has_perm", time.Now())
	return m.inner.HasPerm(ctx, sourceEntityID, perm, targetEntityID)
}

func (m *metricsStore) EntitlementsFor(ctx context.Context, sourceEntityID int64) ([]store.Grant, error) {
	defer observe("entitlements_for", time.Now())
	return m.inner.EntitlementsFor(ctx, sourceEntityID)
}

func (m *metricsStore) ListEntitlements(ctx context.Context, policyID int64) ([]model.Entitlement, error) {
	defer observe("list_entitlements", time.Now())
	return m.inner.ListEntitlements(ctx, policyID)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}
