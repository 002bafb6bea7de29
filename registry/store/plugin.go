package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chirino/ontology/model"
)

// View selects which rows a lookup sees. The default view hides soft-deleted
// rows; the archive view shows everything.
type View int

const (
	DefaultView View = iota
	ArchiveView
)

// AttrSpec is a parsed "key:value" attribute reference.
type AttrSpec struct {
	Key   string
	Value string
}

// ParseAttrSpec parses a "key:value" attribute string. The value may itself
// contain colons.
func ParseAttrSpec(s string) (AttrSpec, error) {
	key, value, ok := strings.Cut(s, ":")
	if !ok || key == "" {
		return AttrSpec{}, &ValidationError{Detail: fmt.Sprintf("invalid attribute %q; expected key:value", s)}
	}
	return AttrSpec{Key: key, Value: value}, nil
}

// PermSpec is a parsed "app_label.codename" permission reference.
type PermSpec struct {
	AppLabel string
	Codename string
}

// ParsePermSpec parses an "app_label.codename" permission string.
func ParsePermSpec(s string) (PermSpec, error) {
	appLabel, codename, ok := strings.Cut(s, ".")
	if !ok || appLabel == "" || codename == "" {
		return PermSpec{}, &ValidationError{Detail: fmt.Sprintf("invalid permission %q; expected app_label.codename", s)}
	}
	return PermSpec{AppLabel: appLabel, Codename: codename}, nil
}

// Grant is one (permission, target) pair a subject is entitled to.
type Grant struct {
	Permission model.Permission `json:"permission"`
	TargetID   int64            `json:"targetId"`
}

// Store is the primary data access interface for the authorization engine.
// Every mutation runs its propagator delta inside the same transaction as
// the mutation itself, so a successful return means the entitlement index
// already reflects the change.
type Store interface {
	// Entities
	GetEntity(ctx context.Context, id int64, view View) (*model.Entity, error)
	SetEntityNotes(ctx context.Context, id int64, notes *string) error
	EntityContentTypes(ctx context.Context, id int64) ([]string, error)
	// DeleteEntity soft-deletes (hard=false) or hard-deletes the entity and
	// all its components. Soft delete is idempotent.
	DeleteEntity(ctx context.Context, id int64, hard bool) error
	UndeleteEntity(ctx context.Context, id int64) error
	// Bulk forms apply the single-row semantics to every id in one transaction.
	BulkDeleteEntities(ctx context.Context, ids []int64, hard bool) error
	BulkUndeleteEntities(ctx context.Context, ids []int64) error

	// Components
	// CreateComponent inserts the component row, allocating a fresh entity
	// when entityID is nil, and records the component's content type. Fails
	// with ConflictError if the entity already carries one of this type.
	CreateComponent(ctx context.Context, comp model.Component, entityID *int64) error
	GetComponent(ctx context.Context, entityID int64, componentType string, view View) (model.Component, error)
	// Components returns the live components of an entity keyed by type.
	Components(ctx context.Context, entityID int64) (map[string]model.Component, error)
	// DeleteComponent implements the (hard, isolated) matrix: isolated
	// operates on just this component, otherwise the delete cascades to the
	// owning entity. Hard-deleting the last component destroys the entity.
	DeleteComponent(ctx context.Context, entityID int64, componentType string, hard, isolated bool) error
	UndeleteComponent(ctx context.Context, entityID int64, componentType string) error

	// Attributes
	// InternAttribute is idempotent: identical triples yield the same row.
	InternAttribute(ctx context.Context, domainID int64, key, value string) (*model.Attribute, error)
	// AddAttr interns the attribute and attaches it to the entity. The
	// entity must already be a member of the attribute's domain.
	AddAttr(ctx context.Context, entityID, domainID int64, key, value string) (*model.Attribute, error)
	HasAttr(ctx context.Context, entityID, domainID int64, key, value string) (bool, error)
	RemoveAttr(ctx context.Context, entityID, domainID int64, key, value string) error
	AttrsWithKey(ctx context.Context, entityID, domainID int64, key string) ([]model.Attribute, error)

	// Domains
	CreateDomain(ctx context.Context, slug string) (*model.Domain, error)
	GetDomain(ctx context.Context, slug string) (*model.Domain, error)
	// AddToDomain adds an entity to a domain, rejecting (or, in lenient
	// mode, skipping) additions that would create a domain cycle.
	AddToDomain(ctx context.Context, entityID, domainID int64) error
	// RemoveFromDomain removes the membership and every attribute of the
	// entity scoped to that domain.
	RemoveFromDomain(ctx context.Context, entityID, domainID int64) error
	IsInDomain(ctx context.Context, entityID, domainID int64, recursive bool) (bool, error)
	DomainEntities(ctx context.Context, domainID int64) ([]int64, error)
	Subdomains(ctx context.Context, domainID int64) ([]model.Domain, error)
	Superdomains(ctx context.Context, domainID int64) ([]model.Domain, error)
	// HasSubdomainRecursive is the reflexive transitive closure test.
	HasSubdomainRecursive(ctx context.Context, domainID, candidateID int64) (bool, error)

	// Permission catalog (host-supplied)
	EnsurePermission(ctx context.Context, appLabel, codename, contentType string) (*model.Permission, error)
	LookupPermission(ctx context.Context, perm string) (*model.Permission, error)

	// Policies
	CreatePolicy(ctx context.Context, domainID int64, label string, sourceAttrs, perms, targetAttrs []string) (*model.Policy, error)
	GetPolicy(ctx context.Context, domainID int64, label string) (*model.Policy, error)
	SetPolicyDisabled(ctx context.Context, policyID int64, disabled bool) error
	SetPolicyExpiry(ctx context.Context, policyID int64, expiresAt *time.Time) error
	AddPolicySourceAttrs(ctx context.Context, policyID int64, attrs []string) error
	RemovePolicySourceAttrs(ctx context.Context, policyID int64, attrs []string) error
	AddPolicyTargetAttrs(ctx context.Context, policyID int64, attrs []string) error
	RemovePolicyTargetAttrs(ctx context.Context, policyID int64, attrs []string) error
	AddPolicyPermissions(ctx context.Context, policyID int64, perms []string) error
	RemovePolicyPermissions(ctx context.Context, policyID int64, perms []string) error
	// SavePolicy sweeps orphaned entitlements and re-materializes the rest,
	// as after editing a policy in place.
	SavePolicy(ctx context.Context, policyID int64) error
	PolicySources(ctx context.Context, policyID int64) ([]int64, error)
	PolicyTargets(ctx context.Context, policyID int64) ([]int64, error)
	// ResetEntitlements deletes and rebuilds the named policies'
	// entitlements. Surgery; each policy is reset in its own transaction.
	ResetEntitlements(ctx context.Context, policyIDs ...int64) error
	FindExpiredPolicies(ctx context.Context, cutoff time.Time, limit int) ([]model.Policy, error)

	// Authorization
	HasPerm(ctx context.Context, sourceEntityID int64, perm string, targetEntityID int64) (bool, error)
	EntitlementsFor(ctx context.Context, sourceEntityID int64) ([]Grant, error)
	ListEntitlements(ctx context.Context, policyID int64) ([]model.Entitlement, error)

	Close() error
}

// Loader creates a Store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown datastore %q; valid: %v", name, Names())
}
