package model

import (
	"time"
)

// Entity is the anonymous identity record that components attach to. All
// component types share one global entity ID space.
type Entity struct {
	ID        int64      `json:"id"                  gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time  `json:"createdAt"           gorm:"not null"`
	UpdatedAt time.Time  `json:"updatedAt"           gorm:"not null"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" gorm:"index"`
	Notes     *string    `json:"notes,omitempty"`
}

func (Entity) TableName() string { return "entities" }

// Deleted reports whether the entity has been soft-deleted.
func (e *Entity) Deleted() bool { return e.DeletedAt != nil }

// EntityContentType records that an entity carries a component of the given type.
type EntityContentType struct {
	EntityID    int64  `json:"-"           gorm:"primaryKey;autoIncrement:false"`
	ContentType string `json:"contentType" gorm:"primaryKey;size:100"`
}

func (EntityContentType) TableName() string { return "entity_content_types" }

// EntityAttr is the entity ↔ attribute junction.
type EntityAttr struct {
	EntityID    int64 `gorm:"primaryKey;autoIncrement:false"`
	AttributeID int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (EntityAttr) TableName() string { return "entity_attrs" }

// EntityDomain is the entity ↔ domain junction. The schema carries a
// check constraint entity_id <> domain_id so a domain can never contain
// itself directly; transitive containment is rejected by the DAG check.
type EntityDomain struct {
	EntityID int64 `gorm:"primaryKey;autoIncrement:false"`
	DomainID int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (EntityDomain) TableName() string { return "entity_domains" }

// Attribute is an interned (domain, key, value) triple. Identical triples
// always resolve to the same row.
type Attribute struct {
	ID       int64  `json:"id"     gorm:"primaryKey;autoIncrement"`
	DomainID int64  `json:"-"      gorm:"not null;uniqueIndex:ux_attributes_triple,priority:1"`
	Key      string `json:"key"    gorm:"size:100;not null;uniqueIndex:ux_attributes_triple,priority:2"`
	Value    string `json:"value"  gorm:"size:255;not null;uniqueIndex:ux_attributes_triple,priority:3"`
}

func (Attribute) TableName() string { return "attributes" }

// Domain is a set of entities that is itself an entity (a component).
// Domains may contain other domains, forming a DAG.
type Domain struct {
	ComponentBase
	Slug string `json:"slug" gorm:"uniqueIndex;size:100;not null"`
}

func (Domain) TableName() string { return "domains" }

// DomainComponentType is the content type under which Domain registers.
const DomainComponentType = "ontology.domain"

func (Domain) ComponentType() string { return DomainComponentType }

// Permission is a host-supplied authorization token. The engine reads the
// catalog but never mints rows of its own.
type Permission struct {
	ID          int64  `json:"id"          gorm:"primaryKey;autoIncrement"`
	AppLabel    string `json:"appLabel"    gorm:"size:100;not null;uniqueIndex:ux_permissions_codename,priority:1"`
	Codename    string `json:"codename"    gorm:"size:100;not null;uniqueIndex:ux_permissions_codename,priority:2"`
	ContentType string `json:"contentType" gorm:"size:100;not null;index"`
}

func (Permission) TableName() string { return "permissions" }

// Policy declares "entities in Domain carrying all of SourceAttrs may
// exercise Permissions on entities in Domain carrying all of TargetAttrs".
// An empty attribute set means every live member of the domain.
type Policy struct {
	ID        int64      `json:"id"                  gorm:"primaryKey;autoIncrement"`
	DomainID  int64      `json:"-"                   gorm:"not null;uniqueIndex:ux_policies_domain_label,priority:1"`
	Label     string     `json:"label"               gorm:"size:100;not null;uniqueIndex:ux_policies_domain_label,priority:2"`
	Disabled  bool       `json:"disabled"            gorm:"not null"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"           gorm:"not null"`
	UpdatedAt time.Time  `json:"updatedAt"           gorm:"not null"`
}

func (Policy) TableName() string { return "policies" }

// Expired reports whether the policy's expiration has passed at the given time.
func (p *Policy) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// PolicySourceAttr is the policy ↔ source attribute junction.
type PolicySourceAttr struct {
	PolicyID    int64 `gorm:"primaryKey;autoIncrement:false"`
	AttributeID int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (PolicySourceAttr) TableName() string { return "policy_source_attrs" }

// PolicyTargetAttr is the policy ↔ target attribute junction.
type PolicyTargetAttr struct {
	PolicyID    int64 `gorm:"primaryKey;autoIncrement:false"`
	AttributeID int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (PolicyTargetAttr) TableName() string { return "policy_target_attrs" }

// PolicyPermission is the policy ↔ allow-permission junction.
type PolicyPermission struct {
	PolicyID     int64 `gorm:"primaryKey;autoIncrement:false"`
	PermissionID int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (PolicyPermission) TableName() string { return "policy_permissions" }

// Entitlement is a materialized (source, permission, target, policy) fact
// derived from a Policy. Maintained by the propagator; never edited by users.
type Entitlement struct {
	ID           int64 `json:"id"         gorm:"primaryKey;autoIncrement"`
	SourceID     int64 `json:"sourceId"   gorm:"not null;uniqueIndex:ux_entitlements_tuple,priority:1;index:ix_entitlements_lookup,priority:1"`
	PermissionID int64 `json:"permission" gorm:"not null;uniqueIndex:ux_entitlements_tuple,priority:2;index:ix_entitlements_lookup,priority:2"`
	TargetID     int64 `json:"targetId"   gorm:"not null;uniqueIndex:ux_entitlements_tuple,priority:3;index:ix_entitlements_lookup,priority:3"`
	PolicyID     int64 `json:"policyId"   gorm:"not null;uniqueIndex:ux_entitlements_tuple,priority:4;index"`
}

func (Entitlement) TableName() string { return "entitlements" }
