package model

// Component is a typed record attached to exactly one entity. Host
// applications define component types as GORM structs embedding
// ComponentBase and register them with registry/component.
//
// One entity may carry at most one component of each type.
type Component interface {
	// ComponentType returns the stable type name in "app_label.model"
	// form, e.g. "testapp.thing". Permission content types match on it.
	ComponentType() string
	// GetEntityID returns the owning entity's ID, or 0 before creation.
	GetEntityID() int64
	SetEntityID(id int64)
	// IsDeleted reports the component's soft-delete flag.
	IsDeleted() bool
	SetDeleted(deleted bool)
}

// ComponentBase carries the shared component plumbing: the entity key and
// the soft-delete flag. Embed it in every component struct.
type ComponentBase struct {
	EntityID int64 `json:"entityId" gorm:"primaryKey;autoIncrement:false;column:entity_id"`
	Deleted  bool  `json:"deleted"  gorm:"not null;index"`
}

func (b *ComponentBase) GetEntityID() int64      { return b.EntityID }
func (b *ComponentBase) SetEntityID(id int64)    { b.EntityID = id }
func (b *ComponentBase) IsDeleted() bool         { return b.Deleted }
func (b *ComponentBase) SetDeleted(deleted bool) { b.Deleted = deleted }
