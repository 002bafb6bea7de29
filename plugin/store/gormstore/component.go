package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/ontology/model"
	registrycomponent "github.com/chirino/ontology/registry/component"
	registrystore "github.com/chirino/ontology/registry/store"
	"gorm.io/gorm"
)

func (s *Store) CreateComponent(ctx context.Context, comp model.Component, entityID *int64) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		return createComponentTx(tx, p, comp, entityID)
	})
}

func createComponentTx(tx *gorm.DB, p *propagator, comp model.Component, entityID *int64) error {
	ctype := comp.ComponentType()
	if entityID == nil {
		entity := model.Entity{}
		if err := tx.Create(&entity).Error; err != nil {
			return err
		}
		comp.SetEntityID(entity.ID)
	} else {
		var entity model.Entity
		if err := tx.Where("id = ?", *entityID).First(&entity).Error; err != nil {
			if isNotFound(err) {
				return notFoundErr("entity", *entityID)
			}
			return err
		}
		var count int64
		if err := tx.Model(&model.EntityContentType{}).
			Where("entity_id = ? AND content_type = ?", *entityID, ctype).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &registrystore.ConflictError{
				Resource: ctype,
				Detail:   fmt.Sprintf("entity %d already carries a %s component", *entityID, ctype),
			}
		}
		comp.SetEntityID(*entityID)
	}

	if err := tx.Create(comp).Error; err != nil {
		return err
	}
	if err := tx.Create(&model.EntityContentType{
		EntityID:    comp.GetEntityID(),
		ContentType: ctype,
	}).Error; err != nil {
		return err
	}
	return p.onContentTypeAdded(comp.GetEntityID(), ctype)
}

func (s *Store) GetComponent(ctx context.Context, entityID int64, componentType string, view registrystore.View) (model.Component, error) {
	proto, err := registrycomponent.New(componentType)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("entity_id = ?", entityID)
	if view == registrystore.DefaultView {
		q = q.Where("deleted = ?", false)
	}
	if err := q.First(proto).Error; err != nil {
		if isNotFound(err) {
			return nil, notFoundErr(componentType, entityID)
		}
		return nil, s.storeErr(err)
	}
	return proto, nil
}

func (s *Store) Components(ctx context.Context, entityID int64) (map[string]model.Component, error) {
	types, err := s.EntityContentTypes(ctx, entityID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Component, len(types))
	for _, ct := range types {
		comp, err := s.GetComponent(ctx, entityID, ct, registrystore.DefaultView)
		if err != nil {
			var nf *registrystore.NotFoundError
			if errors.As(err, &nf) {
				continue // soft-deleted component, hidden from the default view
			}
			return nil, err
		}
		out[ct] = comp
	}
	return out, nil
}

func (s *Store) DeleteComponent(ctx context.Context, entityID int64, componentType string, hard, isolated bool) error {
	if !isolated {
		// Non-isolated deletes cascade to the owning entity.
		return s.DeleteEntity(ctx, entityID, hard)
	}
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		proto, err := registrycomponent.New(componentType)
		if err != nil {
			return err
		}
		if !hard {
			res := tx.Model(proto).
				Where("entity_id = ? AND deleted = ?", entityID, false).
				Update("deleted", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return notFoundErr(componentType, entityID)
			}
			return nil
		}

		res := tx.Where("entity_id = ?", entityID).Delete(proto)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFoundErr(componentType, entityID)
		}
		if err := tx.Where("entity_id = ? AND content_type = ?", entityID, componentType).
			Delete(&model.EntityContentType{}).Error; err != nil {
			return err
		}
		if err := p.onContentTypeRemoved(entityID, componentType); err != nil {
			return err
		}

		// An entity lives only as long as its last component.
		var remaining int64
		if err := tx.Model(&model.EntityContentType{}).
			Where("entity_id = ?", entityID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return deleteEntityTx(tx, p, entityID, true)
		}
		return nil
	})
}

func (s *Store) UndeleteComponent(ctx context.Context, entityID int64, componentType string) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		proto, err := registrycomponent.New(componentType)
		if err != nil {
			return err
		}
		res := tx.Model(proto).Where("entity_id = ?", entityID).Update("deleted", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFoundErr(componentType, entityID)
		}
		return nil
	})
}
