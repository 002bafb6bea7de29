package gormstore

import (
	"context"
	"time"

	"github.com/chirino/ontology/model"
	registrycomponent "github.com/chirino/ontology/registry/component"
	registrystore "github.com/chirino/ontology/registry/store"
	"gorm.io/gorm"
)

func (s *Store) GetEntity(ctx context.Context, id int64, view registrystore.View) (*model.Entity, error) {
	var e model.Entity
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if view == registrystore.DefaultView {
		q = q.Where("deleted_at IS NULL")
	}
	if err := q.First(&e).Error; err != nil {
		if isNotFound(err) {
			return nil, notFoundErr("entity", id)
		}
		return nil, s.storeErr(err)
	}
	return &e, nil
}

func (s *Store) SetEntityNotes(ctx context.Context, id int64, notes *string) error {
	res := s.db.WithContext(ctx).Model(&model.Entity{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("notes", notes)
	if res.Error != nil {
		return s.storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundErr("entity", id)
	}
	return nil
}

func (s *Store) EntityContentTypes(ctx context.Context, id int64) ([]string, error) {
	var types []string
	err := s.db.WithContext(ctx).Model(&model.EntityContentType{}).
		Where("entity_id = ?", id).
		Order("content_type").
		Pluck("content_type", &types).Error
	if err != nil {
		return nil, s.storeErr(err)
	}
	return types, nil
}

func (s *Store) DeleteEntity(ctx context.Context, id int64, hard bool) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		return deleteEntityTx(tx, p, id, hard)
	})
}

func (s *Store) UndeleteEntity(ctx context.Context, id int64) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		return undeleteEntityTx(tx, p, id)
	})
}

func (s *Store) BulkDeleteEntities(ctx context.Context, ids []int64, hard bool) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		for _, id := range ids {
			if err := deleteEntityTx(tx, p, id, hard); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) BulkUndeleteEntities(ctx context.Context, ids []int64) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		for _, id := range ids {
			if err := undeleteEntityTx(tx, p, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteEntityTx(tx *gorm.DB, p *propagator, id int64, hard bool) error {
	var e model.Entity
	if err := tx.Where("id = ?", id).First(&e).Error; err != nil {
		if isNotFound(err) {
			return notFoundErr("entity", id)
		}
		return err
	}

	var types []string
	if err := tx.Model(&model.EntityContentType{}).
		Where("entity_id = ?", id).
		Pluck("content_type", &types).Error; err != nil {
		return err
	}

	if hard {
		for _, ct := range types {
			proto, err := registrycomponent.New(ct)
			if err != nil {
				return err
			}
			if err := tx.Where("entity_id = ?", id).Delete(proto).Error; err != nil {
				return err
			}
		}
		if err := p.deleteEntitlementsOf(id); err != nil {
			return err
		}
		// Junction rows cascade from the entity via schema foreign keys.
		return tx.Delete(&model.Entity{}, id).Error
	}

	// Soft delete is idempotent: a second delete leaves the store unchanged.
	if e.DeletedAt != nil {
		return nil
	}
	now := time.Now()
	if err := tx.Model(&model.Entity{}).Where("id = ?", id).
		Update("deleted_at", now).Error; err != nil {
		return err
	}
	for _, ct := range types {
		proto, err := registrycomponent.New(ct)
		if err != nil {
			return err
		}
		if err := tx.Model(proto).Where("entity_id = ?", id).
			Update("deleted", true).Error; err != nil {
			return err
		}
	}
	return p.onEntityDeleted(id)
}

func undeleteEntityTx(tx *gorm.DB, p *propagator, id int64) error {
	var e model.Entity
	if err := tx.Where("id = ?", id).First(&e).Error; err != nil {
		if isNotFound(err) {
			return notFoundErr("entity", id)
		}
		return err
	}
	if e.DeletedAt == nil {
		return nil
	}
	if err := tx.Model(&model.Entity{}).Where("id = ?", id).
		Update("deleted_at", nil).Error; err != nil {
		return err
	}
	var types []string
	if err := tx.Model(&model.EntityContentType{}).
		Where("entity_id = ?", id).
		Pluck("content_type", &types).Error; err != nil {
		return err
	}
	for _, ct := range types {
		proto, err := registrycomponent.New(ct)
		if err != nil {
			return err
		}
		if err := tx.Model(proto).Where("entity_id = ?", id).
			Update("deleted", false).Error; err != nil {
			return err
		}
	}
	return p.onEntityUndeleted(id)
}
