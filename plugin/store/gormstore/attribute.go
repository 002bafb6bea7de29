package gormstore

import (
	"context"

	"github.com/chirino/ontology/model"
	registrystore "github.com/chirino/ontology/registry/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) InternAttribute(ctx context.Context, domainID int64, key, value string) (*model.Attribute, error) {
	var attr *model.Attribute
	err := s.tx(ctx, func(tx *gorm.DB, _ *propagator) error {
		var err error
		attr, err = internAttributeTx(tx, domainID, key, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

// internAttributeTx resolves the (domain, key, value) triple to its unique
// row, creating it on first use.
func internAttributeTx(tx *gorm.DB, domainID int64, key, value string) (*model.Attribute, error) {
	if key == "" {
		return nil, &registrystore.ValidationError{Detail: "attribute key must not be empty"}
	}
	var attr model.Attribute
	err := tx.Where("domain_id = ? AND key = ? AND value = ?", domainID, key, value).
		First(&attr).Error
	if err == nil {
		return &attr, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	if _, err := getDomainTx(tx, domainID); err != nil {
		return nil, err
	}
	attr = model.Attribute{DomainID: domainID, Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&attr).Error; err != nil {
		return nil, err
	}
	if attr.ID == 0 {
		// Lost a race with a concurrent intern of the same triple.
		if err := tx.Where("domain_id = ? AND key = ? AND value = ?", domainID, key, value).
			First(&attr).Error; err != nil {
			return nil, err
		}
	}
	return &attr, nil
}

func (s *Store) AddAttr(ctx context.Context, entityID, domainID int64, key, value string) (*model.Attribute, error) {
	var attr *model.Attribute
	err := s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		domain, err := getDomainTx(tx, domainID)
		if err != nil {
			return err
		}
		var entity model.Entity
		if err := tx.Where("id = ?", entityID).First(&entity).Error; err != nil {
			if isNotFound(err) {
				return notFoundErr("entity", entityID)
			}
			return err
		}
		var member int64
		if err := tx.Model(&model.EntityDomain{}).
			Where("entity_id = ? AND domain_id = ?", entityID, domainID).
			Count(&member).Error; err != nil {
			return err
		}
		if member == 0 {
			return &registrystore.DomainViolationError{EntityID: entityID, Domain: domain.Slug}
		}
		attr, err = internAttributeTx(tx, domainID, key, value)
		if err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.EntityAttr{EntityID: entityID, AttributeID: attr.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already held; nothing to propagate
		}
		return p.onAttrsAdded(entityID, []int64{attr.ID})
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

func (s *Store) HasAttr(ctx context.Context, entityID, domainID int64, key, value string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.EntityAttr{}).
		Joins("JOIN attributes a ON a.id = entity_attrs.attribute_id").
		Where("entity_attrs.entity_id = ?", entityID).
		Where("a.domain_id = ? AND a.key = ? AND a.value = ?", domainID, key, value).
		Count(&count).Error
	if err != nil {
		return false, s.storeErr(err)
	}
	return count > 0, nil
}

func (s *Store) RemoveAttr(ctx context.Context, entityID, domainID int64, key, value string) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		var attr model.Attribute
		err := tx.Where("domain_id = ? AND key = ? AND value = ?", domainID, key, value).
			First(&attr).Error
		if err != nil {
			if isNotFound(err) {
				return nil // unknown triple; nothing to remove
			}
			return err
		}
		res := tx.Where("entity_id = ? AND attribute_id = ?", entityID, attr.ID).
			Delete(&model.EntityAttr{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return p.onAttrsRemoved(entityID, []int64{attr.ID})
	})
}

func (s *Store) AttrsWithKey(ctx context.Context, entityID, domainID int64, key string) ([]model.Attribute, error) {
	var attrs []model.Attribute
	err := s.db.WithContext(ctx).Model(&model.Attribute{}).
		Joins("JOIN entity_attrs ea ON ea.attribute_id = attributes.id").
		Where("ea.entity_id = ?", entityID).
		Where("attributes.domain_id = ? AND attributes.key = ?", domainID, key).
		Order("attributes.value").
		Find(&attrs).Error
	if err != nil {
		return nil, s.storeErr(err)
	}
	return attrs, nil
}
