package gormstore

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/ontology/model"
	registrystore "github.com/chirino/ontology/registry/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateDomain(ctx context.Context, slug string) (*model.Domain, error) {
	if slug == "" {
		return nil, &registrystore.ValidationError{Detail: "domain slug must not be empty"}
	}
	domain := &model.Domain{Slug: slug}
	err := s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		return createComponentTx(tx, p, domain, nil)
	})
	if err != nil {
		return nil, err
	}
	return domain, nil
}

func (s *Store) GetDomain(ctx context.Context, slug string) (*model.Domain, error) {
	var domain model.Domain
	err := s.db.WithContext(ctx).
		Where("slug = ? AND deleted = ?", slug, false).
		First(&domain).Error
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundErr("domain", slug)
		}
		return nil, s.storeErr(err)
	}
	return &domain, nil
}

// getDomainTx loads a live domain by its entity id.
func getDomainTx(tx *gorm.DB, domainID int64) (*model.Domain, error) {
	var domain model.Domain
	err := tx.Where("entity_id = ? AND deleted = ?", domainID, false).First(&domain).Error
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundErr("domain", domainID)
		}
		return nil, err
	}
	return &domain, nil
}

func (s *Store) AddToDomain(ctx context.Context, entityID, domainID int64) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
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

		// A membership add may only proceed if the candidate, when it is
		// itself a domain, does not already contain the target domain.
		cyclic, err := wouldCycle(tx, entityID, domainID)
		if err != nil {
			return err
		}
		if cyclic {
			if s.strictCycles {
				return &registrystore.CycleViolationError{Domain: domain.Slug, Candidate: entityID}
			}
			log.Warn("Skipping domain membership that would create a cycle",
				"domain", domain.Slug, "entity", entityID)
			return nil
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.EntityDomain{EntityID: entityID, DomainID: domainID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return p.onDomainAdded(entityID, domainID)
	})
}

// wouldCycle reports whether adding candidate as a member of domainID closes
// a cycle: candidate is a domain whose reflexive transitive closure already
// contains domainID.
func wouldCycle(tx *gorm.DB, candidateID, domainID int64) (bool, error) {
	var isDomain int64
	if err := tx.Model(&model.Domain{}).
		Where("entity_id = ?", candidateID).
		Count(&isDomain).Error; err != nil {
		return false, err
	}
	if isDomain == 0 {
		return false, nil
	}
	return hasSubdomainRecursiveTx(tx, candidateID, domainID)
}

func (s *Store) RemoveFromDomain(ctx context.Context, entityID, domainID int64) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		// Strip the entity's attributes scoped to this domain first; the
		// membership itself goes second so both removals propagate.
		var attrIDs []int64
		err := tx.Model(&model.EntityAttr{}).
			Joins("JOIN attributes a ON a.id = entity_attrs.attribute_id").
			Where("entity_attrs.entity_id = ? AND a.domain_id = ?", entityID, domainID).
			Pluck("entity_attrs.attribute_id", &attrIDs).Error
		if err != nil {
			return err
		}
		if len(attrIDs) > 0 {
			if err := tx.Where("entity_id = ? AND attribute_id IN ?", entityID, attrIDs).
				Delete(&model.EntityAttr{}).Error; err != nil {
				return err
			}
			if err := p.onAttrsRemoved(entityID, attrIDs); err != nil {
				return err
			}
		}

		res := tx.Where("entity_id = ? AND domain_id = ?", entityID, domainID).
			Delete(&model.EntityDomain{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return p.onDomainRemoved(entityID, domainID)
	})
}

func (s *Store) IsInDomain(ctx context.Context, entityID, domainID int64, recursive bool) (bool, error) {
	db := s.db.WithContext(ctx)
	if !recursive {
		var count int64
		err := db.Model(&model.EntityDomain{}).
			Where("entity_id = ? AND domain_id = ?", entityID, domainID).
			Count(&count).Error
		if err != nil {
			return false, s.storeErr(err)
		}
		return count > 0, nil
	}

	var memberOf []int64
	if err := db.Model(&model.EntityDomain{}).
		Where("entity_id = ?", entityID).
		Pluck("domain_id", &memberOf).Error; err != nil {
		return false, s.storeErr(err)
	}
	for _, d := range memberOf {
		ok, err := hasSubdomainRecursiveTx(db, domainID, d)
		if err != nil {
			return false, s.storeErr(err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DomainEntities(ctx context.Context, domainID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.EntityDomain{}).
		Joins("JOIN entities e ON e.id = entity_domains.entity_id").
		Where("entity_domains.domain_id = ? AND e.deleted_at IS NULL", domainID).
		Order("entity_domains.entity_id").
		Pluck("entity_domains.entity_id", &ids).Error
	if err != nil {
		return nil, s.storeErr(err)
	}
	return ids, nil
}

func (s *Store) Subdomains(ctx context.Context, domainID int64) ([]model.Domain, error) {
	var domains []model.Domain
	err := s.db.WithContext(ctx).Model(&model.Domain{}).
		Joins("JOIN entity_domains ed ON ed.entity_id = domains.entity_id").
		Where("ed.domain_id = ? AND domains.deleted = ?", domainID, false).
		Order("domains.slug").
		Find(&domains).Error
	if err != nil {
		return nil, s.storeErr(err)
	}
	return domains, nil
}

func (s *Store) Superdomains(ctx context.Context, domainID int64) ([]model.Domain, error) {
	var domains []model.Domain
	err := s.db.WithContext(ctx).Model(&model.Domain{}).
		Joins("JOIN entity_domains ed ON ed.domain_id = domains.entity_id").
		Where("ed.entity_id = ? AND domains.deleted = ?", domainID, false).
		Order("domains.slug").
		Find(&domains).Error
	if err != nil {
		return nil, s.storeErr(err)
	}
	return domains, nil
}

func (s *Store) HasSubdomainRecursive(ctx context.Context, domainID, candidateID int64) (bool, error) {
	ok, err := hasSubdomainRecursiveTx(s.db.WithContext(ctx), domainID, candidateID)
	return ok, s.storeErr(err)
}

// hasSubdomainRecursiveTx walks the domain graph breadth-first. The closure
// is reflexive: every domain contains itself.
func hasSubdomainRecursiveTx(tx *gorm.DB, domainID, candidateID int64) (bool, error) {
	if domainID == candidateID {
		return true, nil
	}
	visited := map[int64]bool{domainID: true}
	frontier := []int64{domainID}
	for len(frontier) > 0 {
		var children []int64
		err := tx.Model(&model.EntityDomain{}).
			Joins("JOIN domains d ON d.entity_id = entity_domains.entity_id").
			Where("entity_domains.domain_id IN ?", frontier).
			Pluck("entity_domains.entity_id", &children).Error
		if err != nil {
			return false, err
		}
		frontier = frontier[:0]
		for _, child := range children {
			if child == candidateID {
				return true, nil
			}
			if !visited[child] {
				visited[child] = true
				frontier = append(frontier, child)
			}
		}
	}
	return false, nil
}
