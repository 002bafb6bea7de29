package gormstore

import (
	"context"
	"time"

	"github.com/chirino/ontology/model"
	registrystore "github.com/chirino/ontology/registry/store"
)

// HasPerm is the indexed existence check: does an entitlement connect the
// source to the target under the named permission, through a live, enabled,
// unexpired policy, with both endpoints live?
func (s *Store) HasPerm(ctx context.Context, sourceEntityID int64, perm string, targetEntityID int64) (bool, error) {
	spec, err := registrystore.ParsePermSpec(perm)
	if err != nil {
		return false, err
	}
	var ids []int64
	err = s.db.WithContext(ctx).Model(&model.Entitlement{}).
		Joins("JOIN permissions pm ON pm.id = entitlements.permission_id").
		Joins("JOIN policies po ON po.id = entitlements.policy_id").
		Joins("JOIN entities se ON se.id = entitlements.source_id").
		Joins("JOIN entities te ON te.id = entitlements.target_id").
		Where("entitlements.source_id = ? AND entitlements.target_id = ?", sourceEntityID, targetEntityID).
		Where("pm.codename = ? AND pm.app_label = ?", spec.Codename, spec.AppLabel).
		Where("se.deleted_at IS NULL AND te.deleted_at IS NULL").
		Where("po.disabled = ?", false).
		Where("po.expires_at IS NULL OR po.expires_at > ?", time.Now()).
		Limit(1).
		Pluck("entitlements.id", &ids).Error
	if err != nil {
		return false, s.storeErr(err)
	}
	return len(ids) > 0, nil
}

// EntitlementsFor lists the distinct (permission, target) pairs the subject
// currently holds, under the same liveness filters as HasPerm.
func (s *Store) EntitlementsFor(ctx context.Context, sourceEntityID int64) ([]registrystore.Grant, error) {
	type row struct {
		ID          int64
		AppLabel    string
		Codename    string
		ContentType string
		TargetID    int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&model.Entitlement{}).
		Select("DISTINCT pm.id, pm.app_label, pm.codename, pm.content_type, entitlements.target_id").
		Joins("JOIN permissions pm ON pm.id = entitlements.permission_id").
		Joins("JOIN policies po ON po.id = entitlements.policy_id").
		Joins("JOIN entities se ON se.id = entitlements.source_id").
		Joins("JOIN entities te ON te.id = entitlements.target_id").
		Where("entitlements.source_id = ?", sourceEntityID).
		Where("se.deleted_at IS NULL AND te.deleted_at IS NULL").
		Where("po.disabled = ?", false).
		Where("po.expires_at IS NULL OR po.expires_at > ?", time.Now()).
		Order("pm.app_label, pm.codename, entitlements.target_id").
		Scan(&rows).Error
	if err != nil {
		return nil, s.storeErr(err)
	}
	grants := make([]registrystore.Grant, 0, len(rows))
	for _, r := range rows {
		grants = append(grants, registrystore.Grant{
			Permission: model.Permission{
				ID:          r.ID,
				AppLabel:    r.AppLabel,
				Codename:    r.Codename,
				ContentType: r.ContentType,
			},
			TargetID: r.TargetID,
		})
	}
	return grants, nil
}

func (s *Store) ListEntitlements(ctx context.Context, policyID int64) ([]model.Entitlement, error) {
	var rows []model.Entitlement
	err := s.db.WithContext(ctx).
		Where("policy_id = ?", policyID).
		Order("source_id, permission_id, target_id").
		Find(&rows).Error
	if err != nil {
		return nil, s.storeErr(err)
	}
	return rows, nil
}
