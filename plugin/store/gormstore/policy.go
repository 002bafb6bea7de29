package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/ontology/model"
	registrystore "github.com/chirino/ontology/registry/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Permission catalog ---

func (s *Store) EnsurePermission(ctx context.Context, appLabel, codename, contentType string) (*model.Permission, error) {
	if appLabel == "" || codename == "" || contentType == "" {
		return nil, &registrystore.ValidationError{Detail: "permission requires app_label, codename, and content_type"}
	}
	var perm model.Permission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("app_label = ? AND codename = ?", appLabel, codename).First(&perm).Error
		if err == nil {
			if perm.ContentType != contentType {
				perm.ContentType = contentType
				return tx.Model(&model.Permission{}).Where("id = ?", perm.ID).
					Update("content_type", contentType).Error
			}
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		perm = model.Permission{AppLabel: appLabel, Codename: codename, ContentType: contentType}
		return tx.Create(&perm).Error
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	return &perm, nil
}

func (s *Store) LookupPermission(ctx context.Context, perm string) (*model.Permission, error) {
	spec, err := registrystore.ParsePermSpec(perm)
	if err != nil {
		return nil, err
	}
	return lookupPermissionTx(s.db.WithContext(ctx), spec)
}

func lookupPermissionTx(tx *gorm.DB, spec registrystore.PermSpec) (*model.Permission, error) {
	var p model.Permission
	err := tx.Where("app_label = ? AND codename = ?", spec.AppLabel, spec.Codename).First(&p).Error
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundErr("permission", spec.AppLabel+"."+spec.Codename)
		}
		return nil, err
	}
	return &p, nil
}

// --- Policies ---

func (s *Store) CreatePolicy(ctx context.Context, domainID int64, label string, sourceAttrs, perms, targetAttrs []string) (*model.Policy, error) {
	if label == "" {
		return nil, &registrystore.ValidationError{Detail: "policy label must not be empty"}
	}
	policy := &model.Policy{DomainID: domainID, Label: label}
	err := s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		if _, err := getDomainTx(tx, domainID); err != nil {
			return err
		}
		sourceIDs, err := internAttrSpecs(tx, domainID, sourceAttrs)
		if err != nil {
			return err
		}
		targetIDs, err := internAttrSpecs(tx, domainID, targetAttrs)
		if err != nil {
			return err
		}
		permIDs, err := resolvePermSpecs(tx, perms)
		if err != nil {
			return err
		}

		if err := tx.Create(policy).Error; err != nil {
			return err
		}
		for _, id := range sourceIDs {
			if err := tx.Create(&model.PolicySourceAttr{PolicyID: policy.ID, AttributeID: id}).Error; err != nil {
				return err
			}
		}
		for _, id := range targetIDs {
			if err := tx.Create(&model.PolicyTargetAttr{PolicyID: policy.ID, AttributeID: id}).Error; err != nil {
				return err
			}
		}
		for _, id := range permIDs {
			if err := tx.Create(&model.PolicyPermission{PolicyID: policy.ID, PermissionID: id}).Error; err != nil {
				return err
			}
		}
		return p.createEntitlements(policy.ID)
	})
	if err != nil {
		return nil, err
	}
	return policy, nil
}

func internAttrSpecs(tx *gorm.DB, domainID int64, specs []string) ([]int64, error) {
	ids := make([]int64, 0, len(specs))
	seen := map[int64]bool{}
	for _, raw := range specs {
		spec, err := registrystore.ParseAttrSpec(raw)
		if err != nil {
			return nil, err
		}
		attr, err := internAttributeTx(tx, domainID, spec.Key, spec.Value)
		if err != nil {
			return nil, err
		}
		if !seen[attr.ID] {
			seen[attr.ID] = true
			ids = append(ids, attr.ID)
		}
	}
	return ids, nil
}

func resolvePermSpecs(tx *gorm.DB, specs []string) ([]int64, error) {
	ids := make([]int64, 0, len(specs))
	seen := map[int64]bool{}
	for _, raw := range specs {
		spec, err := registrystore.ParsePermSpec(raw)
		if err != nil {
			return nil, err
		}
		perm, err := lookupPermissionTx(tx, spec)
		if err != nil {
			return nil, err
		}
		if !seen[perm.ID] {
			seen[perm.ID] = true
			ids = append(ids, perm.ID)
		}
	}
	return ids, nil
}

func (s *Store) GetPolicy(ctx context.Context, domainID int64, label string) (*model.Policy, error) {
	var policy model.Policy
	err := s.db.WithContext(ctx).
		Where("domain_id = ? AND label = ?", domainID, label).
		First(&policy).Error
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundErr("policy", fmt.Sprintf("%d/%s", domainID, label))
		}
		return nil, s.storeErr(err)
	}
	return &policy, nil
}

func getPolicyTx(tx *gorm.DB, policyID int64) (*model.Policy, error) {
	var policy model.Policy
	if err := tx.Where("id = ?", policyID).First(&policy).Error; err != nil {
		if isNotFound(err) {
			return nil, notFoundErr("policy", policyID)
		}
		return nil, err
	}
	return &policy, nil
}

func (s *Store) SetPolicyDisabled(ctx context.Context, policyID int64, disabled bool) error {
	res := s.db.WithContext(ctx).Model(&model.Policy{}).
		Where("id = ?", policyID).
		Update("disabled", disabled)
	if res.Error != nil {
		return s.storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundErr("policy", policyID)
	}
	return nil
}

func (s *Store) SetPolicyExpiry(ctx context.Context, policyID int64, expiresAt *time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Policy{}).
		Where("id = ?", policyID).
		Update("expires_at", expiresAt)
	if res.Error != nil {
		return s.storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundErr("policy", policyID)
	}
	return nil
}

func (s *Store) AddPolicySourceAttrs(ctx context.Context, policyID int64, attrs []string) error {
	return s.changePolicyAttrs(ctx, policyID, attrs, true, false)
}

func (s *Store) RemovePolicySourceAttrs(ctx context.Context, policyID int64, attrs []string) error {
	return s.changePolicyAttrs(ctx, policyID, attrs, true, true)
}

func (s *Store) AddPolicyTargetAttrs(ctx context.Context, policyID int64, attrs []string) error {
	return s.changePolicyAttrs(ctx, policyID, attrs, false, false)
}

func (s *Store) RemovePolicyTargetAttrs(ctx context.Context, policyID int64, attrs []string) error {
	return s.changePolicyAttrs(ctx, policyID, attrs, false, true)
}

// changePolicyAttrs applies a source/target attribute set edit. Any change
// wipes and re-materializes the policy's entitlements: attribute-set edits
// move the conjunction itself, so incremental repair is not worth the risk.
func (s *Store) changePolicyAttrs(ctx context.Context, policyID int64, attrs []string, source, remove bool) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		policy, err := getPolicyTx(tx, policyID)
		if err != nil {
			return err
		}
		attrIDs, err := internAttrSpecs(tx, policy.DomainID, attrs)
		if err != nil {
			return err
		}
		if len(attrIDs) == 0 {
			return nil
		}
		changed := int64(0)
		for _, id := range attrIDs {
			var res *gorm.DB
			switch {
			case source && remove:
				res = tx.Where("policy_id = ? AND attribute_id = ?", policyID, id).
					Delete(&model.PolicySourceAttr{})
			case source:
				res = tx.Clauses(clause.OnConflict{DoNothing: true}).
					Create(&model.PolicySourceAttr{PolicyID: policyID, AttributeID: id})
			case remove:
				res = tx.Where("policy_id = ? AND attribute_id = ?", policyID, id).
					Delete(&model.PolicyTargetAttr{})
			default:
				res = tx.Clauses(clause.OnConflict{DoNothing: true}).
					Create(&model.PolicyTargetAttr{PolicyID: policyID, AttributeID: id})
			}
			if res.Error != nil {
				return res.Error
			}
			changed += res.RowsAffected
		}
		if changed == 0 {
			return nil
		}
		return p.onPolicyAttrsChanged(policyID)
	})
}

func (s *Store) AddPolicyPermissions(ctx context.Context, policyID int64, perms []string) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		if _, err := getPolicyTx(tx, policyID); err != nil {
			return err
		}
		permIDs, err := resolvePermSpecs(tx, perms)
		if err != nil {
			return err
		}
		var added []int64
		for _, id := range permIDs {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.PolicyPermission{PolicyID: policyID, PermissionID: id})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			return nil
		}
		return p.onPermissionsAdded(policyID, added)
	})
}

func (s *Store) RemovePolicyPermissions(ctx context.Context, policyID int64, perms []string) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		if _, err := getPolicyTx(tx, policyID); err != nil {
			return err
		}
		permIDs, err := resolvePermSpecs(tx, perms)
		if err != nil {
			return err
		}
		var removed []int64
		for _, id := range permIDs {
			res := tx.Where("policy_id = ? AND permission_id = ?", policyID, id).
				Delete(&model.PolicyPermission{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				removed = append(removed, id)
			}
		}
		if len(removed) == 0 {
			return nil
		}
		return p.onPermissionsRemoved(policyID, removed)
	})
}

func (s *Store) SavePolicy(ctx context.Context, policyID int64) error {
	return s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
		if _, err := getPolicyTx(tx, policyID); err != nil {
			return err
		}
		return p.onPolicySaved(policyID)
	})
}

func (s *Store) PolicySources(ctx context.Context, policyID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		policy, err := getPolicyTx(tx, policyID)
		if err != nil {
			return err
		}
		q, err := sourcesQuery(tx, policy)
		if err != nil {
			return err
		}
		return q.Pluck("e.id", &ids).Error
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	return ids, nil
}

func (s *Store) PolicyTargets(ctx context.Context, policyID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		policy, err := getPolicyTx(tx, policyID)
		if err != nil {
			return err
		}
		q, err := targetsQuery(tx, policy)
		if err != nil {
			return err
		}
		return q.Pluck("e.id", &ids).Error
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	return ids, nil
}

// ResetEntitlements deletes and rebuilds each policy's entitlements, one
// transaction per policy.
func (s *Store) ResetEntitlements(ctx context.Context, policyIDs ...int64) error {
	for _, policyID := range policyIDs {
		err := s.tx(ctx, func(tx *gorm.DB, p *propagator) error {
			if _, err := getPolicyTx(tx, policyID); err != nil {
				return err
			}
			if err := p.deleteEntitlements(tx.Where("policy_id = ?", policyID)); err != nil {
				return err
			}
			return p.createEntitlements(policyID)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FindExpiredPolicies(ctx context.Context, cutoff time.Time, limit int) ([]model.Policy, error) {
	var policies []model.Policy
	q := s.db.WithContext(ctx).
		Where("disabled = ? AND expires_at IS NOT NULL AND expires_at <= ?", false, cutoff).
		Order("expires_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&policies).Error; err != nil {
		return nil, s.storeErr(err)
	}
	return policies, nil
}
