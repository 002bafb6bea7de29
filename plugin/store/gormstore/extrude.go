package gormstore

import (
	"github.com/chirino/ontology/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func onConflictDoNothing() clause.Expression {
	return clause.OnConflict{DoNothing: true}
}

// memberQuery selects the live entities of a domain carrying every attribute
// in attrIDs (ALL conjunction). An empty set selects every live member.
func memberQuery(tx *gorm.DB, domainID int64, attrIDs []int64) *gorm.DB {
	q := tx.Table("entities e").Select("e.id").
		Joins("JOIN entity_domains ed ON ed.entity_id = e.id AND ed.domain_id = ?", domainID).
		Where("e.deleted_at IS NULL")
	if len(attrIDs) > 0 {
		q = q.Joins("JOIN entity_attrs ea ON ea.entity_id = e.id").
			Where("ea.attribute_id IN ?", attrIDs).
			Group("e.id").
			Having("COUNT(DISTINCT ea.attribute_id) = ?", len(attrIDs))
	}
	return q
}

func sourcesQuery(tx *gorm.DB, policy *model.Policy) (*gorm.DB, error) {
	attrIDs, err := policyAttrIDs(tx, policy.ID, true)
	if err != nil {
		return nil, err
	}
	return memberQuery(tx, policy.DomainID, attrIDs), nil
}

func targetsQuery(tx *gorm.DB, policy *model.Policy) (*gorm.DB, error) {
	attrIDs, err := policyAttrIDs(tx, policy.ID, false)
	if err != nil {
		return nil, err
	}
	return memberQuery(tx, policy.DomainID, attrIDs), nil
}

type permTarget struct {
	PermissionID int64
	TargetID     int64
}

type permSource struct {
	PermissionID int64
	SourceID     int64
}

// targetPermPairs enumerates (permission, target) combinations for a policy:
// each current target crossed with the allowed permissions whose content
// type the target carries.
func targetPermPairs(tx *gorm.DB, policy *model.Policy) ([]permTarget, error) {
	tq, err := targetsQuery(tx, policy)
	if err != nil {
		return nil, err
	}
	var pairs []permTarget
	err = tx.Table("entity_content_types ect").
		Select("ect.entity_id AS target_id, pm.id AS permission_id").
		Joins("JOIN permissions pm ON pm.content_type = ect.content_type").
		Joins("JOIN policy_permissions pp ON pp.permission_id = pm.id AND pp.policy_id = ?", policy.ID).
		Where("ect.entity_id IN (?)", tq).
		Scan(&pairs).Error
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// extrudeSource emits the rows for one new source of a policy by reusing the
// distinct (permission, target) pairs already present in the index. When the
// policy has no rows yet, it falls back to a full scan of the target axis.
func (p *propagator) extrudeSource(policy *model.Policy, sourceID int64) ([]model.Entitlement, error) {
	var refs []permTarget
	err := p.tx.Model(&model.Entitlement{}).
		Select("DISTINCT entitlements.permission_id, entitlements.target_id").
		Where("entitlements.policy_id = ?", policy.ID).
		Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		refs, err = targetPermPairs(p.tx, policy)
		if err != nil {
			return nil, err
		}
	}
	rows := make([]model.Entitlement, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, model.Entitlement{
			PolicyID:     policy.ID,
			SourceID:     sourceID,
			PermissionID: ref.PermissionID,
			TargetID:     ref.TargetID,
		})
	}
	return rows, nil
}

// extrudeTarget is the symmetric primitive for one new target. Reused pairs
// are restricted to permissions whose content type the target carries.
func (p *propagator) extrudeTarget(policy *model.Policy, targetID int64) ([]model.Entitlement, error) {
	ctSub := p.tx.Model(&model.EntityContentType{}).Select("content_type").
		Where("entity_id = ?", targetID)
	var refs []permSource
	err := p.tx.Model(&model.Entitlement{}).
		Select("DISTINCT entitlements.permission_id, entitlements.source_id").
		Joins("JOIN permissions pm ON pm.id = entitlements.permission_id").
		Where("entitlements.policy_id = ?", policy.ID).
		Where("pm.content_type IN (?)", ctSub).
		Scan(&refs).Error
	if err != nil {
		return nil, err
	}

	if len(refs) == 0 {
		sq, err := sourcesQuery(p.tx, policy)
		if err != nil {
			return nil, err
		}
		var sourceIDs []int64
		if err := sq.Pluck("e.id", &sourceIDs).Error; err != nil {
			return nil, err
		}
		var permIDs []int64
		err = p.tx.Model(&model.PolicyPermission{}).
			Joins("JOIN permissions pm ON pm.id = policy_permissions.permission_id").
			Where("policy_permissions.policy_id = ?", policy.ID).
			Where("pm.content_type IN (?)", ctSub).
			Pluck("policy_permissions.permission_id", &permIDs).Error
		if err != nil {
			return nil, err
		}
		rows := make([]model.Entitlement, 0, len(sourceIDs)*len(permIDs))
		for _, sourceID := range sourceIDs {
			for _, permID := range permIDs {
				rows = append(rows, model.Entitlement{
					PolicyID:     policy.ID,
					SourceID:     sourceID,
					PermissionID: permID,
					TargetID:     targetID,
				})
			}
		}
		return rows, nil
	}

	rows := make([]model.Entitlement, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, model.Entitlement{
			PolicyID:     policy.ID,
			SourceID:     ref.SourceID,
			PermissionID: ref.PermissionID,
			TargetID:     targetID,
		})
	}
	return rows, nil
}

// createEntitlements is the full materialization for one policy:
// sources × targets × allowed permissions, filtered by the target
// content-type match. Insertion is conflict-safe and batched.
func (p *propagator) createEntitlements(policyID int64) error {
	policy, err := getPolicyTx(p.tx, policyID)
	if err != nil {
		return err
	}
	sq, err := sourcesQuery(p.tx, policy)
	if err != nil {
		return err
	}
	var sourceIDs []int64
	if err := sq.Pluck("e.id", &sourceIDs).Error; err != nil {
		return err
	}
	if len(sourceIDs) == 0 {
		return nil
	}
	pairs, err := targetPermPairs(p.tx, policy)
	if err != nil {
		return err
	}
	rows := make([]model.Entitlement, 0, len(sourceIDs)*len(pairs))
	for _, sourceID := range sourceIDs {
		for _, pair := range pairs {
			rows = append(rows, model.Entitlement{
				PolicyID:     policy.ID,
				SourceID:     sourceID,
				PermissionID: pair.PermissionID,
				TargetID:     pair.TargetID,
			})
		}
	}
	return p.insertEntitlements(rows)
}
