package gormstore

import (
	"github.com/charmbracelet/log"
	"github.com/chirino/ontology/metrics"
	"github.com/chirino/ontology/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// propagator applies the incremental entitlement-index delta for one
// mutation. It is bound to the mutation's transaction, so the index update
// commits or rolls back with the triggering change. Every handler is
// idempotent: re-running it against the same state inserts nothing new.
type propagator struct {
	tx    *gorm.DB
	event string
}

func newPropagator(tx *gorm.DB) *propagator {
	return &propagator{tx: tx, event: uuid.NewString()[:8]}
}

// onAttrsAdded handles entity ↔ attribute additions: for every policy whose
// source (or target) conjunction the new attribute completes, the entity is
// extruded along the corresponding axis.
func (p *propagator) onAttrsAdded(entityID int64, attrIDs []int64) error {
	live, err := p.entityLive(entityID)
	if err != nil || !live {
		return err
	}
	var rows []model.Entitlement
	for _, attrID := range attrIDs {
		srcPolicies, err := p.policiesMentioningAttr(attrID, true)
		if err != nil {
			return err
		}
		for i := range srcPolicies {
			ok, err := p.qualifies(&srcPolicies[i], entityID, true)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			extruded, err := p.extrudeSource(&srcPolicies[i], entityID)
			if err != nil {
				return err
			}
			rows = append(rows, extruded...)
		}

		tgtPolicies, err := p.policiesMentioningAttr(attrID, false)
		if err != nil {
			return err
		}
		for i := range tgtPolicies {
			ok, err := p.qualifies(&tgtPolicies[i], entityID, false)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			extruded, err := p.extrudeTarget(&tgtPolicies[i], entityID)
			if err != nil {
				return err
			}
			rows = append(rows, extruded...)
		}
	}
	log.Debug("Propagating attribute add", "event", p.event, "entity", entityID, "attrs", len(attrIDs), "rows", len(rows))
	return p.insertEntitlements(rows)
}

// onAttrsRemoved handles entity ↔ attribute removals. Losing any attribute
// of an ALL-conjunction breaks it, so every entitlement of a policy
// mentioning the attribute where the entity appears on either side goes.
func (p *propagator) onAttrsRemoved(entityID int64, attrIDs []int64) error {
	if len(attrIDs) == 0 {
		return nil
	}
	srcSub := p.tx.Model(&model.PolicySourceAttr{}).Select("policy_id").
		Where("attribute_id IN ?", attrIDs)
	tgtSub := p.tx.Model(&model.PolicyTargetAttr{}).Select("policy_id").
		Where("attribute_id IN ?", attrIDs)
	q := p.tx.
		Where("policy_id IN (?) OR policy_id IN (?)", srcSub, tgtSub).
		Where("source_id = ? OR target_id = ?", entityID, entityID)
	log.Debug("Propagating attribute remove", "event", p.event, "entity", entityID, "attrs", len(attrIDs))
	return p.deleteEntitlements(q)
}

// onDomainAdded extrudes the new member through the domain's catch-all
// policies. Policies with attribute conjunctions cannot match yet: domain
// attributes require membership first.
func (p *propagator) onDomainAdded(entityID, domainID int64) error {
	live, err := p.entityLive(entityID)
	if err != nil || !live {
		return err
	}
	var rows []model.Entitlement

	var srcCatchalls []model.Policy
	if err := p.tx.
		Where("domain_id = ?", domainID).
		Where("NOT EXISTS (SELECT 1 FROM policy_source_attrs psa WHERE psa.policy_id = policies.id)").
		Find(&srcCatchalls).Error; err != nil {
		return err
	}
	for i := range srcCatchalls {
		extruded, err := p.extrudeSource(&srcCatchalls[i], entityID)
		if err != nil {
			return err
		}
		rows = append(rows, extruded...)
	}

	var tgtCatchalls []model.Policy
	if err := p.tx.
		Where("domain_id = ?", domainID).
		Where("NOT EXISTS (SELECT 1 FROM policy_target_attrs pta WHERE pta.policy_id = policies.id)").
		Find(&tgtCatchalls).Error; err != nil {
		return err
	}
	for i := range tgtCatchalls {
		extruded, err := p.extrudeTarget(&tgtCatchalls[i], entityID)
		if err != nil {
			return err
		}
		rows = append(rows, extruded...)
	}

	log.Debug("Propagating domain add", "event", p.event, "entity", entityID, "domain", domainID, "rows", len(rows))
	return p.insertEntitlements(rows)
}

// onDomainRemoved drops every entitlement the entity holds, on either side,
// under the domain's policies.
func (p *propagator) onDomainRemoved(entityID, domainID int64) error {
	polSub := p.tx.Model(&model.Policy{}).Select("id").Where("domain_id = ?", domainID)
	q := p.tx.
		Where("policy_id IN (?)", polSub).
		Where("source_id = ? OR target_id = ?", entityID, entityID)
	log.Debug("Propagating domain remove", "event", p.event, "entity", entityID, "domain", domainID)
	return p.deleteEntitlements(q)
}

// onPolicyAttrsChanged wipes and re-materializes one policy. Attribute-set
// edits move the conjunction itself, so incremental repair is not attempted.
func (p *propagator) onPolicyAttrsChanged(policyID int64) error {
	if err := p.deleteEntitlements(p.tx.Where("policy_id = ?", policyID)); err != nil {
		return err
	}
	return p.createEntitlements(policyID)
}

// onPermissionsAdded clones each policy entitlement pair onto the new
// permissions, respecting the target content-type match.
func (p *propagator) onPermissionsAdded(policyID int64, permIDs []int64) error {
	var rows []model.Entitlement
	for _, permID := range permIDs {
		var perm model.Permission
		if err := p.tx.Where("id = ?", permID).First(&perm).Error; err != nil {
			return err
		}
		type pair struct {
			SourceID int64
			TargetID int64
		}
		var pairs []pair
		err := p.tx.Model(&model.Entitlement{}).
			Select("DISTINCT entitlements.source_id, entitlements.target_id").
			Joins("JOIN entity_content_types ect ON ect.entity_id = entitlements.target_id AND ect.content_type = ?", perm.ContentType).
			Where("entitlements.policy_id = ?", policyID).
			Scan(&pairs).Error
		if err != nil {
			return err
		}
		for _, pr := range pairs {
			rows = append(rows, model.Entitlement{
				PolicyID:     policyID,
				SourceID:     pr.SourceID,
				PermissionID: permID,
				TargetID:     pr.TargetID,
			})
		}
	}
	log.Debug("Propagating permission add", "event", p.event, "policy", policyID, "rows", len(rows))
	return p.insertEntitlements(rows)
}

func (p *propagator) onPermissionsRemoved(policyID int64, permIDs []int64) error {
	q := p.tx.Where("policy_id = ? AND permission_id IN ?", policyID, permIDs)
	log.Debug("Propagating permission remove", "event", p.event, "policy", policyID, "perms", len(permIDs))
	return p.deleteEntitlements(q)
}

// onPolicySaved sweeps orphaned entitlements — rows whose source, target, or
// permission no longer matches the policy's current sets — then
// re-materializes.
func (p *propagator) onPolicySaved(policyID int64) error {
	policy, err := getPolicyTx(p.tx, policyID)
	if err != nil {
		return err
	}
	srcQ, err := sourcesQuery(p.tx, policy)
	if err != nil {
		return err
	}
	tgtQ, err := targetsQuery(p.tx, policy)
	if err != nil {
		return err
	}
	permSub := p.tx.Model(&model.PolicyPermission{}).Select("permission_id").
		Where("policy_id = ?", policyID)
	q := p.tx.
		Where("policy_id = ?", policyID).
		Where("source_id NOT IN (?) OR target_id NOT IN (?) OR permission_id NOT IN (?)", srcQ, tgtQ, permSub)
	if err := p.deleteEntitlements(q); err != nil {
		return err
	}
	mismatch := p.tx.
		Where("policy_id = ?", policyID).
		Where("NOT EXISTS (SELECT 1 FROM entity_content_types ect, permissions pm WHERE pm.id = entitlements.permission_id AND ect.entity_id = entitlements.target_id AND ect.content_type = pm.content_type)")
	if err := p.deleteEntitlements(mismatch); err != nil {
		return err
	}
	return p.createEntitlements(policyID)
}

// onEntityDeleted removes the entity's entitlements on both sides.
func (p *propagator) onEntityDeleted(entityID int64) error {
	return p.deleteEntitlementsOf(entityID)
}

// onEntityUndeleted reconciles the restored entity against every policy of
// every domain it belongs to.
func (p *propagator) onEntityUndeleted(entityID int64) error {
	return p.reconcileEntity(entityID)
}

// onContentTypeAdded repairs the index after an entity gains a component
// type: policies targeting the entity may now carry permissions whose
// content type matches.
func (p *propagator) onContentTypeAdded(entityID int64, contentType string) error {
	live, err := p.entityLive(entityID)
	if err != nil || !live {
		return err
	}
	var domainIDs []int64
	if err := p.tx.Model(&model.EntityDomain{}).
		Where("entity_id = ?", entityID).
		Pluck("domain_id", &domainIDs).Error; err != nil {
		return err
	}
	if len(domainIDs) == 0 {
		return nil
	}
	var policies []model.Policy
	err = p.tx.
		Distinct("policies.*").
		Joins("JOIN policy_permissions pp ON pp.policy_id = policies.id").
		Joins("JOIN permissions pm ON pm.id = pp.permission_id").
		Where("policies.domain_id IN ? AND pm.content_type = ?", domainIDs, contentType).
		Find(&policies).Error
	if err != nil {
		return err
	}
	var rows []model.Entitlement
	for i := range policies {
		policy := &policies[i]
		ok, err := p.qualifies(policy, entityID, false)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		var permIDs []int64
		if err := p.tx.Model(&model.PolicyPermission{}).
			Joins("JOIN permissions pm ON pm.id = policy_permissions.permission_id").
			Where("policy_permissions.policy_id = ? AND pm.content_type = ?", policy.ID, contentType).
			Pluck("policy_permissions.permission_id", &permIDs).Error; err != nil {
			return err
		}
		srcQ, err := sourcesQuery(p.tx, policy)
		if err != nil {
			return err
		}
		var sourceIDs []int64
		if err := srcQ.Pluck("e.id", &sourceIDs).Error; err != nil {
			return err
		}
		for _, sourceID := range sourceIDs {
			for _, permID := range permIDs {
				rows = append(rows, model.Entitlement{
					PolicyID:     policy.ID,
					SourceID:     sourceID,
					PermissionID: permID,
					TargetID:     entityID,
				})
			}
		}
	}
	return p.insertEntitlements(rows)
}

// onContentTypeRemoved drops entitlements that named the entity as a target
// under a permission of the removed content type.
func (p *propagator) onContentTypeRemoved(entityID int64, contentType string) error {
	permSub := p.tx.Model(&model.Permission{}).Select("id").
		Where("content_type = ?", contentType)
	q := p.tx.Where("target_id = ? AND permission_id IN (?)", entityID, permSub)
	return p.deleteEntitlements(q)
}

// reconcileEntity extrudes the entity along every policy axis it currently
// qualifies for. Used after undelete, where the index holds nothing for it.
func (p *propagator) reconcileEntity(entityID int64) error {
	var domainIDs []int64
	if err := p.tx.Model(&model.EntityDomain{}).
		Where("entity_id = ?", entityID).
		Pluck("domain_id", &domainIDs).Error; err != nil {
		return err
	}
	if len(domainIDs) == 0 {
		return nil
	}
	var policies []model.Policy
	if err := p.tx.Where("domain_id IN ?", domainIDs).Find(&policies).Error; err != nil {
		return err
	}
	var rows []model.Entitlement
	for i := range policies {
		policy := &policies[i]
		asSource, err := p.qualifies(policy, entityID, true)
		if err != nil {
			return err
		}
		if asSource {
			extruded, err := p.extrudeSource(policy, entityID)
			if err != nil {
				return err
			}
			rows = append(rows, extruded...)
		}
		asTarget, err := p.qualifies(policy, entityID, false)
		if err != nil {
			return err
		}
		if asTarget {
			extruded, err := p.extrudeTarget(policy, entityID)
			if err != nil {
				return err
			}
			rows = append(rows, extruded...)
		}
	}
	log.Debug("Reconciling entity", "event", p.event, "entity", entityID, "rows", len(rows))
	return p.insertEntitlements(rows)
}

// --- predicates ---

func (p *propagator) entityLive(entityID int64) (bool, error) {
	var count int64
	err := p.tx.Model(&model.Entity{}).
		Where("id = ? AND deleted_at IS NULL", entityID).
		Count(&count).Error
	return count > 0, err
}

// policiesMentioningAttr lists policies whose source (or target) conjunction
// includes the attribute.
func (p *propagator) policiesMentioningAttr(attrID int64, source bool) ([]model.Policy, error) {
	var policies []model.Policy
	q := p.tx.Model(&model.Policy{})
	if source {
		q = q.Joins("JOIN policy_source_attrs psa ON psa.policy_id = policies.id").
			Where("psa.attribute_id = ?", attrID)
	} else {
		q = q.Joins("JOIN policy_target_attrs pta ON pta.policy_id = policies.id").
			Where("pta.attribute_id = ?", attrID)
	}
	err := q.Find(&policies).Error
	return policies, err
}

// qualifies reports whether the entity currently satisfies the policy's
// source (or target) clause: domain membership plus the full attribute
// conjunction. The caller checks liveness.
func (p *propagator) qualifies(policy *model.Policy, entityID int64, source bool) (bool, error) {
	var member int64
	if err := p.tx.Model(&model.EntityDomain{}).
		Where("entity_id = ? AND domain_id = ?", entityID, policy.DomainID).
		Count(&member).Error; err != nil {
		return false, err
	}
	if member == 0 {
		return false, nil
	}
	attrIDs, err := policyAttrIDs(p.tx, policy.ID, source)
	if err != nil {
		return false, err
	}
	return p.hasAllAttrs(entityID, attrIDs)
}

func (p *propagator) hasAllAttrs(entityID int64, attrIDs []int64) (bool, error) {
	if len(attrIDs) == 0 {
		return true, nil
	}
	var count int64
	err := p.tx.Model(&model.EntityAttr{}).
		Where("entity_id = ? AND attribute_id IN ?", entityID, attrIDs).
		Distinct("attribute_id").
		Count(&count).Error
	return count == int64(len(attrIDs)), err
}

func policyAttrIDs(tx *gorm.DB, policyID int64, source bool) ([]int64, error) {
	var ids []int64
	var err error
	if source {
		err = tx.Model(&model.PolicySourceAttr{}).
			Where("policy_id = ?", policyID).
			Pluck("attribute_id", &ids).Error
	} else {
		err = tx.Model(&model.PolicyTargetAttr{}).
			Where("policy_id = ?", policyID).
			Pluck("attribute_id", &ids).Error
	}
	return ids, err
}

// --- writes ---

func (p *propagator) insertEntitlements(rows []model.Entitlement) error {
	if len(rows) == 0 {
		return nil
	}
	res := p.tx.Clauses(onConflictDoNothing()).CreateInBatches(rows, 64)
	if res.Error != nil {
		return res.Error
	}
	if metrics.EntitlementWrites != nil {
		metrics.EntitlementWrites.Add(float64(res.RowsAffected))
	}
	return nil
}

func (p *propagator) deleteEntitlements(q *gorm.DB) error {
	res := q.Delete(&model.Entitlement{})
	if res.Error != nil {
		return res.Error
	}
	if metrics.EntitlementDeletes != nil {
		metrics.EntitlementDeletes.Add(float64(res.RowsAffected))
	}
	return nil
}

func (p *propagator) deleteEntitlementsOf(entityID int64) error {
	return p.deleteEntitlements(p.tx.Where("source_id = ? OR target_id = ?", entityID, entityID))
}
