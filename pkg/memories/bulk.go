package memories

import (
	"capsuled/pkg/acl"
	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/telemetry"
	"capsuled/pkg/utils"
)

// DeleteBulk removes the named memories from a capsule. Each item fails
// or succeeds on its own; the batch never aborts early.
func DeleteBulk(requester, capsuleID string, ids []string) (*models.BulkResult, error) {
	if err := acl.Require(requester, models.ResourceCapsule, capsuleID, models.PermManage); err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(capsuleID)
	defer unlock()

	res := &models.BulkResult{}
	for _, id := range ids {
		m, err := store.GetMemory(id)
		if err != nil {
			res.AddFailed(id, faults.KindOf(err).String(), err)
			continue
		}
		if m.Capsule != capsuleID {
			err := faults.InvalidArgument("memory %s belongs to another capsule", id)
			res.AddFailed(id, faults.KindOf(err).String(), err)
			continue
		}
		if err := deleteLocked(m, true); err != nil {
			res.AddFailed(id, faults.KindOf(err).String(), err)
			continue
		}
		res.AddOK(id)
	}
	telemetry.ObserveOp("memories", "delete_bulk", "ok")
	logger.AuditEvent("memories_delete_bulk", "capsule", capsuleID, "ok", len(res.OK), "failed", len(res.Failed))
	return res, nil
}

// DeleteAll removes every memory in a capsule.
func DeleteAll(requester, capsuleID string) (*models.BulkResult, error) {
	if err := acl.Require(requester, models.ResourceCapsule, capsuleID, models.PermManage); err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(capsuleID)
	defer unlock()

	ms, err := store.ListMemories(capsuleID)
	if err != nil {
		return nil, err
	}
	res := &models.BulkResult{}
	for _, m := range ms {
		if err := deleteLocked(m, true); err != nil {
			res.AddFailed(m.ID, faults.KindOf(err).String(), err)
			continue
		}
		res.AddOK(m.ID)
	}
	telemetry.ObserveOp("memories", "delete_all", "ok")
	logger.AuditEvent("memories_delete_all", "capsule", capsuleID, "ok", len(res.OK), "failed", len(res.Failed))
	return res, nil
}

// CleanupAssetsBulk releases stored asset payloads of the named memories
// while keeping the memory records and their metadata.
func CleanupAssetsBulk(requester, capsuleID string, ids []string) (*models.BulkResult, error) {
	if err := acl.Require(requester, models.ResourceCapsule, capsuleID, models.PermManage); err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(capsuleID)
	defer unlock()

	res := &models.BulkResult{}
	for _, id := range ids {
		if err := cleanupOneLocked(capsuleID, id); err != nil {
			res.AddFailed(id, faults.KindOf(err).String(), err)
			continue
		}
		res.AddOK(id)
	}
	telemetry.ObserveOp("memories", "cleanup_bulk", "ok")
	return res, nil
}

// CleanupAssetsAll releases stored asset payloads of every memory in the
// capsule.
func CleanupAssetsAll(requester, capsuleID string) (*models.BulkResult, error) {
	if err := acl.Require(requester, models.ResourceCapsule, capsuleID, models.PermManage); err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(capsuleID)
	defer unlock()

	ms, err := store.ListMemories(capsuleID)
	if err != nil {
		return nil, err
	}
	res := &models.BulkResult{}
	for _, m := range ms {
		if err := cleanupOneLocked(capsuleID, m.ID); err != nil {
			res.AddFailed(m.ID, faults.KindOf(err).String(), err)
			continue
		}
		res.AddOK(m.ID)
	}
	telemetry.ObserveOp("memories", "cleanup_all", "ok")
	return res, nil
}

func cleanupOneLocked(capsuleID, id string) error {
	m, err := store.GetMemory(id)
	if err != nil {
		return err
	}
	if m.Capsule != capsuleID {
		return faults.InvalidArgument("memory %s belongs to another capsule", id)
	}
	cleanupErr := cleanupAssetsLocked(m)
	m.UpdatedTS = utils.NowNano()
	if err := store.SaveMemory(m); err != nil {
		return err
	}
	// Assets that did release are persisted above; the failure is still
	// reported so the item lands in the failed half of the result.
	return cleanupErr
}

// PurgeCapsule removes every memory and stored asset without permission
// checks; used by the capsule delete cascade, which authorizes at the
// capsule level and already holds the capsule lock.
func PurgeCapsule(capsuleID string) error {
	ms, err := store.ListMemories(capsuleID)
	if err != nil {
		return err
	}
	for _, m := range ms {
		if err := cleanupAssetsLocked(m); err != nil {
			logger.Warn("asset_cleanup_incomplete", "memory", m.ID, "capsule", capsuleID, "error", err.Error())
		}
		if err := store.DeleteMemory(m); err != nil {
			return err
		}
		if err := store.DeleteInvitesForResource(m.ID); err != nil {
			return err
		}
	}
	return nil
}
