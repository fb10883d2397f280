// Package memories implements the memory lifecycle inside a capsule:
// idempotent tiered creation, metadata and content reads, partial
// updates, and deletion with asset cleanup.
package memories

import (
	"encoding/json"
	"errors"
	"sort"

	"capsuled/pkg/acl"
	"capsuled/pkg/config"
	"capsuled/pkg/faults"
	"capsuled/pkg/galleries"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/telemetry"
	"capsuled/pkg/utils"
	"capsuled/pkg/validation"
)

// CreateInput is one memory create payload. Assets carry bytes for the
// inline and internal-blob tiers; internal-blob bytes are moved into the
// blob store and never persist inside the record.
type CreateInput struct {
	Capsule string            `json:"capsule"`
	IdemKey string            `json:"idem_key"`
	Meta    models.MemoryMeta `json:"meta"`
	Assets  []models.Asset    `json:"assets"`
}

// payloadFingerprint hashes the caller-visible create payload so a retried
// idempotency key with different content is detectable.
func payloadFingerprint(in *CreateInput) string {
	b, _ := json.Marshal(struct {
		Meta   models.MemoryMeta `json:"meta"`
		Assets []models.Asset    `json:"assets"`
	}{in.Meta, in.Assets})
	return utils.HashBytes(b)
}

// Create stores a memory. The id is a pure function of (capsule id,
// idempotency key): replaying the same payload returns the stored memory,
// replaying the key with a different payload is a conflict.
func Create(requester string, in *CreateInput) (*models.Memory, error) {
	if err := validation.ValidateMemoryCreate(in.IdemKey, in.Assets); err != nil {
		return nil, err
	}
	if err := acl.Require(requester, models.ResourceCapsule, in.Capsule, models.PermManage); err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(in.Capsule)
	defer unlock()

	c, err := store.GetCapsule(in.Capsule)
	if err != nil {
		return nil, err
	}

	id := utils.DeriveMemoryID(in.Capsule, in.IdemKey)
	fp := payloadFingerprint(in)

	if existing, err := store.GetMemory(id); err == nil {
		if existing.PayloadHash == fp {
			logger.Debug("memory_create_replayed", "memory", id, "capsule", in.Capsule)
			return existing, nil
		}
		return nil, faults.Conflict("idempotency key %q already used with a different payload", in.IdemKey)
	} else if !faults.Is(err, faults.KindNotFound) {
		return nil, err
	}

	if max := config.Limits().MaxMemoriesPerCapsule; max > 0 && len(c.MemoryIDs) >= max {
		return nil, faults.New(faults.KindResourceExhausted, "capsule %s is at its memory quota (%d)", in.Capsule, max)
	}
	if max := uint64(config.Limits().MaxBlobBytes); max > 0 {
		for i := range in.Assets {
			if in.Assets[i].Tier == models.TierInternalBlob && uint64(len(in.Assets[i].Bytes)) > max {
				return nil, faults.New(faults.KindResourceExhausted, "blob asset exceeds %d byte limit", max)
			}
		}
	}

	now := utils.NowNano()
	assets := make([]models.Asset, len(in.Assets))
	for i, a := range in.Assets {
		switch a.Tier {
		case models.TierInline:
			a.Hash = utils.HashBytes(a.Bytes)
			a.ByteLen = uint64(len(a.Bytes))
		case models.TierInternalBlob:
			meta, err := store.PutBlob(in.Capsule, a.Bytes)
			if err != nil {
				return nil, err
			}
			a.Bytes = nil
			a.Locator = meta.Locator
			a.Hash = meta.Hash
			a.ByteLen = meta.ByteLen
		case models.TierExternalBlob:
			// hash and length are provider-declared, kept as supplied
		}
		assets[i] = a
	}

	m := &models.Memory{
		ID:          id,
		Capsule:     in.Capsule,
		Meta:        in.Meta,
		Assets:      assets,
		Creator:     requester,
		CreatedTS:   now,
		UpdatedTS:   now,
		UploadedTS:  now,
		IdemKey:     in.IdemKey,
		PayloadHash: fp,
	}
	if err := store.SaveMemory(m); err != nil {
		return nil, err
	}

	c.MemoryIDs = append(c.MemoryIDs, id)
	sort.Strings(c.MemoryIDs)
	c.UpdatedTS = now
	if err := store.SaveCapsule(c); err != nil {
		return nil, err
	}

	telemetry.ObserveOp("memories", "create", "ok")
	logger.AuditEvent("memory_created", "memory", id, "capsule", in.Capsule, "creator", requester, "assets", len(assets))
	return m, nil
}

// ReadMetadata returns the memory with all asset bytes stripped.
func ReadMetadata(requester, id string) (*models.Memory, error) {
	if err := acl.Require(requester, models.ResourceMemory, id, models.PermView); err != nil {
		return nil, err
	}
	m, err := store.GetMemory(id)
	if err != nil {
		return nil, err
	}
	out := m.StripBytes()
	return &out, nil
}

// ReadFull returns the memory with inline bytes present and internal-blob
// bytes materialized from the blob store.
func ReadFull(requester, id string) (*models.Memory, error) {
	if err := acl.Require(requester, models.ResourceMemory, id, models.PermView|models.PermDownload); err != nil {
		return nil, err
	}
	m, err := store.GetMemory(id)
	if err != nil {
		return nil, err
	}
	for i := range m.Assets {
		if m.Assets[i].Tier == models.TierInternalBlob && m.Assets[i].Locator != "" {
			data, err := store.GetBlob(m.Assets[i].Locator)
			if err != nil {
				return nil, err
			}
			m.Assets[i].Bytes = data
		}
	}
	return m, nil
}

// ReadAsset returns one asset with its bytes (inline, internal) or its
// external reference. Index is positional within the memory.
func ReadAsset(requester, id string, index int) (*models.Asset, error) {
	if err := acl.Require(requester, models.ResourceMemory, id, models.PermView|models.PermDownload); err != nil {
		return nil, err
	}
	m, err := store.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(m.Assets) {
		return nil, faults.NotFound("memory %s has no asset %d", id, index)
	}
	a := m.Assets[index]
	if a.Tier == models.TierInternalBlob && a.Locator != "" {
		data, err := store.GetBlob(a.Locator)
		if err != nil {
			return nil, err
		}
		a.Bytes = data
	}
	return &a, nil
}

// List returns metadata-only memories of a capsule.
func List(requester, capsuleID string) ([]models.Memory, error) {
	if err := acl.Require(requester, models.ResourceCapsule, capsuleID, models.PermView); err != nil {
		return nil, err
	}
	ms, err := store.ListMemories(capsuleID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Memory, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.StripBytes())
	}
	return out, nil
}

// Update applies a partial metadata update. Asset tiers are immutable.
func Update(requester, id string, p *models.MemoryPartial) (*models.Memory, error) {
	if err := acl.Require(requester, models.ResourceMemory, id, models.PermManage); err != nil {
		return nil, err
	}
	m, err := store.GetMemory(id)
	if err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(m.Capsule)
	defer unlock()

	// reload under the lock
	m, err = store.GetMemory(id)
	if err != nil {
		return nil, err
	}
	applyPartial(&m.Meta, p)
	m.UpdatedTS = utils.NowNano()
	if err := store.SaveMemory(m); err != nil {
		return nil, err
	}
	telemetry.ObserveOp("memories", "update", "ok")
	out := m.StripBytes()
	return &out, nil
}

func applyPartial(meta *models.MemoryMeta, p *models.MemoryPartial) {
	if p.Title != nil {
		meta.Title = *p.Title
	}
	if p.Description != nil {
		meta.Description = *p.Description
	}
	if p.Tags != nil {
		meta.Tags = *p.Tags
	}
	if p.MemoryType != nil {
		meta.MemoryType = *p.MemoryType
	}
	if p.DateOfMemory != nil {
		meta.DateOfMemory = *p.DateOfMemory
	}
	if p.People != nil {
		meta.People = *p.People
	}
	if p.Location != nil {
		meta.Location = *p.Location
	}
	if p.Notes != nil {
		meta.Notes = *p.Notes
	}
}

// Delete removes a memory record. With cleanupAssets, internal blobs are
// deleted synchronously and external blobs are queued as cleanup notices
// swept out of band, so the delete itself never blocks on a provider.
func Delete(requester, id string, cleanupAssets bool) error {
	if err := acl.Require(requester, models.ResourceMemory, id, models.PermManage); err != nil {
		return err
	}
	m, err := store.GetMemory(id)
	if err != nil {
		return err
	}

	unlock := store.LockCapsule(m.Capsule)
	defer unlock()
	if err := deleteLocked(m, cleanupAssets); err != nil {
		return err
	}
	telemetry.ObserveOp("memories", "delete", "ok")
	return nil
}

// deleteLocked performs the cleanup and removal; the capsule lock must be
// held.
func deleteLocked(m *models.Memory, cleanupAssets bool) error {
	if cleanupAssets {
		// Cleanup is best effort: a stuck blob must not keep the record alive.
		if err := cleanupAssetsLocked(m); err != nil {
			logger.Warn("asset_cleanup_incomplete", "memory", m.ID, "capsule", m.Capsule, "error", err.Error())
		}
	}
	if err := store.DeleteMemory(m); err != nil {
		return err
	}
	if err := store.DeleteInvitesForResource(m.ID); err != nil {
		return err
	}
	if err := galleries.DropMemoryRefs(m.Capsule, m.ID); err != nil {
		return err
	}
	if c, err := store.GetCapsule(m.Capsule); err == nil {
		c.MemoryIDs = removeString(c.MemoryIDs, m.ID)
		c.UpdatedTS = utils.NowNano()
		if err := store.SaveCapsule(c); err != nil {
			return err
		}
	} else if !faults.Is(err, faults.KindNotFound) {
		return err
	}
	logger.AuditEvent("memory_deleted", "memory", m.ID, "capsule", m.Capsule)
	return nil
}

// deleteBlobFn is swapped in tests to exercise cleanup failures.
var deleteBlobFn = store.DeleteBlob

// cleanupAssetsLocked releases stored asset payloads: internal blobs are
// deleted, external blobs produce cleanup notices. Each asset is attempted
// regardless of earlier failures; the joined error reports what remains.
func cleanupAssetsLocked(m *models.Memory) error {
	var errs []error
	for i := range m.Assets {
		a := &m.Assets[i]
		switch a.Tier {
		case models.TierInternalBlob:
			if a.Locator == "" {
				continue
			}
			if err := deleteBlobFn(a.Locator); err != nil && !faults.Is(err, faults.KindNotFound) {
				errs = append(errs, err)
				continue
			}
			a.Locator = ""
		case models.TierExternalBlob:
			if a.StorageKey == "" {
				continue
			}
			n := &models.ExternalCleanupNotice{
				Memory:     m.ID,
				Capsule:    m.Capsule,
				Provider:   a.Provider,
				StorageKey: a.StorageKey,
				URL:        a.URL,
				QueuedTS:   utils.NowNano(),
			}
			if err := store.QueueExternalCleanup(n); err != nil {
				errs = append(errs, err)
				continue
			}
			a.StorageKey = ""
			a.URL = ""
		case models.TierInline:
			a.Bytes = nil
		}
	}
	return errors.Join(errs...)
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
