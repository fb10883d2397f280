package store

import (
	"encoding/json"
	"fmt"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
)

// SaveMemory persists the memory record and the capsule-side membership
// index in one batch.
func SaveMemory(m *models.Memory) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}
	sets := map[string][]byte{
		MemoryKey(m.ID):                       data,
		CapsuleMemoryIdx(m.Capsule, m.ID):     []byte{},
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("save_memory_failed", "memory", m.ID, "capsule", m.Capsule, "error", err)
		return err
	}
	logger.Debug("memory_saved", "memory", m.ID, "capsule", m.Capsule)
	return nil
}

// GetMemory loads one memory by id.
func GetMemory(id string) (*models.Memory, error) {
	v, err := getRaw(MemoryKey(id))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("memory %s", id)
		}
		return nil, err
	}
	var m models.Memory
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("invalid memory record %s: %w", id, err)
	}
	return &m, nil
}

// DeleteMemory removes the memory record and its capsule index.
func DeleteMemory(m *models.Memory) error {
	sets := map[string][]byte{
		MemoryKey(m.ID):                   nil,
		CapsuleMemoryIdx(m.Capsule, m.ID): nil,
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("delete_memory_failed", "memory", m.ID, "error", err)
		return err
	}
	logger.Info("memory_deleted", "memory", m.ID, "capsule", m.Capsule)
	return nil
}

// ListMemories returns every memory in a capsule, bytes included; callers
// strip bytes for metadata-only views.
func ListMemories(capsuleID string) ([]*models.Memory, error) {
	prefix := fmt.Sprintf("cap:%s:mem:", capsuleID)
	var ids []string
	err := scanPrefix(prefix, func(k string, _ []byte) bool {
		ids = append(ids, k[len(prefix):])
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Memory, 0, len(ids))
	for _, id := range ids {
		m, err := GetMemory(id)
		if err != nil {
			if faults.Is(err, faults.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// CountMemories returns the number of memories in a capsule.
func CountMemories(capsuleID string) (int, error) {
	prefix := fmt.Sprintf("cap:%s:mem:", capsuleID)
	n := 0
	err := scanPrefix(prefix, func(string, []byte) bool { n++; return true })
	return n, err
}

// QueueExternalCleanup persists a provider-side cleanup notice for a
// deleted external-blob asset. Kept outside any delete batch: losing a
// notice is tolerable, blocking a delete on it is not.
func QueueExternalCleanup(n *models.ExternalCleanupNotice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(extCleanKey, n.QueuedTS, n.Memory)
	if err := setRaw(key, data); err != nil {
		logger.Error("queue_external_cleanup_failed", "memory", n.Memory, "error", err)
		return err
	}
	logger.Info("external_cleanup_queued", "memory", n.Memory, "provider", n.Provider, "key", n.StorageKey)
	return nil
}

// ListExternalCleanup returns up to limit pending cleanup notices with
// their storage keys, oldest first. limit <= 0 means all.
func ListExternalCleanup(limit int) (map[string]*models.ExternalCleanupNotice, error) {
	out := make(map[string]*models.ExternalCleanupNotice)
	err := scanPrefix("ext:clean:", func(k string, v []byte) bool {
		var n models.ExternalCleanupNotice
		if err := json.Unmarshal(v, &n); err != nil {
			logger.Warn("invalid_cleanup_notice", "key", k, "error", err)
			return true
		}
		out[k] = &n
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// AckExternalCleanup removes a handled cleanup notice by its store key.
func AckExternalCleanup(storeKey string) error {
	return deleteRaw(storeKey)
}
