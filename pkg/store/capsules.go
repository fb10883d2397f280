package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
)

// SaveCapsule persists the capsule record and refreshes its owner and
// subject indexes atomically.
func SaveCapsule(c *models.Capsule) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal capsule: %w", err)
	}
	sets := map[string][]byte{
		CapsuleMetaKey(c.ID): data,
	}
	for _, o := range c.Owners {
		sets[OwnerIdxKey(o.Identity, c.ID)] = []byte{}
	}
	sets[SubjectIdxKey(c.Subject, c.ID)] = []byte{}
	if c.IsSelf() {
		sets[SelfCapIdxKey(c.Subject)] = []byte(c.ID)
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("save_capsule_failed", "capsule", c.ID, "error", err)
		return err
	}
	logger.Debug("capsule_saved", "capsule", c.ID)
	return nil
}

// GetCapsule loads one capsule by id.
func GetCapsule(id string) (*models.Capsule, error) {
	v, err := getRaw(CapsuleMetaKey(id))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("capsule %s", id)
		}
		return nil, err
	}
	var c models.Capsule
	if err := json.Unmarshal(v, &c); err != nil {
		return nil, fmt.Errorf("invalid capsule record %s: %w", id, err)
	}
	return &c, nil
}

// DeleteCapsule removes the capsule record and all of its indexes. Memories
// and galleries must already be cascaded by the caller.
func DeleteCapsule(c *models.Capsule) error {
	sets := map[string][]byte{
		CapsuleMetaKey(c.ID):            nil,
		SubjectIdxKey(c.Subject, c.ID): nil,
	}
	for _, o := range c.Owners {
		sets[OwnerIdxKey(o.Identity, c.ID)] = nil
	}
	if c.IsSelf() {
		sets[SelfCapIdxKey(c.Subject)] = nil
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("delete_capsule_failed", "capsule", c.ID, "error", err)
		return err
	}
	logger.Info("capsule_deleted", "capsule", c.ID)
	return nil
}

// SelfCapsuleID returns the id of identity's self-capsule, or NotFound.
func SelfCapsuleID(identity string) (string, error) {
	v, err := getRaw(SelfCapIdxKey(identity))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// ListCapsulesByOwner returns every capsule the identity owns.
func ListCapsulesByOwner(identity string) ([]*models.Capsule, error) {
	prefix := fmt.Sprintf("idx:owner:%s:cap:", identity)
	return listIndexedCapsules(prefix)
}

// ListCapsulesBySubject returns every capsule about the subject.
func ListCapsulesBySubject(subject string) ([]*models.Capsule, error) {
	prefix := fmt.Sprintf("idx:subject:%s:cap:", subject)
	return listIndexedCapsules(prefix)
}

func listIndexedCapsules(prefix string) ([]*models.Capsule, error) {
	var ids []string
	err := scanPrefix(prefix, func(k string, _ []byte) bool {
		ids = append(ids, k[len(prefix):])
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Capsule, 0, len(ids))
	for _, id := range ids {
		c, err := GetCapsule(id)
		if err != nil {
			// index can briefly outlive the record; skip strays
			if faults.Is(err, faults.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// CountCapsules returns the number of stored capsules. Admin use.
func CountCapsules() (int, error) {
	n := 0
	err := scanPrefix("cap:", func(k string, _ []byte) bool {
		if strings.HasSuffix(k, ":meta") {
			n++
		}
		return true
	})
	return n, err
}
