// Package galleries implements ordered collections of memory references
// inside a capsule.
package galleries

import (
	"sort"

	"capsuled/pkg/acl"
	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/telemetry"
	"capsuled/pkg/utils"
	"capsuled/pkg/validation"
)

// CreateInput is a gallery create payload.
type CreateInput struct {
	Capsule string                `json:"capsule"`
	Title   string                `json:"title,omitempty"`
	Entries []models.GalleryEntry `json:"entries,omitempty"`
}

// Create stores a gallery. Every entry must reference a memory that
// exists in the same capsule.
func Create(requester string, in *CreateInput) (*models.Gallery, error) {
	if err := validation.ValidateGalleryEntries(in.Entries); err != nil {
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
	if err := checkEntries(in.Capsule, in.Entries); err != nil {
		return nil, err
	}

	now := utils.NowNano()
	g := &models.Gallery{
		ID:        utils.GenGalleryID(),
		Capsule:   in.Capsule,
		Title:     in.Title,
		Entries:   sortedEntries(in.Entries),
		Creator:   requester,
		CreatedTS: now,
		UpdatedTS: now,
	}
	if err := store.SaveGallery(g); err != nil {
		return nil, err
	}

	c.GalleryIDs = append(c.GalleryIDs, g.ID)
	sort.Strings(c.GalleryIDs)
	c.UpdatedTS = now
	if err := store.SaveCapsule(c); err != nil {
		return nil, err
	}

	telemetry.ObserveOp("galleries", "create", "ok")
	logger.AuditEvent("gallery_created", "gallery", g.ID, "capsule", in.Capsule, "creator", requester)
	return g, nil
}

// Read returns one gallery.
func Read(requester, id string) (*models.Gallery, error) {
	if err := acl.Require(requester, models.ResourceGallery, id, models.PermView); err != nil {
		return nil, err
	}
	return store.GetGallery(id)
}

// List returns the galleries of a capsule.
func List(requester, capsuleID string) ([]*models.Gallery, error) {
	if err := acl.Require(requester, models.ResourceCapsule, capsuleID, models.PermView); err != nil {
		return nil, err
	}
	return store.ListGalleries(capsuleID)
}

// Update applies a partial update. A non-nil entry list replaces the
// whole list after the same same-capsule reference check as creation.
func Update(requester, id string, p *models.GalleryPartial) (*models.Gallery, error) {
	if err := acl.Require(requester, models.ResourceGallery, id, models.PermManage); err != nil {
		return nil, err
	}
	g, err := store.GetGallery(id)
	if err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(g.Capsule)
	defer unlock()

	g, err = store.GetGallery(id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		g.Title = *p.Title
	}
	if p.Entries != nil {
		if err := validation.ValidateGalleryEntries(*p.Entries); err != nil {
			return nil, err
		}
		if err := checkEntries(g.Capsule, *p.Entries); err != nil {
			return nil, err
		}
		g.Entries = sortedEntries(*p.Entries)
	}
	g.UpdatedTS = utils.NowNano()
	if err := store.SaveGallery(g); err != nil {
		return nil, err
	}
	telemetry.ObserveOp("galleries", "update", "ok")
	return g, nil
}

// Delete removes a gallery. Member memories are untouched; a gallery only
// holds references.
func Delete(requester, id string) error {
	if err := acl.Require(requester, models.ResourceGallery, id, models.PermManage); err != nil {
		return err
	}
	g, err := store.GetGallery(id)
	if err != nil {
		return err
	}

	unlock := store.LockCapsule(g.Capsule)
	defer unlock()

	if err := store.DeleteGallery(g); err != nil {
		return err
	}
	if err := store.DeleteInvitesForResource(g.ID); err != nil {
		return err
	}
	if c, err := store.GetCapsule(g.Capsule); err == nil {
		c.GalleryIDs = removeString(c.GalleryIDs, g.ID)
		c.UpdatedTS = utils.NowNano()
		if err := store.SaveCapsule(c); err != nil {
			return err
		}
	} else if !faults.Is(err, faults.KindNotFound) {
		return err
	}
	telemetry.ObserveOp("galleries", "delete", "ok")
	logger.AuditEvent("gallery_deleted", "gallery", id, "capsule", g.Capsule)
	return nil
}

// DropMemoryRefs removes references to a deleted memory from every
// gallery in the capsule. The capsule lock must be held.
func DropMemoryRefs(capsuleID, memoryID string) error {
	gs, err := store.ListGalleries(capsuleID)
	if err != nil {
		return err
	}
	for _, g := range gs {
		kept := g.Entries[:0]
		changed := false
		for _, e := range g.Entries {
			if e.Memory == memoryID {
				changed = true
				continue
			}
			kept = append(kept, e)
		}
		if !changed {
			continue
		}
		g.Entries = kept
		g.UpdatedTS = utils.NowNano()
		if err := store.SaveGallery(g); err != nil {
			return err
		}
	}
	return nil
}

// PurgeCapsule removes every gallery without permission checks; used by
// the capsule delete cascade, which already holds the capsule lock.
func PurgeCapsule(capsuleID string) error {
	gs, err := store.ListGalleries(capsuleID)
	if err != nil {
		return err
	}
	for _, g := range gs {
		if err := store.DeleteGallery(g); err != nil {
			return err
		}
		if err := store.DeleteInvitesForResource(g.ID); err != nil {
			return err
		}
	}
	return nil
}

// checkEntries verifies every referenced memory exists in the capsule.
func checkEntries(capsuleID string, entries []models.GalleryEntry) error {
	for _, e := range entries {
		m, err := store.GetMemory(e.Memory)
		if err != nil {
			return err
		}
		if m.Capsule != capsuleID {
			return faults.InvalidArgument("memory %s belongs to another capsule", e.Memory)
		}
	}
	return nil
}

func sortedEntries(entries []models.GalleryEntry) []models.GalleryEntry {
	out := make([]models.GalleryEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
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
