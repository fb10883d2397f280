// Package caps implements capsule lifecycle: self and managed creation,
// metadata reads and partial updates, connection and controller edges,
// and cascading deletion.
package caps

import (
	"capsuled/pkg/acl"
	"capsuled/pkg/faults"
	"capsuled/pkg/galleries"
	"capsuled/pkg/logger"
	"capsuled/pkg/memories"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/telemetry"
	"capsuled/pkg/utils"
	"capsuled/pkg/validation"
)

// CreateSelf ensures the identity's self-capsule exists and returns it.
// At most one self-capsule exists per identity; repeated calls return the
// existing one.
func CreateSelf(identity string) (*models.Capsule, error) {
	if err := validation.ValidateSubject(identity); err != nil {
		return nil, err
	}

	if cid, err := store.SelfCapsuleID(identity); err == nil {
		return store.GetCapsule(cid)
	} else if !faults.Is(err, faults.KindNotFound) {
		return nil, err
	}

	now := utils.NowNano()
	c := &models.Capsule{
		ID:        utils.GenCapsuleID(),
		Subject:   identity,
		Owners:    []models.Owner{{Identity: identity, SinceTS: now, LastSeenTS: now}},
		CreatedTS: now,
		UpdatedTS: now,
	}

	unlock := store.LockCapsule("self:" + identity)
	defer unlock()

	// re-check under the lock; two concurrent first calls race on the index
	if cid, err := store.SelfCapsuleID(identity); err == nil {
		return store.GetCapsule(cid)
	} else if !faults.Is(err, faults.KindNotFound) {
		return nil, err
	}
	if err := store.SaveCapsule(c); err != nil {
		return nil, err
	}
	telemetry.ObserveOp("capsules", "create_self", "ok")
	logger.AuditEvent("capsule_created", "capsule", c.ID, "subject", identity, "kind", "self")
	return c, nil
}

// CreateManaged creates a capsule about a subject on behalf of a creator
// who becomes its owner. The class labels why the subject cannot own it.
func CreateManaged(creator, subject string, class models.ManagedClass) (*models.Capsule, error) {
	if err := validation.ValidateSubject(subject); err != nil {
		return nil, err
	}
	if !models.ValidManagedClass(class) {
		return nil, faults.InvalidArgument("unknown managed class %q", class)
	}
	if subject == creator {
		return nil, faults.InvalidArgument("a capsule about yourself must be a self-capsule")
	}

	now := utils.NowNano()
	c := &models.Capsule{
		ID:        utils.GenCapsuleID(),
		Subject:   subject,
		Class:     class,
		Owners:    []models.Owner{{Identity: creator, SinceTS: now, LastSeenTS: now}},
		CreatedTS: now,
		UpdatedTS: now,
	}
	if err := store.SaveCapsule(c); err != nil {
		return nil, err
	}
	telemetry.ObserveOp("capsules", "create_managed", "ok")
	logger.AuditEvent("capsule_created", "capsule", c.ID, "subject", subject, "kind", "managed", "class", class, "creator", creator)
	return c, nil
}

// Read returns the capsule record.
func Read(requester, id string) (*models.Capsule, error) {
	if err := acl.Require(requester, models.ResourceCapsule, id, models.PermView); err != nil {
		return nil, err
	}
	return store.GetCapsule(id)
}

// SelfCapsule returns the identity's own capsule, or NotFound.
func SelfCapsule(identity string) (*models.Capsule, error) {
	cid, err := store.SelfCapsuleID(identity)
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("no self-capsule for %s", identity)
		}
		return nil, err
	}
	return store.GetCapsule(cid)
}

// ListOwned returns the capsules the identity owns.
func ListOwned(identity string) ([]*models.Capsule, error) {
	return store.ListCapsulesByOwner(identity)
}

// ListAbout returns the capsules whose subject is the given identity.
func ListAbout(subject string) ([]*models.Capsule, error) {
	return store.ListCapsulesBySubject(subject)
}

// Update applies a partial metadata update: controller and connection
// edges, additional owners, class relabeling, external binding.
func Update(requester, id string, p *models.CapsulePartial) (*models.Capsule, error) {
	if err := acl.Require(requester, models.ResourceCapsule, id, models.PermManage); err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(id)
	defer unlock()

	c, err := store.GetCapsule(id)
	if err != nil {
		return nil, err
	}
	now := utils.NowNano()

	if p.AddOwner != nil {
		if !c.OwnedBy(requester) {
			return nil, faults.Unauthorized("only an owner can add owners to %s", id)
		}
		if !c.OwnedBy(p.AddOwner.Identity) {
			o := *p.AddOwner
			if o.SinceTS == 0 {
				o.SinceTS = now
			}
			c.Owners = append(c.Owners, o)
		}
	}
	if p.AddController != nil && !c.ControlledBy(p.AddController.Identity) {
		ct := *p.AddController
		ct.GrantedBy = requester
		if ct.GrantedTS == 0 {
			ct.GrantedTS = now
		}
		c.Controllers = append(c.Controllers, ct)
	}
	if p.DropController != nil {
		kept := c.Controllers[:0]
		for _, ct := range c.Controllers {
			if ct.Identity != *p.DropController {
				kept = append(kept, ct)
			}
		}
		c.Controllers = kept
	}
	if p.AddConnection != nil {
		conn := *p.AddConnection
		if conn.Peer == "" {
			return nil, faults.InvalidArgument("connection requires a peer")
		}
		if conn.CreatedTS == 0 {
			conn.CreatedTS = now
		}
		dup := false
		for _, existing := range c.Connections {
			if existing.Peer == conn.Peer {
				dup = true
				break
			}
		}
		if !dup {
			c.Connections = append(c.Connections, conn)
		}
	}
	if p.DropConnection != nil {
		kept := c.Connections[:0]
		for _, conn := range c.Connections {
			if conn.Peer != *p.DropConnection {
				kept = append(kept, conn)
			}
		}
		c.Connections = kept
	}
	if p.Class != nil {
		if !models.ValidManagedClass(*p.Class) {
			return nil, faults.InvalidArgument("unknown managed class %q", *p.Class)
		}
		c.Class = *p.Class
	}
	if p.BoundExternally != nil {
		c.BoundExternally = *p.BoundExternally
	}

	c.UpdatedTS = now
	if err := store.SaveCapsule(c); err != nil {
		return nil, err
	}
	telemetry.ObserveOp("capsules", "update", "ok")
	logger.AuditEvent("capsule_updated", "capsule", id, "by", requester)
	return c, nil
}

// Delete removes a capsule and cascades through everything it contains:
// memories with their stored assets, galleries, grant tables, and invite
// records on the capsule itself.
func Delete(requester, id string) error {
	if err := acl.Require(requester, models.ResourceCapsule, id, models.PermOwn); err != nil {
		return err
	}

	unlock := store.LockCapsule(id)
	defer unlock()

	c, err := store.GetCapsule(id)
	if err != nil {
		return err
	}

	ms, err := store.ListMemories(id)
	if err != nil {
		return err
	}
	if err := memories.PurgeCapsule(id); err != nil {
		return err
	}
	if err := galleries.PurgeCapsule(id); err != nil {
		return err
	}
	for _, m := range ms {
		if err := purgeResourceGrants(models.ResourceMemory, m.ID); err != nil {
			return err
		}
	}
	if err := purgeResourceGrants(models.ResourceCapsule, id); err != nil {
		return err
	}
	if err := store.DeleteInvitesForResource(id); err != nil {
		return err
	}
	if err := store.DeleteCapsule(c); err != nil {
		return err
	}
	telemetry.ObserveOp("capsules", "delete", "ok")
	logger.AuditEvent("capsule_deleted", "capsule", id, "by", requester)
	return nil
}

// purgeResourceGrants drops memberships, policies, and magic links
// attached to one resource.
func purgeResourceGrants(rt models.ResourceType, rid string) error {
	members, err := store.ListMemberships(rt, rid)
	if err != nil {
		return err
	}
	for _, m := range members {
		if err := store.DeleteMembership(rt, rid, m.Identity); err != nil {
			return err
		}
	}
	if err := store.DeletePublicPolicy(rt, rid); err != nil && !faults.Is(err, faults.KindNotFound) {
		return err
	}
	links, err := store.ListMagicLinks(rt, rid)
	if err != nil {
		return err
	}
	for _, l := range links {
		l.Revoked = true
		if err := store.SaveMagicLink(l); err != nil {
			return err
		}
	}
	return nil
}
