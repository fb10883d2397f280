// Package acl resolves effective permissions for a requester on a
// resource. Resolution is purely local: every grant source it consults
// lives in this node's store, including accepted invites from remote
// capsules, which are stored by value at exchange time.
package acl

import (
	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/utils"
)

// RoleTemplate maps a role name to its default permission mask.
func RoleTemplate(r models.Role) models.Perm {
	switch r {
	case models.RoleOwner, models.RoleSuperadmin:
		return models.PermFull
	case models.RoleAdmin:
		return models.PermView | models.PermDownload | models.PermShare | models.PermManage
	case models.RoleMember:
		return models.PermView | models.PermDownload
	case models.RoleGuest:
		return models.PermView
	}
	return 0
}

// EffectivePermissions unions every live grant the requester holds on the
// resource: ownership, direct memberships, consumed magic links, the
// public policy, and accepted sharing invites. Grants on a memory's or
// gallery's parent capsule carry down to the contained resource.
func EffectivePermissions(requester string, rt models.ResourceType, rid string) (models.Perm, error) {
	if !models.ValidResourceType(rt) {
		return 0, faults.InvalidArgument("unknown resource type %q", rt)
	}
	now := utils.NowNano()

	parent, err := parentCapsule(rt, rid)
	if err != nil {
		return 0, err
	}
	if parent != nil && (parent.OwnedBy(requester) || parent.ControlledBy(requester)) {
		return models.PermFull, nil
	}

	var perm models.Perm

	// Direct membership on the resource.
	if m, err := store.GetMembership(rt, rid, requester); err == nil {
		if membershipLive(m, now) {
			perm |= m.Perm
		}
	} else if !faults.Is(err, faults.KindNotFound) {
		return 0, err
	}

	// Magic links the requester has consumed. Links are re-read at check
	// time so revocation and expiry take effect immediately.
	linkIDs, err := store.ListLinkGrants(rid, requester)
	if err != nil {
		return 0, err
	}
	for _, lid := range linkIDs {
		l, err := store.GetMagicLink(lid)
		if err != nil {
			if faults.Is(err, faults.KindNotFound) {
				continue
			}
			return 0, err
		}
		if linkLive(l, now) {
			perm |= l.Perm
		}
	}

	// Public policy: public_auth grants its mask to any caller that got
	// this far; public_link grants only through consumed links above.
	if p, err := store.GetPublicPolicy(rt, rid); err == nil {
		if policyLive(p, now) && p.Mode == models.ModePublicAuth {
			perm |= p.Perm
		}
	} else if !faults.Is(err, faults.KindNotFound) {
		return 0, err
	}

	// Accepted invites naming a capsule the requester owns or controls.
	invPerm, err := invitePermissions(requester, rid, now)
	if err != nil {
		return 0, err
	}
	perm |= invPerm

	// Capsule-level grants flow down to contained memories and galleries.
	if rt != models.ResourceCapsule && parent != nil {
		inherited, err := EffectivePermissions(requester, models.ResourceCapsule, parent.ID)
		if err != nil {
			return 0, err
		}
		perm |= inherited
	}

	return perm, nil
}

// Require returns Unauthorized unless the requester's effective
// permissions contain every bit of want.
func Require(requester string, rt models.ResourceType, rid string, want models.Perm) error {
	perm, err := EffectivePermissions(requester, rt, rid)
	if err != nil {
		return err
	}
	if !perm.Has(want) {
		logger.AuditEvent("permission_denied", "identity", requester, "resource", rid, "have", perm, "want", want)
		return faults.Unauthorized("identity %s lacks permission on %s", requester, rid)
	}
	return nil
}

// Grant records a direct membership. Managing grants requires MANAGE on
// the resource; validation of that is the caller's job so system paths
// (invite acceptance) can grant directly.
func Grant(m *models.ResourceMembership) error {
	if !models.ValidResourceType(m.Type) {
		return faults.InvalidArgument("unknown resource type %q", m.Type)
	}
	if m.Identity == "" {
		return faults.InvalidArgument("membership requires an identity")
	}
	if m.Perm == 0 && m.Role != "" {
		m.Perm = RoleTemplate(m.Role)
	}
	if m.Perm == 0 || m.Perm > models.PermFull {
		return faults.InvalidArgument("permission mask %d out of range", m.Perm)
	}
	if m.GrantedTS == 0 {
		m.GrantedTS = utils.NowNano()
	}
	return store.SaveMembership(m)
}

// Revoke removes a direct membership.
func Revoke(rt models.ResourceType, rid, identity string) error {
	if _, err := store.GetMembership(rt, rid, identity); err != nil {
		return err
	}
	return store.DeleteMembership(rt, rid, identity)
}

// SetPublicPolicy replaces the resource's public policy. ModePrivate
// deletes the record rather than storing a tombstone.
func SetPublicPolicy(p *models.PublicPolicy) error {
	switch p.Mode {
	case models.ModePrivate:
		return store.DeletePublicPolicy(p.Type, p.Resource)
	case models.ModePublicAuth, models.ModePublicLink:
	default:
		return faults.InvalidArgument("unknown public mode %q", p.Mode)
	}
	if p.Perm == 0 || p.Perm > models.PermFull {
		return faults.InvalidArgument("permission mask %d out of range", p.Perm)
	}
	if p.SetTS == 0 {
		p.SetTS = utils.NowNano()
	}
	return store.SavePublicPolicy(p)
}

func membershipLive(m *models.ResourceMembership, now int64) bool {
	if m.Revoked {
		return false
	}
	if m.ExpiresTS != 0 && now >= m.ExpiresTS {
		return false
	}
	return true
}

func linkLive(l *models.MagicLink, now int64) bool {
	if l.Revoked {
		return false
	}
	if l.ExpiresTS != 0 && now >= l.ExpiresTS {
		return false
	}
	return true
}

func policyLive(p *models.PublicPolicy, now int64) bool {
	if p.Revoked {
		return false
	}
	if p.ExpiresTS != 0 && now >= p.ExpiresTS {
		return false
	}
	return true
}

// invitePermissions unions live accepted invites on rid whose recipient
// capsule the requester owns, controls, or is.
func invitePermissions(requester, rid string, now int64) (models.Perm, error) {
	invs, err := store.ListInvitesByResource(rid)
	if err != nil {
		return 0, err
	}
	var perm models.Perm
	for _, inv := range invs {
		if !inv.Live(now) {
			continue
		}
		if inv.ToCapsule == requester {
			perm |= inv.Perm
			continue
		}
		c, err := store.GetCapsule(inv.ToCapsule)
		if err != nil {
			if faults.Is(err, faults.KindNotFound) {
				continue // remote recipient, grants nothing locally
			}
			return 0, err
		}
		if c.OwnedBy(requester) || c.ControlledBy(requester) {
			perm |= inv.Perm
		}
	}
	return perm, nil
}

// parentCapsule resolves the capsule a resource lives in. For capsule
// resources it is the capsule itself. A missing capsule is NotFound; a
// missing membership target falls through so grant tables can still be
// consulted while the resource record is being written.
func parentCapsule(rt models.ResourceType, rid string) (*models.Capsule, error) {
	var capsuleID string
	switch rt {
	case models.ResourceCapsule:
		capsuleID = rid
	case models.ResourceMemory:
		m, err := store.GetMemory(rid)
		if err != nil {
			if faults.Is(err, faults.KindNotFound) {
				return nil, nil
			}
			return nil, err
		}
		capsuleID = m.Capsule
	case models.ResourceGallery:
		g, err := store.GetGallery(rid)
		if err != nil {
			if faults.Is(err, faults.KindNotFound) {
				return nil, nil
			}
			return nil, err
		}
		capsuleID = g.Capsule
	}
	c, err := store.GetCapsule(capsuleID)
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}
