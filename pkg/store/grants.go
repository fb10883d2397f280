package store

import (
	"encoding/json"
	"fmt"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
)

// linkHashIdx maps a token hash to its link id so consumption does not
// need the caller to know the link id.
const linkHashIdx = "acl:linkhash:%s"

// SaveMembership persists one resource membership grant.
func SaveMembership(m *models.ResourceMembership) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(aclMemberKey, m.Type, m.Resource, m.Identity)
	if err := setRaw(key, data); err != nil {
		logger.Error("save_membership_failed", "resource", m.Resource, "identity", m.Identity, "error", err)
		return err
	}
	logger.AuditEvent("membership_saved", "resource", m.Resource, "identity", m.Identity, "perm", m.Perm, "source", m.Source, "granted_by", m.GrantedBy)
	return nil
}

// GetMembership loads the membership for (identity, resource) or NotFound.
func GetMembership(rt models.ResourceType, rid, identity string) (*models.ResourceMembership, error) {
	v, err := getRaw(fmt.Sprintf(aclMemberKey, rt, rid, identity))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("membership %s on %s", identity, rid)
		}
		return nil, err
	}
	var m models.ResourceMembership
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMembership removes the grant for (identity, resource).
func DeleteMembership(rt models.ResourceType, rid, identity string) error {
	if err := deleteRaw(fmt.Sprintf(aclMemberKey, rt, rid, identity)); err != nil {
		return err
	}
	logger.AuditEvent("membership_deleted", "resource", rid, "identity", identity)
	return nil
}

// ListMemberships returns all grants on one resource.
func ListMemberships(rt models.ResourceType, rid string) ([]*models.ResourceMembership, error) {
	prefix := fmt.Sprintf("acl:member:%s:%s:", rt, rid)
	var out []*models.ResourceMembership
	err := scanPrefix(prefix, func(_ string, v []byte) bool {
		var m models.ResourceMembership
		if json.Unmarshal(v, &m) == nil {
			out = append(out, &m)
		}
		return true
	})
	return out, err
}

// SavePublicPolicy persists the per-resource public policy.
func SavePublicPolicy(p *models.PublicPolicy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(aclPolicyKey, p.Type, p.Resource)
	if err := setRaw(key, data); err != nil {
		logger.Error("save_policy_failed", "resource", p.Resource, "error", err)
		return err
	}
	logger.AuditEvent("public_policy_set", "resource", p.Resource, "mode", p.Mode, "perm", p.Perm, "set_by", p.SetBy)
	return nil
}

// GetPublicPolicy loads the policy for one resource or NotFound.
func GetPublicPolicy(rt models.ResourceType, rid string) (*models.PublicPolicy, error) {
	v, err := getRaw(fmt.Sprintf(aclPolicyKey, rt, rid))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("policy for %s", rid)
		}
		return nil, err
	}
	var p models.PublicPolicy
	if err := json.Unmarshal(v, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePublicPolicy clears the policy for one resource.
func DeletePublicPolicy(rt models.ResourceType, rid string) error {
	return deleteRaw(fmt.Sprintf(aclPolicyKey, rt, rid))
}

// SaveMagicLink persists a magic link plus its resource and token-hash
// indexes.
func SaveMagicLink(l *models.MagicLink) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	sets := map[string][]byte{
		fmt.Sprintf(aclLinkKey, l.ID):                    data,
		fmt.Sprintf(aclRLinkIdx, l.Type, l.Resource, l.ID): []byte{},
		fmt.Sprintf(linkHashIdx, l.TokenHash):            []byte(l.ID),
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("save_magic_link_failed", "link", l.ID, "error", err)
		return err
	}
	return nil
}

// GetMagicLink loads one link by id.
func GetMagicLink(id string) (*models.MagicLink, error) {
	v, err := getRaw(fmt.Sprintf(aclLinkKey, id))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("magic link %s", id)
		}
		return nil, err
	}
	var l models.MagicLink
	if err := json.Unmarshal(v, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// FindMagicLinkByHash resolves a token hash to its link.
func FindMagicLinkByHash(tokenHash string) (*models.MagicLink, error) {
	v, err := getRaw(fmt.Sprintf(linkHashIdx, tokenHash))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("magic link token")
		}
		return nil, err
	}
	return GetMagicLink(string(v))
}

// ListMagicLinks returns all links minted for one resource.
func ListMagicLinks(rt models.ResourceType, rid string) ([]*models.MagicLink, error) {
	prefix := fmt.Sprintf("acl:rlink:%s:%s:", rt, rid)
	var ids []string
	err := scanPrefix(prefix, func(k string, _ []byte) bool {
		ids = append(ids, k[len(prefix):])
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.MagicLink, 0, len(ids))
	for _, id := range ids {
		l, err := GetMagicLink(id)
		if err != nil {
			if faults.Is(err, faults.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// RecordLinkConsumption appends one redemption attempt and, when it
// succeeded, the per-identity link grant the permission engine reads.
func RecordLinkConsumption(rid string, c *models.MagicLinkConsumption) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	sets := map[string][]byte{
		fmt.Sprintf(aclLinkUseKey, c.Link, c.TS): data,
	}
	if c.OK {
		sets[fmt.Sprintf(aclLinkGrant, rid, c.Identity, c.Link)] = []byte{}
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("record_link_consumption_failed", "link", c.Link, "error", err)
		return err
	}
	logger.AuditEvent("magic_link_consumption", "link", c.Link, "identity", c.Identity, "ok", c.OK, "reason", c.Reason)
	return nil
}

// ListLinkGrants returns the link ids the identity has unlocked on rid.
func ListLinkGrants(rid, identity string) ([]string, error) {
	prefix := fmt.Sprintf("acl:linkgrant:%s:%s:", rid, identity)
	var out []string
	err := scanPrefix(prefix, func(k string, _ []byte) bool {
		out = append(out, k[len(prefix):])
		return true
	})
	return out, err
}

// ListLinkConsumptions returns redemption attempts for one link, oldest
// first.
func ListLinkConsumptions(linkID string) ([]*models.MagicLinkConsumption, error) {
	prefix := fmt.Sprintf("acl:linkuse:%s:", linkID)
	var out []*models.MagicLinkConsumption
	err := scanPrefix(prefix, func(_ string, v []byte) bool {
		var c models.MagicLinkConsumption
		if json.Unmarshal(v, &c) == nil {
			out = append(out, &c)
		}
		return true
	})
	return out, err
}
