package acl

import (
	"crypto/sha256"
	"encoding/hex"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/utils"
)

// HashLinkToken returns the stored form of a raw link token.
func HashLinkToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// MintLink creates a magic link on a resource and returns it with the raw
// token. The raw token is returned exactly once; only its hash persists.
func MintLink(rt models.ResourceType, rid string, perm models.Perm, maxUses int, expiresTS int64, createdBy string) (*models.MagicLink, string, error) {
	if !models.ValidResourceType(rt) {
		return nil, "", faults.InvalidArgument("unknown resource type %q", rt)
	}
	if perm == 0 || perm > models.PermFull {
		return nil, "", faults.InvalidArgument("permission mask %d out of range", perm)
	}
	raw := utils.GenLinkToken()
	l := &models.MagicLink{
		ID:        utils.GenLinkID(),
		Resource:  rid,
		Type:      rt,
		TokenHash: HashLinkToken(raw),
		Perm:      perm,
		MaxUses:   maxUses,
		CreatedBy: createdBy,
		CreatedTS: utils.NowNano(),
		ExpiresTS: expiresTS,
	}
	if err := store.SaveMagicLink(l); err != nil {
		return nil, "", err
	}
	logger.AuditEvent("magic_link_minted", "link", l.ID, "resource", rid, "perm", perm, "max_uses", maxUses, "created_by", createdBy)
	return l, raw, nil
}

// ConsumeLink redeems a raw token for the calling identity. On success
// the identity gains the link's mask on the resource via a link grant;
// every attempt, failed ones included, is recorded against the link.
func ConsumeLink(rawToken, identity string) (*models.MagicLink, error) {
	now := utils.NowNano()
	l, err := store.FindMagicLinkByHash(HashLinkToken(rawToken))
	if err != nil {
		return nil, err
	}

	// Serialize on the link id so two redeemers cannot both pass the
	// use-count check before either increment lands.
	unlock := store.LockCapsule("link:" + l.ID)
	defer unlock()
	if l, err = store.GetMagicLink(l.ID); err != nil {
		return nil, err
	}

	reason := ""
	switch {
	case l.Revoked:
		reason = "revoked"
	case l.ExpiresTS != 0 && now >= l.ExpiresTS:
		reason = "expired"
	case l.MaxUses > 0 && l.Uses >= l.MaxUses:
		reason = "exhausted"
	}
	c := &models.MagicLinkConsumption{Link: l.ID, Identity: identity, TS: now, OK: reason == "", Reason: reason}
	if err := store.RecordLinkConsumption(l.Resource, c); err != nil {
		return nil, err
	}
	if reason != "" {
		return nil, faults.Unauthorized("magic link %s %s", l.ID, reason)
	}

	l.Uses++
	if err := store.SaveMagicLink(l); err != nil {
		return nil, err
	}
	return l, nil
}

// RevokeLink marks a link revoked. Grants already recorded through it
// stop resolving immediately, since checks re-read the link.
func RevokeLink(linkID, revokedBy string) error {
	l, err := store.GetMagicLink(linkID)
	if err != nil {
		return err
	}
	if l.Revoked {
		return nil
	}
	l.Revoked = true
	if err := store.SaveMagicLink(l); err != nil {
		return err
	}
	logger.AuditEvent("magic_link_revoked", "link", linkID, "revoked_by", revokedBy)
	return nil
}
