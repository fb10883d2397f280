// Package sharing implements the cross-capsule invite protocol: invites
// are exchanged by value, each side stores its own copy, flips state
// locally, and notifies the other side asynchronously. Permission
// evaluation never leaves the local node.
package sharing

import (
	"encoding/json"

	"capsuled/pkg/acl"
	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/telemetry"
	"capsuled/pkg/utils"
)

// DefaultOutbox is the process-wide delivery queue, set during startup.
// When nil, notices are persisted by Enqueue callers but nothing delivers
// them; tests wire a LocalTransport-backed outbox here.
var DefaultOutbox *Outbox

// SetOutbox replaces the default outbox.
func SetOutbox(o *Outbox) { DefaultOutbox = o }

func enqueue(target string, n *models.InviteNotice) {
	if DefaultOutbox == nil {
		logger.Warn("no_outbox_configured", "target", target, "kind", n.Kind)
		return
	}
	if err := DefaultOutbox.Enqueue(target, n); err != nil {
		// local state is already committed; delivery is best-effort
		logger.Error("notice_enqueue_failed", "target", target, "kind", n.Kind, "error", err)
	}
}

// SendInput is an invite send payload.
type SendInput struct {
	Resource  string              `json:"resource"`
	Type      models.ResourceType `json:"type"`
	ToCapsule string              `json:"to_capsule"`
	Perm      models.Perm         `json:"perm"`
	Role      models.Role         `json:"role,omitempty"`
	ExpiresTS int64               `json:"expires_ts,omitempty"`
}

// Send creates a pending SentInvite under the sending capsule and hands a
// notice to the outbox. The local commit happens before any delivery
// attempt; delivery failures never unwind it.
func Send(requester, fromCapsule string, in *SendInput) (*models.Invite, error) {
	if !models.ValidResourceType(in.Type) {
		return nil, faults.InvalidArgument("unknown resource type %q", in.Type)
	}
	if in.ToCapsule == "" || in.ToCapsule == fromCapsule {
		return nil, faults.InvalidArgument("invite requires a distinct recipient capsule")
	}
	if in.Perm == 0 && in.Role != "" {
		in.Perm = acl.RoleTemplate(in.Role)
	}
	if in.Perm == 0 || in.Perm > models.PermFull {
		return nil, faults.InvalidArgument("permission mask %d out of range", in.Perm)
	}
	if err := requireCapsuleActor(requester, fromCapsule); err != nil {
		return nil, err
	}
	if err := acl.Require(requester, in.Type, in.Resource, models.PermShare); err != nil {
		return nil, err
	}

	now := utils.NowNano()
	inv := &models.Invite{
		ID:          utils.GenInviteID(),
		Resource:    in.Resource,
		Type:        in.Type,
		FromCapsule: fromCapsule,
		ToCapsule:   in.ToCapsule,
		Perm:        in.Perm,
		Role:        in.Role,
		Status:      models.InvitePending,
		CreatedTS:   now,
		UpdatedTS:   now,
		ExpiresTS:   in.ExpiresTS,
	}

	unlock := store.LockCapsule(fromCapsule)
	if err := store.SaveSentInvite(inv); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	enqueue(in.ToCapsule, &models.InviteNotice{Kind: models.NoticeInvite, Invite: *inv, SentTS: now})
	telemetry.ObserveOp("sharing", "send", "ok")
	logger.AuditEvent("invite_sent", "invite", inv.ID, "resource", in.Resource, "from", fromCapsule, "to", in.ToCapsule, "perm", in.Perm)
	return inv, nil
}

// ListSent returns the capsule's sent invites, lazily expiring stale
// pending ones.
func ListSent(requester, capsuleID string) ([]*models.Invite, error) {
	if err := requireCapsuleActor(requester, capsuleID); err != nil {
		return nil, err
	}
	invs, err := store.ListSentInvites(capsuleID)
	if err != nil {
		return nil, err
	}
	return expireStale(invs, store.SaveSentInvite)
}

// ListReceived returns the capsule's received invites, lazily expiring
// stale pending ones.
func ListReceived(requester, capsuleID string) ([]*models.Invite, error) {
	if err := requireCapsuleActor(requester, capsuleID); err != nil {
		return nil, err
	}
	invs, err := store.ListReceivedInvites(capsuleID)
	if err != nil {
		return nil, err
	}
	return expireStale(invs, store.SaveReceivedInvite)
}

func expireStale(invs []*models.Invite, save func(*models.Invite) error) ([]*models.Invite, error) {
	now := utils.NowNano()
	for _, inv := range invs {
		if inv.Status != models.InvitePending || inv.ExpiresTS == 0 || now < inv.ExpiresTS {
			continue
		}
		inv.Status = models.InviteExpired
		inv.UpdatedTS = now
		if err := save(inv); err != nil {
			return nil, err
		}
	}
	return invs, nil
}

// Accept flips a received invite to Accepted and notifies the sender. The
// grant becomes effective the moment the local copy flips; the sender's
// mirror is advisory.
func Accept(requester, capsuleID, inviteID string) (*models.Invite, error) {
	return decideReceived(requester, capsuleID, inviteID, models.InviteAccepted)
}

// Reject flips a received invite to Rejected and notifies the sender.
func Reject(requester, capsuleID, inviteID string) (*models.Invite, error) {
	return decideReceived(requester, capsuleID, inviteID, models.InviteRejected)
}

func decideReceived(requester, capsuleID, inviteID string, outcome models.InviteStatus) (*models.Invite, error) {
	if err := requireCapsuleActor(requester, capsuleID); err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(capsuleID)
	defer unlock()

	inv, err := store.GetReceivedInvite(capsuleID, inviteID)
	if err != nil {
		return nil, err
	}
	now := utils.NowNano()
	if inv.Status == models.InvitePending && inv.ExpiresTS != 0 && now >= inv.ExpiresTS {
		inv.Status = models.InviteExpired
		inv.UpdatedTS = now
		if err := store.SaveReceivedInvite(inv); err != nil {
			return nil, err
		}
	}
	if inv.Status.Terminal() {
		if inv.Status == outcome {
			return inv, nil // replayed decision
		}
		return nil, faults.Conflict("invite %s is already %s", inviteID, inv.Status)
	}

	inv.Status = outcome
	inv.UpdatedTS = now
	if err := store.SaveReceivedInvite(inv); err != nil {
		return nil, err
	}

	enqueue(inv.FromCapsule, &models.InviteNotice{Kind: models.NoticeOutcome, Invite: *inv, Outcome: outcome, SentTS: now})
	telemetry.ObserveOp("sharing", string(outcome), "ok")
	logger.AuditEvent("invite_decided", "invite", inviteID, "capsule", capsuleID, "outcome", outcome)
	return inv, nil
}

// Revoke flips a sent invite to Revoked and notifies the recipient. The
// local flip stops the grant on this side immediately; the recipient
// honors it once the notice lands.
func Revoke(requester, capsuleID, inviteID string) (*models.Invite, error) {
	if err := requireCapsuleActor(requester, capsuleID); err != nil {
		return nil, err
	}

	unlock := store.LockCapsule(capsuleID)
	defer unlock()

	inv, err := store.GetSentInvite(capsuleID, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.InviteRevoked {
		return inv, nil
	}
	if inv.Status.Terminal() && inv.Status != models.InviteAccepted {
		return nil, faults.Conflict("invite %s is already %s", inviteID, inv.Status)
	}

	now := utils.NowNano()
	inv.Status = models.InviteRevoked
	inv.RevokedTS = now
	inv.UpdatedTS = now
	if err := store.SaveSentInvite(inv); err != nil {
		return nil, err
	}

	enqueue(inv.ToCapsule, &models.InviteNotice{Kind: models.NoticeRevoke, Invite: *inv, SentTS: now})
	telemetry.ObserveOp("sharing", "revoke", "ok")
	logger.AuditEvent("invite_revoked", "invite", inviteID, "capsule", capsuleID, "by", requester)
	return inv, nil
}

// ReceiveNoticeBytes is the inbox entry point for serialized notices.
func ReceiveNoticeBytes(payload []byte) error {
	var n models.InviteNotice
	if err := json.Unmarshal(payload, &n); err != nil {
		return faults.InvalidArgument("malformed notice: %v", err)
	}
	return ReceiveNotice(&n)
}

// ReceiveNotice applies one cross-capsule notice. Delivery is
// at-least-once, so every branch treats replays as no-ops.
func ReceiveNotice(n *models.InviteNotice) error {
	switch n.Kind {
	case models.NoticeInvite:
		return receiveInvite(&n.Invite)
	case models.NoticeOutcome:
		return receiveOutcome(&n.Invite, n.Outcome)
	case models.NoticeRevoke:
		return receiveRevoke(&n.Invite)
	}
	return faults.InvalidArgument("unknown notice kind %q", n.Kind)
}

func receiveInvite(remote *models.Invite) error {
	target := remote.ToCapsule
	if _, err := store.GetCapsule(target); err != nil {
		return err
	}

	unlock := store.LockCapsule(target)
	defer unlock()

	if _, err := store.GetReceivedInvite(target, remote.ID); err == nil {
		logger.Debug("duplicate_invite_ignored", "invite", remote.ID, "capsule", target)
		return nil
	} else if !faults.Is(err, faults.KindNotFound) {
		return err
	}

	inv := *remote
	inv.Status = models.InvitePending
	inv.UpdatedTS = utils.NowNano()
	if err := store.SaveReceivedInvite(&inv); err != nil {
		return err
	}
	telemetry.ObserveOp("sharing", "receive_invite", "ok")
	logger.AuditEvent("invite_received", "invite", inv.ID, "capsule", target, "from", inv.FromCapsule)
	return nil
}

// receiveOutcome updates the sender's advisory mirror of a recipient
// decision. A revoked sent invite stays revoked regardless of outcome
// ordering.
func receiveOutcome(remote *models.Invite, outcome models.InviteStatus) error {
	sender := remote.FromCapsule

	unlock := store.LockCapsule(sender)
	defer unlock()

	inv, err := store.GetSentInvite(sender, remote.ID)
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			logger.Warn("outcome_for_unknown_invite", "invite", remote.ID, "capsule", sender)
			return nil
		}
		return err
	}
	if inv.Status == models.InviteRevoked || inv.Status == outcome {
		return nil
	}
	inv.Status = outcome
	inv.UpdatedTS = utils.NowNano()
	if err := store.SaveSentInvite(inv); err != nil {
		return err
	}
	telemetry.ObserveOp("sharing", "receive_outcome", "ok")
	return nil
}

func receiveRevoke(remote *models.Invite) error {
	target := remote.ToCapsule

	unlock := store.LockCapsule(target)
	defer unlock()

	inv, err := store.GetReceivedInvite(target, remote.ID)
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			logger.Warn("revoke_for_unknown_invite", "invite", remote.ID, "capsule", target)
			return nil
		}
		return err
	}
	if inv.Status == models.InviteRevoked {
		return nil
	}
	now := utils.NowNano()
	inv.Status = models.InviteRevoked
	inv.RevokedTS = now
	inv.UpdatedTS = now
	if err := store.SaveReceivedInvite(inv); err != nil {
		return err
	}
	telemetry.ObserveOp("sharing", "receive_revoke", "ok")
	logger.AuditEvent("invite_revocation_applied", "invite", inv.ID, "capsule", target)
	return nil
}

// requireCapsuleActor checks the requester may act as the capsule: it is
// the capsule itself or an owner/controller of the locally stored record.
func requireCapsuleActor(requester, capsuleID string) error {
	if requester == capsuleID {
		return nil
	}
	c, err := store.GetCapsule(capsuleID)
	if err != nil {
		return err
	}
	if c.OwnedBy(requester) || c.ControlledBy(requester) {
		return nil
	}
	return faults.Unauthorized("identity %s cannot act for capsule %s", requester, capsuleID)
}
