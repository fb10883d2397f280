package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
)

// Invite side tags used in the by-resource index.
const (
	InviteSent     = "sent"
	InviteReceived = "recv"
)

// SaveSentInvite persists an invite under the sender capsule plus the
// by-resource index the permission engine scans.
func SaveSentInvite(inv *models.Invite) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	sets := map[string][]byte{
		fmt.Sprintf(invSentKey, inv.FromCapsule, inv.ID):                data,
		fmt.Sprintf(invByResIdx, inv.Resource, InviteSent, inv.ID): []byte(inv.FromCapsule),
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("save_sent_invite_failed", "invite", inv.ID, "error", err)
		return err
	}
	return nil
}

// SaveReceivedInvite persists an invite under the recipient capsule plus
// the by-resource index.
func SaveReceivedInvite(inv *models.Invite) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	sets := map[string][]byte{
		fmt.Sprintf(invRecvKey, inv.ToCapsule, inv.ID):                      data,
		fmt.Sprintf(invByResIdx, inv.Resource, InviteReceived, inv.ID): []byte(inv.ToCapsule),
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("save_received_invite_failed", "invite", inv.ID, "error", err)
		return err
	}
	return nil
}

// GetSentInvite loads one invite from a sender capsule's namespace.
func GetSentInvite(capsuleID, inviteID string) (*models.Invite, error) {
	return getInvite(fmt.Sprintf(invSentKey, capsuleID, inviteID), inviteID)
}

// GetReceivedInvite loads one invite from a recipient capsule's namespace.
func GetReceivedInvite(capsuleID, inviteID string) (*models.Invite, error) {
	return getInvite(fmt.Sprintf(invRecvKey, capsuleID, inviteID), inviteID)
}

func getInvite(key, inviteID string) (*models.Invite, error) {
	v, err := getRaw(key)
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("invite %s", inviteID)
		}
		return nil, err
	}
	var inv models.Invite
	if err := json.Unmarshal(v, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListSentInvites returns every invite the capsule has sent.
func ListSentInvites(capsuleID string) ([]*models.Invite, error) {
	return listInvites(fmt.Sprintf("inv:sent:%s:", capsuleID))
}

// ListReceivedInvites returns every invite the capsule has received.
func ListReceivedInvites(capsuleID string) ([]*models.Invite, error) {
	return listInvites(fmt.Sprintf("inv:recv:%s:", capsuleID))
}

func listInvites(prefix string) ([]*models.Invite, error) {
	var out []*models.Invite
	err := scanPrefix(prefix, func(_ string, v []byte) bool {
		var inv models.Invite
		if json.Unmarshal(v, &inv) == nil {
			out = append(out, &inv)
		}
		return true
	})
	return out, err
}

// ListInvitesByResource loads every invite touching one resource, on both
// sides. The index value names the capsule the invite record lives under.
func ListInvitesByResource(rid string) ([]*models.Invite, error) {
	prefix := fmt.Sprintf("inv:byres:%s:", rid)
	type ref struct {
		side, inviteID, capsuleID string
	}
	var refs []ref
	err := scanPrefix(prefix, func(k string, v []byte) bool {
		rest := k[len(prefix):] // <side>:<invite_id>
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) == 2 {
			refs = append(refs, ref{side: parts[0], inviteID: parts[1], capsuleID: string(v)})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Invite, 0, len(refs))
	for _, r := range refs {
		var inv *models.Invite
		if r.side == InviteSent {
			inv, err = GetSentInvite(r.capsuleID, r.inviteID)
		} else {
			inv, err = GetReceivedInvite(r.capsuleID, r.inviteID)
		}
		if err != nil {
			if faults.Is(err, faults.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// DeleteInvitesForResource drops every invite record and index entry for
// one resource, used when the resource itself is deleted.
func DeleteInvitesForResource(rid string) error {
	prefix := fmt.Sprintf("inv:byres:%s:", rid)
	dels := map[string][]byte{}
	err := scanPrefix(prefix, func(k string, v []byte) bool {
		rest := k[len(prefix):]
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) == 2 {
			if parts[0] == InviteSent {
				dels[fmt.Sprintf(invSentKey, string(v), parts[1])] = nil
			} else {
				dels[fmt.Sprintf(invRecvKey, string(v), parts[1])] = nil
			}
		}
		dels[k] = nil
		return true
	})
	if err != nil {
		return err
	}
	if len(dels) == 0 {
		return nil
	}
	return applyBatch(dels)
}

// Outbox persistence. Pending notices survive restarts; the in-memory
// queue is rebuilt from these records on startup.

type OutboxRecord struct {
	ID       string              `json:"id"`
	Target   string              `json:"target"` // destination capsule id
	Notice   models.InviteNotice `json:"notice"`
	Attempts int                 `json:"attempts"`
	QueuedTS int64               `json:"queued_ts"`
}

// SaveOutboxRecord persists one pending notice keyed by enqueue time.
func SaveOutboxRecord(rec *OutboxRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf(outboxKey, rec.QueuedTS, rec.ID)
	if err := setRaw(key, data); err != nil {
		logger.Error("save_outbox_record_failed", "notice", rec.ID, "error", err)
		return "", err
	}
	return key, nil
}

// AckOutboxRecord removes a delivered or dropped notice.
func AckOutboxRecord(storeKey string) error {
	return deleteRaw(storeKey)
}

// ListOutboxRecords returns pending notices oldest first, keyed by their
// store key so delivery can ack them.
func ListOutboxRecords(limit int) (map[string]*OutboxRecord, error) {
	out := map[string]*OutboxRecord{}
	err := scanPrefix("out:notice:", func(k string, v []byte) bool {
		var rec OutboxRecord
		if json.Unmarshal(v, &rec) == nil {
			out[k] = &rec
		}
		return limit <= 0 || len(out) < limit
	})
	return out, err
}
