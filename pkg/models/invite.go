package models

// InviteStatus is the per-invite state machine. Pending is the only
// non-terminal state; terminal states absorb further transitions.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRejected InviteStatus = "rejected"
	InviteExpired  InviteStatus = "expired"
	InviteRevoked  InviteStatus = "revoked"
)

// Terminal reports whether s admits no further transitions.
func (s InviteStatus) Terminal() bool { return s != InvitePending }

// Invite is the by-value sharing grant exchanged between capsules. The
// same shape is stored on both sides: the sender keeps it under its
// sent_invites namespace, the recipient under received_invites. Remote
// capsules are referenced only by plain string id.
type Invite struct {
	ID       string       `json:"id"`
	Resource string       `json:"resource"`
	Type     ResourceType `json:"type"`

	FromCapsule string `json:"from_capsule"`
	ToCapsule   string `json:"to_capsule"`

	Perm Perm `json:"perm"`
	Role Role `json:"role,omitempty"`

	Status    InviteStatus `json:"status"`
	CreatedTS int64        `json:"created_ts"`
	UpdatedTS int64        `json:"updated_ts"`
	ExpiresTS int64        `json:"expires_ts,omitempty"`
	RevokedTS int64        `json:"revoked_ts,omitempty"`
}

// Live reports whether the invite grants permissions at time now: it must
// be accepted, not revoked, and not past its TTL.
func (i *Invite) Live(now int64) bool {
	if i.Status != InviteAccepted || i.RevokedTS != 0 {
		return false
	}
	if i.ExpiresTS != 0 && now >= i.ExpiresTS {
		return false
	}
	return true
}

// NoticeKind discriminates cross-capsule sharing messages.
type NoticeKind string

const (
	NoticeInvite  NoticeKind = "invite"
	NoticeOutcome NoticeKind = "outcome"
	NoticeRevoke  NoticeKind = "revoke"
)

// InviteNotice is the wire message delivered between capsules. Delivery
// is at-least-once; receivers must treat duplicates as no-ops.
type InviteNotice struct {
	Kind    NoticeKind   `json:"kind"`
	Invite  Invite       `json:"invite"`
	Outcome InviteStatus `json:"outcome,omitempty"`
	SentTS  int64        `json:"sent_ts"`
}
