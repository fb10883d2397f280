package models

// ManagedClass labels why a managed capsule exists. Audit-only; storage
// mechanics are identical across classes.
type ManagedClass string

const (
	ClassDeceased          ManagedClass = "deceased"
	ClassMinor             ManagedClass = "minor"
	ClassIncapacitatedAdult ManagedClass = "incapacitated_adult"
	ClassInherited         ManagedClass = "inherited"
)

// ValidManagedClass reports whether c is a known classification.
func ValidManagedClass(c ManagedClass) bool {
	switch c {
	case ClassDeceased, ClassMinor, ClassIncapacitatedAdult, ClassInherited:
		return true
	}
	return false
}

// Owner is an identity with full rights on a capsule.
type Owner struct {
	Identity   string `json:"identity"`
	SinceTS    int64  `json:"since_ts"`
	LastSeenTS int64  `json:"last_seen_ts,omitempty"`
}

// Controller is an identity granted administrative rights by an owner.
type Controller struct {
	Identity  string `json:"identity"`
	GrantedBy string `json:"granted_by"`
	GrantedTS int64  `json:"granted_ts"`
}

// Connection is a social-graph edge to another identity or capsule.
type Connection struct {
	Peer      string `json:"peer"`
	Kind      string `json:"kind,omitempty"`
	CreatedTS int64  `json:"created_ts"`
}

// Capsule is an autonomous per-subject storage unit. Memories and
// galleries are keyed collections; only ids are held here, the records
// live under their own store namespaces.
type Capsule struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	// Class is set only for managed capsules (subject != owner).
	Class       ManagedClass `json:"class,omitempty"`
	Owners      []Owner      `json:"owners"`
	Controllers []Controller `json:"controllers,omitempty"`
	Connections []Connection `json:"connections,omitempty"`
	MemoryIDs   []string     `json:"memory_ids,omitempty"`
	GalleryIDs  []string     `json:"gallery_ids,omitempty"`
	CreatedTS   int64        `json:"created_ts"`
	UpdatedTS   int64        `json:"updated_ts"`
	// BoundExternally marks capsules bound to external storage accounts.
	BoundExternally bool `json:"bound_externally,omitempty"`
}

// IsSelf reports whether the capsule's subject is one of its owners.
func (c *Capsule) IsSelf() bool {
	for _, o := range c.Owners {
		if o.Identity == c.Subject {
			return true
		}
	}
	return false
}

// OwnedBy reports whether identity is an owner of the capsule.
func (c *Capsule) OwnedBy(identity string) bool {
	for _, o := range c.Owners {
		if o.Identity == identity {
			return true
		}
	}
	return false
}

// ControlledBy reports whether identity is a controller of the capsule.
func (c *Capsule) ControlledBy(identity string) bool {
	for _, ct := range c.Controllers {
		if ct.Identity == identity {
			return true
		}
	}
	return false
}

// CapsulePartial carries optional metadata updates; nil fields are left
// untouched.
type CapsulePartial struct {
	BoundExternally *bool         `json:"bound_externally,omitempty"`
	AddController   *Controller   `json:"add_controller,omitempty"`
	DropController  *string       `json:"drop_controller,omitempty"`
	AddConnection   *Connection   `json:"add_connection,omitempty"`
	DropConnection  *string       `json:"drop_connection,omitempty"`
	AddOwner        *Owner        `json:"add_owner,omitempty"`
	Class           *ManagedClass `json:"class,omitempty"`
}
