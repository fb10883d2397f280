package models

// Perm is the 5-bit permission set combined by bitwise-OR across grant
// sources.
type Perm uint8

const (
	PermView     Perm = 1 << 0
	PermDownload Perm = 1 << 1
	PermShare    Perm = 1 << 2
	PermManage   Perm = 1 << 3
	PermOwn      Perm = 1 << 4

	// PermFull is every bit set; owners always resolve to this.
	PermFull = PermView | PermDownload | PermShare | PermManage | PermOwn
)

// Has reports whether p contains every bit of want.
func (p Perm) Has(want Perm) bool { return p&want == want }

// ResourceType names the kinds of resources grants attach to.
type ResourceType string

const (
	ResourceCapsule ResourceType = "capsule"
	ResourceMemory  ResourceType = "memory"
	ResourceGallery ResourceType = "gallery"
)

// ValidResourceType reports whether rt is a known resource type.
func ValidResourceType(rt ResourceType) bool {
	switch rt {
	case ResourceCapsule, ResourceMemory, ResourceGallery:
		return true
	}
	return false
}

// Role names map to default permission masks via acl.RoleTemplate.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleMember     Role = "member"
	RoleGuest      Role = "guest"
)

// GrantSource tags where a membership came from.
type GrantSource string

const (
	SourceUser      GrantSource = "user"
	SourceGroup     GrantSource = "group"
	SourceMagicLink GrantSource = "magic_link"
	SourcePublic    GrantSource = "public_mode"
	SourceSystem    GrantSource = "system"
)

// ResourceMembership grants an identity a permission mask on one resource.
type ResourceMembership struct {
	Identity  string       `json:"identity"`
	Resource  string       `json:"resource"`
	Type      ResourceType `json:"type"`
	Perm      Perm         `json:"perm"`
	Role      Role         `json:"role,omitempty"`
	Source    GrantSource  `json:"source"`
	GrantedBy string       `json:"granted_by"`
	GrantedTS int64        `json:"granted_ts"`
	ExpiresTS int64        `json:"expires_ts,omitempty"`
	Revoked   bool         `json:"revoked,omitempty"`
	RevokedTS int64        `json:"revoked_ts,omitempty"`
}

// PublicMode is the per-resource public policy mode.
type PublicMode string

const (
	ModePrivate    PublicMode = "private"
	ModePublicAuth PublicMode = "public_auth"
	ModePublicLink PublicMode = "public_link"
)

// PublicPolicy is the per-resource public access policy.
type PublicPolicy struct {
	Resource  string       `json:"resource"`
	Type      ResourceType `json:"type"`
	Mode      PublicMode   `json:"mode"`
	Perm      Perm         `json:"perm"`
	SetBy     string       `json:"set_by"`
	SetTS     int64        `json:"set_ts"`
	ExpiresTS int64        `json:"expires_ts,omitempty"`
	Revoked   bool         `json:"revoked,omitempty"`
}

// MagicLink is a hashed-token-bearing, use-limited, time-boxed grant.
// The raw token is returned once at mint time and never stored.
type MagicLink struct {
	ID        string       `json:"id"`
	Resource  string       `json:"resource"`
	Type      ResourceType `json:"type"`
	TokenHash string       `json:"token_hash"`
	Perm      Perm         `json:"perm"`
	MaxUses   int          `json:"max_uses"`
	Uses      int          `json:"uses"`
	CreatedBy string       `json:"created_by"`
	CreatedTS int64        `json:"created_ts"`
	ExpiresTS int64        `json:"expires_ts,omitempty"`
	Revoked   bool         `json:"revoked,omitempty"`
}

// MagicLinkConsumption records one redemption attempt and its outcome.
type MagicLinkConsumption struct {
	Link     string `json:"link"`
	Identity string `json:"identity"`
	TS       int64  `json:"ts"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
}
