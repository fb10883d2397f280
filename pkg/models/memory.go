package models

// InlineCeiling is the hard upper bound for inline asset bytes.
const InlineCeiling = 32 * 1024

// AssetTier discriminates the three storage tiers for an asset.
type AssetTier string

const (
	TierInline       AssetTier = "inline"
	TierInternalBlob AssetTier = "blob_internal"
	TierExternalBlob AssetTier = "blob_external"
)

// Asset is one tiered content reference inside a memory. Exactly one of
// the tier payload groups is populated, selected by Tier. The tier is
// immutable once the memory is created.
type Asset struct {
	Tier AssetTier `json:"tier"`

	// inline tier: raw bytes stored in the record (<= InlineCeiling).
	Bytes []byte `json:"bytes,omitempty"`

	// blob_internal tier: reference into the capsule-local blob store.
	Locator string `json:"locator,omitempty"`

	// blob_external tier: reference to provider-hosted content.
	Provider   string `json:"provider,omitempty"`
	StorageKey string `json:"storage_key,omitempty"`
	URL        string `json:"url,omitempty"`

	// Hash and ByteLen describe the content for all tiers. Hash is
	// blake3-256 hex for inline/internal; provider-declared for external.
	Hash    string `json:"hash,omitempty"`
	ByteLen uint64 `json:"byte_len"`

	ContentType string `json:"content_type,omitempty"`
}

// MemoryMeta is the caller-supplied descriptive metadata of a memory.
type MemoryMeta struct {
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ContentType  string   `json:"content_type,omitempty"`
	MemoryType   string   `json:"memory_type,omitempty"`
	DateOfMemory int64    `json:"date_of_memory,omitempty"`
	People       []string `json:"people,omitempty"`
	Location     string   `json:"location,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// Memory is one unit of content inside a capsule.
type Memory struct {
	ID      string     `json:"id"`
	Capsule string     `json:"capsule"`
	Meta    MemoryMeta `json:"meta"`
	Assets  []Asset    `json:"assets"`

	Creator    string `json:"creator"`
	CreatedTS  int64  `json:"created_ts"`
	UpdatedTS  int64  `json:"updated_ts"`
	UploadedTS int64  `json:"uploaded_ts,omitempty"`

	// IdemKey is the caller-supplied idempotency token the id was derived
	// from; PayloadHash fingerprints the create payload so a retried key
	// with different content is rejected as a conflict.
	IdemKey     string `json:"idem_key"`
	PayloadHash string `json:"payload_hash"`
}

// StripBytes returns a copy with all asset byte fields emptied, for
// metadata-only reads and listings.
func (m Memory) StripBytes() Memory {
	out := m
	out.Assets = make([]Asset, len(m.Assets))
	for i, a := range m.Assets {
		a.Bytes = nil
		out.Assets[i] = a
	}
	return out
}

// MemoryPartial carries optional metadata updates; asset tiers are not
// updatable and deliberately absent here.
type MemoryPartial struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
	MemoryType   *string   `json:"memory_type,omitempty"`
	DateOfMemory *int64    `json:"date_of_memory,omitempty"`
	People       *[]string `json:"people,omitempty"`
	Location     *string   `json:"location,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
}

// ExternalCleanupNotice records a deferred provider-side deletion for an
// external-blob asset. Notices are persisted outside the delete
// transaction and swept out-of-band.
type ExternalCleanupNotice struct {
	Memory     string `json:"memory"`
	Capsule    string `json:"capsule"`
	Provider   string `json:"provider"`
	StorageKey string `json:"storage_key"`
	URL        string `json:"url,omitempty"`
	QueuedTS   int64  `json:"queued_ts"`
}
