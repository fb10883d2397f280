package utils

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

var idSeq uint64

// DeriveMemoryID derives a memory id as a pure function of
// (capsule id, idempotency key). Retried creates with the same key always
// land on the same id, across restarts, with no clock or randomness
// involved.
func DeriveMemoryID(capsuleID, idemKey string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(capsuleID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(idemKey))
	return "mem_" + hex.EncodeToString(h.Sum(nil))[:32]
}

// HashBytes returns the blake3-256 hex digest of data; used for asset
// content hashes and create-payload fingerprints.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GenCapsuleID generates a capsule id from the current UTC nanosecond
// timestamp and an atomic sequence number.
func GenCapsuleID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("cap-%d-%d", n, s)
}

// GenGalleryID generates a gallery id.
func GenGalleryID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("gal-%d-%d", n, s)
}

// GenBlobLocator generates a locator for the internal blob store. The
// locator is an opaque handle; content integrity is carried by the hash
// stored alongside it.
func GenBlobLocator() string {
	return "blob-" + uuid.NewString()
}

// GenInviteID generates a globally unique invite id. Uniqueness across
// capsules matters here because the id is the dedup key on the receiving
// side.
func GenInviteID() string {
	return "inv-" + uuid.NewString()
}

// GenLinkID generates a magic-link id.
func GenLinkID() string {
	return "lnk-" + uuid.NewString()
}

// GenLinkToken generates a raw magic-link token. Only its hash is stored.
func GenLinkToken() string {
	return uuid.NewString() + uuid.NewString()
}

// NowNano returns the current UTC time in nanoseconds.
func NowNano() int64 { return time.Now().UTC().UnixNano() }
