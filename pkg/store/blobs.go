package store

import (
	"encoding/json"
	"fmt"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/security"
	"capsuled/pkg/telemetry"
	"capsuled/pkg/utils"
)

// BlobMeta describes stored internal-blob content. Hash and length are
// computed over the plaintext so integrity survives encryption at rest.
type BlobMeta struct {
	Locator string `json:"locator"`
	Hash    string `json:"hash"`
	ByteLen uint64 `json:"byte_len"`
	Capsule string `json:"capsule"`
}

// PutBlob stores data in the internal blob store and returns its
// reference. Bytes are optionally encrypted at rest; the returned hash is
// always over the plaintext.
func PutBlob(capsuleID string, data []byte) (*BlobMeta, error) {
	meta := &BlobMeta{
		Locator: utils.GenBlobLocator(),
		Hash:    utils.HashBytes(data),
		ByteLen: uint64(len(data)),
		Capsule: capsuleID,
	}
	stored, err := security.EncryptBytes(data)
	if err != nil {
		return nil, fmt.Errorf("encrypt blob: %w", err)
	}
	mb, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	sets := map[string][]byte{
		BlobDataKey(meta.Locator): stored,
		BlobMetaKey(meta.Locator): mb,
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("put_blob_failed", "locator", meta.Locator, "error", err)
		return nil, err
	}
	telemetry.BlobBytesWritten.Add(float64(len(data)))
	logger.Debug("blob_stored", "locator", meta.Locator, "bytes", meta.ByteLen)
	return meta, nil
}

// GetBlob retrieves blob bytes, verifying the declared hash and length
// against the stored content.
func GetBlob(locator string) ([]byte, error) {
	mv, err := getRaw(BlobMetaKey(locator))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("blob %s", locator)
		}
		return nil, err
	}
	var meta BlobMeta
	if err := json.Unmarshal(mv, &meta); err != nil {
		return nil, fmt.Errorf("invalid blob meta %s: %w", locator, err)
	}
	dv, err := getRaw(BlobDataKey(locator))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("blob %s", locator)
		}
		return nil, err
	}
	data, err := security.DecryptBytes(dv)
	if err != nil {
		return nil, fmt.Errorf("decrypt blob %s: %w", locator, err)
	}
	if uint64(len(data)) != meta.ByteLen || utils.HashBytes(data) != meta.Hash {
		logger.Error("blob_integrity_mismatch", "locator", locator)
		return nil, fmt.Errorf("blob %s failed integrity check", locator)
	}
	return data, nil
}

// StatBlob returns blob metadata without materializing bytes.
func StatBlob(locator string) (*BlobMeta, error) {
	mv, err := getRaw(BlobMetaKey(locator))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("blob %s", locator)
		}
		return nil, err
	}
	var meta BlobMeta
	if err := json.Unmarshal(mv, &meta); err != nil {
		return nil, fmt.Errorf("invalid blob meta %s: %w", locator, err)
	}
	return &meta, nil
}

// DeleteBlob removes blob bytes and metadata.
func DeleteBlob(locator string) error {
	sets := map[string][]byte{
		BlobDataKey(locator): nil,
		BlobMetaKey(locator): nil,
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("delete_blob_failed", "locator", locator, "error", err)
		return err
	}
	logger.Debug("blob_deleted", "locator", locator)
	return nil
}
