// Package validation checks caller-supplied payloads before any storage
// work happens. Checks here are shape checks only; permission and
// existence checks belong to the services.
package validation

import (
	"strings"

	"capsuled/pkg/faults"
	"capsuled/pkg/models"
)

// ValidateAsset checks that exactly one tier payload group is populated
// and that it satisfies that tier's constraints.
func ValidateAsset(a *models.Asset) error {
	switch a.Tier {
	case models.TierInline:
		if len(a.Bytes) == 0 {
			return faults.InvalidArgument("inline asset requires bytes")
		}
		if len(a.Bytes) > models.InlineCeiling {
			return faults.InvalidArgument("inline asset is %d bytes, ceiling is %d", len(a.Bytes), models.InlineCeiling)
		}
		if a.Locator != "" || a.Provider != "" || a.StorageKey != "" || a.URL != "" {
			return faults.InvalidArgument("inline asset carries blob fields")
		}
	case models.TierInternalBlob:
		if len(a.Bytes) == 0 {
			return faults.InvalidArgument("internal blob asset requires bytes to store")
		}
		if a.Provider != "" || a.StorageKey != "" || a.URL != "" {
			return faults.InvalidArgument("internal blob asset carries external fields")
		}
	case models.TierExternalBlob:
		if a.Provider == "" || a.StorageKey == "" {
			return faults.InvalidArgument("external blob asset requires provider and storage_key")
		}
		if len(a.Bytes) != 0 || a.Locator != "" {
			return faults.InvalidArgument("external blob asset carries local payload fields")
		}
	default:
		return faults.InvalidArgument("unknown asset tier %q", a.Tier)
	}
	return nil
}

// ValidateMemoryCreate checks a memory create payload.
func ValidateMemoryCreate(idemKey string, assets []models.Asset) error {
	if strings.TrimSpace(idemKey) == "" {
		return faults.InvalidArgument("idempotency key is required")
	}
	if len(assets) == 0 {
		return faults.InvalidArgument("memory requires at least one asset")
	}
	for i := range assets {
		if err := ValidateAsset(&assets[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSubject checks a capsule subject identity string.
func ValidateSubject(subject string) error {
	if strings.TrimSpace(subject) == "" {
		return faults.InvalidArgument("subject is required")
	}
	if strings.ContainsAny(subject, ": \t\n") {
		return faults.InvalidArgument("subject %q contains reserved characters", subject)
	}
	return nil
}

// ValidateGalleryEntries checks entry references and position uniqueness.
func ValidateGalleryEntries(entries []models.GalleryEntry) error {
	seen := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		if e.Memory == "" {
			return faults.InvalidArgument("gallery entry requires a memory id")
		}
		if _, dup := seen[e.Position]; dup {
			return faults.InvalidArgument("duplicate gallery position %d", e.Position)
		}
		seen[e.Position] = struct{}{}
	}
	return nil
}
