package validation

import (
	"testing"

	"capsuled/pkg/faults"
	"capsuled/pkg/models"
)

func TestValidateAssetTiers(t *testing.T) {
	cases := []struct {
		name  string
		asset models.Asset
		ok    bool
	}{
		{"inline ok", models.Asset{Tier: models.TierInline, Bytes: []byte("x")}, true},
		{"inline empty", models.Asset{Tier: models.TierInline}, false},
		{"inline at ceiling", models.Asset{Tier: models.TierInline, Bytes: make([]byte, models.InlineCeiling)}, true},
		{"inline over ceiling", models.Asset{Tier: models.TierInline, Bytes: make([]byte, models.InlineCeiling+1)}, false},
		{"inline with locator", models.Asset{Tier: models.TierInline, Bytes: []byte("x"), Locator: "blob_1"}, false},
		{"internal ok", models.Asset{Tier: models.TierInternalBlob, Bytes: []byte("x")}, true},
		{"internal empty", models.Asset{Tier: models.TierInternalBlob}, false},
		{"internal with provider", models.Asset{Tier: models.TierInternalBlob, Bytes: []byte("x"), Provider: "s3"}, false},
		{"external ok", models.Asset{Tier: models.TierExternalBlob, Provider: "s3", StorageKey: "k"}, true},
		{"external missing key", models.Asset{Tier: models.TierExternalBlob, Provider: "s3"}, false},
		{"external with bytes", models.Asset{Tier: models.TierExternalBlob, Provider: "s3", StorageKey: "k", Bytes: []byte("x")}, false},
		{"unknown tier", models.Asset{Tier: "tape"}, false},
	}
	for _, tc := range cases {
		err := ValidateAsset(&tc.asset)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			if !faults.Is(err, faults.KindInvalidArgument) {
				t.Fatalf("%s: expected InvalidArgument, got %v", tc.name, err)
			}
		}
	}
}

func TestValidateMemoryCreate(t *testing.T) {
	asset := models.Asset{Tier: models.TierInline, Bytes: []byte("x")}
	if err := ValidateMemoryCreate("", []models.Asset{asset}); !faults.Is(err, faults.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for empty idempotency key, got %v", err)
	}
	if err := ValidateMemoryCreate("k", nil); !faults.Is(err, faults.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for empty assets, got %v", err)
	}
	if err := ValidateMemoryCreate("k", []models.Asset{asset}); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestValidateSubject(t *testing.T) {
	if err := ValidateSubject("alice"); err != nil {
		t.Fatalf("valid subject rejected: %v", err)
	}
	for _, bad := range []string{"", "  ", "a:b", "a b"} {
		if err := ValidateSubject(bad); !faults.Is(err, faults.KindInvalidArgument) {
			t.Fatalf("subject %q: expected InvalidArgument, got %v", bad, err)
		}
	}
}
