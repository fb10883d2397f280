package acl

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/utils"
)

func setup(t *testing.T) *models.Capsule {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir() + "/db"); err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c := &models.Capsule{
		ID:      utils.GenCapsuleID(),
		Subject: "alice",
		Owners:  []models.Owner{{Identity: "alice", SinceTS: 1}},
	}
	if err := store.SaveCapsule(c); err != nil {
		t.Fatalf("SaveCapsule: %v", err)
	}
	return c
}

func TestRoleTemplates(t *testing.T) {
	cases := []struct {
		role models.Role
		want models.Perm
	}{
		{models.RoleOwner, models.PermFull},
		{models.RoleSuperadmin, models.PermFull},
		{models.RoleAdmin, models.PermView | models.PermDownload | models.PermShare | models.PermManage},
		{models.RoleMember, models.PermView | models.PermDownload},
		{models.RoleGuest, models.PermView},
		{models.Role("bogus"), 0},
	}
	for _, tc := range cases {
		if got := RoleTemplate(tc.role); got != tc.want {
			t.Fatalf("RoleTemplate(%s) = %d, want %d", tc.role, got, tc.want)
		}
	}
}

func TestOwnerFastPathAndStranger(t *testing.T) {
	c := setup(t)

	p, err := EffectivePermissions("alice", models.ResourceCapsule, c.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions(owner): %v", err)
	}
	if p != models.PermFull {
		t.Fatalf("owner perm = %d, want full", p)
	}

	p, err = EffectivePermissions("mallory", models.ResourceCapsule, c.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions(stranger): %v", err)
	}
	if p != 0 {
		t.Fatalf("stranger perm = %d, want 0", p)
	}
	if err := Require("mallory", models.ResourceCapsule, c.ID, models.PermView); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestControllerGetsFullPermissions(t *testing.T) {
	c := setup(t)
	c.Controllers = []models.Controller{{Identity: "carol", GrantedBy: "alice", GrantedTS: 1}}
	if err := store.SaveCapsule(c); err != nil {
		t.Fatalf("SaveCapsule: %v", err)
	}
	p, err := EffectivePermissions("carol", models.ResourceCapsule, c.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if p != models.PermFull {
		t.Fatalf("controller perm = %d, want full", p)
	}
}

func TestGrantByRoleAndRevoke(t *testing.T) {
	c := setup(t)

	m := &models.ResourceMembership{
		Identity: "bob",
		Resource: c.ID,
		Type:     models.ResourceCapsule,
		Role:     models.RoleMember,
		Source:   models.SourceUser,
	}
	if err := Grant(m); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if m.Perm != models.PermView|models.PermDownload {
		t.Fatalf("role template not applied: %d", m.Perm)
	}

	p, err := EffectivePermissions("bob", models.ResourceCapsule, c.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if !p.Has(models.PermView | models.PermDownload) {
		t.Fatalf("member perm = %d", p)
	}
	if p.Has(models.PermManage) {
		t.Fatalf("member should not manage: %d", p)
	}

	if err := Revoke(models.ResourceCapsule, c.ID, "bob"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	p, _ = EffectivePermissions("bob", models.ResourceCapsule, c.ID)
	if p != 0 {
		t.Fatalf("perm after revoke = %d, want 0", p)
	}
}

func TestGrantRejectsBadMask(t *testing.T) {
	c := setup(t)
	err := Grant(&models.ResourceMembership{
		Identity: "bob",
		Resource: c.ID,
		Type:     models.ResourceCapsule,
		Perm:     models.PermFull + 1,
	})
	if !faults.Is(err, faults.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	err = Grant(&models.ResourceMembership{
		Resource: c.ID,
		Type:     models.ResourceCapsule,
		Perm:     models.PermView,
	})
	if !faults.Is(err, faults.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for empty identity, got %v", err)
	}
}

func TestCapsuleGrantsInheritToMemory(t *testing.T) {
	c := setup(t)
	mem := &models.Memory{
		ID:      utils.DeriveMemoryID(c.ID, "k1"),
		Capsule: c.ID,
	}
	if err := store.SaveMemory(mem); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	// a capsule-level viewer can view the contained memory
	if err := Grant(&models.ResourceMembership{
		Identity: "bob",
		Resource: c.ID,
		Type:     models.ResourceCapsule,
		Role:     models.RoleGuest,
		Source:   models.SourceUser,
	}); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := Require("bob", models.ResourceMemory, mem.ID, models.PermView); err != nil {
		t.Fatalf("inherited view denied: %v", err)
	}
	// but not download
	if err := Require("bob", models.ResourceMemory, mem.ID, models.PermDownload); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	// the owner is full on the memory through the parent capsule
	if err := Require("alice", models.ResourceMemory, mem.ID, models.PermFull); err != nil {
		t.Fatalf("owner fast path on memory: %v", err)
	}
}

func TestPublicAuthPolicy(t *testing.T) {
	c := setup(t)

	if err := SetPublicPolicy(&models.PublicPolicy{
		Resource: c.ID,
		Type:     models.ResourceCapsule,
		Mode:     models.ModePublicAuth,
		Perm:     models.PermView,
		SetBy:    "alice",
	}); err != nil {
		t.Fatalf("SetPublicPolicy: %v", err)
	}
	if err := Require("anyone", models.ResourceCapsule, c.ID, models.PermView); err != nil {
		t.Fatalf("public_auth view denied: %v", err)
	}

	// public_link mode grants nothing without a consumed link
	if err := SetPublicPolicy(&models.PublicPolicy{
		Resource: c.ID,
		Type:     models.ResourceCapsule,
		Mode:     models.ModePublicLink,
		Perm:     models.PermView,
		SetBy:    "alice",
	}); err != nil {
		t.Fatalf("SetPublicPolicy(link): %v", err)
	}
	if err := Require("anyone", models.ResourceCapsule, c.ID, models.PermView); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected Unauthorized under public_link, got %v", err)
	}

	// private deletes the policy record
	if err := SetPublicPolicy(&models.PublicPolicy{
		Resource: c.ID,
		Type:     models.ResourceCapsule,
		Mode:     models.ModePrivate,
	}); err != nil {
		t.Fatalf("SetPublicPolicy(private): %v", err)
	}
	if _, err := store.GetPublicPolicy(models.ResourceCapsule, c.ID); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("policy should be deleted, got %v", err)
	}
}

func TestMagicLinkLifecycle(t *testing.T) {
	c := setup(t)

	l, raw, err := MintLink(models.ResourceCapsule, c.ID, models.PermView|models.PermDownload, 2, 0, "alice")
	if err != nil {
		t.Fatalf("MintLink: %v", err)
	}
	if raw == "" || l.TokenHash != HashLinkToken(raw) {
		t.Fatalf("token hash mismatch")
	}

	got, err := ConsumeLink(raw, "bob")
	if err != nil {
		t.Fatalf("ConsumeLink: %v", err)
	}
	if got.Uses != 1 {
		t.Fatalf("uses = %d, want 1", got.Uses)
	}
	if err := Require("bob", models.ResourceCapsule, c.ID, models.PermView|models.PermDownload); err != nil {
		t.Fatalf("link grant denied: %v", err)
	}

	// second consumer exhausts the link
	if _, err := ConsumeLink(raw, "carol"); err != nil {
		t.Fatalf("ConsumeLink(carol): %v", err)
	}
	if _, err := ConsumeLink(raw, "dave"); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected exhausted link to be Unauthorized, got %v", err)
	}

	// revocation cuts off grants already recorded
	if err := RevokeLink(l.ID, "alice"); err != nil {
		t.Fatalf("RevokeLink: %v", err)
	}
	if err := Require("bob", models.ResourceCapsule, c.ID, models.PermView); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected revoked link to stop granting, got %v", err)
	}
}

func TestConcurrentConsumeHonorsMaxUses(t *testing.T) {
	c := setup(t)

	l, raw, err := MintLink(models.ResourceCapsule, c.ID, models.PermView, 1, 0, "alice")
	if err != nil {
		t.Fatalf("MintLink: %v", err)
	}

	const n = 8
	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := ConsumeLink(raw, fmt.Sprintf("guest-%d", i)); err == nil {
				ok.Add(1)
			} else if !faults.Is(err, faults.KindUnauthorized) {
				t.Errorf("ConsumeLink: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok.Load() != 1 {
		t.Fatalf("%d redemptions succeeded on a single-use link", ok.Load())
	}
	got, err := store.GetMagicLink(l.ID)
	if err != nil {
		t.Fatalf("GetMagicLink: %v", err)
	}
	if got.Uses != 1 {
		t.Fatalf("Uses = %d, want 1", got.Uses)
	}
}

func TestExpiredLinkDenied(t *testing.T) {
	c := setup(t)

	_, raw, err := MintLink(models.ResourceCapsule, c.ID, models.PermView, 0, utils.NowNano()-1, "alice")
	if err != nil {
		t.Fatalf("MintLink: %v", err)
	}
	if _, err := ConsumeLink(raw, "bob"); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected expired link to be Unauthorized, got %v", err)
	}
}

func TestAcceptedInviteGrantsPermissions(t *testing.T) {
	c := setup(t)

	// recipient capsule owned by bob, invite accepted on the resource
	rc := &models.Capsule{
		ID:      utils.GenCapsuleID(),
		Subject: "bob",
		Owners:  []models.Owner{{Identity: "bob", SinceTS: 1}},
	}
	if err := store.SaveCapsule(rc); err != nil {
		t.Fatalf("SaveCapsule: %v", err)
	}
	inv := &models.Invite{
		ID:          utils.GenInviteID(),
		Resource:    c.ID,
		Type:        models.ResourceCapsule,
		FromCapsule: c.ID,
		ToCapsule:   rc.ID,
		Perm:        models.PermView,
		Status:      models.InviteAccepted,
	}
	if err := store.SaveSentInvite(inv); err != nil {
		t.Fatalf("SaveSentInvite: %v", err)
	}

	if err := Require("bob", models.ResourceCapsule, c.ID, models.PermView); err != nil {
		t.Fatalf("invite grant denied: %v", err)
	}
	// pending invites grant nothing
	inv.Status = models.InvitePending
	if err := store.SaveSentInvite(inv); err != nil {
		t.Fatalf("SaveSentInvite: %v", err)
	}
	if err := Require("bob", models.ResourceCapsule, c.ID, models.PermView); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected pending invite to grant nothing, got %v", err)
	}
}
