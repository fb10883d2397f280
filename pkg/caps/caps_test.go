package caps_test

import (
	"sync"
	"testing"

	"capsuled/pkg/acl"
	"capsuled/pkg/caps"
	"capsuled/pkg/config"
	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/memories"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
)

func setup(t *testing.T) {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir() + "/db"); err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	config.SetCurrent(config.Config{})
}

func TestCreateSelfIsIdempotent(t *testing.T) {
	setup(t)

	c1, err := caps.CreateSelf("alice")
	if err != nil {
		t.Fatalf("CreateSelf: %v", err)
	}
	if !c1.IsSelf() || !c1.OwnedBy("alice") {
		t.Fatalf("not a self-capsule: %+v", c1)
	}

	c2, err := caps.CreateSelf("alice")
	if err != nil {
		t.Fatalf("second CreateSelf: %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("second self-capsule created: %s vs %s", c1.ID, c2.ID)
	}

	got, err := caps.SelfCapsule("alice")
	if err != nil {
		t.Fatalf("SelfCapsule: %v", err)
	}
	if got.ID != c1.ID {
		t.Fatalf("SelfCapsule = %s, want %s", got.ID, c1.ID)
	}
}

func TestCreateSelfConcurrentCallsConverge(t *testing.T) {
	setup(t)

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := caps.CreateSelf("alice")
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("CreateSelf[%d]: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("diverging self-capsules: %s vs %s", ids[i], ids[0])
		}
	}
	owned, err := store.ListCapsulesByOwner("alice")
	if err != nil {
		t.Fatalf("ListCapsulesByOwner: %v", err)
	}
	if len(owned) != 1 {
		t.Fatalf("expected a single capsule for alice, got %d", len(owned))
	}
}

func TestSelfCapsuleNotFound(t *testing.T) {
	setup(t)
	if _, err := caps.SelfCapsule("nobody"); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCreateManagedValidation(t *testing.T) {
	setup(t)

	if _, err := caps.CreateManaged("alice", "grandma", "not-a-class"); !faults.Is(err, faults.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for class, got %v", err)
	}
	if _, err := caps.CreateManaged("alice", "alice", models.ClassDeceased); !faults.Is(err, faults.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for self subject, got %v", err)
	}

	c, err := caps.CreateManaged("alice", "grandma", models.ClassDeceased)
	if err != nil {
		t.Fatalf("CreateManaged: %v", err)
	}
	if c.IsSelf() {
		t.Fatalf("managed capsule must not be self")
	}
	if !c.OwnedBy("alice") || c.Subject != "grandma" || c.Class != models.ClassDeceased {
		t.Fatalf("unexpected capsule: %+v", c)
	}

	about, err := caps.ListAbout("grandma")
	if err != nil || len(about) != 1 {
		t.Fatalf("ListAbout = %v, %v", about, err)
	}
}

func TestReadRequiresView(t *testing.T) {
	setup(t)

	c, err := caps.CreateSelf("alice")
	if err != nil {
		t.Fatalf("CreateSelf: %v", err)
	}
	if _, err := caps.Read("mallory", c.ID); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if _, err := caps.Read("alice", c.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := caps.Read("alice", "cap_missing"); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUpdateOwnersAndControllers(t *testing.T) {
	setup(t)

	c, err := caps.CreateSelf("alice")
	if err != nil {
		t.Fatalf("CreateSelf: %v", err)
	}

	// controllers may manage, but adding an owner requires OWN
	got, err := caps.Update("alice", c.ID, &models.CapsulePartial{
		AddController: &models.Controller{Identity: "carol"},
	})
	if err != nil {
		t.Fatalf("Update(add controller): %v", err)
	}
	if !got.ControlledBy("carol") {
		t.Fatalf("controller not added: %+v", got.Controllers)
	}
	if got.Controllers[0].GrantedBy != "alice" {
		t.Fatalf("granted_by = %q, want alice", got.Controllers[0].GrantedBy)
	}

	if _, err := caps.Update("carol", c.ID, &models.CapsulePartial{
		AddOwner: &models.Owner{Identity: "carol"},
	}); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("controller must not add owners, got %v", err)
	}

	got, err = caps.Update("alice", c.ID, &models.CapsulePartial{
		AddOwner: &models.Owner{Identity: "bob"},
	})
	if err != nil {
		t.Fatalf("Update(add owner): %v", err)
	}
	if !got.OwnedBy("bob") {
		t.Fatalf("owner not added: %+v", got.Owners)
	}

	drop := "carol"
	got, err = caps.Update("alice", c.ID, &models.CapsulePartial{DropController: &drop})
	if err != nil {
		t.Fatalf("Update(drop controller): %v", err)
	}
	if got.ControlledBy("carol") {
		t.Fatalf("controller not dropped")
	}
}

func TestUpdateConnectionsDedup(t *testing.T) {
	setup(t)

	c, err := caps.CreateSelf("alice")
	if err != nil {
		t.Fatalf("CreateSelf: %v", err)
	}
	conn := &models.Connection{Peer: "cap_friend", Kind: "family"}
	if _, err := caps.Update("alice", c.ID, &models.CapsulePartial{AddConnection: conn}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := caps.Update("alice", c.ID, &models.CapsulePartial{AddConnection: conn})
	if err != nil {
		t.Fatalf("Update(repeat): %v", err)
	}
	if len(got.Connections) != 1 {
		t.Fatalf("connection duplicated: %+v", got.Connections)
	}
}

func TestDeleteCascades(t *testing.T) {
	setup(t)

	c, err := caps.CreateSelf("alice")
	if err != nil {
		t.Fatalf("CreateSelf: %v", err)
	}
	m, err := memories.Create("alice", &memories.CreateInput{
		Capsule: c.ID,
		IdemKey: "k1",
		Assets:  []models.Asset{{Tier: models.TierInternalBlob, Bytes: []byte("payload")}},
	})
	if err != nil {
		t.Fatalf("memories.Create: %v", err)
	}
	if err := acl.Grant(&models.ResourceMembership{
		Identity: "bob",
		Resource: c.ID,
		Type:     models.ResourceCapsule,
		Role:     models.RoleMember,
		Source:   models.SourceUser,
	}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	// deletion needs OWN, not just MANAGE
	if err := caps.Delete("bob", c.ID); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if err := caps.Delete("alice", c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.GetCapsule(c.ID); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("capsule should be gone, got %v", err)
	}
	if _, err := store.GetMemory(m.ID); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("memory should be cascaded, got %v", err)
	}
	if _, err := store.GetBlob(m.Assets[0].Locator); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("blob should be cascaded, got %v", err)
	}
	if _, err := store.GetMembership(models.ResourceCapsule, c.ID, "bob"); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("membership should be cascaded, got %v", err)
	}
	if _, err := store.SelfCapsuleID("alice"); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("self index should be cleared, got %v", err)
	}
}
