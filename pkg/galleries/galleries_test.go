package galleries_test

import (
	"testing"

	"capsuled/pkg/caps"
	"capsuled/pkg/config"
	"capsuled/pkg/faults"
	"capsuled/pkg/galleries"
	"capsuled/pkg/logger"
	"capsuled/pkg/memories"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
)

func setup(t *testing.T) (*models.Capsule, *models.Memory) {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir() + "/db"); err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	config.SetCurrent(config.Config{})

	c, err := caps.CreateSelf("alice")
	if err != nil {
		t.Fatalf("CreateSelf: %v", err)
	}
	m, err := memories.Create("alice", &memories.CreateInput{
		Capsule: c.ID,
		IdemKey: "photo-1",
		Assets:  []models.Asset{{Tier: models.TierInline, Bytes: []byte("img")}},
	})
	if err != nil {
		t.Fatalf("memories.Create: %v", err)
	}
	return c, m
}

func TestCreateValidatesEntries(t *testing.T) {
	c, m := setup(t)

	// entries must reference memories inside the same capsule
	if _, err := galleries.Create("alice", &galleries.CreateInput{
		Capsule: c.ID,
		Entries: []models.GalleryEntry{{Memory: "mem_missing", Position: 1}},
	}); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("expected NotFound for unknown memory, got %v", err)
	}

	// positions must be unique
	if _, err := galleries.Create("alice", &galleries.CreateInput{
		Capsule: c.ID,
		Entries: []models.GalleryEntry{
			{Memory: m.ID, Position: 1},
			{Memory: m.ID, Position: 1},
		},
	}); !faults.Is(err, faults.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for duplicate position, got %v", err)
	}

	g, err := galleries.Create("alice", &galleries.CreateInput{
		Capsule: c.ID,
		Title:   "summer",
		Entries: []models.GalleryEntry{{Memory: m.ID, Caption: "beach", Position: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cap2, _ := store.GetCapsule(c.ID)
	if len(cap2.GalleryIDs) != 1 || cap2.GalleryIDs[0] != g.ID {
		t.Fatalf("capsule gallery list miss: %+v", cap2.GalleryIDs)
	}
}

func TestEntriesSortedByPosition(t *testing.T) {
	c, m := setup(t)

	m2, err := memories.Create("alice", &memories.CreateInput{
		Capsule: c.ID,
		IdemKey: "photo-2",
		Assets:  []models.Asset{{Tier: models.TierInline, Bytes: []byte("img2")}},
	})
	if err != nil {
		t.Fatalf("memories.Create: %v", err)
	}

	g, err := galleries.Create("alice", &galleries.CreateInput{
		Capsule: c.ID,
		Entries: []models.GalleryEntry{
			{Memory: m2.ID, Position: 5},
			{Memory: m.ID, Position: 2},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.Entries[0].Memory != m.ID || g.Entries[1].Memory != m2.ID {
		t.Fatalf("entries not ordered by position: %+v", g.Entries)
	}
}

func TestUpdateReplacesEntries(t *testing.T) {
	c, m := setup(t)

	g, err := galleries.Create("alice", &galleries.CreateInput{
		Capsule: c.ID,
		Entries: []models.GalleryEntry{{Memory: m.ID, Position: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "renamed"
	empty := []models.GalleryEntry{}
	got, err := galleries.Update("alice", g.ID, &models.GalleryPartial{Title: &title, Entries: &empty})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "renamed" || len(got.Entries) != 0 {
		t.Fatalf("update not applied: %+v", got)
	}

	// strangers may not update
	if _, err := galleries.Update("mallory", g.ID, &models.GalleryPartial{Title: &title}); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestDeleteKeepsMemories(t *testing.T) {
	c, m := setup(t)

	g, err := galleries.Create("alice", &galleries.CreateInput{
		Capsule: c.ID,
		Entries: []models.GalleryEntry{{Memory: m.ID, Position: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := galleries.Delete("alice", g.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetGallery(g.ID); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("gallery should be gone, got %v", err)
	}
	if _, err := store.GetMemory(m.ID); err != nil {
		t.Fatalf("member memory must survive gallery delete: %v", err)
	}
	cap2, _ := store.GetCapsule(c.ID)
	if len(cap2.GalleryIDs) != 0 {
		t.Fatalf("capsule still lists deleted gallery")
	}
}

func TestCapsuleViewerCanListGalleries(t *testing.T) {
	c, m := setup(t)

	if _, err := galleries.Create("alice", &galleries.CreateInput{
		Capsule: c.ID,
		Entries: []models.GalleryEntry{{Memory: m.ID, Position: 1}},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := galleries.List("mallory", c.ID); !faults.Is(err, faults.KindUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	gs, err := galleries.List("alice", c.ID)
	if err != nil || len(gs) != 1 {
		t.Fatalf("List = %v, %v", gs, err)
	}
}
