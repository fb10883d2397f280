package store

import (
	"testing"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/utils"
)

func openTestDB(t *testing.T) {
	t.Helper()
	logger.Init()
	if err := Open(t.TempDir() + "/db"); err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := Close(); err != nil {
			t.Fatalf("store.Close failed: %v", err)
		}
	})
}

func TestCapsuleRoundtripAndIndexes(t *testing.T) {
	openTestDB(t)

	c := &models.Capsule{
		ID:      utils.GenCapsuleID(),
		Subject: "alice",
		Owners:  []models.Owner{{Identity: "alice", SinceTS: 1}},
	}
	if err := SaveCapsule(c); err != nil {
		t.Fatalf("SaveCapsule: %v", err)
	}

	got, err := GetCapsule(c.ID)
	if err != nil {
		t.Fatalf("GetCapsule: %v", err)
	}
	if got.Subject != "alice" || !got.OwnedBy("alice") {
		t.Fatalf("unexpected capsule: %+v", got)
	}

	owned, err := ListCapsulesByOwner("alice")
	if err != nil {
		t.Fatalf("ListCapsulesByOwner: %v", err)
	}
	if len(owned) != 1 || owned[0].ID != c.ID {
		t.Fatalf("owner index miss: %+v", owned)
	}

	about, err := ListCapsulesBySubject("alice")
	if err != nil {
		t.Fatalf("ListCapsulesBySubject: %v", err)
	}
	if len(about) != 1 || about[0].ID != c.ID {
		t.Fatalf("subject index miss: %+v", about)
	}

	// self-capsule index points back at the capsule
	id, err := SelfCapsuleID("alice")
	if err != nil {
		t.Fatalf("SelfCapsuleID: %v", err)
	}
	if id != c.ID {
		t.Fatalf("self index = %q, want %q", id, c.ID)
	}

	if err := DeleteCapsule(c); err != nil {
		t.Fatalf("DeleteCapsule: %v", err)
	}
	if _, err := GetCapsule(c.ID); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
	if _, err := SelfCapsuleID("alice"); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("self index should be gone, got %v", err)
	}
}

func TestMemoryRoundtripAndCapsuleScan(t *testing.T) {
	openTestDB(t)

	capID := utils.GenCapsuleID()
	m := &models.Memory{
		ID:      utils.DeriveMemoryID(capID, "idem-1"),
		Capsule: capID,
		Meta:    models.MemoryMeta{Title: "first"},
		Assets:  []models.Asset{{Tier: models.TierInline, Bytes: []byte("hi"), ByteLen: 2}},
	}
	if err := SaveMemory(m); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	got, err := GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.Meta.Title != "first" || got.Capsule != capID {
		t.Fatalf("unexpected memory: %+v", got)
	}

	list, err := ListMemories(capID)
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(list) != 1 || list[0].ID != m.ID {
		t.Fatalf("capsule memory scan miss: %+v", list)
	}
	n, err := CountMemories(capID)
	if err != nil || n != 1 {
		t.Fatalf("CountMemories = %d, %v", n, err)
	}

	if err := DeleteMemory(m); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if _, err := GetMemory(m.ID); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestBlobLifecycle(t *testing.T) {
	openTestDB(t)

	data := []byte("blob payload bytes")
	meta, err := PutBlob("cap1", data)
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	if meta.Locator == "" || meta.ByteLen != uint64(len(data)) {
		t.Fatalf("unexpected blob meta: %+v", meta)
	}

	got, err := GetBlob(meta.Locator)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("blob mismatch: %q", got)
	}

	st, err := StatBlob(meta.Locator)
	if err != nil {
		t.Fatalf("StatBlob: %v", err)
	}
	if st.Hash != meta.Hash {
		t.Fatalf("stat hash mismatch: %q vs %q", st.Hash, meta.Hash)
	}

	if err := DeleteBlob(meta.Locator); err != nil {
		t.Fatalf("DeleteBlob: %v", err)
	}
	if _, err := GetBlob(meta.Locator); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestInviteIndexesAndResourceCascade(t *testing.T) {
	openTestDB(t)

	inv := &models.Invite{
		ID:          utils.GenInviteID(),
		Resource:    "mem-1",
		Type:        models.ResourceMemory,
		FromCapsule: "capA",
		ToCapsule:   "capB",
		Perm:        models.PermView,
		Status:      models.InvitePending,
	}
	if err := SaveSentInvite(inv); err != nil {
		t.Fatalf("SaveSentInvite: %v", err)
	}
	cp := *inv
	cp.Status = models.InvitePending
	if err := SaveReceivedInvite(&cp); err != nil {
		t.Fatalf("SaveReceivedInvite: %v", err)
	}

	sent, err := ListSentInvites("capA")
	if err != nil || len(sent) != 1 {
		t.Fatalf("ListSentInvites = %v, %v", sent, err)
	}
	recv, err := ListReceivedInvites("capB")
	if err != nil || len(recv) != 1 {
		t.Fatalf("ListReceivedInvites = %v, %v", recv, err)
	}

	byres, err := ListInvitesByResource("mem-1")
	if err != nil {
		t.Fatalf("ListInvitesByResource: %v", err)
	}
	if len(byres) != 2 {
		t.Fatalf("expected both sides indexed, got %d", len(byres))
	}

	if err := DeleteInvitesForResource("mem-1"); err != nil {
		t.Fatalf("DeleteInvitesForResource: %v", err)
	}
	if _, err := GetSentInvite("capA", inv.ID); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("sent invite should be gone, got %v", err)
	}
	if _, err := GetReceivedInvite("capB", inv.ID); !faults.Is(err, faults.KindNotFound) {
		t.Fatalf("received invite should be gone, got %v", err)
	}
}

func TestOutboxPersistence(t *testing.T) {
	openTestDB(t)

	rec := &OutboxRecord{
		ID:       utils.GenInviteID(),
		Target:   "capB",
		Notice:   models.InviteNotice{Kind: models.NoticeInvite, SentTS: 42},
		QueuedTS: utils.NowNano(),
	}
	key, err := SaveOutboxRecord(rec)
	if err != nil {
		t.Fatalf("SaveOutboxRecord: %v", err)
	}

	pending, err := ListOutboxRecords(0)
	if err != nil {
		t.Fatalf("ListOutboxRecords: %v", err)
	}
	got, ok := pending[key]
	if !ok {
		t.Fatalf("record not listed under key %q", key)
	}
	if got.Target != "capB" || got.Notice.Kind != models.NoticeInvite {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := AckOutboxRecord(key); err != nil {
		t.Fatalf("AckOutboxRecord: %v", err)
	}
	pending, err = ListOutboxRecords(0)
	if err != nil {
		t.Fatalf("ListOutboxRecords after ack: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d", len(pending))
	}
}

func TestMagicLinkHashIndex(t *testing.T) {
	openTestDB(t)

	l := &models.MagicLink{
		ID:        utils.GenLinkID(),
		Resource:  "cap-1",
		Type:      models.ResourceCapsule,
		TokenHash: "deadbeef",
		Perm:      models.PermView,
		MaxUses:   1,
	}
	if err := SaveMagicLink(l); err != nil {
		t.Fatalf("SaveMagicLink: %v", err)
	}

	got, err := FindMagicLinkByHash("deadbeef")
	if err != nil {
		t.Fatalf("FindMagicLinkByHash: %v", err)
	}
	if got.ID != l.ID {
		t.Fatalf("hash index resolved %q, want %q", got.ID, l.ID)
	}

	if err := RecordLinkConsumption("cap-1", &models.MagicLinkConsumption{
		Link: l.ID, Identity: "bob", TS: utils.NowNano(), OK: true,
	}); err != nil {
		t.Fatalf("RecordLinkConsumption: %v", err)
	}
	grants, err := ListLinkGrants("cap-1", "bob")
	if err != nil {
		t.Fatalf("ListLinkGrants: %v", err)
	}
	if len(grants) != 1 || grants[0] != l.ID {
		t.Fatalf("unexpected grants: %v", grants)
	}
}
