package steam

import (
	"testing"

	"github.com/capydeploy/agent/internal/store"
	"github.com/capydeploy/agent/pkg/protocol"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewTracker(st)
}

func TestTracker_RegisterAndList(t *testing.T) {
	tr := newTestTracker(t)

	records, err := tr.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty tracker, got %d records", len(records))
	}

	rec := protocol.TrackedShortcut{
		Name:        "G",
		Exe:         "/home/deck/Games/G/game.sh",
		StartDir:    `"/home/deck/Games/G"`,
		GameName:    "G",
		InstalledAt: 1700000000,
	}
	if err := tr.Register(rec); err != nil {
		t.Fatalf("register: %v", err)
	}

	records, err = tr.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Name != "G" {
		t.Errorf("unexpected records: %v", records)
	}
	if records[0].AppID != 0 {
		t.Errorf("fresh record must have AppID 0, got %d", records[0].AppID)
	}
}

func TestTracker_Assign(t *testing.T) {
	tr := newTestTracker(t)
	if err := tr.Register(protocol.TrackedShortcut{Name: "G", GameName: "G"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := tr.Assign("G", 123456); err != nil {
		t.Fatalf("assign: %v", err)
	}
	records, _ := tr.List()
	if records[0].AppID != 123456 {
		t.Errorf("expected assigned AppID, got %d", records[0].AppID)
	}

	if err := tr.Assign("missing", 1); err != nil {
		t.Errorf("assigning an unknown game should be a no-op, got %v", err)
	}
}

func TestTracker_RemoveByAppID(t *testing.T) {
	tr := newTestTracker(t)
	if err := tr.Register(protocol.TrackedShortcut{Name: "A", GameName: "A", AppID: 1}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tr.Register(protocol.TrackedShortcut{Name: "B", GameName: "B", AppID: 2}); err != nil {
		t.Fatalf("register: %v", err)
	}

	removed, err := tr.RemoveByAppID(1)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed == nil || removed.GameName != "A" {
		t.Fatalf("expected removed record for A, got %v", removed)
	}
	records, _ := tr.List()
	if len(records) != 1 || records[0].GameName != "B" {
		t.Errorf("unexpected remaining records: %v", records)
	}

	missing, err := tr.RemoveByAppID(42)
	if err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown AppID, got %v", missing)
	}
}

func TestTracker_RemoveByName(t *testing.T) {
	tr := newTestTracker(t)
	if err := tr.Register(protocol.TrackedShortcut{Name: "A", GameName: "A"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	removed, err := tr.RemoveByName("A")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed == nil {
		t.Fatal("expected removed record")
	}
	records, _ := tr.List()
	if len(records) != 0 {
		t.Errorf("expected no records, got %v", records)
	}
}
