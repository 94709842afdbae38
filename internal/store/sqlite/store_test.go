package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"dolltrack/internal/inventory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrateSeedsSystemContainers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	containers, err := s.ListContainers(ctx)
	if err != nil {
		t.Fatalf("list containers: %v", err)
	}
	if len(containers) != 2 {
		t.Fatalf("expected 2 system containers, got %d", len(containers))
	}
	if containers[0].Name != "Home" || !containers[0].IsSystem {
		t.Fatalf("expected system Home first, got %+v", containers[0])
	}
	if containers[1].Name != "Wishlist" {
		t.Fatalf("expected Wishlist second, got %+v", containers[1])
	}

	// Re-running migration must not duplicate the seeds.
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	containers, _ = s.ListContainers(ctx)
	if len(containers) != 2 {
		t.Fatalf("migration must be idempotent, got %d containers", len(containers))
	}
}

func TestDollLifecyclePersistsEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.CreateDoll(ctx, "alice", "Pinky", 0, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Container != "Home" {
		t.Fatalf("expected Home default, got %q", d.Container)
	}

	if _, err := s.RenameDoll(ctx, "alice", d.ID, "Rosie"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	// No-op rename leaves no trace.
	if _, err := s.RenameDoll(ctx, "alice", d.ID, "Rosie"); err != nil {
		t.Fatalf("no-op rename: %v", err)
	}

	moved, err := s.MoveDoll(ctx, "alice", d.ID, 2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Container != "Wishlist" {
		t.Fatalf("move not applied: %q", moved.Container)
	}

	if err := s.DeleteDoll(ctx, "bob", d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteDoll(ctx, "bob", d.ID); !errors.Is(err, inventory.ErrAlreadyDeleted) {
		t.Fatalf("expected ErrAlreadyDeleted, got %v", err)
	}
	if _, err := s.GetDoll(ctx, d.ID); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("deleted doll must be hidden, got %v", err)
	}

	events, total, err := s.ListEvents(ctx, inventory.EventFilter{DollID: d.ID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 events (create/rename/move/delete), got %d", total)
	}
	want := []string{
		inventory.EventDollDeleted,
		inventory.EventDollMoved,
		inventory.EventDollRenamed,
		inventory.EventDollCreated,
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], e.Type)
		}
	}

	items, total, _ := s.ListDolls(ctx, inventory.DollFilter{IncludeDeleted: true})
	if total != 1 || !items[0].IsDeleted() || items[0].DeletedBy != "bob" {
		t.Fatalf("expected soft-deleted row, got %+v", items)
	}
}

func TestSearchAndSuggestions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Sky Pinky", "Pinky", "Rose"} {
		if _, err := s.CreateDoll(ctx, "alice", name, 0, ""); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	_, total, err := s.ListDolls(ctx, inventory.DollFilter{Query: "PINK"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Fatalf("case-insensitive search expected 2, got %d", total)
	}

	suggested, err := s.SuggestDolls(ctx, "pi", 10)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggested) != 2 || suggested[0].Name != "Pinky" || suggested[1].Name != "Sky Pinky" {
		t.Fatalf("unexpected ranking: %v", suggested)
	}
}

func TestContainerConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bag, err := s.CreateContainer(ctx, "alice", "Bag 1")
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	if _, err := s.CreateContainer(ctx, "alice", "BAG 1"); !errors.Is(err, inventory.ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}
	if _, err := s.RenameContainer(ctx, "alice", 1, "Base"); !errors.Is(err, inventory.ErrConflict) {
		t.Fatalf("rename system: expected ErrConflict, got %v", err)
	}

	d, err := s.CreateDoll(ctx, "alice", "Pinky", bag.ID, "")
	if err != nil {
		t.Fatalf("create doll: %v", err)
	}
	if err := s.DeleteContainer(ctx, "alice", bag.ID); !errors.Is(err, inventory.ErrConflict) {
		t.Fatalf("delete non-empty: expected ErrConflict, got %v", err)
	}
	if _, err := s.MoveDoll(ctx, "alice", d.ID, 1); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := s.DeleteContainer(ctx, "alice", bag.ID); err != nil {
		t.Fatalf("delete empty: %v", err)
	}
	if _, err := s.MoveDoll(ctx, "alice", d.ID, bag.ID); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("move to inactive: expected ErrNotFound, got %v", err)
	}
}

func TestReorderSwapsSortOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bag, err := s.CreateContainer(ctx, "alice", "Bag 1")
	if err != nil {
		t.Fatalf("create container: %v", err)
	}

	out, err := s.ReorderContainer(ctx, "alice", bag.ID, inventory.ReorderUp)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if out[1].Name != "Bag 1" || out[2].Name != "Wishlist" {
		t.Fatalf("expected swap with Wishlist, got %v", out)
	}

	// Bottom edge is a no-op.
	out, err = s.ReorderContainer(ctx, "alice", out[2].ID, inventory.ReorderDown)
	if err != nil {
		t.Fatalf("reorder at edge: %v", err)
	}
	if out[2].Name != "Wishlist" {
		t.Fatalf("edge reorder must not change order, got %v", out)
	}
}

func TestPhotoPrimarySwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.CreateDoll(ctx, "alice", "Pinky", 0, "")
	if err != nil {
		t.Fatalf("create doll: %v", err)
	}

	first, err := s.AddPhoto(ctx, "alice", d.ID, "1/a.png", false)
	if err != nil {
		t.Fatalf("add photo: %v", err)
	}
	if !first.IsPrimary {
		t.Fatalf("first photo must be primary")
	}
	second, err := s.AddPhoto(ctx, "alice", d.ID, "1/b.png", false)
	if err != nil {
		t.Fatalf("add photo: %v", err)
	}
	if second.IsPrimary {
		t.Fatalf("second photo must not be primary")
	}

	if _, err := s.SetPrimaryPhoto(ctx, "alice", second.ID); err != nil {
		t.Fatalf("set primary: %v", err)
	}
	photos, err := s.ListPhotos(ctx, d.ID)
	if err != nil {
		t.Fatalf("list photos: %v", err)
	}
	primaries := 0
	for _, p := range photos {
		if p.IsPrimary {
			if p.ID != second.ID {
				t.Fatalf("wrong primary: %d", p.ID)
			}
			primaries++
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary, got %d", primaries)
	}

	// Enrichment reflects the swap.
	got, err := s.GetDoll(ctx, d.ID)
	if err != nil {
		t.Fatalf("get doll: %v", err)
	}
	if got.PrimaryPhotoPath != "1/b.png" || got.PhotosCount != 2 {
		t.Fatalf("enrichment mismatch: %+v", got)
	}

	if _, err := s.SetPrimaryPhoto(ctx, "alice", 999); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("missing photo: expected ErrNotFound, got %v", err)
	}
}

func TestPurchaseURLPersistsWithoutEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.CreateDoll(ctx, "alice", "Pinky", 0, "https://shop.example/pinky")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.PurchaseURL != "https://shop.example/pinky" {
		t.Fatalf("purchase url not stored: %q", d.PurchaseURL)
	}

	updated, err := s.SetPurchaseURL(ctx, "alice", d.ID, "https://other.example")
	if err != nil {
		t.Fatalf("set purchase url: %v", err)
	}
	if updated.PurchaseURL != "https://other.example" {
		t.Fatalf("update not applied: %q", updated.PurchaseURL)
	}

	cleared, err := s.SetPurchaseURL(ctx, "alice", d.ID, "")
	if err != nil {
		t.Fatalf("clear purchase url: %v", err)
	}
	if cleared.PurchaseURL != "" {
		t.Fatalf("blank must clear the link, got %q", cleared.PurchaseURL)
	}

	if _, err := s.SetPurchaseURL(ctx, "alice", d.ID, "ftp://shop.example"); !errors.Is(err, inventory.ErrValidation) {
		t.Fatalf("bad scheme: expected ErrValidation, got %v", err)
	}
	if _, err := s.SetPurchaseURL(ctx, "alice", 999, "https://shop.example"); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("missing doll: expected ErrNotFound, got %v", err)
	}

	// Link edits are metadata only; the audit log records the create alone.
	_, total, err := s.ListEvents(ctx, inventory.EventFilter{DollID: d.ID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected only the create event, got %d", total)
	}
}
