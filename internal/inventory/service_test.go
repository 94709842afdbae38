package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func seedDoll(t *testing.T, s *InMemory, name string) Doll {
	t.Helper()
	d, err := s.CreateDoll(context.Background(), "tester", name, 0, "")
	if err != nil {
		t.Fatalf("create doll: %v", err)
	}
	return d
}

func TestSystemContainersSeeded(t *testing.T) {
	s := NewInMemory()
	containers, err := s.ListContainers(context.Background())
	if err != nil {
		t.Fatalf("list containers: %v", err)
	}
	if len(containers) != 2 {
		t.Fatalf("expected 2 seeded containers, got %d", len(containers))
	}
	if containers[0].Name != "Home" || containers[0].SortOrder != 0 {
		t.Fatalf("expected Home first, got %+v", containers[0])
	}
	if containers[1].Name != "Wishlist" || !containers[1].IsSystem {
		t.Fatalf("expected system Wishlist second, got %+v", containers[1])
	}
}

func TestCreateDollDefaultsToHome(t *testing.T) {
	s := NewInMemory()
	d := seedDoll(t, s, "  Pinky  ")
	if d.Name != "Pinky" {
		t.Fatalf("name not normalized: %q", d.Name)
	}
	if d.Container != "Home" {
		t.Fatalf("expected Home placement, got %q", d.Container)
	}

	events, total, err := s.ListEvents(context.Background(), EventFilter{DollID: d.ID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if total != 1 || events[0].Type != EventDollCreated {
		t.Fatalf("expected one DOLL_CREATED, got %v", events)
	}
	payload, err := events[0].DecodePayload()
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	created, ok := payload.(*DollCreatedPayload)
	if !ok || created.Container != "Home" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestCreateDollValidation(t *testing.T) {
	s := NewInMemory()
	if _, err := s.CreateDoll(context.Background(), "tester", "   ", 0, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank name: expected ErrValidation, got %v", err)
	}
	if _, err := s.CreateDoll(context.Background(), "tester", "Rose", 99, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing container: expected ErrNotFound, got %v", err)
	}
	if _, err := s.CreateDoll(context.Background(), "tester", "Rose", 0, "ftp://shop.example"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad purchase url: expected ErrValidation, got %v", err)
	}
}

func TestPurchaseURL(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	d, err := s.CreateDoll(ctx, "tester", "Pinky", 0, " https://shop.example/pinky ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.PurchaseURL != "https://shop.example/pinky" {
		t.Fatalf("purchase url not stored: %q", d.PurchaseURL)
	}

	d, err = s.SetPurchaseURL(ctx, "tester", d.ID, "https://shop.example/rosie")
	if err != nil {
		t.Fatalf("set purchase url: %v", err)
	}
	if d.PurchaseURL != "https://shop.example/rosie" {
		t.Fatalf("purchase url not updated: %q", d.PurchaseURL)
	}

	// Metadata only: no event rows for link changes.
	_, total, _ := s.ListEvents(ctx, EventFilter{DollID: d.ID})
	if total != 1 {
		t.Fatalf("purchase url change must not emit events, total=%d", total)
	}

	// Blank clears the link.
	d, err = s.SetPurchaseURL(ctx, "tester", d.ID, "  ")
	if err != nil {
		t.Fatalf("clear purchase url: %v", err)
	}
	if d.PurchaseURL != "" {
		t.Fatalf("purchase url not cleared: %q", d.PurchaseURL)
	}

	if _, err := s.SetPurchaseURL(ctx, "tester", d.ID, "not a url"); !errors.Is(err, ErrValidation) {
		t.Fatalf("invalid url: expected ErrValidation, got %v", err)
	}
	if _, err := s.SetPurchaseURL(ctx, "tester", 999, "https://shop.example"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing doll: expected ErrNotFound, got %v", err)
	}
}

func TestRenameDollNoOpEmitsNoEvent(t *testing.T) {
	s := NewInMemory()
	d := seedDoll(t, s, "Pinky")

	if _, err := s.RenameDoll(context.Background(), "tester", d.ID, "Pinky"); err != nil {
		t.Fatalf("no-op rename: %v", err)
	}
	_, total, _ := s.ListEvents(context.Background(), EventFilter{DollID: d.ID})
	if total != 1 {
		t.Fatalf("no-op rename must not emit an event, total=%d", total)
	}

	renamed, err := s.RenameDoll(context.Background(), "tester", d.ID, "Rosie")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "Rosie" {
		t.Fatalf("rename not applied: %q", renamed.Name)
	}
	events, total, _ := s.ListEvents(context.Background(), EventFilter{DollID: d.ID})
	if total != 2 || events[0].Type != EventDollRenamed {
		t.Fatalf("expected DOLL_RENAMED newest-first, got %v", events)
	}
}

func TestMoveDollCapturesContainerNames(t *testing.T) {
	s := NewInMemory()
	d := seedDoll(t, s, "Pinky")

	// Move to current placement: no event.
	if _, err := s.MoveDoll(context.Background(), "tester", d.ID, d.ContainerID); err != nil {
		t.Fatalf("no-op move: %v", err)
	}
	_, total, _ := s.ListEvents(context.Background(), EventFilter{DollID: d.ID})
	if total != 1 {
		t.Fatalf("no-op move must not emit an event, total=%d", total)
	}

	moved, err := s.MoveDoll(context.Background(), "tester", d.ID, 2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Container != "Wishlist" {
		t.Fatalf("move not applied: %q", moved.Container)
	}
	events, _, _ := s.ListEvents(context.Background(), EventFilter{DollID: d.ID})
	payload, err := events[0].DecodePayload()
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	mv, ok := payload.(*DollMovedPayload)
	if !ok || mv.OldContainer != "Home" || mv.NewContainer != "Wishlist" {
		t.Fatalf("moved payload must capture names: %#v", payload)
	}
}

func TestDeleteDollIsSoftAndSingleShot(t *testing.T) {
	s := NewInMemory()
	d := seedDoll(t, s, "Pinky")

	if err := s.DeleteDoll(context.Background(), "alice", d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetDoll(context.Background(), d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted doll must be hidden, got %v", err)
	}

	err := s.DeleteDoll(context.Background(), "alice", d.ID)
	if !errors.Is(err, ErrAlreadyDeleted) {
		t.Fatalf("expected ErrAlreadyDeleted, got %v", err)
	}
	_, total, _ := s.ListEvents(context.Background(), EventFilter{DollID: d.ID})
	if total != 2 { // created + deleted
		t.Fatalf("repeat delete must not append events, total=%d", total)
	}

	// Events stay addressable and the doll shows up when asked for.
	items, total, _ := s.ListDolls(context.Background(), DollFilter{IncludeDeleted: true})
	if total != 1 || !items[0].IsDeleted() || items[0].DeletedBy != "alice" {
		t.Fatalf("expected soft-deleted doll in listing, got %+v", items)
	}
}

func TestListDollsFiltering(t *testing.T) {
	s := NewInMemory()
	seedDoll(t, s, "Pinky")
	rose := seedDoll(t, s, "Rose")
	seedDoll(t, s, "Rosebud")
	if _, err := s.MoveDoll(context.Background(), "tester", rose.ID, 2); err != nil {
		t.Fatalf("move: %v", err)
	}

	items, total, err := s.ListDolls(context.Background(), DollFilter{Query: "rose"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 matches for rose, got %d", total)
	}

	items, total, _ = s.ListDolls(context.Background(), DollFilter{ContainerID: 2})
	if total != 1 || items[0].Name != "Rose" {
		t.Fatalf("container filter failed: %v", items)
	}

	_, total, _ = s.ListDolls(context.Background(), DollFilter{Limit: 2})
	if total != 3 {
		t.Fatalf("total must ignore pagination, got %d", total)
	}
	items, _, _ = s.ListDolls(context.Background(), DollFilter{Limit: 2, Offset: 2})
	if len(items) != 1 {
		t.Fatalf("expected 1 item on last page, got %d", len(items))
	}
}

func TestSuggestDollsRanking(t *testing.T) {
	s := NewInMemory()
	seedDoll(t, s, "Sky Pinky")
	seedDoll(t, s, "pinky")
	seedDoll(t, s, "Rose")

	items, err := s.SuggestDolls(context.Background(), "Pi", 10)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(items) != 2 || items[0].Name != "pinky" || items[1].Name != "Sky Pinky" {
		t.Fatalf("unexpected ranking: %v", items)
	}

	if _, err := s.SuggestDolls(context.Background(), "  ", 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank query: expected ErrValidation, got %v", err)
	}
}

func TestContainerLifecycle(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	bag, err := s.CreateContainer(ctx, "alice", "Bag 1")
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	if bag.SortOrder != 20 {
		t.Fatalf("expected append at sort 20, got %d", bag.SortOrder)
	}

	if _, err := s.CreateContainer(ctx, "alice", "bag 1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}
	if _, err := s.RenameContainer(ctx, "alice", 1, "Base"); !errors.Is(err, ErrConflict) {
		t.Fatalf("rename system: expected ErrConflict, got %v", err)
	}
	if err := s.DeleteContainer(ctx, "alice", 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("delete system: expected ErrConflict, got %v", err)
	}

	d := seedDoll(t, s, "Pinky")
	if _, err := s.MoveDoll(ctx, "alice", d.ID, bag.ID); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := s.DeleteContainer(ctx, "alice", bag.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("delete non-empty: expected ErrConflict, got %v", err)
	}

	if _, err := s.MoveDoll(ctx, "alice", d.ID, 1); err != nil {
		t.Fatalf("move back: %v", err)
	}
	if err := s.DeleteContainer(ctx, "alice", bag.ID); err != nil {
		t.Fatalf("delete empty: %v", err)
	}
	containers, _ := s.ListContainers(ctx)
	if len(containers) != 2 {
		t.Fatalf("deactivated container must leave listings, got %d", len(containers))
	}

	// Dolls cannot move into a deactivated container.
	if _, err := s.MoveDoll(ctx, "alice", d.ID, bag.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("move to inactive: expected ErrNotFound, got %v", err)
	}
}

func TestReorderContainerSwapsNeighbors(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	bag, err := s.CreateContainer(ctx, "alice", "Bag 1")
	if err != nil {
		t.Fatalf("create container: %v", err)
	}

	out, err := s.ReorderContainer(ctx, "alice", bag.ID, ReorderUp)
	if err != nil {
		t.Fatalf("reorder up: %v", err)
	}
	if out[1].Name != "Bag 1" || out[2].Name != "Wishlist" {
		t.Fatalf("expected swap with Wishlist, got %v", out)
	}

	// Already at the top edge after a second move up.
	out, err = s.ReorderContainer(ctx, "alice", bag.ID, ReorderUp)
	if err != nil {
		t.Fatalf("reorder up: %v", err)
	}
	before := out[0].Name
	out, err = s.ReorderContainer(ctx, "alice", out[0].ID, ReorderUp)
	if err != nil {
		t.Fatalf("reorder at edge: %v", err)
	}
	if out[0].Name != before {
		t.Fatalf("edge reorder must be a no-op, got %v", out)
	}

	if _, err := s.ReorderContainer(ctx, "alice", bag.ID, "sideways"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad direction: expected ErrValidation, got %v", err)
	}
}

func TestPhotoPrimaryExclusivity(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	d := seedDoll(t, s, "Pinky")

	first, err := s.AddPhoto(ctx, "alice", d.ID, "1/a.png", false)
	if err != nil {
		t.Fatalf("add photo: %v", err)
	}
	if !first.IsPrimary {
		t.Fatalf("first photo must become primary")
	}

	second, err := s.AddPhoto(ctx, "alice", d.ID, "1/b.png", false)
	if err != nil {
		t.Fatalf("add photo: %v", err)
	}
	if second.IsPrimary {
		t.Fatalf("second photo must not be primary")
	}

	// Upload with make_primary demotes the previous primary.
	third, err := s.AddPhoto(ctx, "alice", d.ID, "1/c.png", true)
	if err != nil {
		t.Fatalf("add photo: %v", err)
	}
	if !third.IsPrimary {
		t.Fatalf("make_primary upload must be primary")
	}

	// Concurrent promotions must settle on exactly one primary.
	var wg sync.WaitGroup
	for _, id := range []int64{first.ID, second.ID, third.ID} {
		wg.Add(1)
		go func(photoID int64) {
			defer wg.Done()
			if _, err := s.SetPrimaryPhoto(ctx, "alice", photoID); err != nil {
				t.Errorf("set primary: %v", err)
			}
		}(id)
	}
	wg.Wait()

	photos, err := s.ListPhotos(ctx, d.ID)
	if err != nil {
		t.Fatalf("list photos: %v", err)
	}
	primaries := 0
	for _, p := range photos {
		if p.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary, got %d", primaries)
	}

	if _, err := s.AddPhoto(ctx, "alice", 999, "x/y.png", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("photo for missing doll: expected ErrNotFound, got %v", err)
	}
}

func TestListEventsNewestFirst(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	d := seedDoll(t, s, "Pinky")
	if _, err := s.RenameDoll(ctx, "alice", d.ID, "Rosie"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := s.MoveDoll(ctx, "alice", d.ID, 2); err != nil {
		t.Fatalf("move: %v", err)
	}

	events, total, err := s.ListEvents(ctx, EventFilter{DollID: d.ID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 events, got %d", total)
	}
	want := []string{EventDollMoved, EventDollRenamed, EventDollCreated}
	for i, e := range events {
		if e.Type != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], e.Type)
		}
	}

	// Pagination applies after the total count.
	page, total, _ := s.ListEvents(ctx, EventFilter{DollID: d.ID, Limit: 1, Offset: 1})
	if total != 3 || len(page) != 1 || page[0].Type != EventDollRenamed {
		t.Fatalf("unexpected page: total=%d page=%v", total, page)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		limit, def, max, want int
	}{
		{0, 50, 200, 50},
		{-1, 50, 200, 50},
		{1, 50, 200, 1},
		{200, 50, 200, 200},
		{201, 50, 200, 200}, // oversized requests cap at max, not default
		{1000, 10, 20, 20},
	}
	for _, c := range cases {
		if got := clampLimit(c.limit, c.def, c.max); got != c.want {
			t.Errorf("clampLimit(%d, %d, %d) = %d, want %d", c.limit, c.def, c.max, got, c.want)
		}
	}
}
