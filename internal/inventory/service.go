package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dolltrack/internal/obs"
)

// Service defines inventory operations. Every mutation takes the acting
// identity's id and appends its audit event inside the same atomic unit
// as the state change: a failed mutation leaves no event behind, and a
// recorded event guarantees the mutation committed.
type Service interface {
	CreateDoll(ctx context.Context, actor, name string, containerID int64, purchaseURL string) (Doll, error)
	GetDoll(ctx context.Context, id int64) (Doll, error)
	ListDolls(ctx context.Context, f DollFilter) ([]Doll, int, error)
	SuggestDolls(ctx context.Context, q string, limit int) ([]Doll, error)
	RenameDoll(ctx context.Context, actor string, id int64, newName string) (Doll, error)
	MoveDoll(ctx context.Context, actor string, id, containerID int64) (Doll, error)
	// SetPurchaseURL updates the purchase link. Metadata only: unlike
	// the operations above it records no event.
	SetPurchaseURL(ctx context.Context, actor string, id int64, purchaseURL string) (Doll, error)
	DeleteDoll(ctx context.Context, actor string, id int64) error

	ListContainers(ctx context.Context) ([]Container, error)
	CreateContainer(ctx context.Context, actor, name string) (Container, error)
	RenameContainer(ctx context.Context, actor string, id int64, name string) (Container, error)
	ReorderContainer(ctx context.Context, actor string, id int64, direction string) ([]Container, error)
	DeleteContainer(ctx context.Context, actor string, id int64) error

	AddPhoto(ctx context.Context, actor string, dollID int64, path string, makePrimary bool) (Photo, error)
	ListPhotos(ctx context.Context, dollID int64) ([]Photo, error)
	SetPrimaryPhoto(ctx context.Context, actor string, photoID int64) (Photo, error)

	ListEvents(ctx context.Context, f EventFilter) ([]Event, int, error)
}

// Reorder directions.
const (
	ReorderUp   = "up"
	ReorderDown = "down"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxSuggestLimit  = 20
)

// InMemory implements Service with in-process locking. It backs tests
// and the demo mode; durable deployments use the SQLite or Postgres
// store.
type InMemory struct {
	mu         sync.RWMutex
	containers map[int64]*Container
	dolls      map[int64]*Doll
	photos     map[int64]*Photo
	events     []Event

	nextContainerID int64
	nextDollID      int64
	nextPhotoID     int64
	nextEventID     int64
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an inventory seeded with the system containers,
// matching what the durable stores create on first startup.
func NewInMemory() *InMemory {
	s := &InMemory{
		containers: make(map[int64]*Container),
		dolls:      make(map[int64]*Doll),
		photos:     make(map[int64]*Photo),
	}
	now := time.Now().UTC()
	for i, name := range []string{"Home", "Wishlist"} {
		s.nextContainerID++
		s.containers[s.nextContainerID] = &Container{
			ID:        s.nextContainerID,
			Name:      name,
			SortOrder: i * 10,
			IsActive:  true,
			IsSystem:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return s
}

// --- dolls ---

func (s *InMemory) CreateDoll(ctx context.Context, actor, name string, containerID int64, purchaseURL string) (Doll, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Doll{}, err
	}
	purchaseURL, err = NormalizePurchaseURL(purchaseURL)
	if err != nil {
		return Doll{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if containerID == 0 {
		containerID = s.homeContainerIDLocked()
	}
	c, err := s.activeContainerLocked(containerID)
	if err != nil {
		return Doll{}, err
	}

	now := time.Now().UTC()
	s.nextDollID++
	d := &Doll{
		ID:          s.nextDollID,
		Name:        name,
		ContainerID: c.ID,
		PurchaseURL: purchaseURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.dolls[d.ID] = d
	s.appendEventLocked(d.ID, EventDollCreated, DollCreatedPayload{
		Name:        name,
		ContainerID: c.ID,
		Container:   c.Name,
	}, actor)
	return s.dollViewLocked(d), nil
}

func (s *InMemory) GetDoll(ctx context.Context, id int64) (Doll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dolls[id]
	if !ok || d.IsDeleted() {
		return Doll{}, fmt.Errorf("%w: doll %d", ErrNotFound, id)
	}
	return s.dollViewLocked(d), nil
}

func (s *InMemory) ListDolls(ctx context.Context, f DollFilter) ([]Doll, int, error) {
	limit := clampLimit(f.Limit, defaultListLimit, maxListLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Doll
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, d := range s.dolls {
		if d.IsDeleted() && !f.IncludeDeleted {
			continue
		}
		if f.ContainerID != 0 && d.ContainerID != f.ContainerID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(d.Name), q) {
			continue
		}
		matched = append(matched, d)
	}
	// Newest first, id as the tie-break.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	matched = page(matched, f.Offset, limit)
	out := make([]Doll, 0, len(matched))
	for _, d := range matched {
		out = append(out, s.dollViewLocked(d))
	}
	return out, total, nil
}

func (s *InMemory) SuggestDolls(ctx context.Context, q string, limit int) ([]Doll, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: query must not be blank", ErrValidation)
	}
	limit = clampLimit(limit, 10, maxSuggestLimit)
	lower := strings.ToLower(q)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var prefix, contains []*Doll
	for _, d := range s.dolls {
		if d.IsDeleted() {
			continue
		}
		name := strings.ToLower(d.Name)
		switch {
		case strings.HasPrefix(name, lower):
			prefix = append(prefix, d)
		case strings.Contains(name, lower):
			contains = append(contains, d)
		}
	}
	byName := func(list []*Doll) {
		sort.Slice(list, func(i, j int) bool {
			return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
		})
	}
	byName(prefix)
	byName(contains)

	ranked := append(prefix, contains...)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Doll, 0, len(ranked))
	for _, d := range ranked {
		out = append(out, s.dollViewLocked(d))
	}
	return out, nil
}

func (s *InMemory) RenameDoll(ctx context.Context, actor string, id int64, newName string) (Doll, error) {
	newName, err := NormalizeName(newName)
	if err != nil {
		return Doll{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dolls[id]
	if !ok || d.IsDeleted() {
		return Doll{}, fmt.Errorf("%w: doll %d", ErrNotFound, id)
	}
	if d.Name == newName {
		return s.dollViewLocked(d), nil
	}
	s.appendEventLocked(d.ID, EventDollRenamed, DollRenamedPayload{
		OldName: d.Name,
		NewName: newName,
	}, actor)
	d.Name = newName
	d.UpdatedAt = time.Now().UTC()
	return s.dollViewLocked(d), nil
}

func (s *InMemory) MoveDoll(ctx context.Context, actor string, id, containerID int64) (Doll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dolls[id]
	if !ok || d.IsDeleted() {
		return Doll{}, fmt.Errorf("%w: doll %d", ErrNotFound, id)
	}
	target, err := s.activeContainerLocked(containerID)
	if err != nil {
		return Doll{}, err
	}
	if d.ContainerID == target.ID {
		return s.dollViewLocked(d), nil
	}
	oldName := ""
	if old, ok := s.containers[d.ContainerID]; ok {
		oldName = old.Name
	}
	s.appendEventLocked(d.ID, EventDollMoved, DollMovedPayload{
		OldContainerID: d.ContainerID,
		OldContainer:   oldName,
		NewContainerID: target.ID,
		NewContainer:   target.Name,
	}, actor)
	d.ContainerID = target.ID
	d.UpdatedAt = time.Now().UTC()
	return s.dollViewLocked(d), nil
}

func (s *InMemory) SetPurchaseURL(ctx context.Context, actor string, id int64, purchaseURL string) (Doll, error) {
	purchaseURL, err := NormalizePurchaseURL(purchaseURL)
	if err != nil {
		return Doll{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dolls[id]
	if !ok || d.IsDeleted() {
		return Doll{}, fmt.Errorf("%w: doll %d", ErrNotFound, id)
	}
	if d.PurchaseURL != purchaseURL {
		d.PurchaseURL = purchaseURL
		d.UpdatedAt = time.Now().UTC()
	}
	return s.dollViewLocked(d), nil
}

func (s *InMemory) DeleteDoll(ctx context.Context, actor string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dolls[id]
	if !ok {
		return fmt.Errorf("%w: doll %d", ErrNotFound, id)
	}
	if d.IsDeleted() {
		return fmt.Errorf("%w: doll %d", ErrAlreadyDeleted, id)
	}
	now := time.Now().UTC()
	d.DeletedAt = &now
	d.DeletedBy = actor
	d.UpdatedAt = now
	s.appendEventLocked(d.ID, EventDollDeleted, DollDeletedPayload{Name: d.Name}, actor)
	return nil
}

// --- containers ---

func (s *InMemory) ListContainers(ctx context.Context) ([]Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeContainersLocked(), nil
}

func (s *InMemory) CreateContainer(ctx context.Context, actor, name string) (Container, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Container{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.containerNameTakenLocked(name, 0) {
		return Container{}, fmt.Errorf("%w: container %q already exists", ErrConflict, name)
	}
	maxOrder := 0
	for _, c := range s.containers {
		if c.SortOrder > maxOrder {
			maxOrder = c.SortOrder
		}
	}
	now := time.Now().UTC()
	s.nextContainerID++
	c := &Container{
		ID:        s.nextContainerID,
		Name:      name,
		SortOrder: maxOrder + 10,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.containers[c.ID] = c
	return *c, nil
}

func (s *InMemory) RenameContainer(ctx context.Context, actor string, id int64, name string) (Container, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Container{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.activeContainerLocked(id)
	if err != nil {
		return Container{}, err
	}
	if c.IsSystem {
		return Container{}, fmt.Errorf("%w: system containers cannot be renamed", ErrConflict)
	}
	if s.containerNameTakenLocked(name, id) {
		return Container{}, fmt.Errorf("%w: container %q already exists", ErrConflict, name)
	}
	c.Name = name
	c.UpdatedAt = time.Now().UTC()
	return *c, nil
}

func (s *InMemory) ReorderContainer(ctx context.Context, actor string, id int64, direction string) ([]Container, error) {
	if direction != ReorderUp && direction != ReorderDown {
		return nil, fmt.Errorf("%w: direction must be %q or %q", ErrValidation, ReorderUp, ReorderDown)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeContainerLocked(id); err != nil {
		return nil, err
	}
	ordered := s.activeContainersLocked()
	idx := -1
	for i, c := range ordered {
		if c.ID == id {
			idx = i
			break
		}
	}
	other := idx - 1
	if direction == ReorderDown {
		other = idx + 1
	}
	if other < 0 || other >= len(ordered) {
		return ordered, nil // already at the edge
	}

	a := s.containers[ordered[idx].ID]
	b := s.containers[ordered[other].ID]
	now := time.Now().UTC()
	a.SortOrder, b.SortOrder = b.SortOrder, a.SortOrder
	a.UpdatedAt, b.UpdatedAt = now, now
	return s.activeContainersLocked(), nil
}

func (s *InMemory) DeleteContainer(ctx context.Context, actor string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.activeContainerLocked(id)
	if err != nil {
		return err
	}
	if c.IsSystem {
		return fmt.Errorf("%w: system containers cannot be deleted", ErrConflict)
	}
	count := 0
	for _, d := range s.dolls {
		if !d.IsDeleted() && d.ContainerID == id {
			count++
		}
	}
	if count > 0 {
		return fmt.Errorf("%w: container not empty, it holds %d doll(s)", ErrConflict, count)
	}
	c.IsActive = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// --- photos ---

func (s *InMemory) AddPhoto(ctx context.Context, actor string, dollID int64, path string, makePrimary bool) (Photo, error) {
	if strings.TrimSpace(path) == "" {
		return Photo{}, fmt.Errorf("%w: photo path must not be blank", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dolls[dollID]
	if !ok || d.IsDeleted() {
		return Photo{}, fmt.Errorf("%w: doll %d", ErrNotFound, dollID)
	}

	first := true
	for _, p := range s.photos {
		if p.DollID == dollID {
			first = false
			break
		}
	}
	primary := first || makePrimary
	if primary {
		s.clearPrimaryLocked(dollID)
	}

	s.nextPhotoID++
	p := &Photo{
		ID:        s.nextPhotoID,
		DollID:    dollID,
		Path:      path,
		IsPrimary: primary,
		CreatedAt: time.Now().UTC(),
		CreatedBy: actor,
	}
	s.photos[p.ID] = p

	s.appendEventLocked(dollID, EventPhotoAdded, PhotoAddedPayload{PhotoID: p.ID, Path: path}, actor)
	if primary {
		s.appendEventLocked(dollID, EventPhotoSetPrimary, PhotoSetPrimaryPayload{PhotoID: p.ID}, actor)
	}
	return *p, nil
}

func (s *InMemory) ListPhotos(ctx context.Context, dollID int64) ([]Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.dolls[dollID]; !ok || d.IsDeleted() {
		return nil, fmt.Errorf("%w: doll %d", ErrNotFound, dollID)
	}
	var out []Photo
	for _, p := range s.photos {
		if p.DollID == dollID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *InMemory) SetPrimaryPhoto(ctx context.Context, actor string, photoID int64) (Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[photoID]
	if !ok {
		return Photo{}, fmt.Errorf("%w: photo %d", ErrNotFound, photoID)
	}
	s.clearPrimaryLocked(p.DollID)
	p.IsPrimary = true
	s.appendEventLocked(p.DollID, EventPhotoSetPrimary, PhotoSetPrimaryPayload{PhotoID: p.ID}, actor)
	return *p, nil
}

// --- events ---

func (s *InMemory) ListEvents(ctx context.Context, f EventFilter) ([]Event, int, error) {
	limit := clampLimit(f.Limit, defaultListLimit, maxListLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Event
	for _, e := range s.events {
		if f.DollID != 0 && e.DollID != f.DollID {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	matched = page(matched, f.Offset, limit)
	return matched, total, nil
}

// --- helpers ---

func (s *InMemory) appendEventLocked(dollID int64, eventType string, payload any, actor string) {
	s.nextEventID++
	s.events = append(s.events, Event{
		ID:        s.nextEventID,
		DollID:    dollID,
		Type:      eventType,
		Payload:   EncodePayload(payload),
		CreatedBy: actor,
		CreatedAt: time.Now().UTC(),
	})
	obs.ObserveEvent(eventType)
}

func (s *InMemory) homeContainerIDLocked() int64 {
	for _, c := range s.containers {
		if c.IsSystem && c.Name == "Home" {
			return c.ID
		}
	}
	return 0
}

func (s *InMemory) activeContainerLocked(id int64) (*Container, error) {
	c, ok := s.containers[id]
	if !ok || !c.IsActive {
		return nil, fmt.Errorf("%w: container %d", ErrNotFound, id)
	}
	return c, nil
}

func (s *InMemory) activeContainersLocked() []Container {
	var out []Container
	for _, c := range s.containers {
		if c.IsActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *InMemory) containerNameTakenLocked(name string, excludeID int64) bool {
	for _, c := range s.containers {
		if c.ID == excludeID || !c.IsActive {
			continue
		}
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (s *InMemory) clearPrimaryLocked(dollID int64) {
	for _, p := range s.photos {
		if p.DollID == dollID && p.IsPrimary {
			p.IsPrimary = false
		}
	}
}

// dollViewLocked copies the doll and fills read-side enrichment.
func (s *InMemory) dollViewLocked(d *Doll) Doll {
	out := *d
	if c, ok := s.containers[d.ContainerID]; ok {
		out.Container = c.Name
	}
	for _, p := range s.photos {
		if p.DollID != d.ID {
			continue
		}
		out.PhotosCount++
		if p.IsPrimary {
			out.PrimaryPhotoPath = p.Path
		}
	}
	return out
}

// clampLimit applies the default for missing limits and caps oversized
// ones at max rather than resetting them.
func clampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	default:
		return limit
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
