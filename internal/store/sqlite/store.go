// Package sqlite is the default durable backend. It keeps the whole
// inventory in a single file database, which is all a home deployment
// behind a reverse proxy needs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"dolltrack/internal/inventory"
	"dolltrack/internal/obs"
)

type Store struct {
	db *sql.DB
}

var _ inventory.Service = (*Store)(nil)

// Fixed-width fraction so lexicographic ORDER BY on the TEXT column
// matches chronological order. RFC3339Nano trims trailing zeros and
// breaks that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; SQLite serializes writes anyway and this avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA foreign_keys=ON`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS containers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	sort_order INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	is_system INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS dolls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	container_id INTEGER NOT NULL REFERENCES containers(id),
	purchase_url TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT,
	deleted_by TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS photos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	doll_id INTEGER NOT NULL REFERENCES dolls(id),
	path TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	created_by TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	doll_id INTEGER NOT NULL REFERENCES dolls(id),
	type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dolls_container ON dolls(container_id);
CREATE INDEX IF NOT EXISTS idx_photos_doll ON photos(doll_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_photos_one_primary ON photos(doll_id) WHERE is_primary=1;
CREATE INDEX IF NOT EXISTS idx_events_doll ON events(doll_id, created_at, id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.seedSystemContainers()
}

// seedSystemContainers inserts Home and Wishlist once, on an empty
// database. "Home" sorts first and is the default container for new
// dolls.
func (s *Store) seedSystemContainers() error {
	for i, name := range []string{"Home", "Wishlist"} {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM containers WHERE is_system=1 AND name=?`, name,
		).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check system container: %w", err)
		}
		now := fmtTime(time.Now().UTC())
		if _, err := s.db.Exec(`
			INSERT INTO containers(name, sort_order, is_active, is_system, created_at, updated_at)
			VALUES (?, ?, 1, 1, ?, ?)
		`, name, i*10, now, now); err != nil {
			return fmt.Errorf("seed system container %q: %w", name, err)
		}
	}
	return nil
}

// --- dolls ---

const dollColumns = `
	d.id, d.name, d.container_id, c.name, d.purchase_url,
	d.created_at, d.updated_at, d.deleted_at, d.deleted_by,
	COALESCE((SELECT p.path FROM photos p WHERE p.doll_id=d.id AND p.is_primary=1 LIMIT 1), ''),
	(SELECT COUNT(*) FROM photos p WHERE p.doll_id=d.id)
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoll(row rowScanner) (inventory.Doll, error) {
	var d inventory.Doll
	var created, updated string
	var deleted sql.NullString
	if err := row.Scan(
		&d.ID, &d.Name, &d.ContainerID, &d.Container, &d.PurchaseURL,
		&created, &updated, &deleted, &d.DeletedBy,
		&d.PrimaryPhotoPath, &d.PhotosCount,
	); err != nil {
		return inventory.Doll{}, err
	}
	var err error
	if d.CreatedAt, err = parseTime(created); err != nil {
		return inventory.Doll{}, err
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return inventory.Doll{}, err
	}
	if deleted.Valid {
		t, err := parseTime(deleted.String)
		if err != nil {
			return inventory.Doll{}, err
		}
		d.DeletedAt = &t
	}
	return d, nil
}

func (s *Store) CreateDoll(ctx context.Context, actor, name string, containerID int64, purchaseURL string) (inventory.Doll, error) {
	name, err := inventory.NormalizeName(name)
	if err != nil {
		return inventory.Doll{}, err
	}
	purchaseURL, err = inventory.NormalizePurchaseURL(purchaseURL)
	if err != nil {
		return inventory.Doll{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Doll{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if containerID == 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM containers WHERE is_system=1 AND name='Home'`,
		).Scan(&containerID); err != nil {
			return inventory.Doll{}, fmt.Errorf("resolve default container: %w", err)
		}
	}
	containerName, err := activeContainerName(ctx, tx, containerID)
	if err != nil {
		return inventory.Doll{}, err
	}

	now := fmtTime(time.Now().UTC())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO dolls(name, container_id, purchase_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, name, containerID, purchaseURL, now, now)
	if err != nil {
		return inventory.Doll{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Doll{}, err
	}

	if err := insertEvent(ctx, tx, id, inventory.EventDollCreated, inventory.DollCreatedPayload{
		Name:        name,
		ContainerID: containerID,
		Container:   containerName,
	}, actor); err != nil {
		return inventory.Doll{}, err
	}

	d, err := getDollTx(ctx, tx, id, false)
	if err != nil {
		return inventory.Doll{}, err
	}
	if err := commitRecording(tx, inventory.EventDollCreated); err != nil {
		return inventory.Doll{}, err
	}
	return d, nil
}

func (s *Store) GetDoll(ctx context.Context, id int64) (inventory.Doll, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dollColumns+`
		FROM dolls d JOIN containers c ON c.id=d.container_id
		WHERE d.id=? AND d.deleted_at IS NULL
	`, id)
	d, err := scanDoll(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Doll{}, fmt.Errorf("%w: doll %d", inventory.ErrNotFound, id)
	}
	return d, err
}

func (s *Store) ListDolls(ctx context.Context, f inventory.DollFilter) ([]inventory.Doll, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	where := []string{"1=1"}
	var args []any
	if !f.IncludeDeleted {
		where = append(where, "d.deleted_at IS NULL")
	}
	if f.ContainerID != 0 {
		where = append(where, "d.container_id=?")
		args = append(args, f.ContainerID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		// sqlite's lower() folds ASCII only; non-ASCII names match
		// case-sensitively here.
		where = append(where, "instr(lower(d.name), lower(?)) > 0")
		args = append(args, q)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dolls d WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dollColumns+`
		FROM dolls d JOIN containers c ON c.id=d.container_id
		WHERE `+cond+`
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []inventory.Doll
	for rows.Next() {
		d, err := scanDoll(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (s *Store) SuggestDolls(ctx context.Context, q string, limit int) ([]inventory.Doll, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: query must not be blank", inventory.ErrValidation)
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 20 {
		limit = 20
	}

	// Prefix matches rank ahead of substring matches. Case folding is
	// ASCII-only, same as the list search above.
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dollColumns+`
		FROM dolls d JOIN containers c ON c.id=d.container_id
		WHERE d.deleted_at IS NULL AND instr(lower(d.name), lower(?)) > 0
		ORDER BY CASE WHEN instr(lower(d.name), lower(?)) = 1 THEN 0 ELSE 1 END, lower(d.name)
		LIMIT ?
	`, q, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Doll
	for rows.Next() {
		d, err := scanDoll(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) RenameDoll(ctx context.Context, actor string, id int64, newName string) (inventory.Doll, error) {
	newName, err := inventory.NormalizeName(newName)
	if err != nil {
		return inventory.Doll{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Doll{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getDollTx(ctx, tx, id, false)
	if err != nil {
		return inventory.Doll{}, err
	}
	if cur.Name == newName {
		return cur, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dolls SET name=?, updated_at=? WHERE id=?`,
		newName, fmtTime(time.Now().UTC()), id,
	); err != nil {
		return inventory.Doll{}, err
	}
	if err := insertEvent(ctx, tx, id, inventory.EventDollRenamed, inventory.DollRenamedPayload{
		OldName: cur.Name,
		NewName: newName,
	}, actor); err != nil {
		return inventory.Doll{}, err
	}

	d, err := getDollTx(ctx, tx, id, false)
	if err != nil {
		return inventory.Doll{}, err
	}
	if err := commitRecording(tx, inventory.EventDollRenamed); err != nil {
		return inventory.Doll{}, err
	}
	return d, nil
}

func (s *Store) MoveDoll(ctx context.Context, actor string, id, containerID int64) (inventory.Doll, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Doll{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getDollTx(ctx, tx, id, false)
	if err != nil {
		return inventory.Doll{}, err
	}
	targetName, err := activeContainerName(ctx, tx, containerID)
	if err != nil {
		return inventory.Doll{}, err
	}
	if cur.ContainerID == containerID {
		return cur, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dolls SET container_id=?, updated_at=? WHERE id=?`,
		containerID, fmtTime(time.Now().UTC()), id,
	); err != nil {
		return inventory.Doll{}, err
	}
	if err := insertEvent(ctx, tx, id, inventory.EventDollMoved, inventory.DollMovedPayload{
		OldContainerID: cur.ContainerID,
		OldContainer:   cur.Container,
		NewContainerID: containerID,
		NewContainer:   targetName,
	}, actor); err != nil {
		return inventory.Doll{}, err
	}

	d, err := getDollTx(ctx, tx, id, false)
	if err != nil {
		return inventory.Doll{}, err
	}
	if err := commitRecording(tx, inventory.EventDollMoved); err != nil {
		return inventory.Doll{}, err
	}
	return d, nil
}

func (s *Store) SetPurchaseURL(ctx context.Context, actor string, id int64, purchaseURL string) (inventory.Doll, error) {
	purchaseURL, err := inventory.NormalizePurchaseURL(purchaseURL)
	if err != nil {
		return inventory.Doll{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Doll{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getDollTx(ctx, tx, id, false)
	if err != nil {
		return inventory.Doll{}, err
	}
	if cur.PurchaseURL == purchaseURL {
		return cur, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dolls SET purchase_url=?, updated_at=? WHERE id=?`,
		purchaseURL, fmtTime(time.Now().UTC()), id,
	); err != nil {
		return inventory.Doll{}, err
	}

	d, err := getDollTx(ctx, tx, id, false)
	if err != nil {
		return inventory.Doll{}, err
	}
	if err := tx.Commit(); err != nil {
		return inventory.Doll{}, err
	}
	return d, nil
}

func (s *Store) DeleteDoll(ctx context.Context, actor string, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getDollTx(ctx, tx, id, true)
	if err != nil {
		return err
	}
	if cur.IsDeleted() {
		return fmt.Errorf("%w: doll %d", inventory.ErrAlreadyDeleted, id)
	}

	now := fmtTime(time.Now().UTC())
	if _, err := tx.ExecContext(ctx,
		`UPDATE dolls SET deleted_at=?, deleted_by=?, updated_at=? WHERE id=?`,
		now, actor, now, id,
	); err != nil {
		return err
	}
	if err := insertEvent(ctx, tx, id, inventory.EventDollDeleted, inventory.DollDeletedPayload{
		Name: cur.Name,
	}, actor); err != nil {
		return err
	}
	return commitRecording(tx, inventory.EventDollDeleted)
}

// --- containers ---

func (s *Store) ListContainers(ctx context.Context) ([]inventory.Container, error) {
	return listContainers(ctx, s.db)
}

func (s *Store) CreateContainer(ctx context.Context, actor, name string) (inventory.Container, error) {
	name, err := inventory.NormalizeName(name)
	if err != nil {
		return inventory.Container{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Container{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureNameFree(ctx, tx, name, 0); err != nil {
		return inventory.Container{}, err
	}

	var maxOrder int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), 0) FROM containers`,
	).Scan(&maxOrder); err != nil {
		return inventory.Container{}, err
	}

	now := fmtTime(time.Now().UTC())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO containers(name, sort_order, is_active, is_system, created_at, updated_at)
		VALUES (?, ?, 1, 0, ?, ?)
	`, name, maxOrder+10, now, now)
	if err != nil {
		return inventory.Container{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Container{}, err
	}

	c, err := getContainerTx(ctx, tx, id)
	if err != nil {
		return inventory.Container{}, err
	}
	if err := tx.Commit(); err != nil {
		return inventory.Container{}, err
	}
	return c, nil
}

func (s *Store) RenameContainer(ctx context.Context, actor string, id int64, name string) (inventory.Container, error) {
	name, err := inventory.NormalizeName(name)
	if err != nil {
		return inventory.Container{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Container{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getContainerTx(ctx, tx, id)
	if err != nil {
		return inventory.Container{}, err
	}
	if cur.IsSystem {
		return inventory.Container{}, fmt.Errorf("%w: system containers cannot be renamed", inventory.ErrConflict)
	}
	if err := ensureNameFree(ctx, tx, name, id); err != nil {
		return inventory.Container{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE containers SET name=?, updated_at=? WHERE id=?`,
		name, fmtTime(time.Now().UTC()), id,
	); err != nil {
		return inventory.Container{}, err
	}

	c, err := getContainerTx(ctx, tx, id)
	if err != nil {
		return inventory.Container{}, err
	}
	if err := tx.Commit(); err != nil {
		return inventory.Container{}, err
	}
	return c, nil
}

func (s *Store) ReorderContainer(ctx context.Context, actor string, id int64, direction string) ([]inventory.Container, error) {
	if direction != inventory.ReorderUp && direction != inventory.ReorderDown {
		return nil, fmt.Errorf("%w: direction must be %q or %q",
			inventory.ErrValidation, inventory.ReorderUp, inventory.ReorderDown)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ordered, err := listContainers(ctx, tx)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, c := range ordered {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: container %d", inventory.ErrNotFound, id)
	}
	other := idx - 1
	if direction == inventory.ReorderDown {
		other = idx + 1
	}
	if other < 0 || other >= len(ordered) {
		return ordered, nil // already at the edge
	}

	now := fmtTime(time.Now().UTC())
	for _, pair := range [][2]any{
		{ordered[other].SortOrder, ordered[idx].ID},
		{ordered[idx].SortOrder, ordered[other].ID},
	} {
		if _, err := tx.ExecContext(ctx,
			`UPDATE containers SET sort_order=?, updated_at=? WHERE id=?`,
			pair[0], now, pair[1],
		); err != nil {
			return nil, err
		}
	}

	out, err := listContainers(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteContainer(ctx context.Context, actor string, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getContainerTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if cur.IsSystem {
		return fmt.Errorf("%w: system containers cannot be deleted", inventory.ErrConflict)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dolls WHERE container_id=? AND deleted_at IS NULL`, id,
	).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: container not empty, it holds %d doll(s)", inventory.ErrConflict, count)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE containers SET is_active=0, updated_at=? WHERE id=?`,
		fmtTime(time.Now().UTC()), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// --- photos ---

func (s *Store) AddPhoto(ctx context.Context, actor string, dollID int64, path string, makePrimary bool) (inventory.Photo, error) {
	if strings.TrimSpace(path) == "" {
		return inventory.Photo{}, fmt.Errorf("%w: photo path must not be blank", inventory.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Photo{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := getDollTx(ctx, tx, dollID, false); err != nil {
		return inventory.Photo{}, err
	}

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM photos WHERE doll_id=?`, dollID,
	).Scan(&existing); err != nil {
		return inventory.Photo{}, err
	}
	primary := existing == 0 || makePrimary
	if primary {
		if _, err := tx.ExecContext(ctx,
			`UPDATE photos SET is_primary=0 WHERE doll_id=?`, dollID,
		); err != nil {
			return inventory.Photo{}, err
		}
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO photos(doll_id, path, is_primary, created_at, created_by)
		VALUES (?, ?, ?, ?, ?)
	`, dollID, path, boolToInt(primary), fmtTime(now), actor)
	if err != nil {
		return inventory.Photo{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Photo{}, err
	}

	if err := insertEvent(ctx, tx, dollID, inventory.EventPhotoAdded, inventory.PhotoAddedPayload{
		PhotoID: id,
		Path:    path,
	}, actor); err != nil {
		return inventory.Photo{}, err
	}
	recorded := []string{inventory.EventPhotoAdded}
	if primary {
		if err := insertEvent(ctx, tx, dollID, inventory.EventPhotoSetPrimary, inventory.PhotoSetPrimaryPayload{
			PhotoID: id,
		}, actor); err != nil {
			return inventory.Photo{}, err
		}
		recorded = append(recorded, inventory.EventPhotoSetPrimary)
	}

	if err := commitRecording(tx, recorded...); err != nil {
		return inventory.Photo{}, err
	}
	return inventory.Photo{
		ID:        id,
		DollID:    dollID,
		Path:      path,
		IsPrimary: primary,
		CreatedAt: now,
		CreatedBy: actor,
	}, nil
}

func (s *Store) ListPhotos(ctx context.Context, dollID int64) ([]inventory.Photo, error) {
	if _, err := s.GetDoll(ctx, dollID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doll_id, path, is_primary, created_at, created_by
		FROM photos WHERE doll_id=?
		ORDER BY created_at DESC, id DESC
	`, dollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SetPrimaryPhoto(ctx context.Context, actor string, photoID int64) (inventory.Photo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Photo{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, doll_id, path, is_primary, created_at, created_by
		FROM photos WHERE id=?
	`, photoID)
	p, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Photo{}, fmt.Errorf("%w: photo %d", inventory.ErrNotFound, photoID)
	}
	if err != nil {
		return inventory.Photo{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE photos SET is_primary=0 WHERE doll_id=?`, p.DollID,
	); err != nil {
		return inventory.Photo{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE photos SET is_primary=1 WHERE id=?`, photoID,
	); err != nil {
		return inventory.Photo{}, err
	}
	if err := insertEvent(ctx, tx, p.DollID, inventory.EventPhotoSetPrimary, inventory.PhotoSetPrimaryPayload{
		PhotoID: photoID,
	}, actor); err != nil {
		return inventory.Photo{}, err
	}

	if err := commitRecording(tx, inventory.EventPhotoSetPrimary); err != nil {
		return inventory.Photo{}, err
	}
	p.IsPrimary = true
	return p, nil
}

// --- events ---

func (s *Store) ListEvents(ctx context.Context, f inventory.EventFilter) ([]inventory.Event, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	cond := "1=1"
	var args []any
	if f.DollID != 0 {
		cond = "doll_id=?"
		args = append(args, f.DollID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doll_id, type, payload, created_by, created_at
		FROM events WHERE `+cond+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []inventory.Event
	for rows.Next() {
		var e inventory.Event
		var payload []byte
		var created string
		if err := rows.Scan(&e.ID, &e.DollID, &e.Type, &payload, &e.CreatedBy, &created); err != nil {
			return nil, 0, err
		}
		e.Payload = payload
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// --- helpers ---

// querier is the subset of *sql.DB and *sql.Tx the read helpers need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDollTx(ctx context.Context, q querier, id int64, includeDeleted bool) (inventory.Doll, error) {
	query := `
		SELECT ` + dollColumns + `
		FROM dolls d JOIN containers c ON c.id=d.container_id
		WHERE d.id=?`
	if !includeDeleted {
		query += ` AND d.deleted_at IS NULL`
	}
	d, err := scanDoll(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Doll{}, fmt.Errorf("%w: doll %d", inventory.ErrNotFound, id)
	}
	return d, err
}

func getContainerTx(ctx context.Context, q querier, id int64) (inventory.Container, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, sort_order, is_active, is_system, created_at, updated_at
		FROM containers WHERE id=? AND is_active=1
	`, id)
	c, err := scanContainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Container{}, fmt.Errorf("%w: container %d", inventory.ErrNotFound, id)
	}
	return c, err
}

func activeContainerName(ctx context.Context, q querier, id int64) (string, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM containers WHERE id=? AND is_active=1`, id,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: container %d", inventory.ErrNotFound, id)
	}
	return name, err
}

func ensureNameFree(ctx context.Context, q querier, name string, excludeID int64) error {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM containers
		WHERE is_active=1 AND lower(name)=lower(?) AND id<>?
	`, name, excludeID).Scan(&one)
	if err == nil {
		return fmt.Errorf("%w: container %q already exists", inventory.ErrConflict, name)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func listContainers(ctx context.Context, q querier) ([]inventory.Container, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, sort_order, is_active, is_system, created_at, updated_at
		FROM containers WHERE is_active=1
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContainer(row rowScanner) (inventory.Container, error) {
	var c inventory.Container
	var active, system int
	var created, updated string
	if err := row.Scan(&c.ID, &c.Name, &c.SortOrder, &active, &system, &created, &updated); err != nil {
		return inventory.Container{}, err
	}
	c.IsActive = active != 0
	c.IsSystem = system != 0
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return inventory.Container{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return inventory.Container{}, err
	}
	return c, nil
}

func scanPhoto(row rowScanner) (inventory.Photo, error) {
	var p inventory.Photo
	var primary int
	var created string
	if err := row.Scan(&p.ID, &p.DollID, &p.Path, &primary, &created, &p.CreatedBy); err != nil {
		return inventory.Photo{}, err
	}
	p.IsPrimary = primary != 0
	var err error
	p.CreatedAt, err = parseTime(created)
	return p, err
}

func insertEvent(ctx context.Context, tx *sql.Tx, dollID int64, eventType string, payload any, actor string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events(doll_id, type, payload, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, dollID, eventType, string(inventory.EncodePayload(payload)), actor, fmtTime(time.Now().UTC()))
	return err
}

// commitRecording commits the transaction and then counts its appended
// events, so rolled-back events never reach the metric.
func commitRecording(tx *sql.Tx, eventTypes ...string) error {
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, t := range eventTypes {
		obs.ObserveEvent(t)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
