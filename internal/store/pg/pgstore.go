// Package pg is the Postgres backend, used when PG_DSN is set. It
// mirrors the SQLite store behavior exactly; the two differ only in
// SQL dialect and connection handling.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dolltrack/internal/inventory"
	"dolltrack/internal/obs"
)

type Store struct {
	db *sql.DB
}

var _ inventory.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Tests use it with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the schema and seeds the system containers. Called
// once at startup.
func (s *Store) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS containers (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	sort_order INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_system BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS dolls (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	container_id BIGINT NOT NULL REFERENCES containers(id),
	purchase_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ,
	deleted_by TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS photos (
	id BIGSERIAL PRIMARY KEY,
	doll_id BIGINT NOT NULL REFERENCES dolls(id),
	path TEXT NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	created_by TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	doll_id BIGINT NOT NULL REFERENCES dolls(id),
	type TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dolls_container ON dolls(container_id);
CREATE INDEX IF NOT EXISTS idx_photos_doll ON photos(doll_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_photos_one_primary ON photos(doll_id) WHERE is_primary;
CREATE INDEX IF NOT EXISTS idx_events_doll ON events(doll_id, created_at, id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	for i, name := range []string{"Home", "Wishlist"} {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO containers(name, sort_order, is_active, is_system, created_at, updated_at)
			SELECT $1, $2, TRUE, TRUE, now(), now()
			WHERE NOT EXISTS (SELECT 1 FROM containers WHERE is_system AND name=$1)
		`, name, i*10); err != nil {
			return fmt.Errorf("seed system container %q: %w", name, err)
		}
	}
	return nil
}

// --- dolls ---

const dollColumns = `
	d.id, d.name, d.container_id, c.name, d.purchase_url,
	d.created_at, d.updated_at, d.deleted_at, d.deleted_by,
	COALESCE((SELECT p.path FROM photos p WHERE p.doll_id=d.id AND p.is_primary LIMIT 1), ''),
	(SELECT COUNT(*) FROM photos p WHERE p.doll_id=d.id)
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoll(row rowScanner) (inventory.Doll, error) {
	var d inventory.Doll
	var deleted sql.NullTime
	if err := row.Scan(
		&d.ID, &d.Name, &d.ContainerID, &d.Container, &d.PurchaseURL,
		&d.CreatedAt, &d.UpdatedAt, &deleted, &d.DeletedBy,
		&d.PrimaryPhotoPath, &d.PhotosCount,
	); err != nil {
		return inventory.Doll{}, err
	}
	if deleted.Valid {
		t := deleted.Time
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
			`SELECT id FROM containers WHERE is_system AND name='Home'`,
		).Scan(&containerID); err != nil {
			return inventory.Doll{}, fmt.Errorf("resolve default container: %w", err)
		}
	}
	containerName, err := activeContainerName(ctx, tx, containerID)
	if err != nil {
		return inventory.Doll{}, err
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO dolls(name, container_id, purchase_url, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now()) RETURNING id
	`, name, containerID, purchaseURL).Scan(&id); err != nil {
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
		WHERE d.id=$1 AND d.deleted_at IS NULL
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

	where := []string{"TRUE"}
	var args []any
	if !f.IncludeDeleted {
		where = append(where, "d.deleted_at IS NULL")
	}
	if f.ContainerID != 0 {
		args = append(args, f.ContainerID)
		where = append(where, fmt.Sprintf("d.container_id=$%d", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, q)
		where = append(where, fmt.Sprintf("position(lower($%d) in lower(d.name)) > 0", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dolls d WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM dolls d JOIN containers c ON c.id=d.container_id
		WHERE %s
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT $%d OFFSET $%d
	`, dollColumns, cond, len(args)-1, len(args)), args...)
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dollColumns+`
		FROM dolls d JOIN containers c ON c.id=d.container_id
		WHERE d.deleted_at IS NULL AND position(lower($1) in lower(d.name)) > 0
		ORDER BY CASE WHEN position(lower($1) in lower(d.name)) = 1 THEN 0 ELSE 1 END, lower(d.name)
		LIMIT $2
	`, q, limit)
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
		`UPDATE dolls SET name=$1, updated_at=now() WHERE id=$2`, newName, id,
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
		`UPDATE dolls SET container_id=$1, updated_at=now() WHERE id=$2`, containerID, id,
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
		`UPDATE dolls SET purchase_url=$1, updated_at=now() WHERE id=$2`, purchaseURL, id,
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

	if _, err := tx.ExecContext(ctx,
		`UPDATE dolls SET deleted_at=now(), deleted_by=$1, updated_at=now() WHERE id=$2`,
		actor, id,
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

	var id int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO containers(name, sort_order, is_active, is_system, created_at, updated_at)
		VALUES ($1, (SELECT COALESCE(MAX(sort_order), 0) + 10 FROM containers), TRUE, FALSE, now(), now())
		RETURNING id
	`, name).Scan(&id); err != nil {
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
		`UPDATE containers SET name=$1, updated_at=now() WHERE id=$2`, name, id,
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

	for _, pair := range [][2]any{
		{ordered[other].SortOrder, ordered[idx].ID},
		{ordered[idx].SortOrder, ordered[other].ID},
	} {
		if _, err := tx.ExecContext(ctx,
			`UPDATE containers SET sort_order=$1, updated_at=now() WHERE id=$2`,
			pair[0], pair[1],
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
		`SELECT COUNT(*) FROM dolls WHERE container_id=$1 AND deleted_at IS NULL`, id,
	).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: container not empty, it holds %d doll(s)", inventory.ErrConflict, count)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE containers SET is_active=FALSE, updated_at=now() WHERE id=$1`, id,
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

	// Lock the doll row so competing uploads serialize: the primary
	// decision below is a read followed by a write, and two uploads
	// racing on READ COMMITTED could otherwise both insert a primary.
	// The partial unique index on photos(doll_id) is the backstop.
	var locked int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM dolls WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, dollID,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Photo{}, fmt.Errorf("%w: doll %d", inventory.ErrNotFound, dollID)
	}
	if err != nil {
		return inventory.Photo{}, err
	}

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM photos WHERE doll_id=$1`, dollID,
	).Scan(&existing); err != nil {
		return inventory.Photo{}, err
	}
	primary := existing == 0 || makePrimary
	if primary {
		if _, err := tx.ExecContext(ctx,
			`UPDATE photos SET is_primary=FALSE WHERE doll_id=$1`, dollID,
		); err != nil {
			return inventory.Photo{}, err
		}
	}

	var id int64
	var created time.Time
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO photos(doll_id, path, is_primary, created_at, created_by)
		VALUES ($1, $2, $3, now(), $4) RETURNING id, created_at
	`, dollID, path, primary, actor).Scan(&id, &created); err != nil {
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
		CreatedAt: created,
		CreatedBy: actor,
	}, nil
}

func (s *Store) ListPhotos(ctx context.Context, dollID int64) ([]inventory.Photo, error) {
	if _, err := s.GetDoll(ctx, dollID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doll_id, path, is_primary, created_at, created_by
		FROM photos WHERE doll_id=$1
		ORDER BY created_at DESC, id DESC
	`, dollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Photo
	for rows.Next() {
		var p inventory.Photo
		if err := rows.Scan(&p.ID, &p.DollID, &p.Path, &p.IsPrimary, &p.CreatedAt, &p.CreatedBy); err != nil {
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

	var p inventory.Photo
	err = tx.QueryRowContext(ctx, `
		SELECT id, doll_id, path, is_primary, created_at, created_by
		FROM photos WHERE id=$1
	`, photoID).Scan(&p.ID, &p.DollID, &p.Path, &p.IsPrimary, &p.CreatedAt, &p.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Photo{}, fmt.Errorf("%w: photo %d", inventory.ErrNotFound, photoID)
	}
	if err != nil {
		return inventory.Photo{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE photos SET is_primary=FALSE WHERE doll_id=$1`, p.DollID,
	); err != nil {
		return inventory.Photo{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE photos SET is_primary=TRUE WHERE id=$1`, photoID,
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

	cond := "TRUE"
	var args []any
	if f.DollID != 0 {
		cond = "doll_id=$1"
		args = append(args, f.DollID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, doll_id, type, payload, created_by, created_at
		FROM events WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []inventory.Event
	for rows.Next() {
		var e inventory.Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.DollID, &e.Type, &payload, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// --- helpers ---

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDollTx(ctx context.Context, q querier, id int64, includeDeleted bool) (inventory.Doll, error) {
	query := `
		SELECT ` + dollColumns + `
		FROM dolls d JOIN containers c ON c.id=d.container_id
		WHERE d.id=$1`
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
	var c inventory.Container
	err := q.QueryRowContext(ctx, `
		SELECT id, name, sort_order, is_active, is_system, created_at, updated_at
		FROM containers WHERE id=$1 AND is_active
	`, id).Scan(&c.ID, &c.Name, &c.SortOrder, &c.IsActive, &c.IsSystem, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Container{}, fmt.Errorf("%w: container %d", inventory.ErrNotFound, id)
	}
	return c, err
}

func activeContainerName(ctx context.Context, q querier, id int64) (string, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM containers WHERE id=$1 AND is_active`, id,
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
		WHERE is_active AND lower(name)=lower($1) AND id<>$2
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
		FROM containers WHERE is_active
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Container
	for rows.Next() {
		var c inventory.Container
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder, &c.IsActive, &c.IsSystem, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertEvent(ctx context.Context, tx *sql.Tx, dollID int64, eventType string, payload any, actor string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events(doll_id, type, payload, created_by, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, dollID, eventType, string(inventory.EncodePayload(payload)), actor)
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
