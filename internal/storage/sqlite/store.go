// Package sqlite is the SQLite implementation of the object store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oarepo/ldn-inbox/internal/storage"
)

// Store is a SQLite-backed storage.ObjectStore.
type Store struct {
	db *sql.DB
}

var _ storage.ObjectStore = (*Store)(nil)

// New opens (and if needed creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'item',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL,
			schema TEXT NOT NULL,
			element TEXT NOT NULL,
			qualifier TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			value TEXT NOT NULL,
			place INTEGER NOT NULL,
			FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS handles (
			handle TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			item_id TEXT NOT NULL,
			FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_item ON metadata(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_handles_url ON handles(url)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateItem inserts a new item with its metadata. Used by fixtures and
// administrative tooling, not by the pipeline itself.
func (s *Store) CreateItem(ctx context.Context, item *storage.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO items (id, handle, kind, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Handle, item.Kind, now, now); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	if item.Handle != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO handles (handle, url, item_id) VALUES (?, ?, ?)`,
			item.Handle, "", item.ID); err != nil {
			return fmt.Errorf("insert handle: %w", err)
		}
	}
	if err := replaceMetadata(ctx, tx, item); err != nil {
		return err
	}
	return tx.Commit()
}

// RegisterHandle binds a persistent-identifier URL to an item's handle so
// ResolveToHandle can find it.
func (s *Store) RegisterHandle(ctx context.Context, handle, url, itemID string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO handles (handle, url, item_id) VALUES (?, ?, ?)
		 ON CONFLICT(handle) DO UPDATE SET url = excluded.url, item_id = excluded.item_id`,
		handle, url, itemID); err != nil {
		return fmt.Errorf("register handle: %w", err)
	}
	return nil
}

// FindByID implements storage.ObjectStore.
func (s *Store) FindByID(ctx context.Context, id string) (*storage.Item, error) {
	return s.loadItem(ctx, `SELECT id, handle, kind FROM items WHERE id = ?`, id)
}

// ResolveToHandle implements storage.ObjectStore.
func (s *Store) ResolveToHandle(ctx context.Context, url string) (string, error) {
	var handle string
	err := s.db.QueryRowContext(ctx, `SELECT handle FROM handles WHERE url = ?`, url).Scan(&handle)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve url %s: %w", url, err)
	}
	return handle, nil
}

// ResolveHandle implements storage.ObjectStore.
func (s *Store) ResolveHandle(ctx context.Context, handle string) (*storage.Item, error) {
	return s.loadItem(ctx,
		`SELECT i.id, i.handle, i.kind FROM items i
		 JOIN handles h ON h.item_id = i.id WHERE h.handle = ?`, handle)
}

func (s *Store) loadItem(ctx context.Context, query string, arg any) (*storage.Item, error) {
	var item storage.Item
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&item.ID, &item.Handle, &item.Kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT schema, element, qualifier, language, value FROM metadata
		 WHERE item_id = ? ORDER BY place`, item.ID)
	if err != nil {
		return nil, fmt.Errorf("load metadata for %s: %w", item.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m storage.MetadataValue
		if err := rows.Scan(&m.Schema, &m.Element, &m.Qualifier, &m.Language, &m.Value); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		item.Metadata = append(item.Metadata, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return &item, nil
}

// Begin implements storage.ObjectStore.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &storeTx{tx: tx}, nil
}

type storeTx struct {
	tx   *sql.Tx
	done bool
}

// Update replaces the item's persisted metadata with its in-memory set.
func (t *storeTx) Update(ctx context.Context, item *storage.Item) error {
	if err := replaceMetadata(ctx, t.tx, item); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE items SET updated_at = ? WHERE id = ?`, time.Now().UTC(), item.ID); err != nil {
		return fmt.Errorf("touch item %s: %w", item.ID, err)
	}
	return nil
}

func (t *storeTx) Commit() error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *storeTx) Rollback() error {
	if t.done {
		return nil
	}
	return t.tx.Rollback()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func replaceMetadata(ctx context.Context, tx execer, item *storage.Item) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE item_id = ?`, item.ID); err != nil {
		return fmt.Errorf("clear metadata for %s: %w", item.ID, err)
	}
	for place, m := range item.Metadata {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (item_id, schema, element, qualifier, language, value, place)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, m.Schema, m.Element, m.Qualifier, m.Language, m.Value, place); err != nil {
			return fmt.Errorf("insert metadata for %s: %w", item.ID, err)
		}
	}
	return nil
}
