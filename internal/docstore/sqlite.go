package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists documents as JSON rows in a single table. Change
// notifications are delivered in-process, so subscribers only observe writes
// made through the same store value.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	hub *hub
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database file and runs migrations.
func OpenSQLite(path, migrationsDir string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := RunMigrations(db, migrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{
		db:  db,
		hub: newHub(),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSnapshot(row sqlRow) (Snapshot, error) {
	var (
		p, raw           string
		created, updated int64
	)
	if err := row.Scan(&p, &raw, &created, &updated); err != nil {
		return Snapshot{}, err
	}
	var data Document
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", p, err)
	}
	return Snapshot{
		Path:       p,
		ID:         baseID(p),
		Exists:     true,
		Data:       data,
		CreateTime: time.Unix(0, created).UTC(),
		UpdateTime: time.Unix(0, updated).UTC(),
	}, nil
}

const selectDocument = `SELECT path, data, created_at, updated_at FROM documents`

func (s *SQLiteStore) readLocked(ctx context.Context, p string) (Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, selectDocument+` WHERE path = ?`, p))
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Path: p, ID: baseID(p)}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", p, err)
	}
	return snap, nil
}

func (s *SQLiteStore) Read(ctx context.Context, path string) (Snapshot, error) {
	p, err := cleanDocPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readLocked(ctx, p)
}

func (s *SQLiteStore) Write(ctx context.Context, path string, doc Document, opts WriteOptions) error {
	p, err := cleanDocPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.putLocked(ctx, p, doc, opts)
	if err != nil {
		return err
	}
	s.hub.publish(snap)
	return nil
}

func (s *SQLiteStore) putLocked(ctx context.Context, p string, doc Document, opts WriteOptions) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin write %s: %w", p, err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanSnapshot(tx.QueryRowContext(ctx, selectDocument+` WHERE path = ?`, p))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing = Snapshot{}
	case err != nil:
		return Snapshot{}, fmt.Errorf("read %s: %w", p, err)
	}

	now := s.now()
	data := merge(existing.Data, doc, opts)
	if data == nil {
		data = Document{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode %s: %w", p, err)
	}
	created := now
	if existing.Exists {
		created = existing.CreateTime
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (path, parent, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		p, Parent(p), string(raw), created.UnixNano(), now.UnixNano())
	if err != nil {
		return Snapshot{}, fmt.Errorf("write %s: %w", p, err)
	}
	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("commit %s: %w", p, err)
	}

	// Re-decode so subscribers see the same value types a later Read returns.
	var stored Document
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", p, err)
	}
	return Snapshot{Path: p, ID: baseID(p), Exists: true, Data: stored, CreateTime: created, UpdateTime: now}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, collection string, doc Document) (string, error) {
	c, err := cleanCollectionPath(collection)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := newDocID()
	snap, err := s.putLocked(ctx, c+"/"+id, doc, WriteOptions{})
	if err != nil {
		return "", err
	}
	s.hub.publish(snap)
	return id, nil
}

func (s *SQLiteStore) listLocked(ctx context.Context, c string, q Query) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, selectDocument+` WHERE parent = ? ORDER BY created_at, path`, c)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	sortSnapshots(out, q)
	return out, nil
}

func (s *SQLiteStore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	c, err := cleanCollectionPath(collection)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(ctx, c, q)
}

func (s *SQLiteStore) Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	p, err := Clean(path)
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var initial []Snapshot
	if IsCollection(p) {
		initial, err = s.listLocked(ctx, p, Query{})
	} else {
		var snap Snapshot
		snap, err = s.readLocked(ctx, p)
		initial = []Snapshot{snap}
	}
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(ctx, p, initial)
	return ch, cancel, nil
}

func (s *SQLiteStore) Close() error {
	s.hub.closeAll()
	if err := s.db.Close(); err != nil {
		slog.Warn("failed to close sqlite db", slog.String("error", err.Error()))
		return err
	}
	return nil
}
