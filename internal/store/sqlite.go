// Package store persists favorites and response caches in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/drewfead/lovemovie/internal"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	DefaultTTL           = 5 * time.Minute
	DefaultMemoryEntries = 256
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, e.g. to test cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithTTL sets how long a cache entry stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMemoryEntries bounds the in-memory copy of recently written cache entries. Zero disables it.
func WithMemoryEntries(n int) Option {
	return func(s *Store) {
		s.memoryEntries = n
	}
}

// Store implements internal.LocalStore over a SQLite file.
type Store struct {
	db            *sql.DB
	now           func() time.Time
	ttl           time.Duration
	memoryEntries int
	hot           *expirable.LRU[string, cacheEntry] // nil when disabled
}

type cacheEntry struct {
	payload    []byte
	capturedAt time.Time
}

var _ internal.LocalStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it to the latest schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	return open(ctx, path, 0, opts...)
}

// open migrates to version, or to the latest schema when version is 0.
func open(ctx context.Context, path string, version int64, opts ...Option) (*Store, error) {
	s := &Store{
		now:           time.Now,
		ttl:           DefaultTTL,
		memoryEntries: DefaultMemoryEntries,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// WAL lets readers proceed while a write is in flight and never see a half-written row.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, db, version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	s.db = db

	if s.memoryEntries > 0 {
		s.hot = expirable.NewLRU[string, cacheEntry](s.memoryEntries, nil, s.ttl)
	}
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB, version int64) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	var results []*goose.MigrationResult
	if version > 0 {
		results, err = provider.UpTo(ctx, version)
	} else {
		results, err = provider.Up(ctx)
	}
	if err != nil {
		return err
	}
	for _, r := range results {
		slog.Debug("store: applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.hot != nil {
		s.hot.Purge()
	}
	return s.db.Close()
}

// GetFavorite reports whether id is a favorite. A row without a snapshot is not.
func (s *Store) GetFavorite(ctx context.Context, id int) (bool, error) {
	var favorite, hasSnapshot bool
	err := s.db.QueryRowContext(ctx,
		`SELECT favorite, snapshot IS NOT NULL FROM favorites WHERE movie_id = ?`, id,
	).Scan(&favorite, &hasSnapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get favorite %d: %w", id, err)
	}
	return favorite && hasSnapshot, nil
}

// FavoriteSnapshot returns the snapshot stored with a favorite.
func (s *Store) FavoriteSnapshot(ctx context.Context, id int) (internal.Movie, bool, error) {
	var (
		favorite bool
		payload  []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT favorite, snapshot FROM favorites WHERE movie_id = ?`, id,
	).Scan(&favorite, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Movie{}, false, nil
	}
	if err != nil {
		return internal.Movie{}, false, fmt.Errorf("get favorite snapshot %d: %w", id, err)
	}
	if !favorite || payload == nil {
		return internal.Movie{}, false, nil
	}
	var m internal.Movie
	if err := json.Unmarshal(payload, &m); err != nil {
		slog.Warn("store: undecodable favorite snapshot", "movie_id", id, "error", err)
		return internal.Movie{}, false, nil
	}
	return m, true, nil
}

// SetFavorite writes the flag and snapshot in one statement. Unsetting clears the snapshot.
func (s *Store) SetFavorite(ctx context.Context, id int, favorite bool, snapshot internal.Movie) error {
	var payload any // NULL unless favorite
	if favorite {
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("encode snapshot %d: %w", id, err)
		}
		payload = raw
	}
	if _, err := s.db.ExecContext(ctx, upsertFavorite, id, favorite, payload, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("set favorite %d: %w", id, err)
	}
	return nil
}

const upsertFavorite = `
INSERT INTO favorites (movie_id, favorite, snapshot, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(movie_id) DO UPDATE SET
    favorite = excluded.favorite,
    snapshot = excluded.snapshot,
    updated_at = excluded.updated_at`

// ListFavoriteSnapshots returns the stored snapshot of every favorite, oldest first.
// Snapshots that fail to decode are skipped.
func (s *Store) ListFavoriteSnapshots(ctx context.Context) ([]internal.Movie, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT movie_id, favorite, snapshot FROM favorites
		 WHERE snapshot IS NOT NULL ORDER BY updated_at, movie_id`)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var movies []internal.Movie
	for rows.Next() {
		var (
			id       int
			favorite bool
			payload  []byte
		)
		if err := rows.Scan(&id, &favorite, &payload); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		if !favorite {
			continue
		}
		var m internal.Movie
		if err := json.Unmarshal(payload, &m); err != nil {
			slog.Warn("store: skipping undecodable favorite snapshot", "movie_id", id, "error", err)
			continue
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return movies, nil
}

// MergeFavorites marks every movie as a favorite with itself as the snapshot, in one transaction.
func (s *Store) MergeFavorites(ctx context.Context, movies []internal.Movie) error {
	if len(movies) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("merge favorites: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertFavorite)
	if err != nil {
		return fmt.Errorf("merge favorites: %w", err)
	}
	defer stmt.Close()

	now := s.now().UnixMilli()
	for _, m := range movies {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode snapshot %d: %w", m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, m.ID, true, payload, now); err != nil {
			return fmt.Errorf("merge favorite %d: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("merge favorites: %w", err)
	}
	return nil
}

// FavoriteIDs returns the ids GetFavorite would report as favorites, ascending.
func (s *Store) FavoriteIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT movie_id FROM favorites WHERE favorite = 1 AND snapshot IS NOT NULL ORDER BY movie_id`)
	if err != nil {
		return nil, fmt.Errorf("favorite ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan favorite id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCache returns the payload stored under key if it is younger than the TTL.
func (s *Store) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	if s.hot != nil {
		if e, ok := s.hot.Get(key); ok && s.fresh(e.capturedAt) {
			return e.payload, true, nil
		}
	}

	var (
		payload  []byte
		captured int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, captured_at FROM movie_cache WHERE key = ?`, key,
	).Scan(&payload, &captured)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cache %s: %w", key, err)
	}
	capturedAt := time.UnixMilli(captured)
	if !s.fresh(capturedAt) {
		return nil, false, nil
	}
	if s.hot != nil {
		s.hot.Add(key, cacheEntry{payload: payload, capturedAt: capturedAt})
	}
	return payload, true, nil
}

// PutCache replaces the payload and capture time under key.
func (s *Store) PutCache(ctx context.Context, key string, payload []byte) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO movie_cache (key, payload, captured_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, captured_at = excluded.captured_at`,
		key, payload, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache %s: %w", key, err)
	}
	if s.hot != nil {
		s.hot.Add(key, cacheEntry{payload: payload, capturedAt: now})
	}
	return nil
}

func (s *Store) fresh(capturedAt time.Time) bool {
	return s.now().Sub(capturedAt) < s.ttl
}
