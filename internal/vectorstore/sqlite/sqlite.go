// Package sqlite is the default persistent vector index. Vectors are stored
// as float32 BLOBs in a single SQLite file and searched exhaustively.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"insight/internal/domain"
	"insight/internal/retry"
	"insight/internal/vectorstore"
)

// FileName is the database file created inside the persistence directory.
const FileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	distance   TEXT NOT NULL,
	dimension  INTEGER NOT NULL DEFAULT 0,
	embedder   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL REFERENCES collections(name),
	id         TEXT NOT NULL,
	text       TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Store wraps the database connection.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates persistDir when needed and opens the index inside it.
// A directory or file that cannot be created or written is a configuration error.
func Open(persistDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if persistDir == "" {
		return nil, fmt.Errorf("%w: vector store persist directory is empty", domain.ErrConfiguration)
	}
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create persist directory: %v", domain.ErrConfiguration, err)
	}
	path := filepath.Join(persistDir, FileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open vector index: %v", domain.ErrConfiguration, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: vector index %s: %v", domain.ErrConfiguration, path, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: vector index %s: apply schema: %v", domain.ErrConfiguration, path, err)
	}
	logger.Debug("sqlite vector index opened", "path", path)
	return &Store{db: db, path: path, logger: logger}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Collection returns the named collection, creating it with opts when missing.
// An existing collection keeps its stored distance.
func (s *Store) Collection(ctx context.Context, name string, opts domain.CollectionOptions) (domain.Collection, error) {
	if err := domain.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	c := &Collection{store: s, name: name}
	var dist string
	err := s.db.QueryRowContext(ctx,
		`SELECT distance, dimension, embedder FROM collections WHERE name = ?`, name,
	).Scan(&dist, &c.dimension, &c.embedder)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.distance = opts.Distance
		if c.distance == "" {
			c.distance = domain.DistanceCosine
		}
		c.embedder = opts.Embedder
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO collections (name, distance, dimension, embedder, created_at) VALUES (?, ?, 0, ?, ?)
			 ON CONFLICT(name) DO NOTHING`,
			name, string(c.distance), c.embedder, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("%w: create collection %q: %v", domain.ErrBackend, name, err)
		}
		s.logger.Info("collection created", "collection", name, "distance", c.distance, "embedder", c.embedder)
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("%w: load collection %q: %v", domain.ErrBackend, name, err)
	}

	c.distance, err = domain.ParseDistance(dist)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}
	if err := vectorstore.CheckEmbedder(name, c.embedder, opts.Embedder); err != nil {
		return nil, err
	}
	if opts.Distance != "" && opts.Distance != c.distance {
		s.logger.Warn("collection keeps its stored distance", "collection", name, "stored", c.distance, "configured", opts.Distance)
	}
	if c.embedder == "" && opts.Embedder != "" {
		if _, err := s.db.ExecContext(ctx, `UPDATE collections SET embedder = ? WHERE name = ?`, opts.Embedder, name); err != nil {
			return nil, fmt.Errorf("%w: record embedder for %q: %v", domain.ErrBackend, name, err)
		}
		c.embedder = opts.Embedder
	}
	return c, nil
}

// Collection is a named set of documents in the index file.
type Collection struct {
	store     *Store
	name      string
	distance  domain.Distance
	dimension int
	embedder  string
}

func (c *Collection) Name() string { return c.name }

// Distance returns the metric the collection was created with.
func (c *Collection) Distance() domain.Distance { return c.distance }

// Upsert writes the whole batch in one transaction, replacing documents with
// existing ids. A busy or locked database is retried once.
func (c *Collection) Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	dim, err := vectorstore.ValidateBatch(docs, vectors, c.dimension)
	if err != nil {
		return fmt.Errorf("sqlite upsert into %q: %w", c.name, err)
	}
	if len(docs) == 0 {
		return nil
	}
	start := time.Now()
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  2,
		InitialDelay: 50 * time.Millisecond,
		ShouldRetry:  isBusy,
	}, func() error {
		return c.upsertTx(ctx, docs, vectors, dim)
	})
	if err != nil {
		return fmt.Errorf("%w: sqlite upsert into %q: %v", domain.ErrBackend, c.name, err)
	}
	c.dimension = dim
	c.store.logger.Debug("documents upserted", "collection", c.name, "count", len(docs), "elapsed", time.Since(start))
	return nil
}

func (c *Collection) upsertTx(ctx context.Context, docs []domain.Document, vectors [][]float32, dim int) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if c.dimension == 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE collections SET dimension = ? WHERE name = ? AND dimension = 0`, dim, c.name); err != nil {
			return err
		}
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, id, text, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			text = excluded.text,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, doc := range docs {
		if _, err := stmt.ExecContext(ctx, c.name, doc.ID, doc.Text, vectorstore.EncodeVector(vectors[i]), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query scores every document in the collection and returns the closest topK.
func (c *Collection) Query(ctx context.Context, vector []float32, topK int) ([]domain.QueryResult, error) {
	if topK <= 0 {
		return []domain.QueryResult{}, nil
	}
	if c.dimension != 0 && len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection %q uses %d",
			domain.ErrInput, len(vector), c.name, c.dimension)
	}
	rows, err := c.store.db.QueryContext(ctx,
		`SELECT id, text, embedding FROM documents WHERE collection = ?`, c.name)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite query %q: %v", domain.ErrBackend, c.name, err)
	}
	defer rows.Close()

	var results []domain.QueryResult
	for rows.Next() {
		var (
			doc  domain.Document
			blob []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &blob); err != nil {
			return nil, fmt.Errorf("%w: sqlite scan %q: %v", domain.ErrBackend, c.name, err)
		}
		vec, err := vectorstore.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: document %q: %v", domain.ErrBackend, doc.ID, err)
		}
		results = append(results, domain.QueryResult{
			Document: doc,
			Distance: vectorstore.Distance(c.distance, vec, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite query %q: %v", domain.ErrBackend, c.name, err)
	}
	return vectorstore.Rank(results, topK), nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, c.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite count %q: %v", domain.ErrBackend, c.name, err)
	}
	return n, nil
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// their extended codes.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
