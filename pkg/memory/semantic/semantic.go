// Package semantic implements the semantic tier (T3): unbounded-retention
// storage with similarity search over meaning.
//
// The tier composes an embeddings.Embedder with a vector.Driver for the
// KNN index, and keeps item payloads in a SQLite catalog keyed by id.
// There is no TTL and no automatic eviction; removal is explicit only.
package semantic

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/embeddings"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	// DefaultImportanceGate is the promotion floor for this tier.
	DefaultImportanceGate = 0.5

	defaultRetrieveLimit = 10

	metadataTypeKey = "memory_type"
)

// Config holds configuration for the semantic tier.
type Config struct {
	// DBPath is the path to the SQLite catalog database.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Embedder generates embeddings for stored and queried text.
	Embedder embeddings.Embedder

	// Vector is the similarity index backend.
	Vector vector.Driver

	// ImportanceGate overrides DefaultImportanceGate when positive.
	ImportanceGate float64

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Tier implements memory.Tier with similarity retrieval.
type Tier struct {
	db       *sql.DB
	vec      vector.Driver
	embedder embeddings.Embedder
	gate     float64
	clock    func() time.Time
	logger   *zap.Logger
}

// New creates a semantic tier.
func New(c Config) (*Tier, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	if c.Vector == nil {
		return nil, fmt.Errorf("vector driver is required")
	}

	if c.ImportanceGate <= 0 {
		c.ImportanceGate = DefaultImportanceGate
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS semantic_items (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			importance REAL NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			source TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating semantic_items table: %w", err)
	}

	c.Logger.Info("semantic tier initialized",
		zap.String("db_path", c.DBPath),
		zap.Float64("importance_gate", c.ImportanceGate),
	)

	return &Tier{
		db:       db,
		vec:      c.Vector,
		embedder: c.Embedder,
		gate:     c.ImportanceGate,
		clock:    c.Clock,
		logger:   c.Logger,
	}, nil
}

// Name returns "semantic".
func (t *Tier) Name() string { return "semantic" }

// ShouldStore gates on the importance floor.
func (t *Tier) ShouldStore(item *memory.Item) bool {
	return item != nil && item.Importance >= t.gate
}

// Store embeds the item content (unless an embedding is already attached),
// indexes the vector, and catalogs the payload. Re-storing a known id is a
// no-op so promotion stays idempotent.
func (t *Tier) Store(ctx context.Context, item *memory.Item) (bool, error) {
	if item == nil {
		return false, &memory.ValidationError{Field: "item", Reason: "must not be nil"}
	}

	if err := item.Validate(); err != nil {
		return false, err
	}

	embedding := item.Embedding
	if len(embedding) == 0 {
		var err error
		embedding, err = t.embedder.Embed(ctx, item.Content)
		if err != nil {
			return false, &memory.BackendUnavailable{Backend: t.Name(), Err: err}
		}
	}

	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshaling metadata: %w", err)
	}

	inserted := false
	err = memory.WithRetry(ctx, t.Name(), func() error {
		res, err := t.db.ExecContext(ctx, `
			INSERT INTO semantic_items
				(id, content, memory_type, importance, metadata, source,
				 created_at, access_count, last_accessed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			item.ID, item.Content, string(item.Type), item.Importance,
			string(meta), item.Source,
			item.CreatedAt.UTC().Format(memory.TimeLayout),
			item.AccessCount, nullableTime(item.LastAccessed),
		)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0

		if !inserted {
			return nil
		}

		return t.vec.Add(ctx, []vector.Document{{
			ID:        item.ID,
			Embedding: embedding,
			Metadata:  map[string]string{metadataTypeKey: string(item.Type)},
		}})
	})
	if err != nil {
		return false, err
	}

	if inserted {
		t.logger.Debug("indexed item in semantic tier",
			zap.String("id", item.ID),
			zap.Int("embedding_dim", len(embedding)),
		)
	}

	return inserted, nil
}

// Get retrieves an item by id and records the access.
func (t *Tier) Get(ctx context.Context, id string) (*memory.Item, error) {
	now := t.clock().UTC()

	var item *memory.Item
	err := memory.WithRetry(ctx, t.Name(), func() error {
		row := t.db.QueryRowContext(ctx, `
			SELECT id, content, memory_type, importance, metadata, source,
			       created_at, access_count, last_accessed
			FROM semantic_items WHERE id = ?`, id)

		got, err := scanItem(row)
		if err == sql.ErrNoRows {
			return memory.ErrNotFound
		}
		if err != nil {
			return err
		}

		item = got
		return t.touch(ctx, id, now)
	})
	if err != nil {
		return nil, err
	}

	item.Touch(now)

	return item, nil
}

// Retrieve embeds the query text and returns the k nearest items, optionally
// filtered by memory type. An empty query text lists the newest items
// without similarity scores.
func (t *Tier) Retrieve(ctx context.Context, q memory.Query) ([]memory.Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	if q.Text == "" {
		return t.listNewest(ctx, q, limit)
	}

	queryEmbedding, err := t.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, &memory.BackendUnavailable{Backend: t.Name(), Err: err}
	}

	// Over-fetch so a post-KNN type filter can still fill the limit.
	topK := limit
	if len(q.Types) > 0 {
		topK = limit * 2
	}

	var results []vector.QueryResult
	err = memory.WithRetry(ctx, t.Name(), func() error {
		var err error
		results, err = t.vec.Query(ctx, queryEmbedding, topK)
		return err
	})
	if err != nil {
		return nil, err
	}

	hits := make([]memory.Hit, 0, limit)

	for _, result := range results {
		if len(hits) == limit {
			break
		}

		if typ, ok := result.Metadata[metadataTypeKey]; ok && !q.WantsType(memory.Type(typ)) {
			continue
		}

		item, err := t.Get(ctx, result.ID)
		if err == memory.ErrNotFound {
			// Vector index and catalog can drift if a delete raced;
			// skip the orphan.
			t.logger.Warn("vector hit missing from catalog",
				zap.String("id", result.ID),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		if !q.WantsType(item.Type) {
			continue
		}

		hits = append(hits, memory.Hit{Item: item, Similarity: result.Score})
	}

	return hits, nil
}

// Delete removes an item from the index and the catalog. Removal is the
// only way an item leaves this tier.
func (t *Tier) Delete(ctx context.Context, id string) error {
	return memory.WithRetry(ctx, t.Name(), func() error {
		if err := t.vec.Delete(ctx, []string{id}); err != nil {
			return err
		}

		_, err := t.db.ExecContext(ctx, `DELETE FROM semantic_items WHERE id = ?`, id)
		return err
	})
}

// Scan lists items with importance at or above the floor, newest first.
func (t *Tier) Scan(ctx context.Context, minImportance float64, limit int) ([]*memory.Item, error) {
	query := `
		SELECT id, content, memory_type, importance, metadata, source,
		       created_at, access_count, last_accessed
		FROM semantic_items
		WHERE importance >= ?
		ORDER BY created_at DESC`
	args := []any{minImportance}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var items []*memory.Item
	err := memory.WithRetry(ctx, t.Name(), func() error {
		rows, err := t.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				return err
			}
			items = append(items, item)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// Len returns the number of cataloged items.
func (t *Tier) Len(ctx context.Context) (int, error) {
	var n int
	err := memory.WithRetry(ctx, t.Name(), func() error {
		return t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM semantic_items`).Scan(&n)
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

// Close closes the catalog database and the vector driver. The embedder is
// owned by the caller and left open.
func (t *Tier) Close() error {
	if err := t.vec.Close(); err != nil {
		t.db.Close()
		return err
	}

	return t.db.Close()
}

func (t *Tier) listNewest(ctx context.Context, q memory.Query, limit int) ([]memory.Hit, error) {
	var hits []memory.Hit
	err := memory.WithRetry(ctx, t.Name(), func() error {
		rows, err := t.db.QueryContext(ctx, `
			SELECT id, content, memory_type, importance, metadata, source,
			       created_at, access_count, last_accessed
			FROM semantic_items
			ORDER BY created_at DESC
			LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		hits = hits[:0]
		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				return err
			}

			if !q.WantsType(item.Type) {
				continue
			}

			hits = append(hits, memory.Hit{Item: item})
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return hits, nil
}

func (t *Tier) touch(ctx context.Context, id string, now time.Time) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE semantic_items
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?`,
		now.UTC().Format(memory.TimeLayout), id)

	return err
}

func nullableTime(ts time.Time) any {
	if ts.IsZero() {
		return nil
	}

	return ts.UTC().Format(memory.TimeLayout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*memory.Item, error) {
	var (
		item         memory.Item
		typ          string
		meta         string
		createdAt    string
		lastAccessed sql.NullString
	)

	if err := row.Scan(&item.ID, &item.Content, &typ, &item.Importance,
		&meta, &item.Source, &createdAt, &item.AccessCount, &lastAccessed); err != nil {
		return nil, err
	}

	item.Type = memory.Type(typ)

	if err := json.Unmarshal([]byte(meta), &item.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata for %s: %w", item.ID, err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", item.ID, err)
	}
	item.CreatedAt = created

	if lastAccessed.Valid {
		accessed, err := time.Parse(time.RFC3339Nano, lastAccessed.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_accessed for %s: %w", item.ID, err)
		}
		item.LastAccessed = accessed
	}

	return &item, nil
}
