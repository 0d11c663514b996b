// Package recent implements the recent tier (T2): a SQLite-backed,
// append-ordered log of the day's interaction history with TTL expiry and
// FIFO overflow eviction.
package recent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/memory"
)

const (
	// DefaultTTL is how long an entry stays live in the recent tier.
	DefaultTTL = 24 * time.Hour

	// DefaultCapacity is the log's entry bound.
	DefaultCapacity = 1000

	defaultRetrieveLimit = 20
)

// Config holds configuration for the recent tier.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration

	// Capacity overrides DefaultCapacity when positive.
	Capacity int

	// ImportanceFloor is the promotion gate. The default of zero means
	// the tier accepts everything the scheduler feeds it.
	ImportanceFloor float64

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Tier implements memory.Tier as an append-ordered SQLite log.
type Tier struct {
	db     *sql.DB
	ttl    time.Duration
	cap    int
	floor  float64
	clock  func() time.Time
	logger *zap.Logger
}

// New opens or creates the recent log.
func New(c Config) (*Tier, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}

	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS recent_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			importance REAL NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			source TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed TEXT,
			stored_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating recent_log table: %w", err)
	}

	c.Logger.Info("recent tier initialized",
		zap.String("db_path", c.DBPath),
		zap.Duration("ttl", c.TTL),
		zap.Int("capacity", c.Capacity),
	)

	return &Tier{
		db:     db,
		ttl:    c.TTL,
		cap:    c.Capacity,
		floor:  c.ImportanceFloor,
		clock:  c.Clock,
		logger: c.Logger,
	}, nil
}

// Name returns "recent".
func (t *Tier) Name() string { return "recent" }

// ShouldStore gates on the configured importance floor.
func (t *Tier) ShouldStore(item *memory.Item) bool {
	return item != nil && item.Importance >= t.floor
}

// Store appends the item to the log. Re-storing an id already in the log is
// a no-op, which makes promotion idempotent.
func (t *Tier) Store(ctx context.Context, item *memory.Item) (bool, error) {
	if item == nil {
		return false, &memory.ValidationError{Field: "item", Reason: "must not be nil"}
	}

	if err := item.Validate(); err != nil {
		return false, err
	}

	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshaling metadata: %w", err)
	}

	now := t.clock().UTC()
	inserted := false

	err = memory.WithRetry(ctx, t.Name(), func() error {
		res, err := t.db.ExecContext(ctx, `
			INSERT INTO recent_log
				(id, content, memory_type, importance, metadata, source,
				 created_at, access_count, last_accessed, stored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			item.ID, item.Content, string(item.Type), item.Importance,
			string(meta), item.Source,
			item.CreatedAt.UTC().Format(memory.TimeLayout),
			item.AccessCount, nullableTime(item.LastAccessed),
			now.UTC().Format(memory.TimeLayout),
		)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0

		return t.prune(ctx, now)
	})
	if err != nil {
		return false, err
	}

	if inserted {
		t.logger.Debug("appended item to recent log",
			zap.String("id", item.ID),
			zap.Float64("importance", item.Importance),
		)
	}

	return inserted, nil
}

// Get retrieves a live item by id and records the access.
func (t *Tier) Get(ctx context.Context, id string) (*memory.Item, error) {
	now := t.clock().UTC()

	var item *memory.Item
	err := memory.WithRetry(ctx, t.Name(), func() error {
		row := t.db.QueryRowContext(ctx, `
			SELECT id, content, memory_type, importance, metadata, source,
			       created_at, access_count, last_accessed
			FROM recent_log
			WHERE id = ? AND stored_at > ?`,
			id, t.cutoff(now))

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

// Retrieve does a keyword (LIKE) match over live entries, newest first.
func (t *Tier) Retrieve(ctx context.Context, q memory.Query) ([]memory.Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	now := t.clock().UTC()

	var hits []memory.Hit
	err := memory.WithRetry(ctx, t.Name(), func() error {
		rows, err := t.db.QueryContext(ctx, `
			SELECT id, content, memory_type, importance, metadata, source,
			       created_at, access_count, last_accessed
			FROM recent_log
			WHERE stored_at > ? AND content LIKE ?
			ORDER BY seq DESC
			LIMIT ?`,
			t.cutoff(now), "%"+q.Text+"%", limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		hits = hits[:0]
		var ids []string

		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				return err
			}

			if !q.WantsType(item.Type) {
				continue
			}

			item.Touch(now)
			ids = append(ids, item.ID)
			hits = append(hits, memory.Hit{Item: item})
		}

		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if err := t.touch(ctx, id, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return hits, nil
}

// RetrieveRange returns live entries created in [start, end), oldest first.
func (t *Tier) RetrieveRange(ctx context.Context, start, end time.Time, limit int) ([]*memory.Item, error) {
	now := t.clock().UTC()

	var items []*memory.Item
	err := memory.WithRetry(ctx, t.Name(), func() error {
		query := `
			SELECT id, content, memory_type, importance, metadata, source,
			       created_at, access_count, last_accessed
			FROM recent_log
			WHERE stored_at > ? AND created_at >= ? AND created_at < ?
			ORDER BY seq ASC`
		args := []any{
			t.cutoff(now),
			start.UTC().Format(memory.TimeLayout),
			end.UTC().Format(memory.TimeLayout),
		}

		if limit > 0 {
			query += " LIMIT ?"
			args = append(args, limit)
		}

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

// Scan lists live entries with importance at or above the floor, newest
// first, bounded by limit. The consolidation scheduler reads promotion
// candidates through this.
func (t *Tier) Scan(ctx context.Context, minImportance float64, limit int) ([]*memory.Item, error) {
	now := t.clock().UTC()

	query := `
		SELECT id, content, memory_type, importance, metadata, source,
		       created_at, access_count, last_accessed
		FROM recent_log
		WHERE stored_at > ? AND importance >= ?
		ORDER BY seq DESC`
	args := []any{t.cutoff(now), minImportance}

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

// Len returns the number of live entries.
func (t *Tier) Len(ctx context.Context) (int, error) {
	now := t.clock().UTC()

	var n int
	err := memory.WithRetry(ctx, t.Name(), func() error {
		return t.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM recent_log WHERE stored_at > ?`,
			t.cutoff(now)).Scan(&n)
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

// Close closes the underlying database.
func (t *Tier) Close() error {
	return t.db.Close()
}

// cutoff returns the stored_at threshold below which entries are expired.
func (t *Tier) cutoff(now time.Time) string {
	return now.Add(-t.ttl).UTC().Format(memory.TimeLayout)
}

// prune deletes expired entries and FIFO-evicts overflow beyond the
// capacity bound, oldest seq first.
func (t *Tier) prune(ctx context.Context, now time.Time) error {
	if _, err := t.db.ExecContext(ctx,
		`DELETE FROM recent_log WHERE stored_at <= ?`, t.cutoff(now)); err != nil {
		return err
	}

	_, err := t.db.ExecContext(ctx, `
		DELETE FROM recent_log WHERE seq NOT IN (
			SELECT seq FROM recent_log ORDER BY seq DESC LIMIT ?
		)`, t.cap)

	return err
}

func (t *Tier) touch(ctx context.Context, id string, now time.Time) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE recent_log
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
