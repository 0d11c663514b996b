package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/memory"
)

// SQLiteConfig holds configuration for the embedded SQLite backend.
type SQLiteConfig struct {
	Config

	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewSQLite opens or creates a durable tier backed by an embedded SQLite
// database.
func NewSQLite(c SQLiteConfig) (*Tier, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	c.Config.fill()

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			importance REAL NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			source TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed TEXT,
			subject TEXT NOT NULL DEFAULT '',
			conflict_with TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating facts table: %w", err)
	}

	c.Logger.Info("durable tier initialized",
		zap.String("backend", "sqlite"),
		zap.String("db_path", c.DBPath),
		zap.Float64("importance_gate", c.ImportanceGate),
	)

	return newTier(&sqliteStore{db: db}, c.Config), nil
}

type sqliteStore struct {
	db *sql.DB
}

func (s *sqliteStore) put(ctx context.Context, f *fact) (bool, error) {
	meta, err := json.Marshal(f.item.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshaling metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO facts
			(id, content, memory_type, importance, metadata, source,
			 created_at, access_count, last_accessed, subject, conflict_with)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		f.item.ID, f.item.Content, string(f.item.Type), f.item.Importance,
		string(meta), f.item.Source,
		f.item.CreatedAt.UTC().Format(memory.TimeLayout),
		f.item.AccessCount, nullableTime(f.item.LastAccessed),
		f.subject, f.conflictWith,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (s *sqliteStore) get(ctx context.Context, id string) (*fact, error) {
	row := s.db.QueryRowContext(ctx, factColumns+` FROM facts WHERE id = ?`, id)

	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (s *sqliteStore) query(ctx context.Context, filter Filter) ([]*fact, error) {
	where := []string{"1 = 1"}
	var args []any

	if filter.Text != "" {
		where = append(where, "content LIKE ?")
		args = append(args, "%"+filter.Text+"%")
	}

	if filter.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, filter.Subject)
	}

	if len(filter.Types) > 0 {
		marks := make([]string, len(filter.Types))
		for i, typ := range filter.Types {
			marks[i] = "?"
			args = append(args, string(typ))
		}
		where = append(where, "memory_type IN ("+strings.Join(marks, ", ")+")")
	}

	if !filter.IncludeConflicted {
		where = append(where, "conflict_with = ''")
	}

	query := factColumns + `
		FROM facts
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY importance DESC, created_at DESC
		LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []*fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}

	return facts, rows.Err()
}

func (s *sqliteStore) winner(ctx context.Context, subject string) (*fact, error) {
	row := s.db.QueryRowContext(ctx, factColumns+`
		FROM facts
		WHERE subject = ? AND conflict_with = ''
		ORDER BY importance DESC, created_at DESC
		LIMIT 1`, subject)

	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (s *sqliteStore) markConflict(ctx context.Context, loserID, winnerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE facts SET conflict_with = ? WHERE id = ?`, winnerID, loserID)

	return err
}

func (s *sqliteStore) touch(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE facts
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?`,
		now.UTC().Format(memory.TimeLayout), id)

	return err
}

func (s *sqliteStore) count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&n)

	return n, err
}

func (s *sqliteStore) close() error {
	return s.db.Close()
}

const factColumns = `
	SELECT id, content, memory_type, importance, metadata, source,
	       created_at, access_count, last_accessed, subject, conflict_with`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*fact, error) {
	var (
		f            fact
		item         memory.Item
		typ          string
		meta         string
		createdAt    string
		lastAccessed sql.NullString
	)

	if err := row.Scan(&item.ID, &item.Content, &typ, &item.Importance,
		&meta, &item.Source, &createdAt, &item.AccessCount, &lastAccessed,
		&f.subject, &f.conflictWith); err != nil {
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

	f.item = &item

	return &f, nil
}

func nullableTime(ts time.Time) any {
	if ts.IsZero() {
		return nil
	}

	return ts.UTC().Format(memory.TimeLayout)
}
