package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists stage outputs across builds. The key triple is
// the primary key; entries are inserted or superseded, never mutated.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a cache database. Use ":memory:" for
// a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stage_cache (
		stage TEXT NOT NULL,
		input_fp TEXT NOT NULL,
		context_fp TEXT NOT NULL,
		output BLOB NOT NULL,
		meta TEXT,
		created INTEGER NOT NULL,
		PRIMARY KEY (stage, input_fp, context_fp)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get looks up a persisted output.
func (s *SQLiteStore) Get(key Key) (Output, bool, error) {
	row := s.db.QueryRow(
		"SELECT output, meta FROM stage_cache WHERE stage = ? AND input_fp = ? AND context_fp = ?",
		key.Stage, fmt.Sprintf("%016x", key.Input), fmt.Sprintf("%016x", key.Context),
	)
	var out Output
	var metaJSON []byte
	if err := row.Scan(&out.Data, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Output{}, false, nil
		}
		return Output{}, false, fmt.Errorf("query cache entry: %w", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &out.Meta); err != nil {
			return Output{}, false, fmt.Errorf("decode cache meta: %w", err)
		}
	}
	return out, true, nil
}

// Put inserts or replaces an entry.
func (s *SQLiteStore) Put(key Key, out Output) error {
	var metaJSON []byte
	if out.Meta != nil {
		var err error
		metaJSON, err = json.Marshal(out.Meta)
		if err != nil {
			return fmt.Errorf("encode cache meta: %w", err)
		}
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO stage_cache (stage, input_fp, context_fp, output, meta, created) VALUES (?, ?, ?, ?, ?, ?)",
		key.Stage, fmt.Sprintf("%016x", key.Input), fmt.Sprintf("%016x", key.Context),
		out.Data, metaJSON, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
