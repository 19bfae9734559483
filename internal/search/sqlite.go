// Package search provides implementations of the engine's word index: a
// SQLite-backed persistent index and an in-memory index for tests and
// small stores.
package search

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"chronicle/internal/chronicle"
	"chronicle/internal/model"
	"chronicle/internal/search/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteIndex implements the WordIndex interface using SQLite.
type SQLiteIndex struct {
	db   *sql.DB
	path string
}

// NewSQLiteIndex opens (creating and migrating if necessary) an index
// database. path can be a file path or ":memory:".
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating index database: %w", err)
	}
	return &SQLiteIndex{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection for the index.
// Exported for tools and tests that need a properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

func (s *SQLiteIndex) Add(kind model.Kind, id, conversationID string, words []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM words WHERE kind = ? AND id = ?", string(kind), id); err != nil {
		return fmt.Errorf("clearing old words: %w", err)
	}
	for _, w := range words {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO words (word, kind, id, conversation_id) VALUES (?, ?, ?, ?)",
			w, string(kind), id, conversationID)
		if err != nil {
			return fmt.Errorf("inserting word %q: %w", w, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Remove(kind model.Kind, id string) error {
	if _, err := s.db.Exec("DELETE FROM words WHERE kind = ? AND id = ?", string(kind), id); err != nil {
		return fmt.Errorf("removing index entries: %w", err)
	}
	return nil
}

// Lookup returns entities whose indexed words contain every query word.
func (s *SQLiteIndex) Lookup(words []string) ([]chronicle.IndexHit, error) {
	if len(words) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(words)), ",")
	query := fmt.Sprintf(`
		SELECT kind, id, conversation_id
		FROM words
		WHERE word IN (%s)
		GROUP BY kind, id, conversation_id
		HAVING COUNT(DISTINCT word) = ?
		ORDER BY kind, id`, placeholders)

	args := make([]any, 0, len(words)+1)
	for _, w := range words {
		args = append(args, w)
	}
	args = append(args, len(words))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("looking up words: %w", err)
	}
	defer rows.Close()

	var hits []chronicle.IndexHit
	for rows.Next() {
		var kind, id, convID string
		if err := rows.Scan(&kind, &id, &convID); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		hits = append(hits, chronicle.IndexHit{Kind: model.Kind(kind), ID: id, ConversationID: convID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading index rows: %w", err)
	}
	return hits, nil
}

func (s *SQLiteIndex) SetCollectionFor(messageID, collectionID string) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshot_index (message_id, collection_id) VALUES (?, ?)
		ON CONFLICT (message_id) DO UPDATE SET collection_id = excluded.collection_id`,
		messageID, collectionID)
	if err != nil {
		return fmt.Errorf("recording snapshot mapping: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) CollectionFor(messageID string) (string, error) {
	var collectionID string
	err := s.db.QueryRow(
		"SELECT collection_id FROM snapshot_index WHERE message_id = ?", messageID).Scan(&collectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("looking up snapshot mapping: %w", err)
	}
	return collectionID, nil
}

func (s *SQLiteIndex) RemoveCollectionFor(messageID string) error {
	if _, err := s.db.Exec("DELETE FROM snapshot_index WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("removing snapshot mapping: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM words"); err != nil {
		return fmt.Errorf("clearing words: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM snapshot_index"); err != nil {
		return fmt.Errorf("clearing snapshot mappings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Path returns the index database file path (or ":memory:").
func (s *SQLiteIndex) Path() string {
	return s.path
}

// CheckMigrations verifies the index database schema is up-to-date.
func (s *SQLiteIndex) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

func (s *SQLiteIndex) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteIndex implements chronicle.WordIndex
var _ chronicle.WordIndex = (*SQLiteIndex)(nil)
