// Package snapshot persists the client's last-known-good session state
// between runs: the current user object and one full Organization
// Document. It is the local analog of browser storage, backed by an
// embedded SQLite database so a crash mid-write cannot tear a snapshot.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"turnhub/api/internal/orgdoc"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Storage keys. Only one organization's data is cached at a time, so the
// document lives under a fixed key rather than one key per org id.
const (
	keyCurrentUser = "current_user_obj"
	keyDocument    = "org_document"
)

// ErrNotFound is returned when a key has never been written or was
// cleared at logout.
var ErrNotFound = errors.New("snapshot: not found")

// Cache is a small key-value store over SQLite.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the snapshot database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping snapshot db: %w", err)
	}

	// WAL keeps the synchronous per-mutation writes cheap; the busy
	// timeout covers the agent and a diagnostic shell sharing the file.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure kv table: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) put(key string, value []byte) error {
	_, err := c.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, datetime('now'))
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (c *Cache) get(key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRow(`SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// SaveUser stores the current user object.
func (c *Cache) SaveUser(user json.RawMessage) error {
	return c.put(keyCurrentUser, user)
}

// LoadUser returns the stored user object, or ErrNotFound.
func (c *Cache) LoadUser() (json.RawMessage, error) {
	return c.get(keyCurrentUser)
}

// SaveDocument overwrites the cached Organization Document. The caller
// always hands a full, consistent document image.
func (c *Cache) SaveDocument(doc *orgdoc.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return c.put(keyDocument, payload)
}

// LoadDocument returns the cached document, normalized. A missing key
// yields ErrNotFound; a corrupt payload yields a parse error the caller
// treats as "no session".
func (c *Cache) LoadDocument() (*orgdoc.Document, error) {
	payload, err := c.get(keyDocument)
	if err != nil {
		return nil, err
	}
	var doc orgdoc.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse cached document: %w", err)
	}
	doc.Normalize()
	return &doc, nil
}

// Clear deletes the user and document entries. Used at logout.
func (c *Cache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM kv WHERE key IN ($1, $2)`, keyCurrentUser, keyDocument)
	if err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
