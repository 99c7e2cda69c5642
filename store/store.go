// Package store caches finished conversions in SQLite so repeated requests
// for the same file, target and extraction spec skip the LLM.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Conversion targets.
const (
	TargetMarkdown = "markdown"
	TargetJSON     = "json"
)

// sqliteTime is the layout SQLite uses for CURRENT_TIMESTAMP.
const sqliteTime = "2006-01-02 15:04:05"

// Conversion represents a row in the conversions table.
type Conversion struct {
	ID          int64     `json:"id"`
	ContentHash string    `json:"content_hash"`
	Target      string    `json:"target"`
	Strategy    string    `json:"strategy"`
	SpecHash    string    `json:"spec_hash"`
	Markdown    string    `json:"markdown,omitempty"`
	JSON        string    `json:"json,omitempty"`        // JSON array of per-unit objects
	UnitErrors  string    `json:"unit_errors,omitempty"` // JSON array of error strings
	Filename    string    `json:"filename"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats summarises the cache.
type Stats struct {
	Conversions int            `json:"conversions"`
	ByTarget    map[string]int `json:"by_target"`
}

// Store wraps the SQLite cache database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and applies
// the schema and pending migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the cached conversion for the key. The boolean is false
// when nothing is cached.
func (s *Store) Lookup(ctx context.Context, contentHash, target, specHash string) (*Conversion, bool, error) {
	c := &Conversion{}
	var markdown, js, unitErrs, filename, model sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, target, strategy, spec_hash, markdown, json, unit_errors,
		       filename, model, created_at
		FROM conversions WHERE content_hash = ? AND target = ? AND spec_hash = ?
	`, contentHash, target, specHash).Scan(&c.ID, &c.ContentHash, &c.Target, &c.Strategy, &c.SpecHash,
		&markdown, &js, &unitErrs, &filename, &model, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up conversion: %w", err)
	}
	c.Markdown = markdown.String
	c.JSON = js.String
	c.UnitErrors = unitErrs.String
	c.Filename = filename.String
	c.Model = model.String
	return c, true, nil
}

// Put inserts or replaces the conversion for its key and returns its ID.
func (s *Store) Put(ctx context.Context, c Conversion) (int64, error) {
	if c.ContentHash == "" || c.Target == "" {
		return 0, fmt.Errorf("store: conversion needs a content hash and target")
	}
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversions (content_hash, target, strategy, spec_hash, markdown, json, unit_errors, filename, model)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(content_hash, target, spec_hash) DO UPDATE SET
				strategy = excluded.strategy,
				markdown = excluded.markdown,
				json = excluded.json,
				unit_errors = excluded.unit_errors,
				filename = excluded.filename,
				model = excluded.model,
				created_at = CURRENT_TIMESTAMP
		`, c.ContentHash, c.Target, c.Strategy, c.SpecHash, nullIfEmpty(c.Markdown), nullIfEmpty(c.JSON),
			nullIfEmpty(c.UnitErrors), c.Filename, c.Model); err != nil {
			return err
		}
		// LastInsertId is unreliable after the UPDATE branch of an upsert.
		return tx.QueryRowContext(ctx,
			"SELECT id FROM conversions WHERE content_hash = ? AND target = ? AND spec_hash = ?",
			c.ContentHash, c.Target, c.SpecHash).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("storing conversion: %w", err)
	}
	return id, nil
}

// Purge deletes conversions created more than olderThan ago and returns
// how many rows were removed.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(sqliteTime)
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging conversions: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts cached conversions by target.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT target, COUNT(*) FROM conversions GROUP BY target")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st := &Stats{ByTarget: make(map[string]int)}
	for rows.Next() {
		var target string
		var n int
		if err := rows.Scan(&target, &n); err != nil {
			return nil, err
		}
		st.ByTarget[target] = n
		st.Conversions += n
	}
	return st, rows.Err()
}

// SpecHash returns a stable key for the parts of a request that shape its
// output, such as the three extraction prompts.
func SpecHash(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
