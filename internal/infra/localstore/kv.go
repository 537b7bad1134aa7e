// Package localstore is the durable key-value storage of the local
// installation, backed by an embedded sqlite database.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("localstore")

// KV is a named-entry store. Each entry holds one serialized value.
type KV struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and applies migrations.
func Open(dbPath string) (*KV, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &KV{db: db}, nil
}

// Close releases the database.
func (s *KV) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load returns the raw value of the named entry. found is false when the
// entry has never been written.
func (s *KV) Load(ctx context.Context, name string) (value []byte, found bool, err error) {
	ctx, span := tracer.Start(ctx, "KV.Load")
	defer span.End()
	span.SetAttributes(attribute.String("kv.name", name))

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", name, err)
	}
	return []byte(raw), true, nil
}

// Save writes the named entry, replacing any previous value.
func (s *KV) Save(ctx context.Context, name string, value []byte) error {
	ctx, span := tracer.Start(ctx, "KV.Save")
	defer span.End()
	span.SetAttributes(attribute.String("kv.name", name))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, string(value), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Ping checks the database connection. Used by /healthz.
func (s *KV) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
