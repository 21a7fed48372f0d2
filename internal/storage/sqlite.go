/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "gonovel/internal/log"
	"gonovel/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// sqliteSchemaVersion tracks the local schema. Bump it together with a
// new entry in sqliteMigrations.
const sqliteSchemaVersion = 2

var sqliteMigrations = []migration{
	{version: 1, name: "snapshots", stmts: []string{`CREATE TABLE IF NOT EXISTS snapshots (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		slot      TEXT NOT NULL,
		saved_at  INTEGER NOT NULL,
		body      TEXT NOT NULL
	);`}},
	{version: 2, name: "snapshots_slot_idx", stmts: []string{`CREATE INDEX IF NOT EXISTS idx_snapshots_slot ON snapshots(slot, id);`}},
}

// OpenSQLite opens (creating if needed) the save database at path with WAL
// enabled and the schema migrated.
func OpenSQLite(path string, keep int) (*SQLStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		l.Error("migrate failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("save database ready")
	return &SQLStore{db: db, keep: keep, log: applog.WithComponent("storage").With(slog.String("driver", "sqlite")), now: time.Now}, nil
}

// SchemaVersion reads the migrated schema version of a SQLite store.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version (
		id          INTEGER PRIMARY KEY CHECK(id=1),
		schema      INTEGER NOT NULL,
		app         TEXT,
		updated_at  TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int64
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, updated_at) VALUES (1, 0, ?, ?)`, version.String(), now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	}
	if cur > sqliteSchemaVersion {
		// written by a newer build; leave it alone
		return nil
	}
	// the single version row stands in for a per-step table
	applied := map[int64]bool{}
	for v := int64(1); v <= cur; v++ {
		applied[v] = true
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_migrate")
	return runMigrations(ctx, db, sqliteMigrations, applied, func(ctx context.Context, tx *sql.Tx, m migration) error {
		_, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, app=?, updated_at=? WHERE id=1`, m.version, version.String(), now)
		return err
	}, l)
}
