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
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// migration is one schema step. A step and its bookkeeping run in a single
// transaction.
type migration struct {
	version int64
	name    string
	stmts   []string
}

// recordFunc stores that m was applied, inside the step's transaction.
type recordFunc func(ctx context.Context, tx *sql.Tx, m migration) error

// loadMigrations reads NNNN_name.sql files from dir in version order.
// Files with nothing but whitespace are skipped.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []migration
	seen := map[int64]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ".sql") {
			continue
		}
		v, err := parseVersion(e.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", v, prev, e.Name())
		}
		seen[v] = e.Name()
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		body := strings.TrimSpace(string(b))
		if body == "" {
			continue
		}
		out = append(out, migration{version: v, name: e.Name(), stmts: []string{body}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// parseVersion takes the leading digits of a migration file name.
func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	end := strings.IndexFunc(base, func(r rune) bool { return !unicode.IsDigit(r) })
	if end <= 0 {
		return 0, fmt.Errorf("migration %s has no version prefix", name)
	}
	v, err := strconv.ParseInt(base[:end], 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("migration %s: bad version %q", name, base[:end])
	}
	return v, nil
}

// runMigrations applies every step not in applied, oldest first.
func runMigrations(ctx context.Context, db *sql.DB, steps []migration, applied map[int64]bool, record recordFunc, l *slog.Logger) error {
	for _, m := range steps {
		if applied[m.version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		l.Info("applying migration", slog.Int64("version", m.version), slog.String("name", m.name))
		for _, q := range m.stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %s: %w", m.name, err)
			}
		}
		if err := record(ctx, tx, m); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}
	return nil
}
