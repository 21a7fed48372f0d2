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
	"strconv"
	"strings"
	"time"

	"gonovel/internal/domain"
)

// Entry is one row of a slot's history.
type Entry struct {
	ID       int64
	SavedAt  time.Time
	Snapshot domain.Snapshot
}

// SQLStore keeps every save of a slot as a row and prunes all but the
// newest Keep rows after each save. Queries are written with ? and
// rebound for drivers that use numbered placeholders.
type SQLStore struct {
	db       *sql.DB
	numbered bool
	keep     int
	log      *slog.Logger
	now      func() time.Time
}

func (st *SQLStore) q(query string) string {
	if !st.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DB exposes the handle for diagnostics and tests.
func (st *SQLStore) DB() *sql.DB { return st.db }

func (st *SQLStore) Save(ctx context.Context, slot string, s domain.Snapshot) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	data, err := encode(s)
	if err != nil {
		return err
	}
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	if _, err := tx.ExecContext(ctx, st.q(`INSERT INTO snapshots (slot, saved_at, body) VALUES (?, ?, ?)`),
		slot, st.now().UTC().UnixMilli(), string(data)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if st.keep > 0 {
		if err := st.pruneTx(ctx, tx, slot, st.keep); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	st.log.Debug("saved", slog.String("slot", slot), slog.Int("index", s.ScriptIndex))
	return nil
}

func (st *SQLStore) Load(ctx context.Context, slot string) (*domain.Snapshot, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	var body string
	err := st.db.QueryRowContext(ctx, st.q(`SELECT body FROM snapshots WHERE slot = ? ORDER BY id DESC LIMIT 1`), slot).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", slot, err)
	}
	return decode([]byte(body))
}

// History returns a slot's saves, newest first. Rows that fail to decode
// are skipped and logged.
func (st *SQLStore) History(ctx context.Context, slot string) ([]Entry, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	rows, err := st.db.QueryContext(ctx, st.q(`SELECT id, saved_at, body FROM snapshots WHERE slot = ? ORDER BY id DESC`), slot)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		var (
			id   int64
			ms   int64
			body string
		)
		if err := rows.Scan(&id, &ms, &body); err != nil {
			return nil, err
		}
		s, err := decode([]byte(body))
		if err != nil {
			st.log.Warn("skipping damaged history row", slog.Int64("id", id), slog.Any("err", err))
			continue
		}
		out = append(out, Entry{ID: id, SavedAt: time.UnixMilli(ms).UTC(), Snapshot: *s})
	}
	return out, rows.Err()
}

// Slots lists slot names that hold at least one save.
func (st *SQLStore) Slots(ctx context.Context) ([]string, error) {
	rows, err := st.db.QueryContext(ctx, `SELECT DISTINCT slot FROM snapshots ORDER BY slot`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep saves of a slot.
func (st *SQLStore) Prune(ctx context.Context, slot string, keep int) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := st.pruneTx(ctx, tx, slot, keep); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (st *SQLStore) pruneTx(ctx context.Context, tx *sql.Tx, slot string, keep int) error {
	_, err := tx.ExecContext(ctx, st.q(`DELETE FROM snapshots WHERE slot = ? AND id NOT IN (
		SELECT id FROM snapshots WHERE slot = ? ORDER BY id DESC LIMIT ?)`), slot, slot, keep)
	if err != nil {
		return fmt.Errorf("prune slot %s: %w", slot, err)
	}
	return nil
}

func (st *SQLStore) Close() error { return st.db.Close() }
