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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gonovel/internal/domain"
	applog "gonovel/internal/log"
)

const (
	slotExt        = ".json"
	BackupsDirName = "backups"
)

// FileStore writes one JSON document per slot under Dir. The previous
// document is copied to Dir/backups before it is replaced, and Load falls
// back to the newest readable backup when the current file is damaged.
type FileStore struct {
	Dir string
	// Keep bounds the number of backups per slot (0 keeps all).
	Keep int
	log  *slog.Logger
	now  func() time.Time
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, keep int) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("save directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &FileStore{Dir: dir, Keep: keep, log: applog.WithComponent("storage").With(slog.String("driver", "file")), now: time.Now}, nil
}

func (fs *FileStore) path(slot string) string { return filepath.Join(fs.Dir, slot+slotExt) }

// Save writes the snapshot transactionally.
func (fs *FileStore) Save(ctx context.Context, slot string, s domain.Snapshot) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(s)
	if err != nil {
		return err
	}
	target := fs.path(slot)
	if _, statErr := os.Stat(target); statErr == nil {
		stamp := fs.now().UTC().Format("20060102-150405.000000000")
		bpath := filepath.Join(fs.Dir, BackupsDirName, fmt.Sprintf("%s%s.%s.bak", slot, slotExt, stamp))
		if cerr := copyFile(target, bpath); cerr != nil {
			return fmt.Errorf("backup slot %s: %w", slot, cerr)
		}
		fs.pruneBackups(slot)
	}
	temp := filepath.Join(fs.Dir, fmt.Sprintf(".%s%s.tmp-%d-%d", slot, slotExt, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp snapshot: %w", werr)
	}
	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(target); err == nil {
		_ = os.Remove(target)
	}
	if rerr := os.Rename(temp, target); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace snapshot: %w", rerr)
	}
	fs.log.Debug("saved", slog.String("slot", slot), slog.Int("index", s.ScriptIndex))
	return nil
}

// Load reads a slot. A missing slot yields (nil, nil).
func (fs *FileStore) Load(ctx context.Context, slot string) (*domain.Snapshot, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fs.path(slot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err == nil {
		s, derr := decode(data)
		if derr == nil {
			return s, nil
		}
		err = derr
	}
	s, berr := fs.latestBackup(slot)
	if berr != nil {
		if errors.Is(err, ErrMalformedSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("read slot %s: %w", slot, err)
	}
	fs.log.Warn("slot damaged, using backup", slog.String("slot", slot), slog.Any("err", err))
	return s, nil
}

// Slots lists the saved slot names in order.
func (fs *FileStore) Slots(ctx context.Context) ([]string, error) {
	ents, err := os.ReadDir(fs.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, slotExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, slotExt))
	}
	sort.Strings(out)
	return out, nil
}

func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) backups(slot string) []string {
	bdir := filepath.Join(fs.Dir, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil
	}
	var out []string
	prefix := slot + slotExt + "."
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	// the timestamp in the name sorts lexicographically
	sort.Strings(out)
	return out
}

func (fs *FileStore) pruneBackups(slot string) {
	if fs.Keep <= 0 {
		return
	}
	all := fs.backups(slot)
	for len(all) > fs.Keep {
		if err := os.Remove(all[0]); err != nil {
			fs.log.Warn("remove backup failed", slog.String("path", all[0]), slog.Any("err", err))
		}
		all = all[1:]
	}
}

// latestBackup returns the newest backup that decodes.
func (fs *FileStore) latestBackup(slot string) (*domain.Snapshot, error) {
	all := fs.backups(slot)
	for i := len(all) - 1; i >= 0; i-- {
		data, err := os.ReadFile(all[i])
		if err != nil {
			continue
		}
		if s, err := decode(data); err == nil {
			return s, nil
		}
	}
	return nil, errors.New("no usable backup")
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
