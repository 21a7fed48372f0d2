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
	"fmt"
	"path/filepath"

	"gonovel/internal/config"
)

// Open builds the store selected by the storage config section. Relative
// paths are resolved against baseDir.
func Open(ctx context.Context, cfg config.StorageConfig, baseDir string) (Store, error) {
	p := cfg.Path
	switch cfg.Driver {
	case config.DriverFile:
		if p == "" {
			p = "saves"
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		return asStore(NewFileStore(p, cfg.KeepSnapshots))
	case config.DriverSQLite, "":
		if p == "" {
			p = "saves.sqlite"
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		return asStore(OpenSQLite(p, cfg.KeepSnapshots))
	case config.DriverPostgres:
		return asStore(OpenPostgres(ctx, cfg.DSN, cfg.KeepSnapshots))
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// asStore keeps a failed constructor from returning a non-nil interface
// around a nil pointer.
func asStore[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
