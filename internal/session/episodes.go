/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gonovel/internal/script"
)

// ErrEpisodeNotFound is returned for an unknown episode id.
var ErrEpisodeNotFound = errors.New("episode not found")

// Episodes supplies scripts by episode id.
type Episodes interface {
	Episode(id string) (*script.Script, error)
}

// EpisodeMap serves scripts held in memory.
type EpisodeMap map[string]*script.Script

func (m EpisodeMap) Episode(id string) (*script.Script, error) {
	s, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEpisodeNotFound, id)
	}
	return s, nil
}

// EpisodeDir loads <id>.yaml, .yml, .json or .txt from Dir on first use
// and caches the result.
type EpisodeDir struct {
	Dir   string
	mu    sync.Mutex
	cache map[string]*script.Script
}

var episodeExts = []string{".yaml", ".yml", ".json", ".txt"}

func (d *EpisodeDir) Episode(id string) (*script.Script, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, fmt.Errorf("%w: %q", ErrEpisodeNotFound, id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.cache[id]; ok {
		return s, nil
	}
	for _, ext := range episodeExts {
		p := filepath.Join(d.Dir, id+ext)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		s, err := script.LoadFile(p)
		if err != nil {
			return nil, err
		}
		if s.ID == "" {
			s.ID = id
		}
		if d.cache == nil {
			d.cache = map[string]*script.Script{}
		}
		d.cache[id] = s
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q in %s", ErrEpisodeNotFound, id, d.Dir)
}
