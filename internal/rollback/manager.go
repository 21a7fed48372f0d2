/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package rollback

import (
	"encoding/json"
	"sync"
	"time"

	"gonovel/internal/domain"
)

// Snapshot is one reversible interpreter position within an episode.
// Blob is opaque to the manager; size is estimated as len(Blob).
type Snapshot struct {
	Episode string
	Blob    []byte
	TS      time.Time
}

// Point is the decoded content of a Blob.
type Point struct {
	Index int          `json:"index"`
	Flags domain.Flags `json:"flags"`
}

// Encode captures an interpreter position.
func Encode(index int, flags domain.Flags) ([]byte, error) {
	return json.Marshal(Point{Index: index, Flags: flags.Clone()})
}

// Decode reverses Encode.
func Decode(blob []byte) (Point, error) {
	var p Point
	if err := json.Unmarshal(blob, &p); err != nil {
		return Point{}, err
	}
	if p.Flags == nil {
		p.Flags = domain.Flags{}
	}
	return p, nil
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerEpisode limits the history depth per episode (0 means unlimited).
	MaxPerEpisode int
	// MinInterval replaces the previous entry instead of pushing when two
	// snapshots of the same episode arrive closer than this. Zero keeps every step.
	MinInterval time.Duration
}

// Manager keeps an in-memory rollback/redo history per episode.
// It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-episode stacks
	back    map[string][]Snapshot
	forward map[string][]Snapshot
	bytes   int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4 * 1024 * 1024
	}
	return &Manager{cfg: cfg, back: make(map[string][]Snapshot), forward: make(map[string][]Snapshot)}
}

// Push records a snapshot and clears the redo stack of its episode.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.back[s.Episode]
	m.forward[s.Episode] = nil
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 {
		last := stack[n-1]
		if s.TS.Sub(last.TS) < m.cfg.MinInterval {
			m.bytes += len(s.Blob) - len(last.Blob)
			stack[n-1] = s
			m.enforceCapsLocked(s.Episode)
			return
		}
	}
	m.back[s.Episode] = append(stack, s)
	m.bytes += len(s.Blob)
	m.enforceCapsLocked(s.Episode)
}

// Back pops the newest snapshot of an episode onto its redo stack.
func (m *Manager) Back(episode string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.back[episode]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.back[episode] = stack[:len(stack)-1]
	m.bytes -= len(s.Blob)
	m.forward[episode] = append(m.forward[episode], s)
	return s, true
}

// Forward re-applies the most recently rolled back snapshot.
func (m *Manager) Forward(episode string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.forward[episode]
	if len(f) == 0 {
		return Snapshot{}, false
	}
	s := f[len(f)-1]
	m.forward[episode] = f[:len(f)-1]
	m.back[episode] = append(m.back[episode], s)
	m.bytes += len(s.Blob)
	m.enforceCapsLocked(episode)
	return s, true
}

// Clear drops all history of an episode.
func (m *Manager) Clear(episode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.back[episode] {
		m.bytes -= len(s.Blob)
	}
	delete(m.back, episode)
	delete(m.forward, episode)
	if m.bytes < 0 {
		m.bytes = 0
	}
}

// Depth returns the number of rollback steps available for an episode.
func (m *Manager) Depth(episode string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.back[episode])
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes, episodes, snapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	episodes = len(m.back)
	for _, v := range m.back {
		snapshots += len(v)
	}
	return m.bytes, episodes, snapshots
}

func (m *Manager) enforceCapsLocked(episode string) {
	if m.cfg.MaxPerEpisode > 0 {
		stack := m.back[episode]
		if drop := len(stack) - m.cfg.MaxPerEpisode; drop > 0 {
			for i := 0; i < drop; i++ {
				m.bytes -= len(stack[i].Blob)
			}
			m.back[episode] = append([]Snapshot(nil), stack[drop:]...)
		}
	}
	// global cap: prune the oldest entry across episodes
	for m.bytes > m.cfg.MaxBytes {
		oldest := ""
		var oldestTS time.Time
		found := false
		for ep, stack := range m.back {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = ep, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.back[oldest]
		m.bytes -= len(stack[0].Blob)
		m.back[oldest] = stack[1:]
		if len(m.back[oldest]) == 0 {
			delete(m.back, oldest)
		}
	}
}
