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
	"testing"
	"time"

	"gonovel/internal/domain"
)

func TestBackForward(t *testing.T) {
	m := NewManager(Config{MaxPerEpisode: 10})
	t0 := time.Now()
	m.Push(Snapshot{Episode: "ep1", Blob: []byte("a"), TS: t0})
	m.Push(Snapshot{Episode: "ep1", Blob: []byte("b"), TS: t0.Add(time.Millisecond)})
	if _, eps, total := m.Stats(); eps != 1 || total != 2 {
		t.Fatalf("expected 1 episode and 2 snapshots, got episodes=%d total=%d", eps, total)
	}
	s, ok := m.Back("ep1")
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("back expected 'b', got ok=%v blob=%q", ok, s.Blob)
	}
	s, ok = m.Forward("ep1")
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("forward expected 'b', got ok=%v blob=%q", ok, s.Blob)
	}
	if _, ok := m.Back("other"); ok {
		t.Fatalf("unknown episode should have no history")
	}
}

func TestPushClearsForward(t *testing.T) {
	m := NewManager(Config{})
	t0 := time.Now()
	m.Push(Snapshot{Episode: "ep", Blob: []byte("1"), TS: t0})
	m.Back("ep")
	m.Push(Snapshot{Episode: "ep", Blob: []byte("2"), TS: t0.Add(time.Second)})
	if _, ok := m.Forward("ep"); ok {
		t.Fatalf("new push should invalidate redo")
	}
}

func TestCoalesceOnlyWhenConfigured(t *testing.T) {
	t0 := time.Now()
	keep := NewManager(Config{})
	keep.Push(Snapshot{Episode: "ep", Blob: []byte("1"), TS: t0})
	keep.Push(Snapshot{Episode: "ep", Blob: []byte("2"), TS: t0})
	if keep.Depth("ep") != 2 {
		t.Fatalf("zero interval should keep every step, got %d", keep.Depth("ep"))
	}

	merge := NewManager(Config{MinInterval: 50 * time.Millisecond})
	merge.Push(Snapshot{Episode: "ep", Blob: []byte("1"), TS: t0})
	merge.Push(Snapshot{Episode: "ep", Blob: []byte("2"), TS: t0.Add(10 * time.Millisecond)})
	if merge.Depth("ep") != 1 {
		t.Fatalf("expected coalesced to 1 snapshot, got %d", merge.Depth("ep"))
	}
	if s, _ := merge.Back("ep"); string(s.Blob) != "2" {
		t.Fatalf("expected newest blob, got %q", s.Blob)
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxBytes: 20, MaxPerEpisode: 2})
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.Push(Snapshot{Episode: "ep", Blob: []byte("xxxxx"), TS: t0.Add(time.Duration(i) * time.Millisecond)})
	}
	if d := m.Depth("ep"); d != 2 {
		t.Fatalf("expected depth cap 2, got %d", d)
	}

	g := NewManager(Config{MaxBytes: 10})
	g.Push(Snapshot{Episode: "old", Blob: []byte("xxxxx"), TS: t0})
	g.Push(Snapshot{Episode: "new", Blob: []byte("xxxxx"), TS: t0.Add(time.Second)})
	g.Push(Snapshot{Episode: "new", Blob: []byte("xxxxx"), TS: t0.Add(2 * time.Second)})
	if g.Depth("old") != 0 || g.Depth("new") != 2 {
		t.Fatalf("byte cap should drop the oldest entry first: old=%d new=%d", g.Depth("old"), g.Depth("new"))
	}
	if b, _, _ := g.Stats(); b != 10 {
		t.Fatalf("bytes after prune: %d", b)
	}
}

func TestClear(t *testing.T) {
	m := NewManager(Config{})
	m.Push(Snapshot{Episode: "ep", Blob: []byte("abc"), TS: time.Now()})
	m.Clear("ep")
	if b, eps, n := m.Stats(); b != 0 || eps != 0 || n != 0 {
		t.Fatalf("expected empty manager, got bytes=%d episodes=%d snapshots=%d", b, eps, n)
	}
}

func TestEncodeDecode(t *testing.T) {
	flags := domain.Flags{"choice_c1": domain.String("yes"), "met": domain.Bool(true), "n": domain.Int(1)}
	blob, err := Encode(7, flags)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	flags.Set("met", domain.Bool(false))
	p, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Index != 7 {
		t.Fatalf("index: %d", p.Index)
	}
	if v, _ := p.Flags.Get("met"); !v.Equal(domain.Bool(true)) {
		t.Fatalf("encode should copy flags, got %v", v)
	}
	if v, _ := p.Flags.Get("n"); !v.Equal(domain.Int(1)) {
		t.Fatalf("number flag lost its kind: %v", v)
	}

	empty, err := Decode([]byte(`{"index":0}`))
	if err != nil || empty.Flags == nil {
		t.Fatalf("decode without flags: %v %v", empty.Flags, err)
	}
	if _, err := Decode([]byte("{")); err == nil {
		t.Fatalf("expected error on bad blob")
	}
}
