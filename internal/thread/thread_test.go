/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package thread

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gonovel/internal/domain"
	applog "gonovel/internal/log"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestThread(seed []domain.Comment, opts ...Option) *Thread {
	n := 0
	tick := 0
	base := []Option{
		WithLogger(applog.Discard()),
		WithIDs(func() string { n++; return fmt.Sprintf("id%d", n) }),
		WithClock(func() time.Time { tick++; return t0.Add(time.Duration(tick) * time.Second) }),
	}
	return New(seed, append(base, opts...)...)
}

func ids(cs []domain.Comment) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

// checkContiguous fails when a reply is separated from its parent's block.
func checkContiguous(t *testing.T, cs []domain.Comment) {
	t.Helper()
	pos := map[string]int{}
	for i, c := range cs {
		pos[c.ID] = i
	}
	for i, c := range cs {
		if !c.IsReply {
			continue
		}
		p, ok := pos[c.ParentID]
		if !ok {
			t.Fatalf("reply %s has unknown parent %s", c.ID, c.ParentID)
		}
		if p >= i {
			t.Fatalf("reply %s at %d precedes parent at %d", c.ID, i, p)
		}
		for j := p + 1; j < i; j++ {
			if !cs[j].IsReply || cs[j].ParentID != c.ParentID {
				t.Fatalf("reply %s at %d separated from parent %s by %s: %v", c.ID, i, c.ParentID, cs[j].ID, ids(cs))
			}
		}
	}
}

func TestAppendReplyKeepsRunsContiguous(t *testing.T) {
	th := newTestThread(nil)
	me := domain.Author{Nickname: "me", IP: "10.0.0.1", IsPlayer: true}
	a := th.AppendComment("first", me)
	b := th.AppendComment("second", domain.Author{Nickname: "bob"})
	r1, err := th.AppendReply("re a 1", a.ID, domain.Author{Nickname: "carl"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := th.AppendReply("re b", b.ID, me); err != nil {
		t.Fatal(err)
	}
	if _, err := th.AppendReply("re a 2", a.ID, me); err != nil {
		t.Fatal(err)
	}
	want := []string{a.ID, r1.ID, "id5", b.ID, "id4"}
	if diff := cmp.Diff(want, ids(th.Comments())); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	checkContiguous(t, th.Comments())
	if last, ok := th.LastPlayerComment(); !ok || last.Content != "re a 2" {
		t.Fatalf("last player comment = %+v", last)
	}
}

func TestReplyToReplyIsFolded(t *testing.T) {
	th := newTestThread(nil)
	a := th.AppendComment("top", domain.Author{Nickname: "ann"})
	r, _ := th.AppendReply("hm", a.ID, domain.Author{Nickname: "ben"})
	rr, err := th.AppendReply("no way", r.ID, domain.Author{Nickname: "cat"})
	if err != nil {
		t.Fatal(err)
	}
	if rr.ParentID != a.ID || rr.Content != "@ben no way" {
		t.Fatalf("nested reply = %+v", rr)
	}
	checkContiguous(t, th.Comments())
}

func TestOrphanPolicies(t *testing.T) {
	th := newTestThread(nil)
	th.AppendComment("top", domain.Author{Nickname: "ann"})
	c, err := th.AppendReply("lost", "missing", domain.Author{Nickname: "ben"})
	if !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound, got %v", err)
	}
	if c.IsReply || c.ParentID != "" || th.Len() != 2 {
		t.Fatalf("orphan should be appended top-level: %+v len=%d", c, th.Len())
	}

	strict := newTestThread(nil, WithOrphanPolicy(OrphanReject))
	if _, err := strict.AppendReply("lost", "missing", domain.Author{}); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound, got %v", err)
	}
	if strict.Len() != 0 {
		t.Fatalf("reject policy appended a comment")
	}
}

func TestMergeAI(t *testing.T) {
	th := newTestThread(nil)
	a := th.AppendComment("article is fake", domain.Author{Nickname: "player", IsPlayer: true})
	b := th.AppendComment("agree", domain.Author{Nickname: "bob"})

	batch := []domain.Comment{
		{ID: "g1", Nickname: "troll", Content: "lol"},
		{ID: "g2", Nickname: "fan", Content: "by id", IsReply: true, ParentID: a.ID},
		{ID: "g3", Nickname: "x", Content: "to troll", IsReply: true, ParentID: "troll"},
		{ID: "g4", Nickname: "y", Content: "to bob", IsReply: true, ParentID: "bob"},
		{ID: "g5", Nickname: "z", Content: "to nobody", IsReply: true, ParentID: "ghost"},
		{ID: b.ID, Nickname: "dup", Content: "already there"},
		{ID: "g1", Nickname: "troll", Content: "dup in batch"},
		{ID: "g6", Nickname: "w", Content: "to fan", IsReply: true, ParentID: "fan"},
	}
	rep := th.MergeAI(batch)
	if rep.Duplicates != 2 || rep.Downgraded != 1 || rep.Replies != 4 {
		t.Fatalf("report = %+v", rep)
	}
	want := []string{a.ID, "g2", "g6", b.ID, "g4", "g1", "g3", "g5"}
	got := th.Comments()
	if diff := cmp.Diff(want, ids(got)); diff != "" {
		t.Fatalf("merge order (-want +got):\n%s", diff)
	}
	checkContiguous(t, got)
	g6, _ := th.Find("g6")
	if g6.ParentID != a.ID || g6.Content != "@fan to fan" {
		t.Fatalf("reply to a reply = %+v", g6)
	}
	g5, _ := th.Find("g5")
	if g5.IsReply || g5.ParentID != "" {
		t.Fatalf("unresolved reply should be downgraded: %+v", g5)
	}
	if len(rep.Added) != 6 {
		t.Fatalf("added = %v", rep.Added)
	}
}

func TestMergeDedupKeepsLength(t *testing.T) {
	th := newTestThread(nil)
	c := th.AppendComment("x", domain.Author{Nickname: "a"})
	before := th.Len()
	th.MergeAI([]domain.Comment{{ID: c.ID, Nickname: "a", Content: "again"}})
	if th.Len() != before {
		t.Fatalf("duplicate id grew the thread: %d -> %d", before, th.Len())
	}
	if got, _ := th.Find(c.ID); got.Content != "x" {
		t.Fatalf("duplicate overwrote the original: %+v", got)
	}
}

func TestNicknameLatestMatchWins(t *testing.T) {
	th := newTestThread(nil)
	first := th.AppendComment("one", domain.Author{Nickname: "dup"})
	second := th.AppendComment("two", domain.Author{Nickname: "dup"})
	th.MergeAI([]domain.Comment{{ID: "r", Nickname: "q", Content: "?", IsReply: true, ParentID: "@dup"}})
	r, _ := th.Find("r")
	if r.ParentID != second.ID {
		t.Fatalf("expected latest match %s, got %s (first was %s)", second.ID, r.ParentID, first.ID)
	}
}

func TestSeedAndTree(t *testing.T) {
	seed := []domain.Comment{
		{ID: "s1", Nickname: "a", Content: "seed", IsPlayer: true},
		{ID: "s2", Nickname: "b", Content: "reply", IsReply: true, ParentID: "s1"},
		{ID: "s3", Nickname: "c", Content: "other"},
	}
	th := newTestThread(seed)
	if _, ok := th.LastPlayerComment(); !ok {
		t.Fatalf("seeded player comments keep their flag")
	}
	tree := th.Tree()
	if len(tree) != 2 || len(tree[0].Replies) != 1 || tree[0].Replies[0].ID != "s2" || tree[1].Comment.ID != "s3" {
		t.Fatalf("tree = %+v", tree)
	}
	if _, err := th.Like("s3"); err != nil {
		t.Fatal(err)
	}
	if c, _ := th.Find("s3"); c.Likes != 1 {
		t.Fatalf("likes = %d", c.Likes)
	}
	if _, err := th.Like("nope"); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("like missing: %v", err)
	}
}

func TestTopLevelTimestampsNonDecreasing(t *testing.T) {
	now := t0
	th := New(nil, WithLogger(applog.Discard()), WithClock(func() time.Time { return now }))
	th.AppendComment("a", domain.Author{})
	now = t0.Add(-time.Hour)
	c := th.AppendComment("b", domain.Author{})
	if !c.CreatedAt.Equal(t0) {
		t.Fatalf("top-level timestamp went backwards: %v", c.CreatedAt)
	}
}

// Random append sequences never break reply contiguity.
func TestContiguityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		th := newTestThread(nil)
		for step := 0; step < 40; step++ {
			cs := th.Comments()
			switch {
			case len(cs) == 0 || rng.Intn(3) == 0:
				th.AppendComment("top", domain.Author{Nickname: fmt.Sprintf("n%d", rng.Intn(5))})
			case rng.Intn(4) == 0:
				batch := []domain.Comment{
					{Nickname: "g", Content: "gen"},
					{Nickname: "h", Content: "gen reply", IsReply: true, ParentID: cs[rng.Intn(len(cs))].ID},
					{Nickname: "i", Content: "nick reply", IsReply: true, ParentID: "g"},
				}
				th.MergeAI(batch)
			default:
				parent := cs[rng.Intn(len(cs))]
				if _, err := th.AppendReply("re", parent.ID, domain.Author{Nickname: "r"}); err != nil {
					t.Fatal(err)
				}
			}
		}
		checkContiguous(t, th.Comments())
	}
}
