/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package thread

import (
	"log/slog"
	"strings"

	"gonovel/internal/domain"
)

// MergeReport summarizes what MergeAI did with a batch.
type MergeReport struct {
	Added      []string // ids in the order they entered the thread
	Replies    int
	Downgraded int
	Duplicates int
}

// MergeAI adds generated comments in generation order.
//
// Comments whose id already exists are dropped. A reply's parent is
// resolved by exact id, then by nickname, against the thread plus the
// batch comments seen so far; the latest nickname match wins. Replies whose
// parent cannot be resolved become top-level comments. Replies to existing
// comments are inserted first; top-level comments follow in batch order,
// each directly followed by the batch replies addressed to it.
func (t *Thread) MergeAI(batch []domain.Comment) MergeReport {
	rep := t.merge(batch, true)
	t.log.Debug("merged generated comments", slog.Int("added", len(rep.Added)), slog.Int("replies", rep.Replies),
		slog.Int("downgraded", rep.Downgraded), slog.Int("duplicates", rep.Duplicates))
	return rep
}

func (t *Thread) merge(batch []domain.Comment, generated bool) MergeReport {
	var rep MergeReport
	seen := make(map[string]bool, len(t.comments)+len(batch))
	for _, c := range t.comments {
		seen[c.ID] = true
	}

	var (
		pool     []domain.Comment // batch comments accepted so far, in final form
		tops     []domain.Comment // top-level comments waiting to be appended
		deferred = map[string][]domain.Comment{}
		pending  = map[string]bool{}
	)
	for _, c := range batch {
		if c.ID == "" {
			c.ID = t.newID()
		}
		if seen[c.ID] {
			rep.Duplicates++
			t.log.Debug("duplicate comment dropped", slog.String("id", c.ID))
			continue
		}
		seen[c.ID] = true
		if generated {
			c.IsPlayer = false
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = t.now()
		}

		if !c.IsReply || c.ParentID == "" {
			c.IsReply, c.ParentID = false, ""
			tops = append(tops, c)
			pending[c.ID] = true
			pool = append(pool, c)
			continue
		}

		parent, ok := t.resolve(c.ParentID, pool)
		if !ok {
			t.log.Warn("reply parent unresolved, posting top-level", slog.String("id", c.ID), slog.String("parent", c.ParentID))
			rep.Downgraded++
			c.IsReply, c.ParentID = false, ""
			tops = append(tops, c)
			pending[c.ID] = true
			pool = append(pool, c)
			continue
		}
		c = attach(c, parent)
		rep.Replies++
		if pending[c.ParentID] {
			deferred[c.ParentID] = append(deferred[c.ParentID], c)
		} else {
			t.insertReply(c)
			rep.Added = append(rep.Added, c.ID)
		}
		pool = append(pool, c)
	}

	for _, c := range tops {
		t.appendTop(c)
		rep.Added = append(rep.Added, c.ID)
		for _, r := range deferred[c.ID] {
			t.insertReply(r)
			rep.Added = append(rep.Added, r.ID)
		}
	}
	return rep
}

// resolve finds a reply target by id, then by nickname, across the thread
// and the batch comments accepted so far. A leading "@" on a nickname
// reference is ignored.
func (t *Thread) resolve(ref string, pool []domain.Comment) (domain.Comment, bool) {
	for _, c := range t.comments {
		if c.ID == ref {
			return c, true
		}
	}
	for _, c := range pool {
		if c.ID == ref {
			return c, true
		}
	}
	nick := strings.TrimPrefix(strings.TrimSpace(ref), "@")
	if nick == "" {
		return domain.Comment{}, false
	}
	for i := len(pool) - 1; i >= 0; i-- {
		if pool[i].Nickname == nick {
			return pool[i], true
		}
	}
	if i := t.latestByNickname(nick); i >= 0 {
		return t.comments[i], true
	}
	return domain.Comment{}, false
}

func (t *Thread) latestByNickname(nick string) int {
	best, bestSeq := -1, -1
	for i, c := range t.comments {
		if c.Nickname == nick && t.seq[c.ID] > bestSeq {
			best, bestSeq = i, t.seq[c.ID]
		}
	}
	return best
}
