/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package thread keeps a mission's comments as one flat, ordered list in
// which every reply sits in the contiguous block right after its parent.
// Nesting is one level deep: replies always point at a top-level comment.
package thread

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gonovel/internal/domain"
	applog "gonovel/internal/log"
)

var (
	ErrParentNotFound  = errors.New("parent comment not found")
	ErrCommentNotFound = errors.New("comment not found")
)

// OrphanPolicy decides what AppendReply does when the parent is missing.
type OrphanPolicy int

const (
	// OrphanAppend appends the reply as a top-level comment, logs a warning
	// and still reports ErrParentNotFound.
	OrphanAppend OrphanPolicy = iota
	// OrphanReject appends nothing.
	OrphanReject
)

// Thread is not safe for concurrent use.
type Thread struct {
	comments []domain.Comment
	seq      map[string]int // insertion order by id
	next     int
	lastTop  time.Time

	log     *slog.Logger
	orphans OrphanPolicy
	now     func() time.Time
	newID   func() string
}

// Option configures a Thread.
type Option func(*Thread)

func WithLogger(l *slog.Logger) Option {
	return func(t *Thread) {
		if l != nil {
			t.log = l
		}
	}
}

func WithOrphanPolicy(p OrphanPolicy) Option { return func(t *Thread) { t.orphans = p } }

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option { return func(t *Thread) { t.now = now } }

// WithIDs replaces the UUID generator.
func WithIDs(gen func() string) Option { return func(t *Thread) { t.newID = gen } }

// New builds a thread from seed comments (a mission's initial comments).
// Seeds pass through the same placement rules as merged comments.
func New(seed []domain.Comment, opts ...Option) *Thread {
	t := &Thread{
		seq:   map[string]int{},
		log:   applog.WithComponent("thread"),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(t)
	}
	if len(seed) > 0 {
		rep := t.merge(seed, false)
		t.log.Debug("thread seeded", slog.Int("comments", t.Len()), slog.Int("downgraded", rep.Downgraded))
	}
	return t
}

// AppendComment adds a new top-level comment at the end.
func (t *Thread) AppendComment(text string, a domain.Author) domain.Comment {
	return t.appendTop(t.build(text, a))
}

// AppendReply inserts a reply after the last reply already attached to the
// parent. A reply to a reply is attached to that reply's parent and
// addressed with an @nickname prefix.
func (t *Thread) AppendReply(text, parentID string, a domain.Author) (domain.Comment, error) {
	c := t.build(text, a)
	p := t.index(parentID)
	if p < 0 {
		if t.orphans == OrphanReject {
			t.log.Warn("reply rejected, parent missing", slog.String("parent", parentID))
			return domain.Comment{}, fmt.Errorf("%w: %q", ErrParentNotFound, parentID)
		}
		t.log.Warn("reply appended top-level, parent missing", slog.String("parent", parentID), slog.String("id", c.ID))
		return t.appendTop(c), fmt.Errorf("%w: %q", ErrParentNotFound, parentID)
	}
	c = attach(c, t.comments[p])
	t.insertReply(c)
	return c, nil
}

// Like adds one like to a comment.
func (t *Thread) Like(id string) (domain.Comment, error) {
	i := t.index(id)
	if i < 0 {
		return domain.Comment{}, fmt.Errorf("%w: %q", ErrCommentNotFound, id)
	}
	t.comments[i].Likes++
	return t.comments[i], nil
}

// Find looks a comment up by id.
func (t *Thread) Find(id string) (domain.Comment, bool) {
	if i := t.index(id); i >= 0 {
		return t.comments[i], true
	}
	return domain.Comment{}, false
}

// Comments returns a copy of the thread in display order.
func (t *Thread) Comments() []domain.Comment {
	return append([]domain.Comment(nil), t.comments...)
}

func (t *Thread) Len() int { return len(t.comments) }

// LastPlayerComment returns the most recently written player comment.
func (t *Thread) LastPlayerComment() (domain.Comment, bool) {
	best, bestSeq := -1, -1
	for i, c := range t.comments {
		if c.IsPlayer && t.seq[c.ID] > bestSeq {
			best, bestSeq = i, t.seq[c.ID]
		}
	}
	if best < 0 {
		return domain.Comment{}, false
	}
	return t.comments[best], true
}

// Node is a top-level comment with its replies.
type Node struct {
	Comment domain.Comment
	Replies []domain.Comment
}

// Tree regroups the flat list by parent for display.
func (t *Thread) Tree() []Node {
	var out []Node
	pos := map[string]int{}
	for _, c := range t.comments {
		if c.IsReply {
			if i, ok := pos[c.ParentID]; ok {
				out[i].Replies = append(out[i].Replies, c)
				continue
			}
		}
		pos[c.ID] = len(out)
		out = append(out, Node{Comment: c})
	}
	return out
}

func (t *Thread) build(text string, a domain.Author) domain.Comment {
	return domain.Comment{
		ID:        t.newID(),
		Nickname:  a.Nickname,
		IP:        a.IP,
		Content:   text,
		IsPlayer:  a.IsPlayer,
		CreatedAt: t.now(),
	}
}

func (t *Thread) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range t.comments {
		if t.comments[i].ID == id {
			return i
		}
	}
	return -1
}

// appendTop adds a top-level comment, keeping top-level timestamps
// non-decreasing.
func (t *Thread) appendTop(c domain.Comment) domain.Comment {
	c.IsReply = false
	c.ParentID = ""
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.now()
	}
	if c.CreatedAt.Before(t.lastTop) {
		c.CreatedAt = t.lastTop
	}
	t.lastTop = c.CreatedAt
	t.comments = append(t.comments, c)
	t.track(c.ID)
	return c
}

// insertReply places c after its parent's run of replies. The parent must
// exist and be top-level.
func (t *Thread) insertReply(c domain.Comment) {
	p := t.index(c.ParentID)
	pos := p + 1
	for pos < len(t.comments) && t.comments[pos].IsReply && t.comments[pos].ParentID == c.ParentID {
		pos++
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.now()
	}
	t.comments = append(t.comments, domain.Comment{})
	copy(t.comments[pos+1:], t.comments[pos:])
	t.comments[pos] = c
	t.track(c.ID)
}

func (t *Thread) track(id string) {
	t.next++
	t.seq[id] = t.next
}

// attach makes c a reply to parent, folding replies-to-replies onto the
// top-level comment.
func attach(c, parent domain.Comment) domain.Comment {
	c.IsReply = true
	if !parent.IsReply {
		c.ParentID = parent.ID
		return c
	}
	c.ParentID = parent.ParentID
	if mention := "@" + parent.Nickname; parent.Nickname != "" && !strings.HasPrefix(c.Content, mention) {
		c.Content = mention + " " + c.Content
	}
	return c
}
