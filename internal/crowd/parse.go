/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crowd

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"gonovel/internal/domain"
)

// Placeholders for lines that do not name their author.
const (
	DefaultNickname = "ㅇㅇ"
	DefaultIP       = "127.0"
)

// Rule names the grammar a line matched.
type Rule int

const (
	ReplyLeading Rule = iota // author(ip): -> [parent] content
	ReplyArrow               // -> [parent] author(ip): content
	TopLevel                 // author(ip): content
	Fallback                 // anything else
)

func (r Rule) String() string {
	switch r {
	case ReplyLeading:
		return "reply_leading"
	case ReplyArrow:
		return "reply_arrow"
	case TopLevel:
		return "top_level"
	}
	return "fallback"
}

// Delta is the predicted change in article reactions.
type Delta struct {
	AddedLikes    int `json:"added_likes"`
	AddedDislikes int `json:"added_dislikes"`
}

// Total is the number of reactions the delta adds.
func (d Delta) Total() int { return d.AddedLikes + d.AddedDislikes }

// Cap scales the delta down so its total does not exceed limit, keeping
// the like/dislike proportion.
func (d Delta) Cap(limit int) Delta {
	sum := d.Total()
	if sum <= limit {
		return d
	}
	if limit <= 0 {
		return Delta{}
	}
	likes := d.AddedLikes * limit / sum
	return Delta{AddedLikes: likes, AddedDislikes: limit - likes}
}

// ParsedLine is one comment line broken into its fields.
type ParsedLine struct {
	Rule      Rule
	Nickname  string
	IP        string
	ParentRef string
	Content   string
}

// Parsed is the structured form of a generator response.
type Parsed struct {
	Lines []ParsedLine
	Delta *Delta
}

type rule struct {
	kind  Rule
	re    *regexp.Regexp
	split func(m []string) ParsedLine
}

// rules are tried in order; the first match wins.
var rules = []rule{
	{ReplyLeading, regexp.MustCompile(`^(.+?)\(([^()]*)\)\s*:\s*->\s*\[([^\]]+)\]\s*(.*)$`), splitReplyLeading},
	{ReplyArrow, regexp.MustCompile(`^->\s*\[([^\]]+)\]\s*(.+?)\(([^()]*)\)\s*:\s*(.*)$`), splitReplyArrow},
	{TopLevel, regexp.MustCompile(`^(.+?)\(([^()]*)\)\s*:\s*(.*)$`), splitTopLevel},
}

func splitReplyLeading(m []string) ParsedLine {
	return ParsedLine{Nickname: m[1], IP: m[2], ParentRef: m[3], Content: m[4]}
}

func splitReplyArrow(m []string) ParsedLine {
	return ParsedLine{ParentRef: m[1], Nickname: m[2], IP: m[3], Content: m[4]}
}

func splitTopLevel(m []string) ParsedLine {
	return ParsedLine{Nickname: m[1], IP: m[2], Content: m[3]}
}

var (
	reUUIDSuffix   = regexp.MustCompile(`\s*\((?i:id:\s*)?[0-9a-fA-F]{8}(?:-[0-9a-fA-F]{4}){3}-[0-9a-fA-F]{12}\)\s*$`)
	reNestedAuthor = regexp.MustCompile(`^[^\s()]{1,24}\([^()]*\)\s*:\s*`)
	reIDPrefix     = regexp.MustCompile(`^(?i:id)\s*:\s*`)
	reFence        = regexp.MustCompile("^```[A-Za-z]*$")
)

// Parse splits a generator response into comment lines and the trailing
// reaction delta. It never fails: unmatched lines fall back to plain
// content under a placeholder author.
func Parse(raw string) Parsed {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || reFence.MatchString(l) {
			continue
		}
		lines = append(lines, l)
	}

	var out Parsed
	if n := len(lines); n > 0 {
		if d, ok := parseDelta(lines[n-1]); ok {
			out.Delta = &d
			lines = lines[:n-1]
		}
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, parseLine(l))
	}
	return out
}

func parseLine(l string) ParsedLine {
	p := ParsedLine{Rule: Fallback, Content: l}
	for _, r := range rules {
		if m := r.re.FindStringSubmatch(l); m != nil {
			p = r.split(m)
			p.Rule = r.kind
			break
		}
	}
	p.Nickname = strings.TrimSpace(p.Nickname)
	p.IP = strings.TrimSpace(p.IP)
	p.ParentRef = strings.TrimSpace(reIDPrefix.ReplaceAllString(strings.TrimSpace(p.ParentRef), ""))
	p.Content = strings.TrimSpace(reUUIDSuffix.ReplaceAllString(p.Content, ""))
	if p.ParentRef != "" {
		p.Content = reNestedAuthor.ReplaceAllString(p.Content, "")
	}
	if p.Nickname == "" {
		p.Nickname = DefaultNickname
	}
	if p.IP == "" {
		p.IP = DefaultIP
	}
	return p
}

// parseDelta reads {"added_likes":n,"added_dislikes":m}. Lines that look
// like a damaged object are repaired first. Negative counts become 0.
func parseDelta(l string) (Delta, bool) {
	if !strings.HasPrefix(l, "{") {
		return Delta{}, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(l), &fields); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(l)
		if rerr != nil || json.Unmarshal([]byte(fixed), &fields) != nil {
			return Delta{}, false
		}
	}
	likes, ok1 := fields["added_likes"].(float64)
	dislikes, ok2 := fields["added_dislikes"].(float64)
	if !ok1 || !ok2 {
		return Delta{}, false
	}
	return Delta{AddedLikes: count(likes), AddedDislikes: count(dislikes)}, true
}

func count(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(f))
}

// Comments turns parsed lines into generated comments with fresh ids.
// Reply lines keep their parent reference for the thread to resolve.
func (p Parsed) Comments(newID func() string, now time.Time) []domain.Comment {
	if newID == nil {
		newID = uuid.NewString
	}
	out := make([]domain.Comment, 0, len(p.Lines))
	for _, l := range p.Lines {
		if l.Content == "" {
			continue
		}
		out = append(out, domain.Comment{
			ID:        newID(),
			Nickname:  l.Nickname,
			IP:        l.IP,
			Content:   l.Content,
			IsReply:   l.ParentRef != "",
			ParentID:  l.ParentRef,
			CreatedAt: now,
		})
	}
	return out
}
