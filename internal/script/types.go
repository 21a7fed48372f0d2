/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gonovel/internal/domain"

	"gopkg.in/yaml.v3"
)

// NotFound is returned by index lookups that do not resolve.
const NotFound = -1

// Script is an ordered sequence of dialogue nodes for one episode.
// Lines are addressed by position; ID references resolve by linear search.
type Script struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Lines []Line `json:"lines" yaml:"lines"`
}

// LineType indicates how the interpreter presents a node.
type LineType string

const (
	LineDialogue  LineType = "dialogue"
	LineMonologue LineType = "monologue"
	LineNarrator  LineType = "narrator"
	LineChoice    LineType = "choice"
)

// Valid reports whether t is a known line type.
func (t LineType) Valid() bool {
	switch t {
	case LineDialogue, LineMonologue, LineNarrator, LineChoice:
		return true
	}
	return false
}

// ID identifies a line. Source files may use strings or numbers; both
// normalize to the same string form so 3 and "3" address the same line.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var x any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&x); err != nil {
		return err
	}
	switch t := x.(type) {
	case string:
		*id = ID(t)
	case json.Number:
		*id = ID(t.String())
	case nil:
		*id = ""
	default:
		return fmt.Errorf("line id must be a string or number, got %T", x)
	}
	return nil
}

func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line id must be a scalar (line %d)", node.Line)
	}
	*id = ID(node.Value)
	return nil
}

// Condition selects AltText when Flags[Flag] strictly equals Expected.
type Condition struct {
	Flag     string       `json:"flag" yaml:"flag"`
	Expected domain.Value `json:"expectedValue" yaml:"expectedValue"`
}

// Choice is one option of a choice line.
type Choice struct {
	ID     ID     `json:"id" yaml:"id"`
	Text   string `json:"text" yaml:"text"`
	NextID ID     `json:"nextId,omitempty" yaml:"nextId,omitempty"`
}

// Line is a single node of the script graph.
// NextScene names an external scene; Payload carries the values the scene
// router needs for it (for example "missionId"). BGM is a music cue
// applied on entry: a track, "track@level" or "stop".
type Line struct {
	ID        ID                `json:"id" yaml:"id"`
	Type      LineType          `json:"type" yaml:"type"`
	Character string            `json:"character,omitempty" yaml:"character,omitempty"`
	Text      string            `json:"text,omitempty" yaml:"text,omitempty"`
	AltText   string            `json:"altText,omitempty" yaml:"altText,omitempty"`
	Condition *Condition        `json:"condition,omitempty" yaml:"condition,omitempty"`
	Choices   []Choice          `json:"choices,omitempty" yaml:"choices,omitempty"`
	NextID    ID                `json:"nextId,omitempty" yaml:"nextId,omitempty"`
	NextScene string            `json:"nextScene,omitempty" yaml:"nextScene,omitempty"`
	Payload   map[string]string `json:"payload,omitempty" yaml:"payload,omitempty"`
	BGM       string            `json:"bgm,omitempty" yaml:"bgm,omitempty"`
}

// Choice returns the option with the given id.
func (l Line) Choice(id ID) (Choice, bool) {
	for _, c := range l.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// Error is a load, parse or validation problem with position context.
// Line is the 1-based source line for text scripts and the 0-based node
// index for structured ones; Column is 0 when unknown.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string {
	if e.Column > 0 {
		return strconv.Itoa(e.Line) + ":" + strconv.Itoa(e.Column) + ": " + e.Message
	}
	return strconv.Itoa(e.Line) + ": " + e.Message
}
