/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gonovel/internal/domain"
	applog "gonovel/internal/log"
	"gonovel/internal/script"
)

// ErrInvalidInput is returned when an input does not apply to the current
// state. The interpreter is left untouched.
var ErrInvalidInput = errors.New("invalid input for current state")

// DefaultScene is where transitions with a missing payload are sent.
const DefaultScene = "title"

// ChoiceFlag returns the flag key recording the choice made on a line.
func ChoiceFlag(lineID script.ID) string { return "choice_" + string(lineID) }

// State is the interpreter's position in its run.
type State int

const (
	Idle State = iota
	Presenting
	AwaitingChoice
	SceneTransition
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Presenting:
		return "presenting"
	case AwaitingChoice:
		return "awaiting_choice"
	case SceneTransition:
		return "scene_transition"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config wires the interpreter to its collaborators. All fields are optional.
type Config struct {
	Logger     *slog.Logger
	Router     Router
	Audio      Audio
	Translator Translator
	// RequiredPayload lists payload keys a transition tag must carry.
	// Nil means {"comment": {"missionId"}}.
	RequiredPayload map[string][]string
	// DefaultScene receives transitions that fail their payload check.
	DefaultScene string
}

// Interpreter walks one script at a time. It is not safe for concurrent use.
type Interpreter struct {
	log      *slog.Logger
	router   Router
	audio    Audio
	tr       Translator
	required map[string][]string
	fallback string

	script  *script.Script
	state   State
	index   int
	pending int // line carrying the active scene tag
	scene   Transition
	flags   domain.Flags
	visited int
}

func New(cfg Config) *Interpreter {
	it := &Interpreter{
		log:      cfg.Logger,
		router:   cfg.Router,
		audio:    cfg.Audio,
		tr:       cfg.Translator,
		required: cfg.RequiredPayload,
		fallback: cfg.DefaultScene,
		flags:    domain.Flags{},
		pending:  script.NotFound,
	}
	if it.log == nil {
		it.log = applog.WithComponent("dialogue")
	}
	if it.tr == nil {
		it.tr = Identity{}
	}
	if it.required == nil {
		it.required = map[string][]string{"comment": {"missionId"}}
	}
	if it.fallback == "" {
		it.fallback = DefaultScene
	}
	return it
}

// Load starts s from its first line. Flags are kept so choices made in
// earlier episodes stay visible.
func (it *Interpreter) Load(s *script.Script) error {
	it.script = s
	it.index = 0
	it.visited = 0
	it.pending = script.NotFound
	it.scene = Transition{}
	if s.Len() == 0 {
		it.state = Ended
		return nil
	}
	return it.enter(0)
}

// Restore resumes s at index with the given flags, as after loading a save.
// An out-of-range index is clamped to 0. No transition is routed; a
// restored scene tag leaves the interpreter in SceneTransition for the
// caller to act on.
func (it *Interpreter) Restore(s *script.Script, index int, flags domain.Flags) {
	it.script = s
	it.flags = flags.Clone()
	it.visited = 0
	it.pending = script.NotFound
	it.scene = Transition{}
	if s.Len() == 0 {
		it.index = 0
		it.state = Ended
		return
	}
	if index < 0 || index >= s.Len() {
		it.log.Warn("restore index out of range, starting over", slog.Int("index", index), slog.Int("lines", s.Len()))
		index = 0
	}
	it.index = index
	ln := s.Lines[index]
	switch {
	case ln.NextScene != "":
		it.pending = index
		it.scene = Transition{Tag: ln.NextScene, Payload: clonePayload(ln.Payload)}
		it.state = SceneTransition
	case ln.Type == script.LineChoice:
		it.state = AwaitingChoice
	default:
		it.state = Presenting
	}
	it.cue(ln.BGM)
}

// Advance moves past the current non-choice line.
func (it *Interpreter) Advance() error {
	if it.state != Presenting {
		return fmt.Errorf("%w: advance while %s", ErrInvalidInput, it.state)
	}
	return it.enter(it.resolve(it.index, ""))
}

// Choose selects an option on the current choice line, records it as
// choice_<lineID> and moves to the option's target.
func (it *Interpreter) Choose(id script.ID) error {
	if it.state != AwaitingChoice {
		return fmt.Errorf("%w: choose while %s", ErrInvalidInput, it.state)
	}
	ln := it.script.Lines[it.index]
	c, ok := ln.Choice(id)
	if !ok {
		return fmt.Errorf("%w: line %q has no choice %q", ErrInvalidInput, ln.ID, id)
	}
	it.flags.Set(ChoiceFlag(ln.ID), domain.String(string(c.ID)))
	return it.enter(it.resolve(it.index, c.NextID))
}

// Resume continues after the line that triggered the active scene
// transition, once that scene has finished.
func (it *Interpreter) Resume() error {
	if it.state != SceneTransition {
		return fmt.Errorf("%w: resume while %s", ErrInvalidInput, it.state)
	}
	from := it.pending
	it.pending = script.NotFound
	it.scene = Transition{}
	it.index = from
	return it.enter(it.resolve(from, ""))
}

// SetFlag records a value, overwriting any previous one.
func (it *Interpreter) SetFlag(key string, v domain.Value) { it.flags.Set(key, v) }

func (it *Interpreter) State() State { return it.state }
func (it *Interpreter) Index() int   { return it.index }

// Position is the index a save should record: the tag line while a scene
// transition is active, the current line otherwise.
func (it *Interpreter) Position() int {
	if it.state == SceneTransition && it.pending != script.NotFound {
		return it.pending
	}
	return it.index
}

func (it *Interpreter) Script() *script.Script               { return it.script }
func (it *Interpreter) Scene() Transition                    { return it.scene }
func (it *Interpreter) Flags() domain.Flags                  { return it.flags.Clone() }
func (it *Interpreter) Visited() int                         { return it.visited }
func (it *Interpreter) Flag(key string) (domain.Value, bool) { return it.flags.Get(key) }

// cue applies a line's music cue: "stop" stops playback, "track@level"
// plays track and sets the bgm channel volume, anything else plays.
func (it *Interpreter) cue(bgm string) {
	if bgm == "" || it.audio == nil {
		return
	}
	if bgm == "stop" {
		it.audio.Stop()
		return
	}
	track, level, ok := strings.Cut(bgm, "@")
	if ok && track != "" {
		if v, err := strconv.ParseFloat(level, 64); err == nil {
			it.audio.Play(track)
			it.audio.SetVolume("bgm", ClampLevel(v))
			return
		}
		it.log.Warn("bad music cue level", slog.String("cue", bgm))
	}
	it.audio.Play(bgm)
}

// resolve applies the graph's next-line rules. An id that does not resolve
// is logged and replaced by sequential advance.
func (it *Interpreter) resolve(from int, explicit script.ID) int {
	next := script.ResolveNext(it.script, from, explicit)
	if next != script.NotFound {
		return next
	}
	target := explicit
	if target == "" {
		if ln, ok := it.script.Line(from); ok {
			target = ln.NextID
		}
	}
	if target == "" {
		return script.NotFound
	}
	it.log.Warn("next line not found, falling through",
		slog.String("script", it.script.ID), slog.Int("from", from), slog.String("target", string(target)))
	if from+1 < it.script.Len() {
		return from + 1
	}
	return script.NotFound
}

// enter applies the transition rules for a resolved target: a scene tag
// wins, then presentation, then the end of the script.
func (it *Interpreter) enter(target int) error {
	if target == script.NotFound {
		it.state = Ended
		return nil
	}
	ln := it.script.Lines[target]
	if ln.NextScene != "" {
		return it.transition(target, ln)
	}
	it.index = target
	it.visited++
	it.cue(ln.BGM)
	if ln.Type == script.LineChoice {
		it.state = AwaitingChoice
	} else {
		it.state = Presenting
	}
	return nil
}

func (it *Interpreter) transition(target int, ln script.Line) error {
	t := Transition{Tag: ln.NextScene, Payload: clonePayload(ln.Payload)}
	if missing := missingKeys(it.required[t.Tag], t.Payload); len(missing) > 0 {
		err := &RoutingError{Tag: t.Tag, Missing: missing}
		it.log.Error("scene transition rejected", slog.String("line", string(ln.ID)), slog.Any("err", err),
			slog.String("fallback", it.fallback))
		it.pending = script.NotFound
		it.scene = Transition{Tag: it.fallback}
		it.state = Idle
		it.route(it.scene)
		return err
	}
	it.pending = target
	it.scene = t
	it.state = SceneTransition
	it.route(t)
	return nil
}

func (it *Interpreter) route(t Transition) {
	if it.router != nil {
		it.router.Route(t)
	}
}

func clonePayload(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
