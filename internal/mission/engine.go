/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mission

import (
	"errors"
	"fmt"
	"log/slog"

	"gonovel/internal/domain"
	applog "gonovel/internal/log"
)

var (
	ErrNilMission     = errors.New("mission is nil")
	ErrInvalidMission = errors.New("invalid mission")
	ErrNegativeDelta  = errors.New("reaction delta must not be negative")
)

// Polarity is the direction of an article reaction.
type Polarity int

const (
	Like Polarity = iota
	Dislike
)

func (p Polarity) String() string {
	if p == Dislike {
		return "dislike"
	}
	return "like"
}

// RunState is the mutable part of a running mission.
type RunState struct {
	RemainingAttempts int
	ArticleLikes      int
	ArticleDislikes   int
	Opinion           domain.Opinion
	IsCompleted       bool
	// Success is nil until IsCompleted flips, then never changes.
	Success *bool
}

// Engine tracks attempts, reactions and completion for one mission run.
// It is synchronous and not safe for concurrent use.
type Engine struct {
	m     domain.Mission
	state RunState
	log   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Load starts a run of m. Attempts start at TotalAttempts and the opinion is
// derived from the initial reaction counts.
func Load(m *domain.Mission, opts ...Option) (*Engine, error) {
	if m == nil {
		return nil, ErrNilMission
	}
	if err := Check(*m); err != nil {
		return nil, err
	}
	e := &Engine{m: *m, log: applog.WithComponent("mission")}
	for _, o := range opts {
		o(e)
	}
	e.state = RunState{
		RemainingAttempts: m.TotalAttempts,
		ArticleLikes:      m.InitialLikes,
		ArticleDislikes:   m.InitialDislikes,
	}
	e.recompute()
	e.log.Debug("mission loaded", slog.String("mission", m.ID), slog.Int("attempts", m.TotalAttempts),
		slog.Int("threshold", m.Goal.Threshold()))
	return e, nil
}

// Check reports the first structural problem with m.
func Check(m domain.Mission) error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidMission)
	case m.TotalAttempts < 0:
		return fmt.Errorf("%w: %s: negative totalAttempts", ErrInvalidMission, m.ID)
	case m.InitialLikes < 0 || m.InitialDislikes < 0:
		return fmt.Errorf("%w: %s: negative initial reactions", ErrInvalidMission, m.ID)
	case m.InitialOpinion.Positive < 0 || m.InitialOpinion.Negative < 0 ||
		m.InitialOpinion.Positive+m.InitialOpinion.Negative != 100:
		return fmt.Errorf("%w: %s: initial opinion %d/%d does not sum to 100", ErrInvalidMission, m.ID,
			m.InitialOpinion.Positive, m.InitialOpinion.Negative)
	}
	return nil
}

// Opinion derives the split from reaction counts. With no reactions the
// initial split applies; otherwise positive is likes/total*100 rounded half up.
func Opinion(likes, dislikes int, initial domain.Opinion) domain.Opinion {
	total := likes + dislikes
	if total <= 0 {
		return initial
	}
	pos := (200*likes + total) / (2 * total)
	return domain.Opinion{Positive: pos, Negative: 100 - pos}
}

// RecordAttempt spends one attempt and returns what is left. It never goes
// below zero.
func (e *Engine) RecordAttempt() int {
	if e.state.RemainingAttempts > 0 {
		e.state.RemainingAttempts--
	}
	return e.state.RemainingAttempts
}

// ApplyReaction counts one article like or dislike.
func (e *Engine) ApplyReaction(p Polarity) {
	if p == Dislike {
		e.state.ArticleDislikes++
	} else {
		e.state.ArticleLikes++
	}
	e.recompute()
}

// ApplyPredictedDelta adds generator-predicted reactions to the counters.
func (e *Engine) ApplyPredictedDelta(likes, dislikes int) error {
	if likes < 0 || dislikes < 0 {
		return fmt.Errorf("%w: %+d/%+d", ErrNegativeDelta, likes, dislikes)
	}
	e.state.ArticleLikes += likes
	e.state.ArticleDislikes += dislikes
	e.recompute()
	return nil
}

// EvaluateCompletion latches the outcome once attempts are exhausted.
// done is false while attempts remain. After the first evaluation the
// stored result is returned unchanged.
func (e *Engine) EvaluateCompletion() (success, done bool) {
	if e.state.IsCompleted {
		return *e.state.Success, true
	}
	if e.state.RemainingAttempts != 0 {
		return false, false
	}
	ok := e.state.Opinion.Positive >= e.m.Goal.Threshold()
	e.state.IsCompleted = true
	e.state.Success = &ok
	e.log.Info("mission completed", slog.String("mission", e.m.ID), slog.Bool("success", ok),
		slog.Int("positive", e.state.Opinion.Positive), slog.Int("threshold", e.m.Goal.Threshold()))
	return ok, true
}

// RestoreAttempts sets the remaining attempts from a save, clamped to
// [0, TotalAttempts].
func (e *Engine) RestoreAttempts(n int) {
	switch {
	case n < 0:
		n = 0
	case n > e.m.TotalAttempts:
		n = e.m.TotalAttempts
	}
	e.state.RemainingAttempts = n
}

// RestoreReactions replaces the counters from a save.
func (e *Engine) RestoreReactions(likes, dislikes int) error {
	if likes < 0 || dislikes < 0 {
		return fmt.Errorf("%w: %d/%d", ErrNegativeDelta, likes, dislikes)
	}
	e.state.ArticleLikes = likes
	e.state.ArticleDislikes = dislikes
	e.recompute()
	return nil
}

// RestoreOutcome latches a result recorded before a save. The current
// opinion is not consulted.
func (e *Engine) RestoreOutcome(success bool) {
	ok := success
	e.state.IsCompleted = true
	e.state.Success = &ok
}

// Mission returns the mission definition.
func (e *Engine) Mission() domain.Mission { return e.m }

// State returns a copy of the run state.
func (e *Engine) State() RunState {
	s := e.state
	if s.Success != nil {
		v := *s.Success
		s.Success = &v
	}
	return s
}

func (e *Engine) recompute() {
	e.state.Opinion = Opinion(e.state.ArticleLikes, e.state.ArticleDislikes, e.m.InitialOpinion)
}
