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
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gonovel/internal/crash"
	"gonovel/internal/dialogue"
	"gonovel/internal/domain"
	"gonovel/internal/export"
	"gonovel/internal/mission"
	"gonovel/internal/telemetry"
)

// Snapshot captures the resumable state. The mission thread is not part of
// it; a restored mission starts from its initial thread with the saved
// attempts, article reactions and outcome.
func (g *Game) Snapshot() (domain.Snapshot, error) {
	if g.it.Script() == nil {
		return domain.Snapshot{}, ErrNoEpisode
	}
	s := domain.Snapshot{
		ScriptIndex:   g.it.Position(),
		GameFlags:     g.it.Flags(),
		EpisodeID:     g.episode,
		SceneProgress: g.router.Current().Tag,
	}
	if g.mission != nil {
		s.MissionID = g.mission.Mission().ID
		st := g.mission.State()
		s.RemainingAttempts = st.RemainingAttempts
		s.ArticleLikes, s.ArticleDislikes = st.ArticleLikes, st.ArticleDislikes
		for _, p := range []mission.Polarity{mission.Like, mission.Dislike} {
			if g.reacted[p] {
				s.Reacted = append(s.Reacted, p.String())
			}
		}
	}
	return s, nil
}

// Save writes the current snapshot to slot.
func (g *Game) Save(ctx context.Context, slot string) error {
	if g.cfg.Store == nil {
		return ErrNoStore
	}
	s, err := g.Snapshot()
	if err != nil {
		return err
	}
	if err := g.cfg.Store.Save(ctx, slot, s); err != nil {
		return fmt.Errorf("save %s: %w", slot, err)
	}
	g.cfg.Telemetry.Event(telemetry.GameSaved, map[string]any{"episode": s.EpisodeID, "scene": s.SceneProgress})
	return nil
}

// Load restores slot. A damaged save or unknown episode is reported through
// Err and leaves the current game untouched.
func (g *Game) Load(ctx context.Context, slot string) error {
	if g.cfg.Store == nil {
		return ErrNoStore
	}
	s, err := g.cfg.Store.Load(ctx, slot)
	if err != nil {
		g.fail("load", err)
		return err
	}
	if s == nil {
		return fmt.Errorf("%w: %s", ErrEmptySlot, slot)
	}
	if err := g.Restore(*s); err != nil {
		return err
	}
	g.cfg.Telemetry.Event(telemetry.GameLoaded, map[string]any{"episode": s.EpisodeID, "scene": s.SceneProgress})
	return nil
}

// Restore applies a snapshot. An out-of-range script index starts the
// episode over.
func (g *Game) Restore(s domain.Snapshot) error {
	sc, err := g.cfg.Episodes.Episode(s.EpisodeID)
	if err != nil {
		g.fail("restore", err)
		return err
	}
	g.err = nil
	g.endMission()
	g.episode = s.EpisodeID
	g.cfg.History.Clear(s.EpisodeID)
	g.it.Restore(sc, s.ScriptIndex, s.GameFlags)

	// the scene follows the restored line, not the saved label
	scene := dialogue.Transition{Tag: SceneTitle}
	if g.it.State() == dialogue.SceneTransition {
		scene = g.it.Scene()
	}
	g.router.set(scene)
	if scene.Tag != SceneComment {
		return nil
	}
	id := s.MissionID
	if id == "" {
		id = scene.Payload["missionId"]
	}
	g.startMission(id)
	if g.mission == nil {
		return g.err
	}
	if s.MissionID != "" {
		g.mission.RestoreAttempts(s.RemainingAttempts)
		if err := g.mission.RestoreReactions(s.ArticleLikes, s.ArticleDislikes); err != nil {
			g.fail("restore", err)
			return err
		}
		for _, name := range s.Reacted {
			switch name {
			case mission.Like.String():
				g.reacted[mission.Like] = true
			case mission.Dislike.String():
				g.reacted[mission.Dislike] = true
			}
		}
	}
	// a recorded outcome wins over the opinion rebuilt from the counters
	v, ok := g.it.Flag(MissionFlag(id))
	if ok && v.Kind() == domain.KindBool && g.mission.State().RemainingAttempts == 0 {
		g.mission.RestoreOutcome(v.Equal(domain.Bool(true)))
		return nil
	}
	if success, done := g.mission.EvaluateCompletion(); done {
		g.it.SetFlag(MissionFlag(id), domain.Bool(success))
	}
	return nil
}

// Transcript describes the running or just-finished mission for export.
func (g *Game) Transcript() (export.Transcript, error) {
	if g.mission == nil {
		return export.Transcript{}, ErrNoMission
	}
	m, st := g.mission.Mission(), g.mission.State()
	return export.Transcript{
		MissionTitle:   m.Title,
		ArticleTitle:   m.ArticleTitle,
		ArticleContent: m.ArticleContent,
		Comments:       g.thread.Comments(),
		Likes:          st.ArticleLikes,
		Dislikes:       st.ArticleDislikes,
		Opinion:        st.Opinion,
		Threshold:      m.Goal.Threshold(),
		Success:        st.Success,
		Feedback:       g.feedback,
	}, nil
}

// AutosaveSlot receives the crash-time save.
const AutosaveSlot = "crash"

// CrashHandler returns a handler that autosaves this game and adds its
// position to crash reports.
func (g *Game) CrashHandler(dir string) crash.Handler {
	return crash.Handler{
		Dir: dir,
		Autosave: func() (string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.Save(ctx, AutosaveSlot); err != nil {
				return "", err
			}
			return "slot " + AutosaveSlot, nil
		},
		State: func() map[string]string {
			st := map[string]string{
				"episode": g.episode,
				"index":   strconv.Itoa(g.it.Position()),
				"state":   g.it.State().String(),
				"scene":   g.router.Current().Tag,
			}
			if g.mission != nil {
				st["mission"] = g.mission.Mission().ID
				st["attempts"] = strconv.Itoa(g.mission.State().RemainingAttempts)
			}
			return st
		},
	}
}

// LogValue implements slog.LogValuer.
func (g *Game) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("episode", g.episode),
		slog.Int("index", g.it.Position()),
		slog.String("state", g.it.State().String()),
	}
	if g.mission != nil {
		attrs = append(attrs, slog.String("mission", g.mission.Mission().ID))
	}
	return slog.GroupValue(attrs...)
}
