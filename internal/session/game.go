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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gonovel/internal/crowd"
	"gonovel/internal/dialogue"
	"gonovel/internal/domain"
	applog "gonovel/internal/log"
	"gonovel/internal/mission"
	"gonovel/internal/rollback"
	"gonovel/internal/script"
	"gonovel/internal/storage"
	"gonovel/internal/telemetry"
	"gonovel/internal/thread"
)

var (
	ErrNoEpisode         = errors.New("no episode running")
	ErrNoMission         = errors.New("no mission running")
	ErrMissionActive     = errors.New("mission still running")
	ErrMissionOver       = errors.New("mission already completed")
	ErrAlreadyReacted    = errors.New("already reacted")
	ErrEmptyComment      = errors.New("comment is empty")
	ErrNoStore           = errors.New("no save store configured")
	ErrEmptySlot         = errors.New("save slot is empty")
	ErrNothingToRollback = errors.New("nothing to roll back")
)

// MissionFlag is the game flag that records a mission outcome.
func MissionFlag(missionID string) string { return "mission_" + missionID }

// Config wires a Game to its collaborators. Episodes and Missions are
// required; the rest fall back to inert defaults.
type Config struct {
	Logger     *slog.Logger
	Episodes   Episodes
	Missions   mission.Source
	Crowd      *crowd.Client
	Store      storage.Store
	Audio      dialogue.Audio
	Translator dialogue.Translator
	Telemetry  telemetry.Sink
	History    *rollback.Manager
	// Player is the author of the player's comments.
	Player domain.Author
	// OrphanPolicy applies to player replies whose parent is gone.
	OrphanPolicy thread.OrphanPolicy
	Now          func() time.Time
	NewID        func() string
}

// Game owns one play-through: the interpreter, the scene router and, while
// a comment scene runs, the mission engine and its thread.
type Game struct {
	cfg    Config
	log    *slog.Logger
	router *SceneRouter
	it     *dialogue.Interpreter

	episode string
	mission *mission.Engine
	thread  *thread.Thread
	reacted map[mission.Polarity]bool

	feedback string
	err      error
}

// Turn is the result of one player submission.
type Turn struct {
	Comment   domain.Comment
	Merge     thread.MergeReport
	Delta     *crowd.Delta
	Capped    bool
	Remaining int
	Completed bool
	Success   bool
}

func New(cfg Config) *Game {
	if cfg.Logger == nil {
		cfg.Logger = applog.WithComponent("session")
	}
	if cfg.Crowd == nil {
		cfg.Crowd = crowd.NewClient(nil)
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Nop{}
	}
	if cfg.History == nil {
		cfg.History = rollback.NewManager(rollback.Config{MaxPerEpisode: 200})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Player.Nickname == "" {
		cfg.Player = domain.Author{Nickname: "나", IP: "118.235", IsPlayer: true}
	}
	cfg.Player.IsPlayer = true

	g := &Game{cfg: cfg, log: cfg.Logger}
	g.router = NewSceneRouter(cfg.Logger.With(slog.String("part", "router")))
	g.router.Handle(SceneComment, g.onComment)
	g.it = dialogue.New(dialogue.Config{
		Logger:     cfg.Logger.With(slog.String("part", "dialogue")),
		Router:     g.router,
		Audio:      cfg.Audio,
		Translator: cfg.Translator,
	})
	return g
}

// Start loads an episode and presents its first line. A routing error on
// the first line is returned after the default scene has been routed.
func (g *Game) Start(episodeID string) error {
	s, err := g.cfg.Episodes.Episode(episodeID)
	if err != nil {
		g.fail("start", err)
		return err
	}
	g.err = nil
	g.episode = episodeID
	g.endMission()
	g.cfg.History.Clear(episodeID)
	g.router.set(dialogue.Transition{Tag: SceneTitle})
	g.cfg.Telemetry.Event(telemetry.EpisodeStarted, map[string]any{"episode": episodeID, "lines": s.Len()})
	return g.it.Load(s)
}

// Advance moves past the current line.
func (g *Game) Advance() error {
	if g.it.Script() == nil {
		return ErrNoEpisode
	}
	if g.it.State() == dialogue.Presenting {
		g.checkpoint()
	}
	return g.it.Advance()
}

// Choose picks an option of the current choice line.
func (g *Game) Choose(id script.ID) error {
	if g.it.Script() == nil {
		return ErrNoEpisode
	}
	if g.it.State() == dialogue.AwaitingChoice {
		if ln, ok := g.it.Script().Line(g.it.Index()); ok {
			if _, ok := ln.Choice(id); ok {
				g.checkpoint()
			}
		}
	}
	return g.it.Choose(id)
}

// Rollback returns to the line before the last Advance or Choose. History
// does not reach back past the start of a mission.
func (g *Game) Rollback() error {
	if g.it.Script() == nil {
		return ErrNoEpisode
	}
	if g.missionRunning() {
		return ErrMissionActive
	}
	snap, ok := g.cfg.History.Back(g.episode)
	if !ok {
		return ErrNothingToRollback
	}
	p, err := rollback.Decode(snap.Blob)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	g.it.Restore(g.it.Script(), p.Index, p.Flags)
	return nil
}

// FinishScene leaves the active scene and continues the script after the
// line that opened it. A running mission must be completed first.
func (g *Game) FinishScene() error {
	if g.it.Script() == nil {
		return ErrNoEpisode
	}
	if g.missionRunning() {
		return ErrMissionActive
	}
	if g.it.State() != dialogue.SceneTransition {
		return g.it.Resume()
	}
	g.endMission()
	g.err = nil
	g.router.set(dialogue.Transition{Tag: SceneTitle})
	// the next line may open another scene
	return g.it.Resume()
}

// SubmitComment posts a top-level player comment and runs one generation.
// A generator failure is returned as *crowd.Error; the comment and the
// spent attempt stay, the thread and opinion are otherwise unchanged.
func (g *Game) SubmitComment(ctx context.Context, text string) (Turn, error) {
	return g.submit(ctx, text, "")
}

// SubmitReply is SubmitComment for a reply to parentID.
func (g *Game) SubmitReply(ctx context.Context, text, parentID string) (Turn, error) {
	return g.submit(ctx, text, parentID)
}

func (g *Game) submit(ctx context.Context, text, parentID string) (Turn, error) {
	if g.mission == nil {
		return Turn{}, ErrNoMission
	}
	if g.mission.State().IsCompleted {
		return Turn{}, ErrMissionOver
	}
	if g.cfg.Crowd.Busy() {
		return Turn{}, crowd.ErrBusy
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyComment
	}
	l := applog.WithOperation(g.log, "submit").With(slog.String("mission", g.mission.Mission().ID))

	var c domain.Comment
	if parentID == "" {
		c = g.thread.AppendComment(text, g.cfg.Player)
	} else {
		var err error
		c, err = g.thread.AppendReply(text, parentID, g.cfg.Player)
		if err != nil {
			if c.ID == "" {
				return Turn{}, err
			}
			l.Warn("reply parent missing, posted as comment", slog.String("parent", parentID))
		}
	}
	turn := Turn{Comment: c, Remaining: g.mission.RecordAttempt()}

	st := g.mission.State()
	m := g.mission.Mission()
	out := g.cfg.Crowd.Generate(ctx, crowd.PromptInput{
		ArticleTitle:   m.ArticleTitle,
		ArticleContent: m.ArticleContent,
		Thread:         g.thread.Comments(),
		Likes:          st.ArticleLikes,
		Dislikes:       st.ArticleDislikes,
		LastPlayer:     &c,
	})
	if out.Err != nil {
		l.Warn("generation failed", slog.Any("err", out.Err))
		reason := ""
		var ce *crowd.Error
		if errors.As(out.Err, &ce) {
			reason = string(ce.Reason)
		}
		g.cfg.Telemetry.Event(telemetry.GenerationFailed, map[string]any{"reason": reason})
	} else {
		turn.Merge = g.thread.MergeAI(out.Comments)
		if out.Delta != nil {
			if err := g.mission.ApplyPredictedDelta(out.Delta.AddedLikes, out.Delta.AddedDislikes); err != nil {
				l.Warn("delta rejected", slog.Any("err", err))
			} else {
				turn.Delta = out.Delta
				turn.Capped = out.Capped
			}
		}
	}

	if success, done := g.mission.EvaluateCompletion(); done {
		turn.Completed, turn.Success = true, success
		g.complete(ctx, success)
	}
	return turn, out.Err
}

// complete records the outcome flag, asks for narrative feedback and
// reports the result.
func (g *Game) complete(ctx context.Context, success bool) {
	m := g.mission.Mission()
	st := g.mission.State()
	g.it.SetFlag(MissionFlag(m.ID), domain.Bool(success))

	var mine []string
	for _, c := range g.thread.Comments() {
		if c.IsPlayer {
			mine = append(mine, c.Content)
		}
	}
	text, err := g.cfg.Crowd.Feedback(ctx, crowd.FeedbackInput{
		MissionTitle:   m.Title,
		ArticleTitle:   m.ArticleTitle,
		Success:        success,
		Opinion:        st.Opinion,
		Threshold:      m.Goal.Threshold(),
		PlayerComments: mine,
	})
	if err != nil {
		g.log.Info("no mission feedback", slog.String("mission", m.ID), slog.Any("err", err))
	}
	g.feedback = text
	g.cfg.Telemetry.Event(telemetry.MissionCompleted, map[string]any{
		"mission": m.ID, "success": success, "positive": st.Opinion.Positive,
	})
}

// React records the player's own like or dislike of the article, once per
// polarity per mission.
func (g *Game) React(p mission.Polarity) error {
	if g.mission == nil {
		return ErrNoMission
	}
	if g.mission.State().IsCompleted {
		return ErrMissionOver
	}
	if g.reacted[p] {
		return fmt.Errorf("%w: %s", ErrAlreadyReacted, p)
	}
	g.reacted[p] = true
	g.mission.ApplyReaction(p)
	return nil
}

// LikeComment adds a like to a thread comment.
func (g *Game) LikeComment(id string) (domain.Comment, error) {
	if g.thread == nil {
		return domain.Comment{}, ErrNoMission
	}
	return g.thread.Like(id)
}

func (g *Game) onComment(t dialogue.Transition) {
	g.startMission(t.Payload["missionId"])
}

// startMission loads a mission for the comment scene. Failures leave no
// mission running and are reported through Err.
func (g *Game) startMission(id string) {
	g.endMission()
	if g.cfg.Missions == nil {
		g.fail("start_mission", fmt.Errorf("%w: %q (no mission source)", mission.ErrMissionNotFound, id))
		return
	}
	m, err := g.cfg.Missions.Get(id)
	if err != nil {
		g.fail("start_mission", err)
		return
	}
	eng, err := mission.Load(&m, mission.WithLogger(g.log.With(slog.String("part", "mission"))))
	if err != nil {
		g.fail("start_mission", err)
		return
	}
	opts := []thread.Option{
		thread.WithLogger(g.log.With(slog.String("part", "thread"))),
		thread.WithOrphanPolicy(g.cfg.OrphanPolicy),
		thread.WithClock(g.cfg.Now),
	}
	if g.cfg.NewID != nil {
		opts = append(opts, thread.WithIDs(g.cfg.NewID))
	}
	g.mission = eng
	g.thread = thread.New(m.InitialComments, opts...)
	g.err = nil
	g.cfg.History.Clear(g.episode)
	g.cfg.Telemetry.Event(telemetry.MissionStarted, map[string]any{"mission": m.ID, "attempts": m.TotalAttempts})
}

func (g *Game) endMission() {
	g.mission = nil
	g.thread = nil
	g.reacted = map[mission.Polarity]bool{}
	g.feedback = ""
}

func (g *Game) missionRunning() bool {
	return g.mission != nil && !g.mission.State().IsCompleted
}

func (g *Game) checkpoint() {
	blob, err := rollback.Encode(g.it.Position(), g.it.Flags())
	if err != nil {
		g.log.Warn("rollback checkpoint failed", slog.Any("err", err))
		return
	}
	g.cfg.History.Push(rollback.Snapshot{Episode: g.episode, Blob: blob, TS: g.cfg.Now()})
}

func (g *Game) fail(op string, err error) {
	g.err = err
	applog.WithOperation(g.log, op).Error("configuration error", slog.Any("err", err))
}

// Err returns the last configuration error (missing mission, damaged save).
// It is cleared when the next episode or scene starts cleanly.
func (g *Game) Err() error { return g.err }

func (g *Game) View() dialogue.View                { return g.it.View() }
func (g *Game) State() dialogue.State              { return g.it.State() }
func (g *Game) Scene() dialogue.Transition         { return g.router.Current() }
func (g *Game) Router() *SceneRouter               { return g.router }
func (g *Game) Episode() string                    { return g.episode }
func (g *Game) Flags() domain.Flags                { return g.it.Flags() }
func (g *Game) Feedback() string                   { return g.feedback }
func (g *Game) Busy() bool                         { return g.cfg.Crowd.Busy() }
func (g *Game) Interpreter() *dialogue.Interpreter { return g.it }

// Mission returns the running mission and its state.
func (g *Game) Mission() (domain.Mission, mission.RunState, bool) {
	if g.mission == nil {
		return domain.Mission{}, mission.RunState{}, false
	}
	return g.mission.Mission(), g.mission.State(), true
}

// Thread returns the mission thread in display order.
func (g *Game) Thread() []domain.Comment {
	if g.thread == nil {
		return nil
	}
	return g.thread.Comments()
}

// Tree returns the thread grouped by top-level comment.
func (g *Game) Tree() []thread.Node {
	if g.thread == nil {
		return nil
	}
	return g.thread.Tree()
}
