/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"gonovel/internal/config"
	"gonovel/internal/crash"
	"gonovel/internal/crowd"
	"gonovel/internal/dialogue"
	"gonovel/internal/export"
	applog "gonovel/internal/log"
	"gonovel/internal/mission"
	"gonovel/internal/rollback"
	"gonovel/internal/session"
	"gonovel/internal/storage"
	"gonovel/internal/telemetry"
)

const quickSlot = "quick"

func playCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "play an episode in the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "episode", Aliases: []string{"e"}, Usage: "episode `ID` to start"},
			&cli.StringFlag{Name: "load", Aliases: []string{"l"}, Usage: "resume from save `SLOT`"},
			&cli.StringFlag{Name: "font", Usage: "UTF-8 TTF `FILE` for transcript exports"},
		},
		Action: func(c *cli.Context) error { return e.play(c) },
	}
}

// dataDir holds saves and crash reports next to the config file.
func dataDir() string {
	p, err := config.ConfigPath()
	if err != nil {
		return "."
	}
	return filepath.Dir(p)
}

// buildGame wires a session from the config. The generator is only
// connected when live is set and a key is available.
func (e *env) buildGame(ctx context.Context, live bool) (*session.Game, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	cat, err := mission.LoadCatalogFile(e.cfg.Content.MissionsFile)
	if err != nil {
		return nil, cleanup, err
	}
	store, err := storage.Open(ctx, e.cfg.Storage, dataDir())
	if err != nil {
		return nil, cleanup, fmt.Errorf("open saves: %w", err)
	}
	closers = append(closers, func() { _ = store.Close() })

	var gen crowd.Generator
	switch {
	case !live:
	case e.apiKey != "":
		gm, err := crowd.NewGemini(ctx, crowd.GeminiConfig{
			APIKey:            e.apiKey,
			Model:             e.cfg.Generator.Model,
			Temperature:       e.cfg.Generator.Temperature,
			RequestsPerMinute: e.cfg.Generator.RequestsPerMinute,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = gm.Close() })
		gen = gm
	default:
		e.log.Warn("no generator API key; comment scenes will stay quiet", slog.String("env", config.EnvAPIKey))
	}

	g := session.New(session.Config{
		Episodes:  &session.EpisodeDir{Dir: e.cfg.Content.EpisodesDir},
		Missions:  cat,
		Crowd:     crowd.NewClient(gen, crowd.WithTimeout(e.cfg.Generator.Timeout())),
		Store:     store,
		Audio:     &dialogue.LogAudio{Log: applog.WithComponent("audio")},
		Telemetry: telemetry.Default(),
		History:   rollback.NewManager(rollback.Config{MaxPerEpisode: 200}),
	})
	return g, cleanup, nil
}

func (e *env) play(c *cli.Context) error {
	ctx := c.Context
	g, cleanup, err := e.buildGame(ctx, true)
	defer cleanup()
	if err != nil {
		return err
	}
	defer crash.Recover(g.CrashHandler(dataDir()))

	if slot := c.String("load"); slot != "" {
		if err := g.Load(ctx, slot); err != nil {
			return err
		}
	} else {
		ep := c.String("episode")
		if ep == "" {
			ep = e.cfg.Content.StartEpisode
		}
		var re *dialogue.RoutingError
		if err := g.Start(ep); err != nil && !errors.As(err, &re) {
			return err
		}
	}
	con := &console{g: g, in: bufio.NewScanner(c.App.Reader), out: c.App.Writer, font: c.String("font")}
	return con.run(ctx)
}

// console is the line-oriented terminal front end.
type console struct {
	g    *session.Game
	in   *bufio.Scanner
	out  io.Writer
	font string
}

func (con *console) printf(format string, args ...any) { _, _ = fmt.Fprintf(con.out, format, args...) }

func (con *console) run(ctx context.Context) error {
	con.render()
	for {
		if con.g.State() == dialogue.Ended {
			con.printf("-- the end --\n")
			return nil
		}
		con.printf("> ")
		if !con.in.Scan() {
			return con.in.Err()
		}
		quit, err := con.handle(ctx, strings.TrimSpace(con.in.Text()))
		if err != nil {
			con.printf("! %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (con *console) handle(ctx context.Context, line string) (quit bool, err error) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "q", "quit":
		return true, nil
	case "", "n":
		if con.g.State() == dialogue.SceneTransition {
			if err := con.finish(); err != nil {
				return false, err
			}
		} else if err := con.g.Advance(); err != nil {
			return false, err
		}
	case "c":
		return false, con.submit(ctx, rest, "")
	case "r":
		id, text, _ := strings.Cut(rest, " ")
		return false, con.submit(ctx, strings.TrimSpace(text), id)
	case "like":
		return false, con.g.React(mission.Like)
	case "dislike":
		return false, con.g.React(mission.Dislike)
	case "show":
	case "back":
		if err := con.g.Rollback(); err != nil {
			return false, err
		}
	case "save":
		if err := con.g.Save(ctx, orDefault(rest, quickSlot)); err != nil {
			return false, err
		}
		con.printf("saved\n")
		return false, nil
	case "load":
		if err := con.g.Load(ctx, orDefault(rest, quickSlot)); err != nil {
			return false, err
		}
	case "export":
		return false, con.export(orDefault(rest, "transcript.pdf"))
	case "help", "?":
		con.help()
		return false, nil
	default:
		if strings.HasPrefix(cmd, "+") {
			cm, err := con.g.LikeComment(strings.TrimPrefix(cmd, "+"))
			if err != nil {
				return false, err
			}
			con.printf("liked %s (%d)\n", cm.ID, cm.Likes)
			return false, nil
		}
		n, convErr := strconv.Atoi(cmd)
		if convErr != nil {
			con.help()
			return false, nil
		}
		choices := con.g.View().Choices
		if n < 1 || n > len(choices) {
			return false, fmt.Errorf("no option %d", n)
		}
		if err := con.g.Choose(choices[n-1].ID); err != nil {
			return false, err
		}
	}
	con.render()
	return false, nil
}

func (con *console) finish() error {
	if err := con.g.FinishScene(); err != nil {
		if errors.Is(err, session.ErrMissionActive) {
			_, st, _ := con.g.Mission()
			return fmt.Errorf("%d attempts left", st.RemainingAttempts)
		}
		return err
	}
	return nil
}

func (con *console) submit(ctx context.Context, text, parent string) error {
	con.printf("... waiting for the crowd\n")
	var (
		turn session.Turn
		err  error
	)
	if parent != "" {
		turn, err = con.g.SubmitReply(ctx, text, parent)
	} else {
		turn, err = con.g.SubmitComment(ctx, text)
	}
	if turn.Comment.ID == "" {
		return err
	}
	if err != nil {
		var ce *crowd.Error
		if errors.As(err, &ce) {
			con.printf("! no reactions (%s)\n", ce.Reason)
		}
	}
	con.render()
	if turn.Completed {
		result := "missed"
		if turn.Success {
			result = "reached"
		}
		con.printf("== goal %s ==\n", result)
		if fb := con.g.Feedback(); fb != "" {
			con.printf("%s\n", fb)
		}
		con.printf("(enter to continue, export to save a transcript)\n")
	}
	return nil
}

func (con *console) export(path string) error {
	tr, err := con.g.Transcript()
	if err != nil {
		return err
	}
	if err := export.ExportTranscriptPDF(path, tr, export.TranscriptOptions{FontPath: con.font, Author: "gonovel"}); err != nil {
		return err
	}
	con.printf("wrote %s\n", path)
	return nil
}

func (con *console) render() {
	if err := con.g.Err(); err != nil {
		con.printf("! %v\n", err)
	}
	if m, st, ok := con.g.Mission(); ok && con.g.State() == dialogue.SceneTransition {
		con.printf("\n[%s] %s\n%s\n", m.Title, m.ArticleTitle, m.ArticleContent)
		con.printf("likes %d  dislikes %d  opinion %d/%d  goal %d  attempts %d\n",
			st.ArticleLikes, st.ArticleDislikes, st.Opinion.Positive, st.Opinion.Negative, m.Goal.Threshold(), st.RemainingAttempts)
		for _, n := range con.g.Tree() {
			con.printf("  [%s] %s(%s): %s\n", n.Comment.ID, n.Comment.Nickname, n.Comment.DisplayIP(), n.Comment.Content)
			for _, r := range n.Replies {
				con.printf("      -> [%s] %s(%s): %s\n", r.ID, r.Nickname, r.DisplayIP(), r.Content)
			}
		}
		return
	}
	v := con.g.View()
	switch v.State {
	case dialogue.SceneTransition:
		con.printf("(scene: %s)\n", con.g.Scene().Tag)
	case dialogue.Presenting, dialogue.AwaitingChoice:
		if v.Character != "" {
			con.printf("%s: %s\n", v.Character, v.Text)
		} else {
			con.printf("%s\n", v.Text)
		}
		for i, ch := range v.Choices {
			con.printf("  %d) %s\n", i+1, ch.Text)
		}
	}
}

func (con *console) help() {
	con.printf(`enter   next line / leave scene      1..9   pick an option
c TEXT  comment                      r ID TEXT  reply
like | dislike  react to the article  +ID   like a comment
back    roll back a line             save|load [SLOT]
export [FILE]  transcript PDF        q      quit
`)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
