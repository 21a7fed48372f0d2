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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"github.com/zalando/go-keyring"

	"gonovel/internal/config"
	"gonovel/internal/crowd"
	"gonovel/internal/domain"
	applog "gonovel/internal/log"
	"gonovel/internal/mission"
	"gonovel/internal/script"
	"gonovel/internal/session"
)

const (
	sampleEpisodes = "../../content/episodes"
	sampleMissions = "../../content/missions.yaml"
)

// isolate points the config, saves and keyring at throwaway locations.
func isolate(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "config.yaml"))
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvTelemetryOptIn, "")
	t.Setenv(config.EnvEpisodesDir, sampleEpisodes)
	t.Setenv(config.EnvMissionsFile, sampleMissions)
	t.Setenv(config.EnvStorageDriver, config.DriverFile)
	t.Setenv(applog.EnvLevel, "error")
	return dir
}

func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(&env{})
	app.Reader = strings.NewReader(stdin)
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"gonovel", "--env-file", ""}, args...))
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := runApp(t, "", "version")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(out))
}

func TestValidateSampleContent(t *testing.T) {
	isolate(t)
	out, err := runApp(t, "", "validate")
	require.NoError(t, err, out)
	require.Contains(t, out, "ok")
}

func TestValidateReportsUnknownMission(t *testing.T) {
	isolate(t)
	ep := filepath.Join(t.TempDir(), "bad.yaml")
	doc := "id: bad\nlines:\n  - id: 1\n    type: narrator\n    nextScene: comment\n    payload:\n      missionId: ghost\n  - id: 2\n    type: narrator\n    nextId: 9\n"
	require.NoError(t, os.WriteFile(ep, []byte(doc), 0o644))

	out, err := runApp(t, "", "validate", ep)
	require.Error(t, err)
	require.Contains(t, out, "ghost")
	require.Contains(t, out, `nextId "9" does not resolve`)
}

func TestConfigShowMarksOverrides(t *testing.T) {
	isolate(t)
	out, err := runApp(t, "", "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "storage.driver overridden by "+config.EnvStorageDriver)
	require.Contains(t, out, "api key: not set")
}

func TestConfigKeyCommands(t *testing.T) {
	isolate(t)
	_, err := runApp(t, "", "config", "set-key", "secret-1")
	require.NoError(t, err)
	_, key, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "secret-1", key)

	_, err = runApp(t, "", "config", "forget-key")
	require.NoError(t, err)
	_, key, err = config.Load()
	require.NoError(t, err)
	require.Empty(t, key)
}

func TestConfigInitWritesOnce(t *testing.T) {
	dir := isolate(t)
	_, err := runApp(t, "", "config", "init")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	_, err = runApp(t, "", "config", "init")
	require.Error(t, err)
}

func TestPlaySaveThenExport(t *testing.T) {
	dir := isolate(t)
	// narration, dialogue, choice, monologue, then the comment scene opens
	out, err := runApp(t, "\n\n1\n\nsave s1\nq\n", "play", "--episode", "episode1")
	require.NoError(t, err, out)
	require.Contains(t, out, "Want to jump in?")
	require.Contains(t, out, "City approves library expansion")
	require.Contains(t, out, "roadwarrior")
	require.Contains(t, out, "saved")

	out, err = runApp(t, "", "saves")
	require.NoError(t, err)
	require.Contains(t, out, "s1")
	require.Contains(t, out, "episode1")

	pdf := filepath.Join(dir, "t.pdf")
	_, err = runApp(t, "", "export", "--slot", "s1", pdf)
	require.NoError(t, err)
	data, err := os.ReadFile(pdf)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestExportNeedsMission(t *testing.T) {
	dir := isolate(t)
	_, err := runApp(t, "save s0\nq\n", "play")
	require.NoError(t, err)
	_, err = runApp(t, "", "export", "--slot", "s0", filepath.Join(dir, "t.pdf"))
	require.ErrorIs(t, err, session.ErrNoMission)
}

func consoleGame(t *testing.T) *session.Game {
	t.Helper()
	th := 50
	cat, err := mission.NewCatalog(domain.Mission{
		ID:              "m1",
		Title:           "Bus fares",
		Goal:            domain.Goal{PositiveThreshold: &th},
		TotalAttempts:   1,
		ArticleTitle:    "Fares rise",
		InitialOpinion:  domain.Opinion{Positive: 40, Negative: 60},
		InitialComments: []domain.Comment{{ID: "a", Nickname: "rider", IP: "10.1.2.3", Content: "too much"}},
	})
	require.NoError(t, err)
	ep := &script.Script{ID: "ep", Lines: []script.Line{
		{ID: "1", Type: script.LineChoice, Text: "Look?", Choices: []script.Choice{{ID: "y", Text: "yes"}}},
		{ID: "2", Type: script.LineNarrator, NextScene: session.SceneComment, Payload: map[string]string{"missionId": "m1"}},
		{ID: "3", Type: script.LineDialogue, Character: "ed", Text: "Done."},
	}}
	gen := crowd.GeneratorFunc(func(_ context.Context, prompt string) (crowd.Response, error) {
		if strings.Contains(prompt, "the goal was") {
			return crowd.Response{Text: "Nice work."}, nil
		}
		return crowd.Response{Text: "-> [a] kim(5.6.7.8): fair point\n{\"added_likes\": 3, \"added_dislikes\": 0}"}, nil
	})
	return session.New(session.Config{
		Logger:   applog.Discard(),
		Episodes: session.EpisodeMap{"ep": ep},
		Missions: cat,
		Crowd:    crowd.NewClient(gen, crowd.WithLogger(applog.Discard())),
	})
}

func TestConsoleRunsMission(t *testing.T) {
	g := consoleGame(t)
	require.NoError(t, g.Start("ep"))

	var out bytes.Buffer
	in := "9\n1\n\nc cheaper than driving\n+a\n\n\n"
	con := &console{g: g, in: bufio.NewScanner(strings.NewReader(in)), out: &out}
	require.NoError(t, con.run(context.Background()))

	s := out.String()
	require.Contains(t, s, "1) yes")
	require.Contains(t, s, "no option 9")
	require.Contains(t, s, "[Bus fares] Fares rise")
	require.Contains(t, s, "attempts left")
	require.Contains(t, s, "kim(5.6): fair point")
	require.Contains(t, s, "== goal reached ==")
	require.Contains(t, s, "Nice work.")
	require.Contains(t, s, "liked a (1)")
	require.Contains(t, s, "ed: Done.")
	require.Contains(t, s, "-- the end --")
}

func TestConsoleCommandsWithoutMission(t *testing.T) {
	g := consoleGame(t)
	require.NoError(t, g.Start("ep"))
	var out bytes.Buffer
	con := &console{g: g, out: &out}

	_, err := con.handle(context.Background(), "c hi")
	require.ErrorIs(t, err, session.ErrNoMission)
	_, err = con.handle(context.Background(), "save")
	require.ErrorIs(t, err, session.ErrNoStore)
	_, err = con.handle(context.Background(), "export x.pdf")
	require.ErrorIs(t, err, session.ErrNoMission)
	quit, err := con.handle(context.Background(), "quit")
	require.NoError(t, err)
	require.True(t, quit)
}
