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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"gonovel/internal/mission"
	"gonovel/internal/script"
	"gonovel/internal/session"
)

func validateCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check episode scripts and the mission catalog",
		ArgsUsage: "[episode files...]",
		Action: func(c *cli.Context) error {
			files := c.Args().Slice()
			if len(files) == 0 {
				var err error
				if files, err = episodeFiles(e.cfg.Content.EpisodesDir); err != nil {
					return err
				}
			}
			problems := validateContent(c.App.Writer, e.cfg.Content.MissionsFile, files)
			if problems > 0 {
				return cli.Exit(fmt.Sprintf("%d problem(s) found", problems), 1)
			}
			_, _ = fmt.Fprintln(c.App.Writer, "ok")
			return nil
		},
	}
}

func episodeFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read episodes: %w", err)
	}
	var files []string
	for _, en := range entries {
		if en.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(en.Name())) {
		case ".yaml", ".yml", ".json", ".txt":
			files = append(files, filepath.Join(dir, en.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// validateContent prints every problem and returns how many it found.
// Comment scenes must name a mission the catalog knows.
func validateContent(w io.Writer, missionsFile string, files []string) int {
	problems := 0
	report := func(format string, args ...any) {
		problems++
		_, _ = fmt.Fprintf(w, format+"\n", args...)
	}
	cat, err := mission.LoadCatalogFile(missionsFile)
	if err != nil {
		report("%s: %v", missionsFile, err)
	}
	for _, f := range files {
		s, err := script.LoadFile(f)
		if err != nil {
			report("%s: %v", f, err)
			continue
		}
		for _, verr := range script.Validate(s) {
			report("%s: %v", f, verr)
		}
		if cat == nil {
			continue
		}
		for i, ln := range s.Lines {
			if ln.NextScene != session.SceneComment {
				continue
			}
			id := ln.Payload["missionId"]
			if id == "" {
				report("%s: line %d: comment scene without missionId", f, i)
				continue
			}
			if _, err := cat.Get(id); err != nil {
				report("%s: line %d: %v", f, i, err)
			}
		}
	}
	return problems
}
