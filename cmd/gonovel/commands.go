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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"gonovel/internal/config"
	"gonovel/internal/export"
	"gonovel/internal/storage"
)

func exportCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "write the mission transcript of a save as PDF",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "slot", Aliases: []string{"s"}, Value: quickSlot, Usage: "save `SLOT` to read"},
			&cli.StringFlag{Name: "font", Usage: "UTF-8 TTF `FILE` for non-Latin text"},
		},
		Action: func(c *cli.Context) error {
			out := c.Args().First()
			if out == "" {
				return cli.Exit("missing output file", 2)
			}
			g, cleanup, err := e.buildGame(c.Context, false)
			defer cleanup()
			if err != nil {
				return err
			}
			if err := g.Load(c.Context, c.String("slot")); err != nil {
				return err
			}
			tr, err := g.Transcript()
			if err != nil {
				return err
			}
			if err := export.ExportTranscriptPDF(out, tr, export.TranscriptOptions{FontPath: c.String("font"), Author: "gonovel"}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "wrote %s\n", out)
			return nil
		},
	}
}

func savesCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "saves",
		Usage: "list save slots",
		Action: func(c *cli.Context) error {
			st, err := storage.Open(c.Context, e.cfg.Storage, dataDir())
			if err != nil {
				return err
			}
			defer st.Close()
			ls, ok := st.(storage.Lister)
			if !ok {
				return errors.New("store cannot list slots")
			}
			slots, err := ls.Slots(c.Context)
			if err != nil {
				return err
			}
			for _, s := range slots {
				snap, err := st.Load(c.Context, s)
				if err != nil || snap == nil {
					_, _ = fmt.Fprintf(c.App.Writer, "%-12s (unreadable)\n", s)
					continue
				}
				_, _ = fmt.Fprintf(c.App.Writer, "%-12s %s line %d\n", s, snap.EpisodeID, snap.ScriptIndex)
			}
			return nil
		},
	}
}

func configCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect and edit settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the effective configuration",
				Action: func(c *cli.Context) error {
					path, _ := config.ConfigPath()
					data, err := yaml.Marshal(e.cfg)
					if err != nil {
						return err
					}
					w := c.App.Writer
					_, _ = fmt.Fprintf(w, "# %s\n%s", path, data)
					for _, k := range config.Keys() {
						if name, ok := config.EnvOverrideFor(k); ok {
							_, _ = fmt.Fprintf(w, "# %s overridden by %s\n", k, name)
						}
					}
					key := "not set"
					if e.apiKey != "" {
						key = "set"
					}
					_, _ = fmt.Fprintf(w, "# api key: %s\n", key)
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "write the default configuration file",
				Action: func(c *cli.Context) error {
					path, err := config.ConfigPath()
					if err != nil {
						return err
					}
					if _, err := os.Stat(path); err == nil {
						return cli.Exit(path+" already exists", 1)
					}
					if err := config.Save(config.Defaults(), ""); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
					return nil
				},
			},
			{
				Name:      "set-key",
				Usage:     "store the generator API key in the OS keyring",
				ArgsUsage: "KEY",
				Action: func(c *cli.Context) error {
					key := strings.TrimSpace(c.Args().First())
					if key == "" {
						return cli.Exit("missing key", 2)
					}
					return config.SetAPIKey(key)
				},
			},
			{
				Name:  "forget-key",
				Usage: "remove the stored API key",
				Action: func(c *cli.Context) error {
					return config.ForgetAPIKey()
				},
			},
		},
	}
}
