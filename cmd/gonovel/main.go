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
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"gonovel/internal/config"
	applog "gonovel/internal/log"
	"gonovel/internal/telemetry"
	"gonovel/internal/version"
)

// env is the loaded configuration shared by all commands.
type env struct {
	cfg    config.AppConfig
	apiKey string
	log    *slog.Logger
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:    "gonovel",
		Usage:   "play comment-mission visual novels in the terminal",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
				EnvVars: []string{config.EnvConfigPath},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "read environment variables from `FILE` if it exists",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error { return e.load(c) },
		After: func(c *cli.Context) error {
			if t := telemetry.Default(); t != nil {
				t.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			playCommand(e),
			validateCommand(e),
			exportCommand(e),
			savesCommand(e),
			configCommand(e),
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(c.App.Writer, version.String())
					return err
				},
			},
		},
	}
}

func (e *env) load(c *cli.Context) error {
	if f := c.String("env-file"); f != "" {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", f, err)
		}
	}
	if p := c.String("config"); p != "" {
		if err := os.Setenv(config.EnvConfigPath, p); err != nil {
			return err
		}
	}
	cfg, key, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	e.cfg, e.apiKey = cfg, key
	applog.Init(cfg.Logging.Options())
	e.log = applog.WithComponent("cli")

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	telemetry.SetDefault(telemetry.New(tcfg))
	e.log.Debug("start", slog.String("version", version.String()), slog.String("storage", cfg.Storage.Driver))
	return nil
}

func main() {
	e := &env{}
	if err := newApp(e).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
