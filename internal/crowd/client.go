/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crowd owns the contract with the text generator: it builds the
// prompt from mission state, parses the reply into comments and a reaction
// delta, and guarantees a single generation in flight.
package crowd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gonovel/internal/domain"
	applog "gonovel/internal/log"
)

// Response is what a Generator produced. Blocked carries the block reason
// (for example "SAFETY"); Empty means no candidate text came back.
type Response struct {
	Text    string
	Blocked string
	Empty   bool
}

// Generator is the text backend. Transport failures are returned as errors.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (Response, error) {
	return f(ctx, prompt)
}

// Reason classifies a failed generation.
type Reason string

const (
	ReasonBlocked Reason = "blocked"
	ReasonEmpty   Reason = "empty"
	ReasonNetwork Reason = "network"
	ReasonBusy    Reason = "busy"
	ReasonParse   Reason = "parse"
)

// Error is a failed generation. errors.Is matches on Reason.
type Error struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "generation " + string(e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrBusy    = &Error{Reason: ReasonBusy, Detail: "a generation is already in progress"}
	ErrBlocked = &Error{Reason: ReasonBlocked}
	ErrEmpty   = &Error{Reason: ReasonEmpty}
	ErrNetwork = &Error{Reason: ReasonNetwork}
	ErrParse   = &Error{Reason: ReasonParse}
)

// Outcome is the result of one generation. On error Comments and Delta are
// empty and callers must not mutate any state.
type Outcome struct {
	Comments []domain.Comment
	Delta    *Delta
	Capped   bool
	Err      error
}

// Client runs generations against a Generator, one at a time.
type Client struct {
	gen      Generator
	log      *slog.Logger
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
	inFlight atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTimeout bounds each generation; zero leaves the context alone.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func WithIDs(gen func() string) Option { return func(c *Client) { c.newID = gen } }

func NewClient(g Generator, opts ...Option) *Client {
	c := &Client{gen: g, log: applog.WithComponent("crowd"), now: time.Now, newID: uuid.NewString}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Busy reports whether a generation is in flight.
func (c *Client) Busy() bool { return c.inFlight.Load() }

// Generate asks the generator for crowd reactions to the current thread.
// It returns ErrBusy without calling the generator while another call is
// running. The delta is capped at MaxAddedReactions for the thread size.
func (c *Client) Generate(ctx context.Context, in PromptInput) (out Outcome) {
	release, err := c.acquire()
	if err != nil {
		return Outcome{Err: err}
	}
	defer release()
	defer c.recoverInto(&out.Err, func() { out = Outcome{Err: out.Err} })

	l := applog.WithOperation(c.log, "generate")
	text, err := c.call(ctx, BuildPrompt(in))
	if err != nil {
		l.Warn("generation failed", slog.Any("err", err))
		return Outcome{Err: err}
	}
	parsed := Parse(text)
	comments := parsed.Comments(c.newID, c.now())
	if len(comments) == 0 {
		err := &Error{Reason: ReasonParse, Detail: "no comment lines in response"}
		l.Warn("generation unusable", slog.Any("err", err))
		return Outcome{Err: err}
	}
	out = Outcome{Comments: comments}
	if parsed.Delta != nil {
		limit := MaxAddedReactions(len(in.Thread))
		d := parsed.Delta.Cap(limit)
		out.Capped = d != *parsed.Delta
		out.Delta = &d
		if out.Capped {
			l.Info("reaction delta capped", slog.Int("requested", parsed.Delta.Total()), slog.Int("limit", limit))
		}
	}
	l.Debug("generation parsed", slog.Int("comments", len(comments)), slog.Bool("delta", out.Delta != nil))
	return out
}

// Feedback asks for a short editor's note on a finished mission. It shares
// the in-flight gate with Generate.
func (c *Client) Feedback(ctx context.Context, in FeedbackInput) (text string, err error) {
	release, err := c.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	defer c.recoverInto(&err, func() { text = "" })

	text, err = c.call(ctx, BuildFeedbackPrompt(in))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) acquire() (func(), error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { c.inFlight.Store(false) }, nil
}

// call runs the generator and classifies its result.
func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	if c.gen == nil {
		return "", &Error{Reason: ReasonNetwork, Detail: "no generator configured"}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.gen.Generate(ctx, prompt)
	switch {
	case err != nil:
		var ge *Error
		if errors.As(err, &ge) {
			return "", ge
		}
		return "", &Error{Reason: ReasonNetwork, Err: err}
	case resp.Blocked != "":
		return "", &Error{Reason: ReasonBlocked, Detail: resp.Blocked}
	case resp.Empty || strings.TrimSpace(resp.Text) == "":
		return "", &Error{Reason: ReasonEmpty, Detail: "no candidates"}
	}
	return resp.Text, nil
}

// recoverInto converts a panic into a parse error after reset has cleared
// any partial result.
func (c *Client) recoverInto(errp *error, reset func()) {
	if r := recover(); r != nil {
		c.log.Error("panic in generation contract", slog.Any("panic", r))
		*errp = &Error{Reason: ReasonParse, Detail: fmt.Sprint(r)}
		reset()
	}
}
