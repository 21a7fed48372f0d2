/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crowd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	applog "gonovel/internal/log"
)

// DefaultModel is used when GeminiConfig.Model is empty.
const DefaultModel = "gemini-1.5-flash"

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	// RequestsPerMinute limits outgoing calls; 0 disables the limiter.
	RequestsPerMinute int
	Logger            *slog.Logger
}

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewGemini connects to the Gemini API. Close releases the client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}
	model := client.GenerativeModel(name)
	if cfg.Temperature > 0 {
		model.SetTemperature(cfg.Temperature)
	}
	g := &Gemini{client: client, model: model, log: cfg.Logger}
	if g.log == nil {
		g.log = applog.WithComponent("gemini")
	}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return g, nil
}

func (g *Gemini) Close() error { return g.client.Close() }

// Generate sends prompt as a single text part. Safety blocks are reported
// in the Response, not as errors.
func (g *Gemini) Generate(ctx context.Context, prompt string) (Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("gemini: rate limit: %w", err)
		}
	}
	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		reason := blockReason(blocked)
		g.log.Warn("gemini blocked response", slog.String("reason", reason))
		return Response{Blocked: reason}, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("gemini: generate: %w", err)
	}
	out := fromResponse(resp)
	g.log.Debug("gemini response", slog.Duration("took", time.Since(start)), slog.Int("chars", len(out.Text)),
		slog.Bool("empty", out.Empty), slog.String("blocked", out.Blocked))
	return out, nil
}

// fromResponse flattens the first candidate's text parts.
func fromResponse(resp *genai.GenerateContentResponse) Response {
	if resp == nil {
		return Response{Empty: true}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return Response{Blocked: blockReasonName(resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return Response{Empty: true}
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety || cand.FinishReason == genai.FinishReasonRecitation {
		return Response{Blocked: finishReasonName(cand.FinishReason)}
	}
	if cand.Content == nil {
		return Response{Empty: true}
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return Response{Empty: true}
	}
	return Response{Text: b.String()}
}

func blockReason(e *genai.BlockedError) string {
	if e.PromptFeedback != nil && e.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return blockReasonName(e.PromptFeedback.BlockReason)
	}
	if e.Candidate != nil {
		return finishReasonName(e.Candidate.FinishReason)
	}
	return "BLOCKED"
}

func finishReasonName(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonSafety:
		return "SAFETY"
	case genai.FinishReasonRecitation:
		return "RECITATION"
	case genai.FinishReasonOther:
		return "OTHER"
	}
	return strings.ToUpper(strings.TrimPrefix(r.String(), "FinishReason"))
}

func blockReasonName(r genai.BlockReason) string {
	switch r {
	case genai.BlockReasonSafety:
		return "SAFETY"
	case genai.BlockReasonOther:
		return "OTHER"
	}
	return strings.ToUpper(strings.TrimPrefix(r.String(), "BlockReason"))
}
