/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crowd

import (
	_ "embed"
	"strings"
	"text/template"

	"gonovel/internal/domain"
)

// Bounds on the number of lines requested per generation.
const (
	MinLines = 8
	MaxLines = 10
)

var (
	//go:embed prompt.tmpl
	promptText string
	//go:embed feedback.tmpl
	feedbackText string

	promptTmpl   = template.Must(template.New("prompt").Parse(promptText))
	feedbackTmpl = template.Must(template.New("feedback").Parse(feedbackText))
)

// PromptInput is the state a crowd reaction is generated from.
type PromptInput struct {
	ArticleTitle   string
	ArticleContent string
	Thread         []domain.Comment
	Likes          int
	Dislikes       int
	// LastPlayer is the player's most recent comment, if any.
	LastPlayer *domain.Comment
}

// MaxAddedReactions caps the predicted delta at one and a half reactions
// per comment, rounded down.
func MaxAddedReactions(commentCount int) int {
	if commentCount <= 0 {
		return 0
	}
	return commentCount * 3 / 2
}

type promptData struct {
	PromptInput
	MinLines          int
	MaxLines          int
	MaxAddedReactions int
}

// BuildPrompt renders the generation prompt.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	data := promptData{PromptInput: in, MinLines: MinLines, MaxLines: MaxLines, MaxAddedReactions: MaxAddedReactions(len(in.Thread))}
	if err := promptTmpl.Execute(&b, data); err != nil {
		// the template only reads fields that always exist
		panic(err)
	}
	return b.String()
}

// FeedbackInput describes a finished mission for the editor's feedback.
type FeedbackInput struct {
	MissionTitle   string
	ArticleTitle   string
	Success        bool
	Opinion        domain.Opinion
	Threshold      int
	PlayerComments []string
}

// BuildFeedbackPrompt renders the feedback prompt.
func BuildFeedbackPrompt(in FeedbackInput) string {
	var b strings.Builder
	if err := feedbackTmpl.Execute(&b, in); err != nil {
		panic(err)
	}
	return b.String()
}
