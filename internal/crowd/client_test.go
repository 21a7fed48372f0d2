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
	"sync"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"

	"gonovel/internal/domain"
	applog "gonovel/internal/log"
)

const sampleResponse = `연갤러(123.456): ㅋㅋ 이게 맞지
-> [c1] 반박러(987.654): 뭔 소리임?
지나가던(55.66): 기사 제목 보소
{"added_likes": 10, "added_dislikes": 2}`

func testClient(g Generator) *Client {
	n := 0
	return NewClient(g, WithLogger(applog.Discard()), WithIDs(func() string { n++; return fmt.Sprintf("g%d", n) }))
}

func input() PromptInput {
	return PromptInput{
		ArticleTitle: "title",
		Thread: []domain.Comment{
			{ID: "c1", Nickname: "a", IP: "1.2.3.4", Content: "first"},
			{ID: "c2", Nickname: "b", IP: "1.2.3.4", Content: "second"},
		},
	}
}

func TestGenerateParsesAndCaps(t *testing.T) {
	var prompt string
	c := testClient(GeneratorFunc(func(_ context.Context, p string) (Response, error) {
		prompt = p
		return Response{Text: sampleResponse}, nil
	}))
	out := c.Generate(context.Background(), input())
	require.NoError(t, out.Err)
	require.Contains(t, prompt, "[c1] a(1.2): first")
	require.Len(t, out.Comments, 3)
	require.Equal(t, "g1", out.Comments[0].ID)
	require.Equal(t, "c1", out.Comments[1].ParentID)
	require.NotNil(t, out.Delta)
	require.True(t, out.Capped)
	require.Equal(t, MaxAddedReactions(2), out.Delta.Total())
	require.False(t, c.Busy())
}

func TestGenerateBlockedLeavesNoResult(t *testing.T) {
	c := testClient(GeneratorFunc(func(context.Context, string) (Response, error) {
		return Response{Blocked: "SAFETY"}, nil
	}))
	out := c.Generate(context.Background(), input())
	require.Empty(t, out.Comments)
	require.Nil(t, out.Delta)
	require.ErrorIs(t, out.Err, ErrBlocked)
	require.Contains(t, out.Err.Error(), "SAFETY")
	var ge *Error
	require.True(t, errors.As(out.Err, &ge))
	require.Equal(t, ReasonBlocked, ge.Reason)
}

func TestGenerateErrorReasons(t *testing.T) {
	cases := []struct {
		name string
		resp Response
		err  error
		want error
	}{
		{"empty", Response{Empty: true}, nil, ErrEmpty},
		{"blank text", Response{Text: "  \n "}, nil, ErrEmpty},
		{"network", Response{}, errors.New("dial tcp: refused"), ErrNetwork},
		{"timeout", Response{}, context.DeadlineExceeded, ErrNetwork},
		{"only delta", Response{Text: `{"added_likes":1,"added_dislikes":1}`}, nil, ErrParse},
	}
	for _, tc := range cases {
		c := testClient(GeneratorFunc(func(context.Context, string) (Response, error) { return tc.resp, tc.err }))
		out := c.Generate(context.Background(), input())
		require.ErrorIs(t, out.Err, tc.want, tc.name)
		require.Empty(t, out.Comments, tc.name)
		require.Nil(t, out.Delta, tc.name)
	}
	timeout := testClient(GeneratorFunc(func(context.Context, string) (Response, error) {
		return Response{}, context.DeadlineExceeded
	}))
	require.ErrorIs(t, timeout.Generate(context.Background(), input()).Err, context.DeadlineExceeded)
}

func TestGenerateRecoversPanics(t *testing.T) {
	c := testClient(GeneratorFunc(func(context.Context, string) (Response, error) {
		panic("boom")
	}))
	out := c.Generate(context.Background(), input())
	require.ErrorIs(t, out.Err, ErrParse)
	require.Empty(t, out.Comments)
	require.False(t, c.Busy(), "gate must be released after a panic")
}

func TestSingleInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := testClient(GeneratorFunc(func(context.Context, string) (Response, error) {
		close(started)
		<-release
		return Response{Text: sampleResponse}, nil
	}))
	var wg sync.WaitGroup
	var first Outcome
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = c.Generate(context.Background(), input())
	}()
	<-started
	require.True(t, c.Busy())
	second := c.Generate(context.Background(), input())
	require.ErrorIs(t, second.Err, ErrBusy)
	_, err := c.Feedback(context.Background(), FeedbackInput{})
	require.ErrorIs(t, err, ErrBusy)
	close(release)
	wg.Wait()
	require.NoError(t, first.Err)
	require.False(t, c.Busy())
}

func TestTimeoutOption(t *testing.T) {
	c := NewClient(GeneratorFunc(func(ctx context.Context, _ string) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}), WithLogger(applog.Discard()), WithTimeout(20*time.Millisecond))
	out := c.Generate(context.Background(), input())
	require.ErrorIs(t, out.Err, ErrNetwork)
	require.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestFeedback(t *testing.T) {
	c := testClient(GeneratorFunc(func(_ context.Context, p string) (Response, error) {
		require.Contains(t, p, "the goal was reached")
		return Response{Text: "  Good work.\n"}, nil
	}))
	text, err := c.Feedback(context.Background(), FeedbackInput{Success: true})
	require.NoError(t, err)
	require.Equal(t, "Good work.", text)

	none := NewClient(nil, WithLogger(applog.Discard()))
	_, err = none.Feedback(context.Background(), FeedbackInput{})
	require.ErrorIs(t, err, ErrNetwork)
}

func TestFromResponse(t *testing.T) {
	require.Equal(t, Response{Empty: true}, fromResponse(nil))
	require.Equal(t, Response{Empty: true}, fromResponse(&genai.GenerateContentResponse{}))

	blocked := &genai.GenerateContentResponse{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}}
	require.Equal(t, Response{Blocked: "SAFETY"}, fromResponse(blocked))

	unsafe := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
	require.Equal(t, Response{Blocked: "SAFETY"}, fromResponse(unsafe))

	ok := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonStop,
		Content:      &genai.Content{Parts: []genai.Part{genai.Text("a(1.1): "), genai.Text("hi")}},
	}}}
	require.Equal(t, Response{Text: "a(1.1): hi"}, fromResponse(ok))

	require.Equal(t, "SAFETY", blockReason(&genai.BlockedError{Candidate: &genai.Candidate{FinishReason: genai.FinishReasonSafety}}))
	require.Equal(t, "BLOCKED", blockReason(&genai.BlockedError{}))
}
