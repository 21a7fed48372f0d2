/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crowd

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gonovel/internal/domain"
)

func TestParseLineGrammars(t *testing.T) {
	cases := []struct {
		line string
		want ParsedLine
	}{
		{"연갤러(123.456): ㅋㅋ 이게 맞지",
			ParsedLine{Rule: TopLevel, Nickname: "연갤러", IP: "123.456", Content: "ㅋㅋ 이게 맞지"}},
		{"-> [abc-1] 반박러(987.654): 뭔 소리임?",
			ParsedLine{Rule: ReplyArrow, ParentRef: "abc-1", Nickname: "반박러", IP: "987.654", Content: "뭔 소리임?"}},
		{"동조러(11.22): -> [ID: abc-2] 맞말임",
			ParsedLine{Rule: ReplyLeading, ParentRef: "abc-2", Nickname: "동조러", IP: "11.22", Content: "맞말임"}},
		{"-> [ID:xyz] a(1.2): b(3.4): nested prefix",
			ParsedLine{Rule: ReplyArrow, ParentRef: "xyz", Nickname: "a", IP: "1.2", Content: "nested prefix"}},
		{"그냥 아무말",
			ParsedLine{Rule: Fallback, Nickname: DefaultNickname, IP: DefaultIP, Content: "그냥 아무말"}},
		{"(): empty author",
			ParsedLine{Rule: Fallback, Nickname: DefaultNickname, IP: DefaultIP, Content: "(): empty author"}},
		{"ㅇㅇ(): 익명",
			ParsedLine{Rule: TopLevel, Nickname: "ㅇㅇ", IP: DefaultIP, Content: "익명"}},
		{"봇(1.1): 링크 확인 (3f2a9c1e-8b7d-4e6f-a5b4-c3d2e1f0a9b8)",
			ParsedLine{Rule: TopLevel, Nickname: "봇", IP: "1.1", Content: "링크 확인"}},
	}
	for _, c := range cases {
		got := Parse(c.line)
		require.Len(t, got.Lines, 1, c.line)
		require.Equal(t, c.want, got.Lines[0], c.line)
		require.Nil(t, got.Delta, c.line)
	}
}

func TestParseDelta(t *testing.T) {
	raw := "a(1.1): one\n\n-> [x] b(2.2): two\n{\"added_likes\": 4, \"added_dislikes\": 1}\n\n"
	got := Parse(raw)
	require.Len(t, got.Lines, 2)
	require.NotNil(t, got.Delta)
	require.Equal(t, Delta{AddedLikes: 4, AddedDislikes: 1}, *got.Delta)

	repaired := Parse("a(1.1): one\n{\"added_likes\": 2, \"added_dislikes\": 3")
	require.NotNil(t, repaired.Delta)
	require.Equal(t, 5, repaired.Delta.Total())
	require.Len(t, repaired.Lines, 1)

	fenced := Parse("```\na(1.1): one\n{\"added_likes\": -2, \"added_dislikes\": 1.6}\n```")
	require.NotNil(t, fenced.Delta)
	require.Equal(t, Delta{AddedLikes: 0, AddedDislikes: 2}, *fenced.Delta)

	// a JSON line in the middle is just content
	middle := Parse("{\"added_likes\": 1, \"added_dislikes\": 1}\na(1.1): last")
	require.Nil(t, middle.Delta)
	require.Len(t, middle.Lines, 2)
	require.Equal(t, Fallback, middle.Lines[0].Rule)

	noFields := Parse("a(1.1): one\n{\"likes\": 1}")
	require.Nil(t, noFields.Delta)
	require.Len(t, noFields.Lines, 2)
}

func TestDeltaCap(t *testing.T) {
	require.Equal(t, Delta{AddedLikes: 2, AddedDislikes: 1}, Delta{AddedLikes: 2, AddedDislikes: 1}.Cap(3))
	require.Equal(t, Delta{AddedLikes: 3}, Delta{AddedLikes: 5}.Cap(3))
	capped := Delta{AddedLikes: 30, AddedDislikes: 10}.Cap(6)
	require.Equal(t, 6, capped.Total())
	require.Equal(t, 4, capped.AddedLikes)
	require.Equal(t, Delta{}, Delta{AddedLikes: 1}.Cap(0))
}

func TestParsedComments(t *testing.T) {
	n := 0
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	p := Parse("연갤러(123.456): ㅋㅋ 이게 맞지\n-> [abc-1] 반박러(987.654): 뭔 소리임?")
	cs := p.Comments(func() string { n++; return "g" + string(rune('0'+n)) }, now)
	require.Len(t, cs, 2)
	require.Equal(t, domain.Comment{ID: "g1", Nickname: "연갤러", IP: "123.456", Content: "ㅋㅋ 이게 맞지", CreatedAt: now}, cs[0])
	require.True(t, cs[1].IsReply)
	require.Equal(t, "abc-1", cs[1].ParentID)
	require.False(t, cs[1].IsPlayer)
}

func TestBuildPrompt(t *testing.T) {
	last := domain.Comment{ID: "p1", Nickname: "나", IP: "10.20.30.40", Content: "기사 좀 읽고 말해라", IsPlayer: true}
	in := PromptInput{
		ArticleTitle:   "시의회 예산 통과",
		ArticleContent: "찬성 5 반대 4",
		Thread: []domain.Comment{
			{ID: "c1", Nickname: "시민", IP: "211.234.1.9", Content: "세금 아깝다"},
			last,
			{ID: "c2", Nickname: "반박", IP: "1.2.3.4", Content: "ㄹㅇ", IsReply: true, ParentID: "c1"},
		},
		Likes:      3,
		Dislikes:   7,
		LastPlayer: &last,
	}
	p := BuildPrompt(in)
	for _, want := range []string{
		"시의회 예산 통과",
		"찬성 5 반대 4",
		"[c1] 시민(211.234): 세금 아깝다",
		"[p1] 나(10.20): 기사 좀 읽고 말해라",
		"3 likes, 7 dislikes",
		"between 8 and 10",
		"-> [parentId] nickname(ip): content",
		`{"added_likes": <int>, "added_dislikes": <int>}`,
		"must not exceed 4.",
		"most recent comment written by the player",
	} {
		require.Contains(t, p, want)
	}
	require.Equal(t, 0, MaxAddedReactions(0))
	require.Equal(t, 1, MaxAddedReactions(1))
	require.Equal(t, 15, MaxAddedReactions(10))

	empty := BuildPrompt(PromptInput{ArticleTitle: "t"})
	require.Contains(t, empty, "(no comments yet)")
	require.False(t, strings.Contains(empty, "most recent comment written by the player"))
}

func TestBuildFeedbackPrompt(t *testing.T) {
	p := BuildFeedbackPrompt(FeedbackInput{
		MissionTitle:   "Budget",
		ArticleTitle:   "Council approves budget",
		Opinion:        domain.Opinion{Positive: 60, Negative: 40},
		Threshold:      70,
		PlayerComments: []string{"read the article"},
	})
	require.Contains(t, p, "the goal was missed")
	require.Contains(t, p, "60% positive, 40% negative (goal: 70% positive)")
	require.Contains(t, p, "- read the article")
}
