/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gonovel/internal/domain"
)

var (
	reTitle     = regexp.MustCompile(`^#\s*(.*)$`)
	reLineID    = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)
	reNext      = regexp.MustCompile(`^(.*?)\s*->\s*(\S+)\s*$`)
	reChoice    = regexp.MustCompile(`^\?\s*(.*)$`)
	reOption    = regexp.MustCompile(`^\*\s*([^:]+?)\s*:\s*(.*)$`)
	reScene     = regexp.MustCompile(`^=>\s*(\S+)(.*)$`)
	rePayload   = regexp.MustCompile(`^([A-Za-z0-9_\-]+)=(\S+)$`)
	reCondition = regexp.MustCompile(`^\|\s*([^=:]+?)\s*=\s*("[^"]*"|[^:]+?)\s*:\s*(.*)$`)
	reBGM       = regexp.MustCompile(`^~\s*(\S+)\s*$`)
	reName      = regexp.MustCompile(`^(\(?[\p{L}\p{N}_\-.']{1,32}\)?)\s*:\s*(.*)$`)
)

// Parse reads the plain-text episode format:
//
//	# Title                          script title
//	[id] NAME: text -> target        dialogue; [id] and "-> target" are optional
//	NARRATOR: text                   narrator line (also NARRATION:, or bare text)
//	MONOLOGUE: text / (NAME): text   monologue
//	? NAME: prompt                   choice line, followed by options:
//	  * choiceId: text -> target
//	=> tag key=value ...             scene transition with payload
//	| flag = value: alt text         condition and alt text for the previous line
//	~ track[@level] | stop           music cue for the next line
//	; note                           ignored
//
// Lines indented by two or more spaces continue the previous text.
// Lines without [id] get "L<source line>" ids.
func Parse(input string) (Script, []Error) {
	s := Script{Lines: []Line{}}
	var errs []Error

	scanner := bufio.NewScanner(strings.NewReader(input))
	lineNo := 0
	last := -1 // index into s.Lines of the line continuations and conditions attach to
	pendingBGM := ""

	add := func(ln Line) {
		if pendingBGM != "" {
			ln.BGM = pendingBGM
			pendingBGM = ""
		}
		s.Lines = append(s.Lines, ln)
		last = len(s.Lines) - 1
	}

	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r\n")
		trim := strings.TrimSpace(raw)
		if trim == "" {
			continue
		}

		// options and conditions may be indented; check them before continuations
		if m := reOption.FindStringSubmatch(trim); m != nil {
			if last < 0 || s.Lines[last].Type != LineChoice {
				errs = append(errs, Error{Line: lineNo, Column: 1, Message: "choice option without a choice line"})
				continue
			}
			text, next := splitNext(m[2])
			s.Lines[last].Choices = append(s.Lines[last].Choices, Choice{ID: ID(strings.TrimSpace(m[1])), Text: text, NextID: next})
			continue
		}
		if m := reCondition.FindStringSubmatch(trim); m != nil {
			if last < 0 {
				errs = append(errs, Error{Line: lineNo, Column: 1, Message: "condition without a preceding line"})
				continue
			}
			s.Lines[last].Condition = &Condition{Flag: strings.TrimSpace(m[1]), Expected: parseScalar(m[2])}
			s.Lines[last].AltText = strings.TrimSpace(m[3])
			continue
		}
		if strings.HasPrefix(raw, "  ") && last >= 0 && s.Lines[last].NextScene == "" {
			cont, next := splitNext(trim)
			if s.Lines[last].Text == "" {
				s.Lines[last].Text = cont
			} else {
				s.Lines[last].Text += "\n" + cont
			}
			if next != "" {
				s.Lines[last].NextID = next
			}
			continue
		}

		if strings.HasPrefix(trim, ";") {
			continue
		}
		if m := reTitle.FindStringSubmatch(trim); m != nil {
			s.Title = strings.TrimSpace(m[1])
			continue
		}
		if m := reBGM.FindStringSubmatch(trim); m != nil {
			pendingBGM = m[1]
			continue
		}

		id := ID("L" + strconv.Itoa(lineNo))
		body := trim
		if m := reLineID.FindStringSubmatch(trim); m != nil {
			id = ID(strings.TrimSpace(m[1]))
			body = m[2]
		}

		if m := reScene.FindStringSubmatch(body); m != nil {
			payload, perr := parsePayload(m[2])
			if perr != "" {
				errs = append(errs, Error{Line: lineNo, Column: 1, Message: perr})
			}
			add(Line{ID: id, Type: LineNarrator, NextScene: m[1], Payload: payload})
			continue
		}

		typ := LineDialogue
		if m := reChoice.FindStringSubmatch(body); m != nil {
			typ = LineChoice
			body = m[1]
		}
		text, next := splitNext(body)
		ln := Line{ID: id, Type: typ, NextID: next}
		if m := reName.FindStringSubmatch(text); m != nil {
			name := strings.TrimSpace(m[1])
			ln.Text = strings.TrimSpace(m[2])
			switch upper := strings.ToUpper(name); {
			case upper == "NARRATOR" || upper == "NARRATION":
				if typ != LineChoice {
					ln.Type = LineNarrator
				}
			case upper == "MONOLOGUE":
				if typ != LineChoice {
					ln.Type = LineMonologue
				}
			case strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")"):
				ln.Character = strings.TrimSpace(name[1 : len(name)-1])
				if typ != LineChoice {
					ln.Type = LineMonologue
				}
			default:
				ln.Character = name
			}
		} else {
			ln.Text = text
			if typ != LineChoice {
				ln.Type = LineNarrator
			}
		}
		add(ln)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, Error{Line: lineNo, Column: 1, Message: err.Error()})
	}
	if pendingBGM != "" {
		errs = append(errs, Error{Line: lineNo, Message: fmt.Sprintf("music cue %q has no following line", pendingBGM)})
	}
	return s, errs
}

func splitNext(s string) (string, ID) {
	if m := reNext.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), ID(m[2])
	}
	return strings.TrimSpace(s), ""
}

func parsePayload(rest string) (map[string]string, string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, ""
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		m := rePayload.FindStringSubmatch(f)
		if m == nil {
			return out, fmt.Sprintf("malformed scene payload %q, want key=value", f)
		}
		out[m[1]] = m[2]
	}
	return out, ""
}

// parseScalar reads a condition value: true/false, a number, a quoted
// string or a bare word.
func parseScalar(s string) domain.Value {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return domain.String(s[1 : len(s)-1])
	}
	switch s {
	case "true":
		return domain.Bool(true)
	case "false":
		return domain.Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return domain.Number(f)
	}
	return domain.String(s)
}
