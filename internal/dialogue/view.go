/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import "gonovel/internal/script"

// ChoiceView is one selectable option as presented to the player.
type ChoiceView struct {
	ID   script.ID
	Text string
}

// View is the renderable form of the current line.
type View struct {
	State     State
	Index     int
	LineID    script.ID
	Type      script.LineType
	Character string
	Text      string
	Choices   []ChoiceView
	Scene     Transition
}

// View returns the current line with conditional text resolved against the
// flags and passed through the translator. Ended and Idle views carry no line.
func (it *Interpreter) View() View {
	v := View{State: it.state, Index: it.index, Scene: it.scene}
	if it.state == Ended || it.state == Idle {
		return v
	}
	ln, ok := it.script.Line(it.index)
	if !ok {
		return v
	}
	v.LineID = ln.ID
	v.Type = ln.Type
	if ln.Character != "" {
		v.Character = it.tr.Translate(ln.Character)
	}
	if text := script.ResolveDisplayText(ln, it.flags); text != "" {
		v.Text = it.tr.Translate(text)
	}
	if it.state == AwaitingChoice {
		for _, c := range ln.Choices {
			v.Choices = append(v.Choices, ChoiceView{ID: c.ID, Text: it.tr.Translate(c.Text)})
		}
	}
	return v
}
