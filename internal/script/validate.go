/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "fmt"

// Validate reports structural problems that would make the interpreter
// fall back or stall: duplicate or empty ids, unknown types, choice lines
// without options, dangling references and unconditional nextId loops.
// Node positions are reported as Error.Line.
func Validate(s *Script) []Error {
	var errs []Error
	if s == nil {
		return []Error{{Message: "script is nil"}}
	}
	seen := make(map[ID]int, len(s.Lines))
	for i, ln := range s.Lines {
		if ln.ID == "" {
			errs = append(errs, Error{Line: i, Message: "line has no id"})
		} else if prev, dup := seen[ln.ID]; dup {
			errs = append(errs, Error{Line: i, Message: fmt.Sprintf("duplicate id %q (first at %d)", ln.ID, prev)})
		} else {
			seen[ln.ID] = i
		}
		if !ln.Type.Valid() {
			errs = append(errs, Error{Line: i, Message: fmt.Sprintf("unknown line type %q", ln.Type)})
		}
		if ln.Type == LineChoice && len(ln.Choices) == 0 {
			errs = append(errs, Error{Line: i, Message: "choice line has no choices"})
		}
		if ln.Condition != nil {
			if ln.Condition.Flag == "" {
				errs = append(errs, Error{Line: i, Message: "condition without flag"})
			}
			if !ln.Condition.Expected.IsValid() {
				errs = append(errs, Error{Line: i, Message: "condition without a supported expected value"})
			}
		}
	}
	for i, ln := range s.Lines {
		if ln.NextID != "" {
			if _, ok := seen[ln.NextID]; !ok {
				errs = append(errs, Error{Line: i, Message: fmt.Sprintf("nextId %q does not resolve", ln.NextID)})
			}
		}
		choiceIDs := map[ID]bool{}
		for _, c := range ln.Choices {
			if choiceIDs[c.ID] {
				errs = append(errs, Error{Line: i, Message: fmt.Sprintf("duplicate choice id %q", c.ID)})
			}
			choiceIDs[c.ID] = true
			if c.NextID == "" {
				continue
			}
			if _, ok := seen[c.NextID]; !ok {
				errs = append(errs, Error{Line: i, Message: fmt.Sprintf("choice %q nextId %q does not resolve", c.ID, c.NextID)})
			}
		}
	}
	errs = append(errs, findLoops(s)...)
	return errs
}

// findLoops follows the deterministic successor of every plain node (no
// choices, no scene tag) and reports paths that come back on themselves.
func findLoops(s *Script) []Error {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, len(s.Lines))
	var errs []Error
	for start := range s.Lines {
		var path []int
		i := start
		for i >= 0 && state[i] == unvisited {
			ln := s.Lines[i]
			if ln.Type == LineChoice || ln.NextScene != "" {
				break
			}
			state[i] = onPath
			path = append(path, i)
			i = ResolveNext(s, i, "")
		}
		if i >= 0 && state[i] == onPath {
			errs = append(errs, Error{Line: i, Message: fmt.Sprintf("unconditional loop through id %q", s.Lines[i].ID)})
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return errs
}
