/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "gonovel/internal/domain"

// Line returns the node at index i; ok is false past either end.
func (s *Script) Line(i int) (Line, bool) {
	if s == nil || i < 0 || i >= len(s.Lines) {
		return Line{}, false
	}
	return s.Lines[i], true
}

// Len returns the number of nodes.
func (s *Script) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Lines)
}

// IndexOf linearly searches for the node with the given id.
func (s *Script) IndexOf(id ID) int {
	if s == nil || id == "" {
		return NotFound
	}
	for i := range s.Lines {
		if s.Lines[i].ID == id {
			return i
		}
	}
	return NotFound
}

// ResolveNext returns the index following from.
//  1. explicit, when given, is looked up by id.
//  2. otherwise the line's own NextID is looked up by id.
//  3. otherwise from+1 when from is not the last index.
//  4. otherwise NotFound (end of script).
//
// An id that does not resolve yields NotFound; callers warn and decide
// how to recover.
func ResolveNext(s *Script, from int, explicit ID) int {
	if explicit != "" {
		return s.IndexOf(explicit)
	}
	line, ok := s.Line(from)
	if !ok {
		return NotFound
	}
	if line.NextID != "" {
		return s.IndexOf(line.NextID)
	}
	if from < s.Len()-1 {
		return from + 1
	}
	return NotFound
}

// ResolveDisplayText returns AltText iff the line carries a condition whose
// flag strictly equals the expected value, Text otherwise.
func ResolveDisplayText(line Line, flags domain.Flags) string {
	if line.Condition != nil {
		if v, ok := flags.Get(line.Condition.Flag); ok && v.Equal(line.Condition.Expected) {
			return line.AltText
		}
	}
	return line.Text
}
