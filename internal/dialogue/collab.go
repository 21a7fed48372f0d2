/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Transition is what the interpreter reports to the scene router.
type Transition struct {
	Tag     string
	Payload map[string]string
}

// Router receives scene transitions. Unknown tags are the router's concern.
type Router interface {
	Route(t Transition)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(t Transition)

func (f RouterFunc) Route(t Transition) { f(t) }

// Audio is the fire-and-forget audio collaborator.
type Audio interface {
	Play(track string)
	Stop()
	SetVolume(channel string, level float64)
}

// Translator maps display keys to localized text.
type Translator interface {
	Translate(key string) string
}

// Identity returns every key unchanged.
type Identity struct{}

func (Identity) Translate(key string) string { return key }

// ClampLevel limits a volume level to [0,1].
func ClampLevel(level float64) float64 {
	switch {
	case level < 0:
		return 0
	case level > 1:
		return 1
	}
	return level
}

// LogAudio is an Audio that only records what it was asked to do.
// The terminal player uses it in place of a sound backend.
type LogAudio struct {
	Log     *slog.Logger
	Current string
	Volume  map[string]float64
}

func (a *LogAudio) Play(track string) {
	a.Current = track
	a.logger().Debug("audio play", slog.String("track", track))
}

func (a *LogAudio) Stop() {
	a.logger().Debug("audio stop", slog.String("track", a.Current))
	a.Current = ""
}

func (a *LogAudio) SetVolume(channel string, level float64) {
	if a.Volume == nil {
		a.Volume = map[string]float64{}
	}
	a.Volume[channel] = ClampLevel(level)
	a.logger().Debug("audio volume", slog.String("channel", channel), slog.Float64("level", a.Volume[channel]))
}

func (a *LogAudio) logger() *slog.Logger {
	if a.Log == nil {
		return slog.Default()
	}
	return a.Log
}

// RoutingError reports a scene transition whose required payload is missing.
// The interpreter routes to its default scene instead.
type RoutingError struct {
	Tag     string
	Missing []string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("scene %q: missing payload %s", e.Tag, strings.Join(e.Missing, ", "))
}

func missingKeys(required []string, payload map[string]string) []string {
	var missing []string
	for _, k := range required {
		if strings.TrimSpace(payload[k]) == "" {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}
