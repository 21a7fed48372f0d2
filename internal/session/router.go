/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"log/slog"
	"sync"

	"gonovel/internal/dialogue"
	applog "gonovel/internal/log"
)

// Scene tags the session knows about.
const (
	SceneTitle   = dialogue.DefaultScene
	SceneComment = "comment"
)

// SceneRouter dispatches scene transitions to registered handlers.
// Unknown tags go to the title scene.
type SceneRouter struct {
	mu       sync.Mutex
	handlers map[string]func(dialogue.Transition)
	current  dialogue.Transition
	log      *slog.Logger
}

func NewSceneRouter(l *slog.Logger) *SceneRouter {
	if l == nil {
		l = applog.WithComponent("router")
	}
	return &SceneRouter{handlers: map[string]func(dialogue.Transition){}, log: l, current: dialogue.Transition{Tag: SceneTitle}}
}

// Handle registers fn for tag, replacing any previous handler.
func (r *SceneRouter) Handle(tag string, fn func(dialogue.Transition)) {
	r.mu.Lock()
	r.handlers[tag] = fn
	r.mu.Unlock()
}

// Route implements dialogue.Router.
func (r *SceneRouter) Route(t dialogue.Transition) {
	r.mu.Lock()
	fn, ok := r.handlers[t.Tag]
	if !ok && t.Tag != SceneTitle {
		r.log.Warn("unknown scene, routing to title", slog.String("tag", t.Tag))
		t = dialogue.Transition{Tag: SceneTitle}
		fn = r.handlers[SceneTitle]
	}
	r.current = t
	r.mu.Unlock()
	// handlers may route again
	if fn != nil {
		fn(t)
	}
}

// Current returns the last routed transition.
func (r *SceneRouter) Current() dialogue.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// set records a scene without running its handler, as after a restore.
func (r *SceneRouter) set(t dialogue.Transition) {
	r.mu.Lock()
	r.current = t
	r.mu.Unlock()
}
