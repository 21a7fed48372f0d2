/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the shared data model of the engine: missions, the
// public-opinion split, comments and the persisted save snapshot. Script
// nodes live in internal/script, run state in the engines that own it.

import (
	"strings"
	"time"
)

// DefaultPositiveThreshold applies when a mission does not configure a goal.
// It makes the mission effectively unwinnable, which is the observed behavior.
const DefaultPositiveThreshold = 100

// Opinion is the positive/negative public-opinion split in percent.
// Both fields are integers and sum to 100.
type Opinion struct {
	Positive int `json:"positive" yaml:"positive"`
	Negative int `json:"negative" yaml:"negative"`
}

// Goal describes what a mission requires to succeed.
type Goal struct {
	PositiveThreshold *int `json:"positiveThreshold,omitempty" yaml:"positiveThreshold,omitempty"`
}

// Threshold returns the configured positive threshold or DefaultPositiveThreshold.
func (g Goal) Threshold() int {
	if g.PositiveThreshold == nil {
		return DefaultPositiveThreshold
	}
	return *g.PositiveThreshold
}

// Mission is one comment-mission gameplay unit. It is immutable once loaded.
type Mission struct {
	ID              string    `json:"id" yaml:"id"`
	Title           string    `json:"title" yaml:"title"`
	Goal            Goal      `json:"goal" yaml:"goal"`
	TotalAttempts   int       `json:"totalAttempts" yaml:"totalAttempts"`
	ArticleTitle    string    `json:"articleTitle" yaml:"articleTitle"`
	ArticleContent  string    `json:"articleContent" yaml:"articleContent"`
	ArticleImage    string    `json:"articleImage,omitempty" yaml:"articleImage,omitempty"`
	InitialOpinion  Opinion   `json:"initialOpinion" yaml:"initialOpinion"`
	InitialLikes    int       `json:"initialLikes" yaml:"initialLikes"`
	InitialDislikes int       `json:"initialDislikes" yaml:"initialDislikes"`
	InitialComments []Comment `json:"initialComments,omitempty" yaml:"initialComments,omitempty"`
}

// Comment is a single entry of a mission thread. Replies reference their
// parent through ParentID; the thread itself is a flat ordered list.
type Comment struct {
	ID        string    `json:"id" yaml:"id"`
	Nickname  string    `json:"nickname" yaml:"nickname"`
	IP        string    `json:"ip" yaml:"ip"`
	Content   string    `json:"content" yaml:"content"`
	Likes     int       `json:"likes" yaml:"likes"`
	IsPlayer  bool      `json:"is_player" yaml:"is_player"`
	IsReply   bool      `json:"isReply" yaml:"isReply"`
	ParentID  string    `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// DisplayIP returns the first two dot-separated segments of the provenance tag.
func (c Comment) DisplayIP() string {
	parts := strings.SplitN(c.IP, ".", 3)
	if len(parts) < 2 {
		return c.IP
	}
	return parts[0] + "." + parts[1]
}

// Author identifies who writes a comment.
type Author struct {
	Nickname string
	IP       string
	IsPlayer bool
}

// Snapshot is the persisted game state. Every field round-trips exactly.
type Snapshot struct {
	ScriptIndex       int    `json:"scriptIndex"`
	GameFlags         Flags  `json:"gameFlags"`
	EpisodeID         string `json:"episodeId"`
	SceneProgress     string `json:"sceneProgress"`
	MissionID         string `json:"missionId"`
	RemainingAttempts int    `json:"remainingAttempts"`
	// Article reactions of the running mission and the polarities the
	// player already used ("like", "dislike").
	ArticleLikes    int      `json:"articleLikes,omitempty"`
	ArticleDislikes int      `json:"articleDislikes,omitempty"`
	Reacted         []string `json:"reacted,omitempty"`
}
