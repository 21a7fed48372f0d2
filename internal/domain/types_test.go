/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestValueStrictEquality(t *testing.T) {
	cases := []struct {
		a, b Value
		want bool
	}{
		{String("1"), Int(1), false},
		{Int(1), Number(1.0), true},
		{Bool(true), String("true"), false},
		{String("yes"), String("yes"), true},
		{Bool(false), Bool(false), true},
		{Value{}, Value{}, false},
	}
	for i, c := range cases {
		if got := c.a.Equal(c.b); got != c.want {
			t.Fatalf("case %d: %v.Equal(%v) = %v, want %v", i, c.a, c.b, got, c.want)
		}
	}
}

func TestValueJSONKeepsKinds(t *testing.T) {
	in := Flags{"choice_3": String("b"), "met_editor": Bool(true), "score": Int(7)}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Flags
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for k, v := range in {
		if !out[k].Equal(v) {
			t.Fatalf("flag %s: got %v (%s), want %v (%s)", k, out[k], out[k].Kind(), v, v.Kind())
		}
	}
}

func TestValueRejectsCompositeTypes(t *testing.T) {
	var v Value
	for _, raw := range []string{`{"a":1}`, `[1,2]`, `null`} {
		if err := json.Unmarshal([]byte(raw), &v); !errors.Is(err, ErrUnsupportedValue) {
			t.Fatalf("json %s: expected ErrUnsupportedValue, got %v", raw, err)
		}
	}
	var holder struct {
		V Value `yaml:"v"`
	}
	if err := yaml.Unmarshal([]byte("v: {a: 1}\n"), &holder); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("yaml mapping: expected ErrUnsupportedValue, got %v", err)
	}
}

func TestValueYAMLTags(t *testing.T) {
	var holder struct {
		S Value `yaml:"s"`
		Q Value `yaml:"q"`
		N Value `yaml:"n"`
		B Value `yaml:"b"`
	}
	src := "s: hello\nq: \"1\"\nn: 1\nb: true\n"
	if err := yaml.Unmarshal([]byte(src), &holder); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if holder.Q.Kind() != KindString || holder.N.Kind() != KindNumber || holder.B.Kind() != KindBool || holder.S.Kind() != KindString {
		t.Fatalf("unexpected kinds: %+v", holder)
	}
	if holder.Q.Equal(holder.N) {
		t.Fatalf(`"1" must not equal 1`)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	in := Snapshot{
		ScriptIndex:       12,
		GameFlags:         Flags{"choice_intro": String("calm"), "visits": Int(2)},
		EpisodeID:         "ep1",
		SceneProgress:     "comment",
		MissionID:         "m1",
		RemainingAttempts: 2,
		ArticleLikes:      4,
		ArticleDislikes:   1,
		Reacted:           []string{"like"},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Snapshot
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out, cmp.Comparer(func(a, b Value) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestGoalThresholdDefault(t *testing.T) {
	if got := (Goal{}).Threshold(); got != DefaultPositiveThreshold {
		t.Fatalf("default threshold = %d", got)
	}
	seventy := 70
	if got := (Goal{PositiveThreshold: &seventy}).Threshold(); got != 70 {
		t.Fatalf("threshold = %d, want 70", got)
	}
}

func TestDisplayIP(t *testing.T) {
	c := Comment{IP: "123.456.78.9", CreatedAt: time.Now()}
	if got := c.DisplayIP(); got != "123.456" {
		t.Fatalf("DisplayIP = %q", got)
	}
	if got := (Comment{IP: "local"}).DisplayIP(); got != "local" {
		t.Fatalf("DisplayIP without dots = %q", got)
	}
}
