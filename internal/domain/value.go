/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedValue is returned when a flag or condition value is not a
// string, number or boolean.
var ErrUnsupportedValue = errors.New("unsupported value type")

// Kind enumerates the supported primitive value types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a closed tagged union of the primitive values flags and
// conditions can hold. The zero Value is invalid and equal to nothing.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
}

func String(s string) Value   { return Value{kind: KindString, s: s} }
func Number(n float64) Value  { return Value{kind: KindNumber, n: n} }
func Int(n int) Value         { return Value{kind: KindNumber, n: float64(n)} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Equal reports strict equality: same kind and same value. "1" and 1 differ.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	default:
		return false
	}
}

// String renders the value for display and prompts.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}

// FromAny converts a decoded JSON/YAML scalar into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(t), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrUnsupportedValue)
		}
		return json.Marshal(v.n)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("%w: invalid", ErrUnsupportedValue)
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	out, err := FromAny(x)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case KindString:
		return v.s, nil
	case KindNumber:
		return v.n, nil
	case KindBool:
		return v.b, nil
	default:
		return nil, fmt.Errorf("%w: invalid", ErrUnsupportedValue)
	}
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: yaml node kind %d at line %d", ErrUnsupportedValue, node.Kind, node.Line)
	}
	switch node.ShortTag() {
	case "!!str":
		*v = String(node.Value)
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = Number(f)
	default:
		return fmt.Errorf("%w: yaml tag %s at line %d", ErrUnsupportedValue, node.ShortTag(), node.Line)
	}
	return nil
}

// Flags is the game flag store. Keys may be overwritten but never removed.
type Flags map[string]Value

// Get returns the value stored under key.
func (f Flags) Get(key string) (Value, bool) {
	v, ok := f[key]
	return v, ok
}

// Set stores v under key.
func (f Flags) Set(key string, v Value) { f[key] = v }

// Clone returns an independent copy, never nil.
func (f Flags) Clone() Flags {
	out := make(Flags, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
