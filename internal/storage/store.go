/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"gonovel/internal/domain"
)

var (
	// ErrMalformedSnapshot is returned when stored data cannot be decoded
	// into a snapshot.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrInvalidSlot       = errors.New("invalid slot name")
)

// Store is the persistence collaborator of a game session.
type Store interface {
	Save(ctx context.Context, slot string, s domain.Snapshot) error
	// Load returns nil without error when the slot is empty.
	Load(ctx context.Context, slot string) (*domain.Snapshot, error)
	Close() error
}

// Lister is implemented by stores that can enumerate their slots.
type Lister interface {
	Slots(ctx context.Context) ([]string, error)
}

//go:embed snapshot.schema.json
var snapshotSchema string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(snapshotSchema))
	})
	return schema, schemaErr
}

// checkSlot rejects names that would escape a save directory.
func checkSlot(slot string) error {
	s := strings.TrimSpace(slot)
	if s == "" || s != slot || strings.ContainsAny(s, `/\:`) || s == "." || s == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return nil
}

func encode(s domain.Snapshot) ([]byte, error) {
	if s.GameFlags == nil {
		s.GameFlags = domain.Flags{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// decode validates data against the snapshot schema before unmarshalling.
func decode(data []byte) (*domain.Snapshot, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("snapshot schema: %w", err)
	}
	res, err := sch.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedSnapshot, strings.Join(msgs, "; "))
	}
	var s domain.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if s.GameFlags == nil {
		s.GameFlags = domain.Flags{}
	}
	return &s, nil
}
