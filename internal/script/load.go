/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed episode.schema.json
var episodeSchema []byte

// ErrInvalidScript wraps schema violations found while loading.
var ErrInvalidScript = errors.New("invalid script")

// Format names a structured script encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// FormatFor guesses the format from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// LoadFile reads an episode from disk. Structured files are validated
// against the embedded schema; text files go through Parse.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	f := FormatFor(path)
	if f == FormatText {
		s, errs := Parse(string(data))
		if len(errs) > 0 {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScript, path, errs[0])
		}
		if s.ID == "" {
			s.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return &s, nil
	}
	s, err := Decode(data, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Decode validates and decodes a structured script document.
func Decode(data []byte, f Format) (*Script, error) {
	var generic any
	switch f {
	case FormatJSON:
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("decode: unsupported format %q", f)
	}
	if err := validateSchema(generic); err != nil {
		return nil, err
	}

	var s Script
	var err error
	if f == FormatJSON {
		err = json.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	return &s, nil
}

func validateSchema(doc any) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(episodeSchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidScript, strings.Join(msgs, "; "))
}
