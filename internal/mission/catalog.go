/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mission

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"gonovel/internal/domain"
)

//go:embed catalog.schema.json
var catalogSchema []byte

// ErrMissionNotFound is returned by a Source that has no mission with the id.
var ErrMissionNotFound = errors.New("mission not found")

// Source resolves mission ids to definitions.
type Source interface {
	Get(id string) (domain.Mission, error)
}

// Catalog is an in-memory Source.
type Catalog struct {
	missions map[string]domain.Mission
}

type catalogFile struct {
	Missions []domain.Mission `json:"missions" yaml:"missions"`
}

// NewCatalog checks every mission and indexes it by id.
func NewCatalog(ms ...domain.Mission) (*Catalog, error) {
	c := &Catalog{missions: make(map[string]domain.Mission, len(ms))}
	for _, m := range ms {
		if err := Check(m); err != nil {
			return nil, err
		}
		if _, dup := c.missions[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidMission, m.ID)
		}
		c.missions[m.ID] = m
	}
	return c, nil
}

// LoadCatalogFile reads a YAML or JSON document of the form
// {missions: [...]} and validates it against the catalog schema.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read missions: %w", err)
	}
	var generic any
	isJSON := strings.EqualFold(filepath.Ext(path), ".json")
	if isJSON {
		err = json.Unmarshal(data, &generic)
	} else {
		err = yaml.Unmarshal(data, &generic)
	}
	if err != nil {
		return nil, fmt.Errorf("parse missions %s: %w", path, err)
	}
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(catalogSchema), gojsonschema.NewGoLoader(generic))
	if err != nil {
		return nil, fmt.Errorf("schema validate: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidMission, path, strings.Join(msgs, "; "))
	}
	var f catalogFile
	if isJSON {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	return NewCatalog(f.Missions...)
}

// Get returns a copy of the mission so callers cannot alter the catalog.
func (c *Catalog) Get(id string) (domain.Mission, error) {
	m, ok := c.missions[id]
	if !ok {
		return domain.Mission{}, fmt.Errorf("%w: %q", ErrMissionNotFound, id)
	}
	if m.Goal.PositiveThreshold != nil {
		v := *m.Goal.PositiveThreshold
		m.Goal.PositiveThreshold = &v
	}
	m.InitialComments = append([]domain.Comment(nil), m.InitialComments...)
	return m, nil
}

// IDs lists mission ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.missions))
	for id := range c.missions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
