// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lexicon

import (
	"embed"
	"errors"
)

//go:embed data/*.yaml
var datasets embed.FS

// ErrInvalidDataset indicates a lookup dataset could not be parsed.
var ErrInvalidDataset = errors.New("invalid lexicon dataset")

// Lexicon bundles the static lookup tables used by the query parser and the
// searchable-text builder.
type Lexicon struct {
	Geo      *GeoTable
	Causes   *CauseTable
	OrgTypes *OrgTypeTable
}

// Load builds the tables from the datasets compiled into the binary.
// Callers build one Lexicon at startup and pass it to the components that need it.
func Load() (*Lexicon, error) {
	states, err := datasets.ReadFile("data/states.yaml")
	if err != nil {
		return nil, err
	}
	ntee, err := datasets.ReadFile("data/ntee.yaml")
	if err != nil {
		return nil, err
	}
	orgTypes, err := datasets.ReadFile("data/orgtypes.yaml")
	if err != nil {
		return nil, err
	}
	return Parse(states, ntee, orgTypes)
}

// MustLoad is like Load but panics on error.
func MustLoad() *Lexicon {
	lex, err := Load()
	if err != nil {
		panic(err)
	}
	return lex
}

// Parse builds a Lexicon from raw YAML datasets.
func Parse(states, ntee, orgTypes []byte) (*Lexicon, error) {
	geo, err := ParseStatesYAML(states)
	if err != nil {
		return nil, err
	}
	causes, err := ParseNTEEYAML(ntee)
	if err != nil {
		return nil, err
	}
	types, err := ParseOrgTypesYAML(orgTypes)
	if err != nil {
		return nil, err
	}
	return &Lexicon{Geo: geo, Causes: causes, OrgTypes: types}, nil
}
