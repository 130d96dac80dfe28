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
	"fmt"
	"strings"

	"github.com/poiesic/donorfinder/core"
	"gopkg.in/yaml.v3"
)

// State is one canonical state token with its surface forms.
type State struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type statesFile struct {
	Ambiguous []string `yaml:"ambiguous"`
	States    []State  `yaml:"states"`
}

// GeoTable maps place names, abbreviations and nicknames to canonical
// state tokens. It is immutable once built.
type GeoTable struct {
	states    map[string]State
	surfaces  map[string]string
	ambiguous map[string]bool
	maxWords  int
}

// ParseStatesYAML builds a GeoTable from YAML.
func ParseStatesYAML(b []byte) (*GeoTable, error) {
	var f statesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: states: %w", ErrInvalidDataset, err)
	}
	if len(f.States) == 0 {
		return nil, fmt.Errorf("%w: states: empty", ErrInvalidDataset)
	}

	g := &GeoTable{
		states:    make(map[string]State, len(f.States)),
		surfaces:  make(map[string]string, len(f.States)*4),
		ambiguous: make(map[string]bool, len(f.Ambiguous)),
	}
	for _, a := range f.Ambiguous {
		g.ambiguous[Normalize(a)] = true
	}

	for _, st := range f.States {
		code := strings.ToUpper(strings.TrimSpace(st.Code))
		if !core.IsStateToken(code) || st.Name == "" {
			return nil, fmt.Errorf("%w: states: invalid entry %q", ErrInvalidDataset, st.Code)
		}
		if _, dup := g.states[code]; dup {
			return nil, fmt.Errorf("%w: states: duplicate code %q", ErrInvalidDataset, code)
		}
		st.Code = code
		g.states[code] = st

		g.add(code, code)
		g.add(st.Name, code)
		for _, alias := range st.Aliases {
			g.add(alias, code)
		}
	}
	return g, nil
}

func (g *GeoTable) add(surface, code string) {
	key := Normalize(surface)
	if key == "" {
		return
	}
	if _, taken := g.surfaces[key]; taken {
		return
	}
	g.surfaces[key] = code
	if n := len(strings.Fields(key)); n > g.maxWords {
		g.maxWords = n
	}
}

// Lookup resolves a surface form to its canonical state token.
// Lookup is case-insensitive and ignores surrounding punctuation.
func (g *GeoTable) Lookup(surface string) (string, bool) {
	code, ok := g.surfaces[Normalize(surface)]
	return code, ok
}

// IsAmbiguous reports whether the normalized key is an abbreviation that is
// also a common word and should only match when written in upper case.
func (g *GeoTable) IsAmbiguous(key string) bool {
	return g.ambiguous[key]
}

// State returns the entry for a canonical token.
func (g *GeoTable) State(code string) (State, bool) {
	st, ok := g.states[strings.ToUpper(code)]
	return st, ok
}

// Name returns the full name of a state token, or "" when unknown.
func (g *GeoTable) Name(code string) string {
	return g.states[strings.ToUpper(code)].Name
}

// MaxPhraseWords is the word count of the longest surface form.
func (g *GeoTable) MaxPhraseWords() int {
	return g.maxWords
}

// Len returns the number of canonical states.
func (g *GeoTable) Len() int {
	return len(g.states)
}
