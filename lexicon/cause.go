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
	"slices"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// CauseEntry describes one taxonomy code.
type CauseEntry struct {
	Code     string   `yaml:"code"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Terms    []string `yaml:"terms"`
}

type nteeFile struct {
	Codes []CauseEntry `yaml:"codes"`
}

// CauseTable maps taxonomy codes to ordered descriptive keywords and query
// vocabulary to codes. It is immutable once built.
type CauseTable struct {
	entries  map[string]CauseEntry
	terms    map[string]string
	maxWords int
}

// ParseNTEEYAML builds a CauseTable from YAML.
// A query term claimed by more than one code belongs to the first one listed.
func ParseNTEEYAML(b []byte) (*CauseTable, error) {
	var f nteeFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: ntee: %w", ErrInvalidDataset, err)
	}
	if len(f.Codes) == 0 {
		return nil, fmt.Errorf("%w: ntee: empty", ErrInvalidDataset)
	}

	c := &CauseTable{
		entries: make(map[string]CauseEntry, len(f.Codes)),
		terms:   make(map[string]string),
	}
	for _, e := range f.Codes {
		code := normalizeCode(e.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: ntee: entry without code", ErrInvalidDataset)
		}
		if _, dup := c.entries[code]; dup {
			return nil, fmt.Errorf("%w: ntee: duplicate code %q", ErrInvalidDataset, code)
		}
		e.Code = code
		e.Keywords = dedupe(e.Keywords)
		c.entries[code] = e

		for _, term := range e.Terms {
			key := Normalize(term)
			if key == "" {
				continue
			}
			if _, taken := c.terms[key]; taken {
				continue
			}
			c.terms[key] = code
			if n := len(strings.Fields(key)); n > c.maxWords {
				c.maxWords = n
			}
		}
	}
	return c, nil
}

// Lookup returns the keywords of a code. The exact code is tried first, then
// ever shorter prefixes down to the major group letter. A code with no match
// yields nil.
func (c *CauseTable) Lookup(code string) []string {
	entry, ok := c.resolve(code)
	if !ok {
		return nil
	}
	return slices.Clone(entry.Keywords)
}

// Resolve returns the code whose keywords Lookup would use.
func (c *CauseTable) Resolve(code string) (string, bool) {
	entry, ok := c.resolve(code)
	return entry.Code, ok
}

// Name returns the descriptive name of the resolved code.
func (c *CauseTable) Name(code string) string {
	entry, _ := c.resolve(code)
	return entry.Name
}

func (c *CauseTable) resolve(code string) (CauseEntry, bool) {
	code = normalizeCode(code)
	for n := len(code); n > 0; n-- {
		if entry, ok := c.entries[code[:n]]; ok {
			return entry, true
		}
	}
	return CauseEntry{}, false
}

// Term resolves a query phrase to the code that claims it.
func (c *CauseTable) Term(phrase string) (string, bool) {
	code, ok := c.terms[Normalize(phrase)]
	return code, ok
}

// MaxPhraseWords is the word count of the longest query term.
func (c *CauseTable) MaxPhraseWords() int {
	return c.maxWords
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimFunc(code, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
}

func dedupe(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = CollapseSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
