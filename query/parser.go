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

package query

import (
	"errors"
	"strings"

	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/lexicon"
)

// ErrLexiconRequired is returned when a Parser is built without lookup tables.
var ErrLexiconRequired = errors.New("query: lexicon is required")

// Fields selects which constraints Parse extracts.
type Fields uint8

const (
	FieldState Fields = 1 << iota
	FieldCauseArea
	FieldOrgType

	FieldNone Fields = 0
	FieldAll         = FieldState | FieldCauseArea | FieldOrgType
)

// Has reports whether f includes field.
func (f Fields) Has(field Fields) bool {
	return f&field != 0
}

// Words that only connect a place to the rest of the query. One directly
// before a matched place is removed with it.
var placePrepositions = map[string]bool{
	"in":         true,
	"from":       true,
	"near":       true,
	"across":     true,
	"throughout": true,
}

// Parser extracts constraints from queries. It is safe for concurrent use.
type Parser struct {
	lex              *lexicon.Lexicon
	removeCauseTerms bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithCauseTermRemoval removes matched cause-area terms from the residual.
// By default they stay, since they describe what the user is looking for
// and improve the residual's embedding.
func WithCauseTermRemoval() Option {
	return func(p *Parser) {
		p.removeCauseTerms = true
	}
}

// NewParser creates a parser over lex.
func NewParser(lex *lexicon.Lexicon, opts ...Option) (*Parser, error) {
	if lex == nil || lex.Geo == nil || lex.Causes == nil || lex.OrgTypes == nil {
		return nil, ErrLexiconRequired
	}
	p := &Parser{lex: lex}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// parse holds the per-call matching state.
type parse struct {
	tokens  []Token
	claimed []bool // no longer available for matching
	removed []bool // dropped from the residual
}

// Parse extracts the constraints selected by fields from text.
//
// Places are matched first, then cause areas, then organization types. Each
// pass scans left to right and, at every position, tries the longest phrase
// first, so "New York" wins over "York" and the first place mentioned wins
// over later ones. Tokens claimed by one pass are invisible to the next.
func (p *Parser) Parse(text string, fields Fields) core.QueryConstraints {
	st := &parse{tokens: Tokenize(text)}
	st.claimed = make([]bool, len(st.tokens))
	st.removed = make([]bool, len(st.tokens))

	var qc core.QueryConstraints

	if fields.Has(FieldState) {
		start, end, code, ok := st.match(p.lex.Geo.MaxPhraseWords(), p.lookupState)
		if ok {
			qc.State = code
			st.take(start, end, true)
			if start > 0 && !st.claimed[start-1] && placePrepositions[st.tokens[start-1].Key] {
				st.take(start-1, start, true)
			}
		}
	}

	if fields.Has(FieldCauseArea) {
		start, end, code, ok := st.match(p.lex.Causes.MaxPhraseWords(), func(phrase string, _ []Token) (string, bool) {
			return p.lex.Causes.Term(phrase)
		})
		if ok {
			qc.CauseArea = &core.CauseArea{
				Code:     code,
				Term:     st.text(start, end),
				Keywords: p.lex.Causes.Lookup(code),
			}
			// Cause terms stay in the residual unless WithCauseTermRemoval is set.
			st.take(start, end, p.removeCauseTerms)
		}
	}

	if fields.Has(FieldOrgType) {
		start, end, name, ok := st.match(p.lex.OrgTypes.MaxPhraseWords(), func(phrase string, _ []Token) (string, bool) {
			orgType, ok := p.lex.OrgTypes.Lookup(phrase)
			return string(orgType), ok
		})
		if ok {
			qc.OrgType = core.OrgType(name)
			st.take(start, end, true)
		}
	}

	qc.Residual = st.residual()
	return qc
}

// lookupState resolves a phrase to a state token. Abbreviations that are
// also common words only count when written in upper case ("IN", not "in").
func (p *Parser) lookupState(phrase string, toks []Token) (string, bool) {
	if len(toks) == 1 && p.lex.Geo.IsAmbiguous(phrase) && !toks[0].isUpper() {
		return "", false
	}
	return p.lex.Geo.Lookup(phrase)
}

// match finds the first position holding a known phrase of at most maxWords
// unclaimed tokens, preferring the longest phrase at that position.
func (st *parse) match(maxWords int, lookup func(phrase string, toks []Token) (string, bool)) (int, int, string, bool) {
	n := len(st.tokens)
	for i := 0; i < n; i++ {
		for w := min(maxWords, n-i); w >= 1; w-- {
			if !st.available(i, i+w) {
				continue
			}
			toks := st.tokens[i : i+w]
			if value, ok := lookup(joinKeys(toks), toks); ok {
				return i, i + w, value, true
			}
		}
	}
	return 0, 0, "", false
}

func (st *parse) available(start, end int) bool {
	for i := start; i < end; i++ {
		if st.claimed[i] || st.tokens[i].Key == "" {
			return false
		}
	}
	return true
}

func (st *parse) take(start, end int, remove bool) {
	for i := start; i < end; i++ {
		st.claimed[i] = true
		if remove {
			st.removed[i] = true
		}
	}
}

func (st *parse) text(start, end int) string {
	words := make([]string, 0, end-start)
	for _, t := range st.tokens[start:end] {
		words = append(words, t.Text)
	}
	return trimPunct(strings.Join(words, " "))
}

func (st *parse) residual() string {
	words := make([]string, 0, len(st.tokens))
	for i, t := range st.tokens {
		if !st.removed[i] {
			words = append(words, t.Text)
		}
	}
	return trimPunct(strings.Join(words, " "))
}

func joinKeys(toks []Token) string {
	keys := make([]string, len(toks))
	for i, t := range toks {
		keys[i] = t.Key
	}
	return strings.Join(keys, " ")
}

func trimPunct(s string) string {
	return strings.Trim(s, " ,;:.!?-")
}

// ResolveState resolves an explicit state constraint such as "ca" or
// "California" to its canonical token.
func (p *Parser) ResolveState(s string) (string, bool) {
	return p.lex.Geo.Lookup(s)
}

// ResolveCauseArea resolves an explicit cause-area constraint. s may be a
// taxonomy code ("B21"), which falls back to its major group, or a query
// term ("food banks").
func (p *Parser) ResolveCauseArea(s string) (*core.CauseArea, bool) {
	var code string
	var ok bool
	if looksLikeCode(s) {
		code, ok = p.lex.Causes.Resolve(s)
	} else {
		code, ok = p.lex.Causes.Term(s)
	}
	if !ok {
		return nil, false
	}
	return &core.CauseArea{Code: code, Keywords: p.lex.Causes.Lookup(code)}, true
}

// looksLikeCode reports whether s has the shape of a taxonomy code: one
// letter followed by digits.
func looksLikeCode(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 4 {
		return false
	}
	c := s[0] | 0x20
	if c < 'a' || c > 'z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
