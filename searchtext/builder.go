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

// Package searchtext derives the searchable text of an organization: the
// single descriptive string that is embedded and keyword-matched.
package searchtext

import (
	"errors"
	"strings"

	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/lexicon"
	"golang.org/x/text/unicode/norm"
)

const (
	partSeparator    = ". "
	keywordSeparator = ", "
)

// ErrLexiconRequired is returned when a lexicon is not provided.
var ErrLexiconRequired = errors.New("lexicon required")

// Builder composes searchable text from structured fields in a fixed order:
// name, organization type, state, cause-area keywords. Output depends only on
// those fields, so building twice from the same input is byte-identical.
type Builder struct {
	lex *lexicon.Lexicon
}

// NewBuilder creates a builder backed by the given lookup tables.
func NewBuilder(lex *lexicon.Lexicon) (*Builder, error) {
	if lex == nil {
		return nil, ErrLexiconRequired
	}
	return &Builder{lex: lex}, nil
}

// Build returns the searchable text for org. Empty parts are skipped.
func (b *Builder) Build(org *core.Organization) string {
	if org == nil {
		return ""
	}

	parts := make([]string, 0, 4)
	if name := clean(org.Name); name != "" {
		parts = append(parts, name)
	}
	if org.OrgType != "" {
		parts = append(parts, string(org.OrgType))
	}
	if state := b.state(org.State); state != "" {
		parts = append(parts, state)
	}
	if keywords := b.lex.Causes.Lookup(org.NTEECode); len(keywords) > 0 {
		parts = append(parts, strings.Join(keywords, keywordSeparator))
	}
	return strings.Join(parts, partSeparator)
}

// Refresh rebuilds org.SearchableText and reports whether it changed.
func (b *Builder) Refresh(org *core.Organization) bool {
	text := b.Build(org)
	if text == org.SearchableText {
		return false
	}
	org.SearchableText = text
	return true
}

// state renders "California (CA)" for known tokens and the bare token otherwise.
func (b *Builder) state(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if name := b.lex.Geo.Name(code); name != "" {
		return name + " (" + code + ")"
	}
	return code
}

func clean(s string) string {
	return lexicon.CollapseSpace(norm.NFKC.String(s))
}
