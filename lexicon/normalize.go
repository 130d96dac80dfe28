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
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a phrase to the form used as a table key: NFKC, accents
// removed, lower case, each word reduced by NormalizeWord, single spaces.
func Normalize(s string) string {
	words := strings.Fields(Fold(s))
	kept := words[:0]
	for _, w := range words {
		if w = normalizeFolded(w); w != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// NormalizeWord folds a single word. Everything except letters, digits and
// inner hyphens is dropped, so "D.C." becomes "dc" and "(Pre-K)" becomes "pre-k".
func NormalizeWord(w string) string {
	return normalizeFolded(Fold(w))
}

// Fold applies NFKC, strips combining marks and lower-cases s.
func Fold(s string) string {
	s = norm.NFKC.String(s)
	// Transformers carry state, so one is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	return strings.ToLower(s)
}

func normalizeFolded(w string) string {
	var b strings.Builder
	b.Grow(len(w))
	for _, r := range w {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}

// CollapseSpace trims s and replaces every run of white space with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
