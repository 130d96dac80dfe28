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
	"strings"
	"unicode"

	"github.com/poiesic/donorfinder/lexicon"
)

// Token is one whitespace-delimited word of a query.
type Token struct {
	// Text is the word as written.
	Text string
	// Key is the normalized form used for table lookups. Tokens made only
	// of punctuation have an empty key and never take part in a match.
	Key string
}

// Tokenize splits a query on white space.
func Tokenize(text string) []Token {
	fields := strings.Fields(text)
	tokens := make([]Token, len(fields))
	for i, f := range fields {
		tokens[i] = Token{Text: f, Key: lexicon.NormalizeWord(trimPossessive(f))}
	}
	return tokens
}

// trimPossessive drops a trailing "'s" or "'" so "Texas's" keys as "texas".
func trimPossessive(w string) string {
	w = strings.TrimRightFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) && !isApostrophe(r)
	})
	lower := strings.ToLower(w)
	for _, suffix := range []string{"'s", "\u2019s"} {
		if strings.HasSuffix(lower, suffix) && len(w) > len(suffix) {
			return w[:len(w)-len(suffix)]
		}
	}
	return strings.TrimRightFunc(w, isApostrophe)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '\u2019'
}

// isUpper reports whether every letter of the token is upper case.
func (t Token) isUpper() bool {
	letters := false
	for _, r := range trimPossessive(t.Text) {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters = true
		}
	}
	return letters
}
