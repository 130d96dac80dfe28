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

package core

import "strings"

// SearchMode selects which scores contribute to the final ranking.
type SearchMode string

const (
	// SearchModeHybrid fuses semantic and keyword scores.
	SearchModeHybrid SearchMode = "hybrid"
	// SearchModeSemantic ranks by vector similarity only.
	SearchModeSemantic SearchMode = "semantic"
	// SearchModeKeyword ranks by lexical overlap only.
	SearchModeKeyword SearchMode = "keyword"
)

// ParseSearchMode converts a selector to a SearchMode. Empty selects hybrid.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchModeHybrid:
		return SearchModeHybrid, nil
	case SearchModeSemantic:
		return SearchModeSemantic, nil
	case SearchModeKeyword:
		return SearchModeKeyword, nil
	}
	return "", ErrInvalidSearchMode
}

// UsesSemantic reports whether the mode computes semantic scores.
func (m SearchMode) UsesSemantic() bool {
	return m == SearchModeHybrid || m == SearchModeSemantic
}

// UsesKeyword reports whether the mode computes keyword scores.
func (m SearchMode) UsesKeyword() bool {
	return m == SearchModeHybrid || m == SearchModeKeyword
}
