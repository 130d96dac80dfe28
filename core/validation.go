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

import (
	"fmt"
	"strings"
)

// ValidateOrganization validates an Organization according to domain rules.
//
// Validation rules:
//   - Id must not be zero
//   - Name must not be empty
//   - State, when set, must be two ASCII letters
//
// NOT validated (derived by the indexer):
//   - SearchableText
//   - Embedding
func ValidateOrganization(org *Organization) error {
	if org == nil {
		return fmt.Errorf("%w: organization is nil", ErrInvalidOrganization)
	}

	if org.Id == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOrganization, ErrMissingID)
	}

	if strings.TrimSpace(org.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidOrganization, ErrEmptyName)
	}

	if org.State != "" && !IsStateToken(org.State) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidOrganization, ErrInvalidState, org.State)
	}

	return nil
}

// IsStateToken reports whether s looks like a canonical state token.
func IsStateToken(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
