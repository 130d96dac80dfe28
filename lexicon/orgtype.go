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

	"github.com/poiesic/donorfinder/core"
	"gopkg.in/yaml.v3"
)

type orgTypesFile struct {
	OrgTypes map[string][]string `yaml:"org_types"`
}

// OrgTypeTable maps surface forms such as "charities" to organization types.
type OrgTypeTable struct {
	surfaces map[string]core.OrgType
	maxWords int
}

// ParseOrgTypesYAML builds an OrgTypeTable from YAML.
func ParseOrgTypesYAML(b []byte) (*OrgTypeTable, error) {
	var f orgTypesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: org types: %w", ErrInvalidDataset, err)
	}
	if len(f.OrgTypes) == 0 {
		return nil, fmt.Errorf("%w: org types: empty", ErrInvalidDataset)
	}

	t := &OrgTypeTable{surfaces: make(map[string]core.OrgType)}

	// Sorted so that a surface listed twice always resolves the same way.
	names := make([]string, 0, len(f.OrgTypes))
	for name := range f.OrgTypes {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		orgType, err := core.ParseOrgType(name)
		if err != nil || orgType == "" {
			return nil, fmt.Errorf("%w: org types: unknown type %q", ErrInvalidDataset, name)
		}
		for _, surface := range append([]string{name}, f.OrgTypes[name]...) {
			key := Normalize(surface)
			if key == "" {
				continue
			}
			if _, taken := t.surfaces[key]; taken {
				continue
			}
			t.surfaces[key] = orgType
			if n := len(strings.Fields(key)); n > t.maxWords {
				t.maxWords = n
			}
		}
	}
	return t, nil
}

// Lookup resolves a surface form to an organization type.
func (t *OrgTypeTable) Lookup(surface string) (core.OrgType, bool) {
	orgType, ok := t.surfaces[Normalize(surface)]
	return orgType, ok
}

// MaxPhraseWords is the word count of the longest surface form.
func (t *OrgTypeTable) MaxPhraseWords() int {
	return t.maxWords
}
