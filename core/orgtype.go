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
	"strings"
)

// OrgType classifies an organization for filtering and searchable text.
type OrgType string

const (
	// OrgTypeFoundation is a grantmaking foundation.
	OrgTypeFoundation OrgType = "foundation"
	// OrgTypeCharity is a 501(c)(3) public charity.
	OrgTypeCharity OrgType = "charity"
	// OrgTypeNonprofit is any other tax-exempt organization. As a constraint
	// it is the umbrella type and matches every organization.
	OrgTypeNonprofit OrgType = "nonprofit"
)

// ParseOrgType converts a token to an OrgType.
// The empty string parses to the empty OrgType (no constraint).
func ParseOrgType(s string) (OrgType, error) {
	switch OrgType(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case OrgTypeFoundation:
		return OrgTypeFoundation, nil
	case OrgTypeCharity:
		return OrgTypeCharity, nil
	case OrgTypeNonprofit:
		return OrgTypeNonprofit, nil
	}
	return "", ErrInvalidOrgType
}

// Matches reports whether an organization of type candidate satisfies
// the constraint t. An empty constraint matches everything.
func (t OrgType) Matches(candidate OrgType) bool {
	switch t {
	case "", OrgTypeNonprofit:
		return true
	default:
		return t == candidate
	}
}

// DeriveOrgType assigns an OrgType from registry fields.
// Grantmaking NTEE codes (T20-T3x) or a "foundation" name make a foundation,
// subsection 3 makes a charity, everything else is a nonprofit.
func DeriveOrgType(subsection int, nteeCode, name string) OrgType {
	code := strings.ToUpper(strings.TrimSpace(nteeCode))
	if strings.HasPrefix(code, "T2") || strings.HasPrefix(code, "T3") {
		return OrgTypeFoundation
	}
	if strings.Contains(strings.ToLower(name), "foundation") {
		return OrgTypeFoundation
	}
	if subsection == 3 {
		return OrgTypeCharity
	}
	return OrgTypeNonprofit
}
