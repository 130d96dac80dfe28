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

// Package propublica is a client for the ProPublica Nonprofit Explorer API
// and the record shape it returns.
package propublica

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/donorfinder/core"
)

// EIN is an employer identification number. It decodes from a JSON number
// or from a string with or without the dash ("12-3456789").
type EIN uint64

// UnmarshalJSON implements json.Unmarshaler.
func (e *EIN) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*e = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), "-", "")
		if s == "" {
			*e = 0
			return nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid ein %s: %w", b, err)
	}
	*e = EIN(n)
	return nil
}

// Organization is an organization record as served by the API and found in
// its bulk exports.
type Organization struct {
	EIN          EIN    `json:"ein"`
	StrEIN       string `json:"strein"`
	Name         string `json:"name"`
	SubName      string `json:"sub_name"`
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zipcode      string `json:"zipcode"`
	NTEECode     string `json:"ntee_code"`
	Subsection   int    `json:"subseccd"`
	GuidestarURL string `json:"guidestar_url"`
	NCCSURL      string `json:"nccs_url"`
	Updated      string `json:"updated"`
}

// ToCore converts the record to a core.Organization and derives its type.
func (o *Organization) ToCore() *core.Organization {
	org := &core.Organization{
		Id:           core.ID(o.EIN),
		StrEIN:       strings.TrimSpace(o.StrEIN),
		Name:         strings.TrimSpace(o.Name),
		SubName:      strings.TrimSpace(o.SubName),
		Address:      strings.TrimSpace(o.Address),
		City:         strings.TrimSpace(o.City),
		State:        strings.ToUpper(strings.TrimSpace(o.State)),
		Zipcode:      strings.TrimSpace(o.Zipcode),
		NTEECode:     strings.ToUpper(strings.TrimSpace(o.NTEECode)),
		Subsection:   o.Subsection,
		GuidestarURL: strings.TrimSpace(o.GuidestarURL),
		NCCSURL:      strings.TrimSpace(o.NCCSURL),
	}
	if org.StrEIN == "" && o.EIN != 0 {
		org.StrEIN = FormatEIN(uint64(o.EIN))
	}
	org.OrgType = core.DeriveOrgType(org.Subsection, org.NTEECode, org.Name)
	return org
}

// FormatEIN renders an EIN in its dashed form, e.g. "12-3456789".
func FormatEIN(ein uint64) string {
	s := fmt.Sprintf("%09d", ein)
	return s[:2] + "-" + s[2:]
}
