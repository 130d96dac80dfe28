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

package ingestion

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode"

	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/propublica"
)

// envelope matches API responses wrapping records.
type envelope struct {
	Organization  *propublica.Organization  `json:"organization"`
	Organizations []propublica.Organization `json:"organizations"`
}

// DecodeRecords reads ProPublica-shaped organization records from r. The
// input is either a JSON array or a stream of JSON values (JSON lines).
// Each value is a bare record, an organization lookup response
// ({"organization": ...}) or a search page ({"organizations": [...]}).
func DecodeRecords(r io.Reader) ([]*core.Organization, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return []*core.Organization{}, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	var values []json.RawMessage
	if first == '[' {
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
	} else {
		for {
			var raw json.RawMessage
			err := dec.Decode(&raw)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: value %d: %w", ErrInvalidRecord, len(values)+1, err)
			}
			values = append(values, raw)
		}
	}

	orgs := make([]*core.Organization, 0, len(values))
	for i, raw := range values {
		recs, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %w", ErrInvalidRecord, i+1, err)
		}
		for _, rec := range recs {
			orgs = append(orgs, rec.ToCore())
		}
	}
	return orgs, nil
}

func decodeValue(raw json.RawMessage) ([]propublica.Organization, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch {
	case env.Organization != nil:
		return []propublica.Organization{*env.Organization}, nil
	case env.Organizations != nil:
		return env.Organizations, nil
	}

	var rec propublica.Organization
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return []propublica.Organization{rec}, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(rune(b)) && b != 0xEF && b != 0xBB && b != 0xBF {
			return b, br.UnreadByte()
		}
	}
}
