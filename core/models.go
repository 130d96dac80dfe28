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
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is the registry identifier (EIN) of an organization.
type ID uint64

// String renders the ID as the nine digit EIN used by the IRS.
func (id ID) String() string {
	return fmt.Sprintf("%09d", uint64(id))
}

// Fingerprint generates a deterministic 64-bit digest of text using BLAKE2b hashing.
// Identical text always produces identical fingerprints, which is how stale
// embeddings are detected.
func Fingerprint(text string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

// Organization is a nonprofit as known to the search engine.
type Organization struct {
	Id           ID
	StrEIN       string // Formatted EIN, e.g. "12-3456789"
	Name         string
	SubName      string
	Address      string
	City         string
	State        string // Canonical two letter state token
	Zipcode      string
	NTEECode     string // Taxonomy code, e.g. "B21"
	Subsection   int    // 501(c) subsection code
	OrgType      OrgType
	GuidestarURL string
	NCCSURL      string

	// SearchableText is derived from the fields above and never edited by hand.
	SearchableText string
	// Embedding is the vector of the text identified by EmbeddedFingerprint.
	Embedding           []float32
	EmbeddedFingerprint uint64

	InsertedAt time.Time
	UpdatedAt  time.Time
	EmbeddedAt time.Time
}

// HasEmbedding reports whether the organization carries a vector.
func (o *Organization) HasEmbedding() bool {
	return len(o.Embedding) > 0
}

// NeedsEmbedding reports whether the organization has no embedding or
// its embedding was computed from text other than text.
func (o *Organization) NeedsEmbedding(text string) bool {
	if !o.HasEmbedding() {
		return true
	}
	return o.EmbeddedFingerprint != Fingerprint(text)
}

// CauseArea is a cause-area constraint extracted from a query or supplied
// explicitly by the caller.
type CauseArea struct {
	Code     string   // Taxonomy code or major group
	Term     string   // Query phrase that produced the match, empty for overrides
	Keywords []string // Expanded descriptive keywords for Code
}

// QueryConstraints holds the structured constraints extracted from one query.
// Zero values mean "no constraint".
type QueryConstraints struct {
	State     string
	CauseArea *CauseArea
	OrgType   OrgType
	Residual  string
}

// IsEmpty reports whether no constraint was extracted.
func (q QueryConstraints) IsEmpty() bool {
	return q.State == "" && q.CauseArea == nil && q.OrgType == ""
}

// ScoredCandidate is an organization with the scores computed while ranking.
type ScoredCandidate struct {
	Organization  *Organization
	SemanticScore *float64 // nil when not computed
	KeywordScore  *float64 // nil when not computed
	FinalScore    float64
}

// Keyword returns the keyword score or 0 when absent.
func (s *ScoredCandidate) Keyword() float64 {
	if s.KeywordScore == nil {
		return 0
	}
	return *s.KeywordScore
}

// SearchResult is a ranked organization returned to callers, with the score breakdown.
type SearchResult struct {
	Rank          int           `json:"rank"`
	Organization  *Organization `json:"-"`
	SemanticScore *float64      `json:"semantic_score,omitempty"`
	KeywordScore  *float64      `json:"keyword_score,omitempty"`
	FinalScore    float64       `json:"final_score"`
}
