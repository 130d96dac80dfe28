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

package api

import (
	"time"

	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/indexer"
	"github.com/poiesic/donorfinder/search"
)

// Organization is the wire form of an organization.
type Organization struct {
	EIN            uint64       `json:"ein"`
	StrEIN         string       `json:"strein,omitempty"`
	Name           string       `json:"name"`
	SubName        string       `json:"sub_name,omitempty"`
	Address        string       `json:"address,omitempty"`
	City           string       `json:"city,omitempty"`
	State          string       `json:"state,omitempty"`
	Zipcode        string       `json:"zipcode,omitempty"`
	NTEECode       string       `json:"ntee_code,omitempty"`
	Subsection     int          `json:"subseccd,omitempty"`
	OrgType        core.OrgType `json:"org_type,omitempty"`
	GuidestarURL   string       `json:"guidestar_url,omitempty"`
	NCCSURL        string       `json:"nccs_url,omitempty"`
	SearchableText string       `json:"searchable_text,omitempty"`
	HasEmbedding   bool         `json:"has_embedding"`
	UpdatedAt      *time.Time   `json:"updated_at,omitempty"`
}

func newOrganization(org *core.Organization) Organization {
	out := Organization{
		EIN:            uint64(org.Id),
		StrEIN:         org.StrEIN,
		Name:           org.Name,
		SubName:        org.SubName,
		Address:        org.Address,
		City:           org.City,
		State:          org.State,
		Zipcode:        org.Zipcode,
		NTEECode:       org.NTEECode,
		Subsection:     org.Subsection,
		OrgType:        org.OrgType,
		GuidestarURL:   org.GuidestarURL,
		NCCSURL:        org.NCCSURL,
		SearchableText: org.SearchableText,
		HasEmbedding:   org.HasEmbedding(),
	}
	if !org.UpdatedAt.IsZero() {
		updated := org.UpdatedAt
		out.UpdatedAt = &updated
	}
	return out
}

// SearchResult is one ranked organization.
type SearchResult struct {
	Organization
	Rank       int     `json:"rank"`
	FinalScore float64 `json:"final_score"`
	// RelevanceScore repeats FinalScore for older clients.
	RelevanceScore float64  `json:"relevance_score"`
	SemanticScore  *float64 `json:"semantic_score,omitempty"`
	KeywordScore   *float64 `json:"keyword_score,omitempty"`
	// MatchType names the scores that produced FinalScore.
	MatchType string `json:"match_type"`
}

func newSearchResult(r *core.SearchResult) SearchResult {
	out := SearchResult{
		Organization:   newOrganization(r.Organization),
		Rank:           r.Rank,
		FinalScore:     r.FinalScore,
		RelevanceScore: r.FinalScore,
		SemanticScore:  r.SemanticScore,
		KeywordScore:   r.KeywordScore,
	}
	switch {
	case r.SemanticScore != nil && r.KeywordScore != nil:
		out.MatchType = string(core.SearchModeHybrid)
	case r.SemanticScore != nil:
		out.MatchType = string(core.SearchModeSemantic)
	default:
		out.MatchType = string(core.SearchModeKeyword)
	}
	return out
}

// CauseArea is the wire form of an extracted cause-area constraint.
type CauseArea struct {
	Code     string   `json:"code"`
	Term     string   `json:"term,omitempty"`
	Keywords []string `json:"keywords"`
}

// QueryComponents are the constraints a search ran with.
type QueryComponents struct {
	State     string       `json:"state,omitempty"`
	CauseArea *CauseArea   `json:"cause_area,omitempty"`
	OrgType   core.OrgType `json:"org_type,omitempty"`
	Residual  string       `json:"residual"`
}

func newQueryComponents(qc core.QueryConstraints) QueryComponents {
	out := QueryComponents{State: qc.State, OrgType: qc.OrgType, Residual: qc.Residual}
	if qc.CauseArea != nil {
		out.CauseArea = &CauseArea{Code: qc.CauseArea.Code, Term: qc.CauseArea.Term, Keywords: qc.CauseArea.Keywords}
	}
	return out
}

// SearchResponse is the body of a search.
type SearchResponse struct {
	Query           string          `json:"query"`
	SearchType      core.SearchMode `json:"search_type"`
	QueryComponents QueryComponents `json:"query_components"`
	Results         []SearchResult  `json:"results"`
	Count           int             `json:"count"`
	Degraded        bool            `json:"degraded"`
	Partial         bool            `json:"partial"`
}

func newSearchResponse(resp *search.Response) SearchResponse {
	results := make([]SearchResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = newSearchResult(r)
	}
	return SearchResponse{
		Query:           resp.Query,
		SearchType:      resp.Mode,
		QueryComponents: newQueryComponents(resp.Constraints),
		Results:         results,
		Count:           len(results),
		Degraded:        resp.Degraded,
		Partial:         resp.Partial,
	}
}

// EmbeddingUpdateResponse is the body of an embedding update.
type EmbeddingUpdateResponse struct {
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
	Message string `json:"message"`
}

func newEmbeddingUpdateResponse(stats indexer.Stats) EmbeddingUpdateResponse {
	return EmbeddingUpdateResponse{
		Updated: stats.Updated,
		Skipped: stats.Skipped,
		Errors:  stats.Failed,
		Message: embeddingUpdateMessage(stats),
	}
}

// HealthResponse is the body of a health check.
type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Version       string `json:"version"`
	Organizations int    `json:"organizations"`
	Error         string `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
