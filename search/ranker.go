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

package search

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/donorfinder/ai"
	"github.com/poiesic/donorfinder/core"
)

// DefaultAlpha weights semantic against keyword scores in hybrid mode.
const DefaultAlpha = 0.7

// How often the semantic pass checks for cancellation.
const cancelCheckInterval = 64

// RankInput carries everything the ranker needs besides the candidates.
type RankInput struct {
	Mode        core.SearchMode
	Constraints core.QueryConstraints
	// QueryVector is the embedding of the query. Semantic scores are only
	// computed when it is set.
	QueryVector []float32
	// QueryTerms are the analyzed distinct terms of the query.
	QueryTerms []string
	// MinSemantic is the lowest semantic score kept in semantic mode.
	MinSemantic float64
	// Keep truncates the ranking. Zero keeps everything.
	Keep int
}

// Ranker scores, filters and orders candidates.
type Ranker struct {
	analyzer *Analyzer
	alpha    float64
	logger   *slog.Logger
}

// NewRanker creates a ranker fusing scores with weight alpha in [0, 1].
func NewRanker(analyzer *Analyzer, alpha float64, logger *slog.Logger) (*Ranker, error) {
	if analyzer == nil {
		return nil, ErrAnalyzerRequired
	}
	if alpha < 0 || alpha > 1 {
		return nil, ErrInvalidAlpha
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{analyzer: analyzer, alpha: alpha, logger: logger}, nil
}

// Rank scores candidates against in and returns them best first.
//
// Candidates failing a constraint are dropped. In semantic mode candidates
// without an embedding, or scoring below in.MinSemantic, are dropped; in
// keyword mode candidates sharing no term with the query are dropped. A
// stored vector of the wrong length only excludes that candidate.
//
// Constraint filtering and keyword scoring always cover every candidate.
// When ctx ends during the semantic pass, the remaining candidates keep
// keyword-only scores (semantic mode drops them) and partial is set.
func (r *Ranker) Rank(ctx context.Context, in RankInput, candidates []*core.Organization) (ranked []*core.ScoredCandidate, partial bool) {
	admit := r.Admit(in)

	ranked = make([]*core.ScoredCandidate, 0, len(candidates))
	for _, org := range candidates {
		docTerms := r.analyzer.TermSet(org.SearchableText)
		if !admit.match(org, docTerms) {
			continue
		}
		sc := &core.ScoredCandidate{Organization: org}
		if in.Mode.UsesKeyword() {
			k := Overlap(in.QueryTerms, docTerms)
			sc.KeywordScore = &k
		}
		ranked = append(ranked, sc)
	}

	if in.Mode.UsesSemantic() {
		ranked, partial = r.scoreSemantic(ctx, in, ranked)
	}

	for _, sc := range ranked {
		sc.FinalScore = r.fuse(in.Mode, sc)
	}
	slices.SortStableFunc(ranked, compareScored)
	if in.Keep > 0 && len(ranked) > in.Keep {
		ranked = ranked[:in.Keep]
	}
	return ranked, partial
}

// scoreSemantic adds semantic scores in place until ctx ends.
func (r *Ranker) scoreSemantic(ctx context.Context, in RankInput, scored []*core.ScoredCandidate) ([]*core.ScoredCandidate, bool) {
	partial := false
	kept := scored[:0]
	for i, sc := range scored {
		if !partial && i%cancelCheckInterval == 0 && ctx.Err() != nil {
			partial = true
			r.logger.Warn("semantic scoring interrupted, ranking the rest by keywords", "scored", i, "candidates", len(scored))
		}

		org := sc.Organization
		if !partial && len(in.QueryVector) > 0 && org.HasEmbedding() {
			cos, err := ai.Cosine(in.QueryVector, org.Embedding)
			if err != nil {
				if errors.Is(err, core.ErrEmbeddingDimensionMismatch) {
					r.logger.Warn("skipping organization with mismatched embedding", "id", org.Id, "err", err)
				}
				continue
			}
			s := ai.RescaleCosine(cos)
			sc.SemanticScore = &s
		}
		if in.Mode == core.SearchModeSemantic && (sc.SemanticScore == nil || *sc.SemanticScore < in.MinSemantic) {
			continue
		}
		kept = append(kept, sc)
	}
	return kept, partial
}

// Admission decides which organizations can appear in a ranking.
type Admission struct {
	analyzer    *Analyzer
	constraints core.QueryConstraints
	causeTerms  map[string]struct{}
	queryTerms  []string
	keywordOnly bool
}

// Admit returns the admission rules of in: the constraints and, in keyword
// mode, at least one term shared with the query.
func (r *Ranker) Admit(in RankInput) *Admission {
	a := &Admission{
		analyzer:    r.analyzer,
		constraints: in.Constraints,
		queryTerms:  in.QueryTerms,
		keywordOnly: in.Mode == core.SearchModeKeyword,
	}
	if in.Constraints.CauseArea != nil {
		a.causeTerms = r.analyzer.TermSet(strings.Join(in.Constraints.CauseArea.Keywords, " "))
	}
	return a
}

// Accepts reports whether org is admitted. It has the shape of
// storage.CandidateFilter.Match so stores can apply it while fetching.
func (a *Admission) Accepts(org *core.Organization) bool {
	return a.match(org, a.analyzer.TermSet(org.SearchableText))
}

func (a *Admission) match(org *core.Organization, docTerms map[string]struct{}) bool {
	if !matchesConstraints(org, a.constraints, a.causeTerms, docTerms) {
		return false
	}
	return !a.keywordOnly || Overlap(a.queryTerms, docTerms) > 0
}

func (r *Ranker) fuse(mode core.SearchMode, sc *core.ScoredCandidate) float64 {
	switch {
	case mode == core.SearchModeSemantic:
		return *sc.SemanticScore
	case mode == core.SearchModeKeyword, sc.SemanticScore == nil:
		return sc.Keyword()
	default:
		return r.alpha*(*sc.SemanticScore) + (1-r.alpha)*sc.Keyword()
	}
}

// compareScored orders by final score, then keyword score, both descending,
// then by ID ascending.
func compareScored(a, b *core.ScoredCandidate) int {
	if c := cmp.Compare(b.FinalScore, a.FinalScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Keyword(), a.Keyword()); c != 0 {
		return c
	}
	return cmp.Compare(a.Organization.Id, b.Organization.Id)
}

// matchesConstraints applies the structured constraints. An absent
// constraint imposes nothing. The cause area matches when the candidate's
// taxonomy code falls under the constraint code or its searchable text
// shares a term with the expanded keywords.
func matchesConstraints(org *core.Organization, qc core.QueryConstraints, causeTerms, docTerms map[string]struct{}) bool {
	if qc.State != "" && org.State != qc.State {
		return false
	}
	if !qc.OrgType.Matches(org.OrgType) {
		return false
	}
	if qc.CauseArea == nil {
		return true
	}
	if qc.CauseArea.Code != "" && strings.HasPrefix(strings.ToUpper(org.NTEECode), qc.CauseArea.Code) {
		return true
	}
	for t := range causeTerms {
		if _, ok := docTerms[t]; ok {
			return true
		}
	}
	return false
}
