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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/poiesic/donorfinder/ai"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/filter"
	"github.com/poiesic/donorfinder/query"
	"github.com/poiesic/donorfinder/storage"
	"golang.org/x/sync/errgroup"
)

// Result count limits.
const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Overrides are explicit constraints that replace extraction for their field.
type Overrides struct {
	// State is a state token or name, e.g. "CA" or "California".
	State string
	// CauseArea is a taxonomy code ("B21") or a cause term ("food banks").
	CauseArea string
	OrgType   core.OrgType
}

// Request describes one search.
type Request struct {
	Query string
	// Mode defaults to hybrid.
	Mode core.SearchMode
	// Limit defaults to DefaultLimit and is capped at MaxLimit.
	Limit  int
	Offset int

	Overrides Overrides

	// Filter is an optional CEL expression applied to candidates.
	Filter string

	// Timeout bounds embedding and scoring. Zero means no bound.
	Timeout time.Duration
}

// Response is the outcome of a search.
type Response struct {
	Query       string
	Mode        core.SearchMode
	Constraints core.QueryConstraints
	Results     []*core.SearchResult
	// Degraded is set when the embedder failed and results were ranked by
	// keyword overlap alone.
	Degraded bool
	// Partial is set when scoring stopped early and results cover only
	// part of the candidates.
	Partial bool
}

// Searcher provides hybrid semantic and keyword search over organizations.
type Searcher struct {
	candidates     storage.CandidateReader
	embedder       ai.Embedder
	parser         *query.Parser
	analyzer       *Analyzer
	ranker         *Ranker
	alpha          float64
	minSemantic    float64
	candidateLimit int
	logger         *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithAlpha sets the weight of the semantic score in hybrid mode.
// Default is DefaultAlpha.
func WithAlpha(alpha float64) Option {
	return func(s *Searcher) error {
		if alpha < 0 || alpha > 1 {
			return ErrInvalidAlpha
		}
		s.alpha = alpha
		return nil
	}
}

// WithMinSemantic sets the lowest semantic score a semantic-mode result may have.
// Default is 0, which keeps every embedded candidate.
func WithMinSemantic(threshold float64) Option {
	return func(s *Searcher) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%w: %v", ErrInvalidMinSemantic, threshold)
		}
		s.minSemantic = threshold
		return nil
	}
}

// WithCandidateLimit bounds how many candidates are fetched per search.
// Default is storage.DefaultCandidateLimit. Only candidates passing the
// query constraints and the filter count toward the bound.
func WithCandidateLimit(limit int) Option {
	return func(s *Searcher) error {
		if limit <= 0 {
			return fmt.Errorf("candidate limit must be positive, got %d", limit)
		}
		s.candidateLimit = limit
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	candidates storage.CandidateReader,
	embedder ai.Embedder,
	parser *query.Parser,
	opts ...Option,
) (*Searcher, error) {
	if candidates == nil {
		return nil, ErrCandidateReaderRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if parser == nil {
		return nil, ErrParserRequired
	}

	analyzer, err := NewAnalyzer()
	if err != nil {
		return nil, err
	}

	s := &Searcher{
		candidates:     candidates,
		embedder:       embedder,
		parser:         parser,
		analyzer:       analyzer,
		alpha:          DefaultAlpha,
		candidateLimit: storage.DefaultCandidateLimit,
		logger:         slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	if s.ranker, err = NewRanker(analyzer, s.alpha, s.logger); err != nil {
		return nil, err
	}
	return s, nil
}

// Search runs req through the full pipeline.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	return s.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor runs req and reports each stage to monitor.
//
// A blank query returns an empty response. Embedder failures never fail the
// search; they degrade it to keyword scoring. Invalid overrides, an invalid
// filter or a failed candidate fetch return an error.
func (s *Searcher) SearchWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) (*Response, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	text := strings.TrimSpace(req.Query)
	monitor.Start(text)

	mode := req.Mode
	if mode == "" {
		mode = core.SearchModeHybrid
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	offset := max(req.Offset, 0)

	resp := &Response{Query: text, Mode: mode, Results: []*core.SearchResult{}}
	if text == "" {
		monitor.Finish(resp.Results, false)
		return resp, nil
	}

	var program *filter.Program
	if req.Filter != "" {
		var err error
		if program, err = filter.Compile(req.Filter); err != nil {
			return nil, err
		}
	}

	constraints, err := s.constraints(text, req.Overrides)
	if err != nil {
		return nil, err
	}
	resp.Constraints = constraints
	monitor.AfterParse(constraints)

	scoreCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	embedText := constraints.Residual
	if embedText == "" {
		embedText = text
	}

	queryTerms := s.analyzer.Terms(embedText)
	admission := s.ranker.Admit(RankInput{Mode: mode, Constraints: constraints, QueryTerms: queryTerms})
	var failed atomic.Int64
	match := admission.Accepts
	if program != nil {
		passes := program.Predicate(&failed)
		match = func(org *core.Organization) bool {
			return admission.Accepts(org) && passes(org)
		}
	}

	var (
		vector     []float32
		embedErr   error
		candidates []*core.Organization
	)
	g, gctx := errgroup.WithContext(ctx)
	if mode.UsesSemantic() {
		g.Go(func() error {
			// Failures are captured, not returned, so they never cancel the fetch.
			vector, embedErr = s.embedder.EmbedText(scoreCtx, embedText)
			return nil
		})
	}
	g.Go(func() error {
		var err error
		candidates, err = s.candidates.FindCandidates(gctx, storage.CandidateFilter{
			State:   constraints.State,
			OrgType: constraints.OrgType,
			Match:   match,
			Limit:   s.candidateLimit,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("error fetching candidates", "err", err)
		return nil, err
	}
	monitor.AfterCandidateFetch(candidates)

	if mode.UsesSemantic() {
		if embedErr == nil && ai.IsZero(vector) {
			embedErr = fmt.Errorf("%w: empty query embedding", ai.ErrModelUnavailable)
		}
		if embedErr != nil {
			s.logger.Warn("query embedding failed, falling back to keyword scoring", "err", embedErr)
			resp.Degraded = true
			monitor.Degraded(embedErr)
			vector = nil
		} else {
			monitor.AfterEmbedding(vector)
		}
	}

	if program != nil {
		if n := failed.Load(); n > 0 {
			s.logger.Warn("filter evaluation failed for some candidates", "failed", n, "filter", program.Expression)
		}
		monitor.AfterFilter(len(candidates))
	}

	effective := mode
	if resp.Degraded {
		effective = core.SearchModeKeyword
	}

	ranked, partial := s.ranker.Rank(scoreCtx, RankInput{
		Mode:        effective,
		Constraints: constraints,
		QueryVector: vector,
		QueryTerms:  queryTerms,
		MinSemantic: s.minSemantic,
		Keep:        offset + limit,
	}, candidates)

	resp.Partial = partial
	resp.Results = Assemble(ranked, offset, limit)
	monitor.Finish(resp.Results, partial)

	return resp, nil
}

// constraints parses text, skipping extraction for overridden fields.
func (s *Searcher) constraints(text string, o Overrides) (core.QueryConstraints, error) {
	fields := query.FieldAll
	if o.State != "" {
		fields &^= query.FieldState
	}
	if o.CauseArea != "" {
		fields &^= query.FieldCauseArea
	}
	if o.OrgType != "" {
		fields &^= query.FieldOrgType
	}

	qc := s.parser.Parse(text, fields)

	if o.State != "" {
		state, ok := s.parser.ResolveState(o.State)
		if !ok {
			return qc, fmt.Errorf("%w: %q", ErrUnknownState, o.State)
		}
		qc.State = state
	}
	if o.CauseArea != "" {
		cause, ok := s.parser.ResolveCauseArea(o.CauseArea)
		if !ok {
			return qc, fmt.Errorf("%w: %q", ErrUnknownCauseArea, o.CauseArea)
		}
		qc.CauseArea = cause
	}
	if o.OrgType != "" {
		qc.OrgType = o.OrgType
	}
	return qc, nil
}
