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
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"
)

// Analyzer reduces text to the terms used for keyword scoring: lower case,
// English stop words removed, possessives stripped and words stemmed, so
// "Schools" and "school's" both become "school".
type Analyzer struct {
	analyzer analysis.Analyzer
}

// NewAnalyzer builds the English analyzer.
func NewAnalyzer() (*Analyzer, error) {
	a, err := registry.NewCache().AnalyzerNamed(en.AnalyzerName)
	if err != nil {
		return nil, err
	}
	return &Analyzer{analyzer: a}, nil
}

// Terms returns the distinct terms of text in order of first appearance.
func (a *Analyzer) Terms(text string) []string {
	if text == "" {
		return nil
	}
	stream := a.analyzer.Analyze([]byte(text))
	seen := make(map[string]struct{}, len(stream))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// TermSet returns the terms of text as a set.
func (a *Analyzer) TermSet(text string) map[string]struct{} {
	terms := a.Terms(text)
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// Overlap returns the fraction of query terms present in doc, in [0, 1].
// No query terms yields 0.
func Overlap(query []string, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for _, t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
