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

import "github.com/poiesic/donorfinder/core"

// Assemble turns a ranking into the page [offset, offset+limit) of results,
// numbering ranks from 1 across pages. The order of scored is kept as is.
func Assemble(scored []*core.ScoredCandidate, offset, limit int) []*core.SearchResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(scored) || limit <= 0 {
		return []*core.SearchResult{}
	}
	end := min(offset+limit, len(scored))

	results := make([]*core.SearchResult, 0, end-offset)
	for i, sc := range scored[offset:end] {
		results = append(results, &core.SearchResult{
			Rank:          offset + i + 1,
			Organization:  sc.Organization,
			SemanticScore: sc.SemanticScore,
			KeywordScore:  sc.KeywordScore,
			FinalScore:    sc.FinalScore,
		})
	}
	return results
}
