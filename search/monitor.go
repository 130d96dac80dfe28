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
	"github.com/poiesic/donorfinder/core"
)

// SearchMonitor receives a callback at each stage of a search.
type SearchMonitor interface {
	Start(query string)
	AfterParse(constraints core.QueryConstraints)
	AfterEmbedding(vector []float32)
	Degraded(err error)
	AfterCandidateFetch(candidates []*core.Organization)
	AfterFilter(remaining int)
	Finish(results []*core.SearchResult, partial bool)
}

type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                             {}
func (n *noopMonitor) AfterParse(_ core.QueryConstraints)         {}
func (n *noopMonitor) AfterEmbedding(_ []float32)                 {}
func (n *noopMonitor) Degraded(_ error)                           {}
func (n *noopMonitor) AfterCandidateFetch(_ []*core.Organization) {}
func (n *noopMonitor) AfterFilter(_ int)                          {}
func (n *noopMonitor) Finish(_ []*core.SearchResult, _ bool)      {}
