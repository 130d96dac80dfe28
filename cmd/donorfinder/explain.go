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

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/search"
)

// explainMonitor prints every search stage with the time since the search began.
type explainMonitor struct {
	w       io.Writer
	started time.Time
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func newExplainMonitor(w io.Writer) *explainMonitor {
	return &explainMonitor{w: w}
}

func (m *explainMonitor) printf(format string, args ...any) {
	fmt.Fprintf(m.w, "[%8s] ", time.Since(m.started).Round(time.Microsecond))
	fmt.Fprintf(m.w, format+"\n", args...)
}

func (m *explainMonitor) Start(query string) {
	m.started = time.Now()
	m.printf("query: %q", query)
}

func (m *explainMonitor) AfterParse(qc core.QueryConstraints) {
	cause := "-"
	if qc.CauseArea != nil {
		cause = qc.CauseArea.Code
		if len(qc.CauseArea.Keywords) > 0 {
			cause += " (" + strings.Join(qc.CauseArea.Keywords, ", ") + ")"
		}
	}
	m.printf("parsed: state=%s cause=%s org_type=%s residual=%q",
		orDash(qc.State), cause, orDash(string(qc.OrgType)), qc.Residual)
}

func (m *explainMonitor) AfterEmbedding(vector []float32) {
	m.printf("embedded query (%d dimensions)", len(vector))
}

func (m *explainMonitor) Degraded(err error) {
	m.printf("embedding failed, ranking by keywords: %v", err)
}

func (m *explainMonitor) AfterCandidateFetch(candidates []*core.Organization) {
	m.printf("fetched %d candidates", len(candidates))
}

func (m *explainMonitor) AfterFilter(remaining int) {
	m.printf("%d candidates pass the filter", remaining)
}

func (m *explainMonitor) Finish(results []*core.SearchResult, partial bool) {
	if partial {
		m.printf("ranked %d results (partial)", len(results))
		return
	}
	m.printf("ranked %d results", len(results))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
