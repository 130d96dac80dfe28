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

import "errors"

var (
	// ErrCandidateReaderRequired is returned when a candidate reader is not provided.
	ErrCandidateReaderRequired = errors.New("candidate reader required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrParserRequired is returned when a query parser is not provided.
	ErrParserRequired = errors.New("query parser required")

	// ErrAnalyzerRequired is returned when a keyword analyzer is not provided.
	ErrAnalyzerRequired = errors.New("keyword analyzer required")

	// ErrInvalidAlpha is returned for a fusion weight outside [0, 1].
	ErrInvalidAlpha = errors.New("alpha must be between 0 and 1")

	// ErrInvalidMinSemantic is returned for a semantic threshold outside [0, 1].
	ErrInvalidMinSemantic = errors.New("minimum semantic score must be between 0 and 1")

	// ErrUnknownState is returned for a state override that names no state.
	ErrUnknownState = errors.New("unknown state")

	// ErrUnknownCauseArea is returned for a cause-area override that resolves to nothing.
	ErrUnknownCauseArea = errors.New("unknown cause area")
)
