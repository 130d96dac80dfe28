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

// Package lexicon holds the static lookup tables of the search engine:
// geographic aliases, NTEE cause-area expansions and organization-type
// surface forms.
//
// The tables are built once from YAML datasets embedded in the binary and
// are read-only afterwards, so a single Lexicon can be shared by every
// goroutine. All lookups are case-insensitive and ignore punctuation.
package lexicon
