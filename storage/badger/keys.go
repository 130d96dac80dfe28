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

package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/donorfinder/core"
)

// Key prefixes for different data types
const (
	orgPrefix      = "org"
	orgStatePrefix = "orgst"
)

// makeOrgKey generates a key for an organization by ID.
// IDs are zero padded so keys sort in ID order.
func makeOrgKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%020d", orgPrefix, uint64(id)))
}

// orgKeyPrefix matches every primary organization key and no index key.
func orgKeyPrefix() []byte {
	return []byte(orgPrefix + ":")
}

// makeOrgStateKey generates a composite key for the state index.
// Format: prefix:state:id
func makeOrgStateKey(state string, id core.ID) []byte {
	prefix := makePartialOrgStateKey(state)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialOrgStateKey generates a partial key for state queries.
func makePartialOrgStateKey(state string) []byte {
	return []byte(orgStatePrefix + ":" + state + ":")
}
