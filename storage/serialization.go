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

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/donorfinder/core"
)

// organizationVersion prefixes every serialized organization.
const organizationVersion byte = 1

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	return core.ID(v), err
}

// MarshalVector serializes an embedding as a length followed by raw float32s.
func MarshalVector(v []float32) []byte {
	buf := make([]byte, vectorSize(v))
	marshalVector(v, buf)
	return buf
}

// UnmarshalVector deserializes an embedding written by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	d := &decoder{bs: data}
	v := d.vector()
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return v, nil
}

// MarshalOrganization serializes an Organization to bytes.
func MarshalOrganization(org *core.Organization) []byte {
	strs := orgStrings(org)
	size := 1 + varint.Uint64.Size(uint64(org.Id)) + varint.Int64.Size(int64(org.Subsection)) +
		raw.Uint64.Size(org.EmbeddedFingerprint) + vectorSize(org.Embedding)
	for _, s := range strs {
		size += ord.String.Size(s)
	}
	times := []int64{micros(org.InsertedAt), micros(org.UpdatedAt), micros(org.EmbeddedAt)}
	for _, t := range times {
		size += varint.Int64.Size(t)
	}

	buf := make([]byte, size)
	buf[0] = organizationVersion
	n := 1
	n += varint.Uint64.Marshal(uint64(org.Id), buf[n:])
	for _, s := range strs {
		n += ord.String.Marshal(s, buf[n:])
	}
	n += varint.Int64.Marshal(int64(org.Subsection), buf[n:])
	n += marshalVector(org.Embedding, buf[n:])
	n += raw.Uint64.Marshal(org.EmbeddedFingerprint, buf[n:])
	for _, t := range times {
		n += varint.Int64.Marshal(t, buf[n:])
	}
	return buf[:n]
}

// UnmarshalOrganization deserializes an Organization from bytes.
func UnmarshalOrganization(data []byte) (*core.Organization, error) {
	if len(data) == 0 {
		return nil, ErrTruncatedData
	}
	if data[0] != organizationVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	d := &decoder{bs: data, n: 1}
	org := &core.Organization{Id: core.ID(d.uint64())}
	org.StrEIN = d.string()
	org.Name = d.string()
	org.SubName = d.string()
	org.Address = d.string()
	org.City = d.string()
	org.State = d.string()
	org.Zipcode = d.string()
	org.NTEECode = d.string()
	org.OrgType = core.OrgType(d.string())
	org.GuidestarURL = d.string()
	org.NCCSURL = d.string()
	org.SearchableText = d.string()
	org.Subsection = int(d.int64())
	org.Embedding = d.vector()
	org.EmbeddedFingerprint = d.fixed64()
	org.InsertedAt = d.time()
	org.UpdatedAt = d.time()
	org.EmbeddedAt = d.time()
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return org, nil
}

// orgStrings lists string fields in wire order.
func orgStrings(org *core.Organization) []string {
	return []string{
		org.StrEIN, org.Name, org.SubName, org.Address, org.City, org.State,
		org.Zipcode, org.NTEECode, string(org.OrgType), org.GuidestarURL,
		org.NCCSURL, org.SearchableText,
	}
}

func vectorSize(v []float32) int {
	size := varint.Int64.Size(int64(len(v)))
	for _, x := range v {
		size += raw.Float32.Size(x)
	}
	return size
}

func marshalVector(v []float32, bs []byte) int {
	n := varint.Int64.Marshal(int64(len(v)), bs)
	for _, x := range v {
		n += raw.Float32.Marshal(x, bs[n:])
	}
	return n
}

// Zero times are stored as 0 so they survive a round trip as time.Time{}.
func micros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// decoder reads fields in sequence and keeps the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) rest() ([]byte, bool) {
	if d.err != nil {
		return nil, false
	}
	if d.n >= len(d.bs) {
		d.err = ErrTruncatedData
		return nil, false
	}
	return d.bs[d.n:], true
}

func (d *decoder) string() string {
	bs, ok := d.rest()
	if !ok {
		return ""
	}
	v, n, err := ord.String.Unmarshal(bs)
	d.n += n
	d.err = err
	return v
}

func (d *decoder) uint64() uint64 {
	bs, ok := d.rest()
	if !ok {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(bs)
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int64() int64 {
	bs, ok := d.rest()
	if !ok {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(bs)
	d.n += n
	d.err = err
	return v
}

func (d *decoder) fixed64() uint64 {
	bs, ok := d.rest()
	if !ok {
		return 0
	}
	v, n, err := raw.Uint64.Unmarshal(bs)
	d.n += n
	d.err = err
	return v
}

func (d *decoder) vector() []float32 {
	length := d.int64()
	if d.err != nil || length == 0 {
		return nil
	}
	if length < 0 || length > int64(len(d.bs)-d.n) {
		d.err = ErrTruncatedData
		return nil
	}
	v := make([]float32, length)
	for i := range v {
		bs, ok := d.rest()
		if !ok {
			return nil
		}
		x, n, err := raw.Float32.Unmarshal(bs)
		if err != nil {
			d.err = err
			return nil
		}
		d.n += n
		v[i] = x
	}
	return v
}

func (d *decoder) time() time.Time {
	us := d.int64()
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
