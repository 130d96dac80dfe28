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

package onnx

// MeanPool averages token embeddings over the positions whose attention
// mask is set. hidden is laid out as [seqLen][dims] in row-major order.
func MeanPool(hidden []float32, mask []int64, dims int) []float32 {
	pooled := make([]float32, dims)
	var count float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[t*dims : (t+1)*dims]
		for d, x := range row {
			pooled[d] += x
		}
		count++
	}
	if count == 0 {
		return pooled
	}
	for d := range pooled {
		pooled[d] /= count
	}
	return pooled
}

// truncate shortens a token sequence to maxLen, keeping the final special token.
func truncate(seq []int64, maxLen int) []int64 {
	if maxLen <= 1 || len(seq) <= maxLen {
		return seq
	}
	out := make([]int64, maxLen)
	copy(out, seq[:maxLen-1])
	out[maxLen-1] = seq[len(seq)-1]
	return out
}

func toInt64(xs []int) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}
