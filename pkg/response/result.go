// SPDX-License-Identifier: Apache-2.0
//
// Copyright 2025 Jeremy Hahn
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

// Package response holds a command result and serves it back to the host
// in fixed-size chunks.
package response

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// DefaultChunkSize matches the maximum APDU response data length the host
// transports are expected to carry.
const DefaultChunkSize = 255

// MaxChunks is the number of chunks a one-byte count can announce.
const MaxChunks = 255

var (
	// ErrTooLarge indicates a payload that needs more than MaxChunks chunks.
	ErrTooLarge = errors.New("response: payload needs more than 255 chunks")

	// ErrChunkIndex indicates a request for a chunk that does not exist.
	ErrChunkIndex = errors.New("response: chunk index out of range")

	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("response: invalid chunk size")
)

// Result is a completed command output awaiting retrieval.
type Result struct {
	payload   []byte
	chunkSize int
	total     uint8
}

// New takes ownership of payload. Total is max(1, ceil(len/chunkSize)); an
// empty payload is served as a single empty chunk.
func New(payload []byte, chunkSize int) (*Result, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	n := (len(payload) + chunkSize - 1) / chunkSize
	if n == 0 {
		n = 1
	}
	if n > MaxChunks {
		return nil, fmt.Errorf("%w: %d bytes at %d per chunk", ErrTooLarge, len(payload), chunkSize)
	}
	return &Result{payload: payload, chunkSize: chunkSize, total: uint8(n)}, nil
}

// Total returns the number of chunks.
func (r *Result) Total() uint8 { return r.total }

// Len returns the payload length.
func (r *Result) Len() int { return len(r.payload) }

// Chunk returns a copy of chunk i. Chunks are sliced on demand.
func (r *Result) Chunk(i uint8) ([]byte, error) {
	if i >= r.total {
		return nil, fmt.Errorf("%w: %d of %d", ErrChunkIndex, i, r.total)
	}
	start := int(i) * r.chunkSize
	end := start + r.chunkSize
	if start > len(r.payload) {
		start = len(r.payload)
	}
	if end > len(r.payload) {
		end = len(r.payload)
	}
	return append([]byte{}, r.payload[start:end]...), nil
}

// IsLast reports whether i is the final chunk index.
func (r *Result) IsLast(i uint8) bool { return i == r.total-1 }

// Zeroize wipes the payload.
func (r *Result) Zeroize() {
	if r == nil || len(r.payload) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, r.payload, make([]byte, len(r.payload)))
	r.payload = nil
}
