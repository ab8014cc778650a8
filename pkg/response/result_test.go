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

package response

import (
	"bytes"
	"errors"
	"testing"
)

func TestTotalAndChunks(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		chunkSize int
		wantTotal uint8
	}{
		{"empty", 0, 64, 1},
		{"single_byte", 1, 64, 1},
		{"exact_multiple", 128, 64, 2},
		{"remainder", 300, 64, 5},
		{"max", 255 * 4, 4, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := make([]byte, tt.n)
			for i := range payload {
				payload[i] = byte(i * 7)
			}
			want := append([]byte(nil), payload...)

			r, err := New(payload, tt.chunkSize)
			if err != nil {
				t.Fatal(err)
			}
			if r.Total() != tt.wantTotal {
				t.Fatalf("total = %d, want %d", r.Total(), tt.wantTotal)
			}

			var joined []byte
			for i := 0; i < int(r.Total()); i++ {
				c, err := r.Chunk(uint8(i))
				if err != nil {
					t.Fatalf("chunk %d: %v", i, err)
				}
				if len(c) > tt.chunkSize {
					t.Errorf("chunk %d is %d bytes", i, len(c))
				}
				joined = append(joined, c...)
			}
			if !bytes.Equal(joined, want) {
				t.Error("concatenated chunks differ from payload")
			}
			if !r.IsLast(r.Total() - 1) {
				t.Error("last index not reported as last")
			}
		})
	}
}

func TestEmptyPayloadYieldsOneEmptyChunk(t *testing.T) {
	r, err := New(nil, 255)
	if err != nil {
		t.Fatal(err)
	}
	c, err := r.Chunk(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 0 {
		t.Errorf("expected empty chunk, got %d bytes", len(c))
	}
}

func TestLimits(t *testing.T) {
	if _, err := New(make([]byte, 256), 1); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if _, err := New(nil, 0); !errors.Is(err, ErrInvalidChunkSize) {
		t.Errorf("expected ErrInvalidChunkSize, got %v", err)
	}

	r, _ := New([]byte{1, 2, 3}, 2)
	if _, err := r.Chunk(2); !errors.Is(err, ErrChunkIndex) {
		t.Errorf("expected ErrChunkIndex, got %v", err)
	}
}

func TestZeroize(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	r, _ := New(payload, 2)
	r.Zeroize()
	if !bytes.Equal(payload, make([]byte, 4)) {
		t.Errorf("payload not wiped: %x", payload)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty result after zeroize, len %d", r.Len())
	}
}
