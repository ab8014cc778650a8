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

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-frostsigner/pkg/session"
)

// MaxChunks is the number of chunks addressable by a one-byte index.
const MaxChunks = 256

var (
	// ErrFieldTooLong indicates a field that does not fit its u16 length prefix.
	ErrFieldTooLong = errors.New("wire: field exceeds 65535 bytes")

	// ErrTooManyChunks indicates a payload that needs more than MaxChunks chunks.
	ErrTooManyChunks = errors.New("wire: payload needs too many chunks")
)

// Encode builds a signing payload from already-serialized fields.
func Encode(randomizer, signingPackage, txHash []byte) ([]byte, error) {
	if len(randomizer) > 0xFFFF || len(signingPackage) > 0xFFFF {
		return nil, ErrFieldTooLong
	}
	if len(txHash) != session.TxHashLen {
		return nil, fmt.Errorf("%w: tx hash is %d bytes", ErrInvalidPayload, len(txHash))
	}
	out := make([]byte, 0, 4+len(randomizer)+len(signingPackage)+len(txHash))
	out = binary.BigEndian.AppendUint16(out, uint16(len(randomizer)))
	out = append(out, randomizer...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(signingPackage)))
	out = append(out, signingPackage...)
	return append(out, txHash...), nil
}

// SplitChunks cuts payload into chunks of at most size bytes. Every chunk
// carries the total length; the device reads it from chunk 0 only. An empty
// payload still produces one chunk.
func SplitChunks(payload []byte, size int) ([]session.Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("wire: invalid chunk size %d", size)
	}
	n := (len(payload) + size - 1) / size
	if n == 0 {
		n = 1
	}
	if n > MaxChunks {
		return nil, fmt.Errorf("%w: %d", ErrTooManyChunks, n)
	}
	chunks := make([]session.Chunk, n)
	for i := range chunks {
		start := i * size
		end := start + size
		if end > len(payload) {
			end = len(payload)
		}
		chunks[i] = session.Chunk{Index: uint8(i), Declared: len(payload), Data: payload[start:end]}
	}
	return chunks, nil
}
