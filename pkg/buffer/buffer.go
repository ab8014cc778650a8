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

// Package buffer provides the fixed-capacity, bounds-checked byte store used
// to reassemble chunked device commands.
//
// A Buffer tracks three positions:
//
//	0 <= cursor <= length <= capacity
//
// Writes append at length and never grow past capacity. Reads consume from
// cursor and never pass length. Every operation that would break either
// inequality fails with a typed error and leaves the Buffer untouched.
package buffer

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds indicates a read past the declared payload length.
	ErrOutOfBounds = errors.New("buffer: read out of bounds")

	// ErrCapacity indicates a write past the fixed buffer capacity.
	ErrCapacity = errors.New("buffer: capacity exceeded")

	// ErrInvalidCapacity indicates a non-positive capacity was requested.
	ErrInvalidCapacity = errors.New("buffer: invalid capacity")
)

// BoundsError describes a rejected read.
type BoundsError struct {
	Offset    int
	Requested int
	Length    int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("buffer: read of %d bytes at offset %d exceeds length %d",
		e.Requested, e.Offset, e.Length)
}

func (e *BoundsError) Is(target error) bool {
	return target == ErrOutOfBounds
}

// CapacityError describes a rejected write.
type CapacityError struct {
	Length    int
	Requested int
	Capacity  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("buffer: appending %d bytes to %d would exceed capacity %d",
		e.Requested, e.Length, e.Capacity)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}

// Buffer is a fixed-capacity byte store with a read cursor.
// The zero value is not usable; create one with New.
type Buffer struct {
	data   []byte
	length int
	cursor int
}

// New allocates a Buffer able to hold capacity bytes.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Wrap returns a full Buffer reading data in place. data is not copied and
// must not change while the Buffer is in use.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data, length: len(data)}
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of valid bytes.
func (b *Buffer) Len() int { return b.length }

// Cursor returns the number of bytes consumed by reads.
func (b *Buffer) Cursor() int { return b.cursor }

// Remaining returns the number of valid bytes not yet consumed.
func (b *Buffer) Remaining() int { return b.length - b.cursor }

// Bytes returns a view of the valid bytes. The view aliases the buffer and
// must not outlive the next Reset.
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

// Append copies data at the current length.
func (b *Buffer) Append(data []byte) error {
	if len(data) > len(b.data)-b.length {
		return &CapacityError{Length: b.length, Requested: len(data), Capacity: len(b.data)}
	}
	copy(b.data[b.length:], data)
	b.length += len(data)
	return nil
}

// ReadSlice consumes n bytes and returns a view of them.
func (b *Buffer) ReadSlice(n int) ([]byte, error) {
	if n < 0 || n > b.length-b.cursor {
		return nil, &BoundsError{Offset: b.cursor, Requested: n, Length: b.length}
	}
	out := b.data[b.cursor : b.cursor+n : b.cursor+n]
	b.cursor += n
	return out, nil
}

// ReadU16 consumes a big-endian uint16.
func (b *Buffer) ReadU16() (uint16, error) {
	raw, err := b.ReadSlice(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

// Seek moves the cursor to an absolute offset within the valid bytes.
func (b *Buffer) Seek(offset int) error {
	if offset < 0 || offset > b.length {
		return &BoundsError{Offset: offset, Requested: 0, Length: b.length}
	}
	b.cursor = offset
	return nil
}

// Rewind moves the cursor back to the start without touching the data.
func (b *Buffer) Rewind() {
	b.cursor = 0
}

// Reset wipes the valid region and returns the buffer to empty.
func (b *Buffer) Reset() {
	if b.length > 0 {
		zeros := make([]byte, b.length)
		subtle.ConstantTimeCopy(1, b.data[:b.length], zeros)
	}
	b.length = 0
	b.cursor = 0
}
