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

// Package wire parses and builds the signing request payload exchanged
// between host and device.
//
// Layout, all lengths big-endian:
//
//	u16 len || randomizer || u16 len || signing package || 32-byte tx hash
//
// Nothing may follow the hash.
package wire

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-frostsigner/pkg/buffer"
	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
)

var (
	// ErrInvalidRandomizer indicates the randomizer field did not decode.
	ErrInvalidRandomizer = errors.New("wire: invalid randomizer")

	// ErrInvalidSigningPackage indicates the signing package field did not decode.
	ErrInvalidSigningPackage = errors.New("wire: invalid signing package")

	// ErrInvalidPayload indicates a structural problem: a length field
	// pointing past the payload, a short hash, or trailing bytes.
	ErrInvalidPayload = errors.New("wire: invalid payload")
)

// Decoder turns the opaque wire fields into signing types. frostsign.Codec
// implements it.
type Decoder interface {
	DeserializeRandomizer(data []byte) (*frostsign.Randomizer, error)
	DeserializeSigningPackage(data []byte) (*frostsign.SigningPackage, error)
}

// SigningRequest is a parsed signing payload.
type SigningRequest struct {
	Randomizer     *frostsign.Randomizer
	SigningPackage *frostsign.SigningPackage
	TxHash         session.TxHash
}

// Parse decodes the signing payload held in buf from the start. On failure
// the cursor is rewound so the buffer is left as it was found.
func Parse(buf *buffer.Buffer, dec Decoder) (*SigningRequest, error) {
	buf.Rewind()
	req, err := parse(buf, dec)
	if err != nil {
		buf.Rewind()
		return nil, err
	}
	return req, nil
}

func parse(buf *buffer.Buffer, dec Decoder) (*SigningRequest, error) {
	rawRandomizer, err := readField(buf, "randomizer")
	if err != nil {
		return nil, err
	}
	randomizer, err := dec.DeserializeRandomizer(rawRandomizer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRandomizer, err)
	}

	rawPackage, err := readField(buf, "signing package")
	if err != nil {
		return nil, err
	}
	pkg, err := dec.DeserializeSigningPackage(rawPackage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigningPackage, err)
	}

	rawHash, err := buf.ReadSlice(session.TxHashLen)
	if err != nil {
		return nil, fmt.Errorf("%w: tx hash: %w", ErrInvalidPayload, err)
	}
	if rest := buf.Remaining(); rest != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidPayload, rest)
	}

	req := &SigningRequest{Randomizer: randomizer, SigningPackage: pkg}
	copy(req.TxHash[:], rawHash)
	return req, nil
}

func readField(buf *buffer.Buffer, name string) ([]byte, error) {
	n, err := buf.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: %s length: %w", ErrInvalidPayload, name, err)
	}
	raw, err := buf.ReadSlice(int(n))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, name, err)
	}
	return raw, nil
}
