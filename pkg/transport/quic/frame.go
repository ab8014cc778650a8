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

// Package quic carries device exchanges over QUIC.
//
// Each exchange uses its own bidirectional stream: the client writes one
// length-prefixed ExchangeRequest and closes its side, the server answers
// with one length-prefixed ExchangeResponse. Failures before the device
// runs are reported by resetting the stream with an error code.
package quic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

// NextProto is the ALPN identifier negotiated by both sides.
const NextProto = "frostsigner-apdu"

// Stream error codes sent when the server rejects an exchange.
const (
	codeInvalidMessage quic.StreamErrorCode = 0x101
	codeTooLarge       quic.StreamErrorCode = 0x102
	codeRateLimited    quic.StreamErrorCode = 0x103
)

// codeFor maps a server-side failure to a stream error code.
func codeFor(err error) quic.StreamErrorCode {
	switch {
	case errors.Is(err, transport.ErrMessageTooLarge):
		return codeTooLarge
	case errors.Is(err, transport.ErrRateLimited):
		return codeRateLimited
	default:
		return codeInvalidMessage
	}
}

// errorFor maps a stream error code back to a transport error.
func errorFor(code quic.StreamErrorCode) error {
	switch code {
	case codeTooLarge:
		return transport.ErrMessageTooLarge
	case codeRateLimited:
		return transport.ErrRateLimited
	case codeInvalidMessage:
		return transport.ErrInvalidMessage
	default:
		return fmt.Errorf("%w: stream reset with code 0x%x", transport.ErrConnectionFailed, uint64(code))
	}
}

// readFrame reads a 4 byte big-endian length followed by that many bytes.
func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if uint64(length) > uint64(maxSize) {
		return nil, transport.ErrMessageTooLarge
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// writeFrame writes data with its length prefix in a single call.
func writeFrame(w io.Writer, data []byte, maxSize int) error {
	if len(data) > maxSize {
		return transport.ErrMessageTooLarge
	}
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data))) //#nosec G115 -- bounded by maxSize
	copy(frame[4:], data)
	_, err := w.Write(frame)
	return err
}
