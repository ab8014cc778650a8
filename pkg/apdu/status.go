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

package apdu

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-frostsigner/pkg/handler"
)

// StatusWord is the two-byte trailer of every response.
type StatusWord uint16

// Status words.
const (
	SWOK                    StatusWord = 0x9000
	SWDeny                  StatusWord = 0x6985
	SWCanceled              StatusWord = 0x6986
	SWWrongP1P2             StatusWord = 0x6A86
	SWWrongLength           StatusWord = 0x6700
	SWInsNotSupported       StatusWord = 0x6D00
	SWClaNotSupported       StatusWord = 0x6E00
	SWInternal              StatusWord = 0x6F00
	SWCapacity              StatusWord = 0xB004
	SWTxSignFail            StatusWord = 0xB008
	SWInvalidRandomizer     StatusWord = 0xB021
	SWInvalidSigningPackage StatusWord = 0xB022
	SWInvalidPayload        StatusWord = 0xB023
	SWUnexpectedChunk       StatusWord = 0xB024
	SWInvalidTxHash         StatusWord = 0xB025
	SWStore                 StatusWord = 0xB026
	SWNoResult              StatusWord = 0xB027
)

func (sw StatusWord) String() string {
	return fmt.Sprintf("0x%04X", uint16(sw))
}

// Framing errors raised by the dispatcher.
var (
	ErrClaNotSupported = errors.New("apdu: class not supported")
	ErrInsNotSupported = errors.New("apdu: instruction not supported")
	ErrWrongP1P2       = errors.New("apdu: wrong P1/P2")
	ErrWrongLength     = errors.New("apdu: wrong data length")
)

// statusTable is checked in order; the first match wins. Store failures
// come before the ceremony errors that may wrap them.
var statusTable = []struct {
	err error
	sw  StatusWord
}{
	{handler.ErrUserDenied, SWDeny},
	{handler.ErrConfirmationCanceled, SWCanceled},
	{handler.ErrStore, SWStore},
	{handler.ErrInvalidTxHash, SWInvalidTxHash},
	{handler.ErrInvalidRandomizer, SWInvalidRandomizer},
	{handler.ErrInvalidSigningPackage, SWInvalidSigningPackage},
	{handler.ErrInvalidPayload, SWInvalidPayload},
	{handler.ErrOverrun, SWInvalidPayload},
	{handler.ErrCapacity, SWCapacity},
	{handler.ErrUnexpectedChunk, SWUnexpectedChunk},
	{handler.ErrNoResult, SWNoResult},
	{handler.ErrTxSignFail, SWTxSignFail},
	{ErrClaNotSupported, SWClaNotSupported},
	{ErrInsNotSupported, SWInsNotSupported},
	{ErrWrongP1P2, SWWrongP1P2},
	{ErrWrongLength, SWWrongLength},
	{ErrLengthMismatch, SWWrongLength},
	{ErrShortCommand, SWWrongLength},
}

// StatusFromError maps a handler or framing error to its status word.
// Anything unrecognized is SWInternal.
func StatusFromError(err error) StatusWord {
	if err == nil {
		return SWOK
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.sw
		}
	}
	return SWInternal
}

// StatusError is a non-success status word received by the host.
type StatusError struct {
	SW StatusWord
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apdu: device returned status %s", e.SW)
}

// Is matches the sentinel the status word was produced from, so host code
// can test errors.Is(err, handler.ErrUserDenied).
func (e *StatusError) Is(target error) bool {
	for _, entry := range statusTable {
		if entry.sw == e.SW && entry.err == target {
			return true
		}
	}
	return false
}
