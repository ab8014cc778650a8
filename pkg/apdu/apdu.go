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

// Package apdu frames device commands ISO 7816-4 style and maps them onto
// the handler.
//
// A command is CLA INS P1 P2 Lc Data with a one-byte Lc, so a single
// command carries at most 255 data bytes. A response is Data followed by a
// two-byte status word.
package apdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CLA is the class byte every command carries.
const CLA byte = 0xE0

// MaxDataLen is the largest command data field.
const MaxDataLen = 255

// HeaderLen is the length of CLA INS P1 P2 Lc.
const HeaderLen = 5

// Instruction codes.
const (
	INSGetVersion  byte = 0x00
	INSIdentity    byte = 0x10
	INSReviewTx    byte = 0x14
	INSSign        byte = 0x15
	INSCommit      byte = 0x16
	INSBackupKeys  byte = 0x19
	INSRestoreKeys byte = 0x1A
	INSGetResult   byte = 0x1B
)

// instructionNames labels instructions in logs and metrics.
var instructionNames = map[byte]string{
	INSGetVersion:  "get_version",
	INSIdentity:    "identity",
	INSReviewTx:    "review",
	INSSign:        "sign",
	INSCommit:      "commit",
	INSBackupKeys:  "backup",
	INSRestoreKeys: "restore",
	INSGetResult:   "get_result",
}

// InstructionName returns a readable name for ins.
func InstructionName(ins byte) string {
	if name, ok := instructionNames[ins]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", ins)
}

var (
	// ErrShortCommand indicates fewer than HeaderLen bytes.
	ErrShortCommand = errors.New("apdu: command shorter than header")

	// ErrLengthMismatch indicates Lc disagrees with the data present.
	ErrLengthMismatch = errors.New("apdu: data length does not match Lc")

	// ErrDataTooLong indicates data that does not fit a one-byte Lc.
	ErrDataTooLong = errors.New("apdu: data exceeds 255 bytes")

	// ErrShortResponse indicates a response without a status word.
	ErrShortResponse = errors.New("apdu: response shorter than status word")
)

// Command is a device command.
type Command struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
}

// NewCommand returns a command with the default class byte.
func NewCommand(ins, p1, p2 byte, data []byte) *Command {
	return &Command{CLA: CLA, INS: ins, P1: p1, P2: p2, Data: data}
}

// ParseCommand decodes raw. An absent Lc is read as empty data. Data
// aliases raw.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) < HeaderLen-1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortCommand, len(raw))
	}
	cmd := &Command{CLA: raw[0], INS: raw[1], P1: raw[2], P2: raw[3]}
	if len(raw) == HeaderLen-1 {
		return cmd, nil
	}
	lc := int(raw[4])
	if len(raw)-HeaderLen != lc {
		return nil, fmt.Errorf("%w: Lc %d, %d bytes", ErrLengthMismatch, lc, len(raw)-HeaderLen)
	}
	cmd.Data = raw[HeaderLen:]
	return cmd, nil
}

// Bytes encodes c.
func (c *Command) Bytes() ([]byte, error) {
	if len(c.Data) > MaxDataLen {
		return nil, fmt.Errorf("%w: %d", ErrDataTooLong, len(c.Data))
	}
	out := make([]byte, 0, HeaderLen+len(c.Data))
	out = append(out, c.CLA, c.INS, c.P1, c.P2, byte(len(c.Data)))
	return append(out, c.Data...), nil
}

// Response is a device reply.
type Response struct {
	Data []byte
	SW   StatusWord
}

// Bytes encodes r as Data || SW.
func (r *Response) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return binary.BigEndian.AppendUint16(out, uint16(r.SW))
}

// ParseResponse decodes raw. Data aliases raw.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(raw))
	}
	n := len(raw) - 2
	return &Response{Data: raw[:n], SW: StatusWord(binary.BigEndian.Uint16(raw[n:]))}, nil
}

// Err returns nil for SWOK and a *StatusError otherwise.
func (r *Response) Err() error {
	if r.SW == SWOK {
		return nil
	}
	return &StatusError{SW: r.SW}
}
