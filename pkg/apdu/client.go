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
	"context"
	"encoding/binary"
	"fmt"

	"github.com/jeremyhahn/go-frostsigner/pkg/handler"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	"github.com/jeremyhahn/go-frostsigner/pkg/wire"
)

// DefaultChunkSize leaves room for the declared length in chunk 0.
const DefaultChunkSize = MaxDataLen - 2

// Client drives a device from the host side.
type Client struct {
	ex        transport.Exchanger
	chunkSize int
}

// NewClient returns a Client sending commands through ex. chunkSize of 0
// selects DefaultChunkSize.
func NewClient(ex transport.Exchanger, chunkSize int) (*Client, error) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < 1 || chunkSize > DefaultChunkSize {
		return nil, fmt.Errorf("apdu: chunk size %d out of range", chunkSize)
	}
	return &Client{ex: ex, chunkSize: chunkSize}, nil
}

// Transmit sends cmd and returns the response data. A non-success status
// word is returned as a *StatusError.
func (c *Client) Transmit(ctx context.Context, cmd *Command) ([]byte, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, err
	}
	out, err := c.ex.Exchange(ctx, raw)
	if err != nil {
		return nil, err
	}
	resp, err := ParseResponse(out)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", InstructionName(cmd.INS), err)
	}
	return resp.Data, nil
}

// Version queries the firmware version.
func (c *Client) Version(ctx context.Context) (*handler.VersionInfo, error) {
	data, err := c.Transmit(ctx, NewCommand(INSGetVersion, 0, 0, nil))
	if err != nil {
		return nil, err
	}
	return decodeVersion(data)
}

// Identity queries the device identifier and public keys.
func (c *Client) Identity(ctx context.Context) (*handler.IdentityInfo, error) {
	data, err := c.Transmit(ctx, NewCommand(INSIdentity, 0, 0, nil))
	if err != nil {
		return nil, err
	}
	return decodeIdentity(data)
}

// Review asks the device to show hash and summary for approval.
func (c *Client) Review(ctx context.Context, hash session.TxHash, summary string) error {
	data := append(append([]byte(nil), hash[:]...), summary...)
	_, err := c.Transmit(ctx, NewCommand(INSReviewTx, 0, 0, data))
	return err
}

// Commit fetches the device commitments for hash.
func (c *Client) Commit(ctx context.Context, hash session.TxHash) ([]byte, error) {
	return c.Transmit(ctx, NewCommand(INSCommit, 0, 0, hash[:]))
}

// Sign sends a signing payload built with wire.Encode and returns the
// serialized signature share.
func (c *Client) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	data, err := c.sendChunked(ctx, INSSign, payload)
	if err != nil {
		return nil, err
	}
	return c.drain(ctx, data)
}

// Backup requests an encrypted key backup.
func (c *Client) Backup(ctx context.Context) ([]byte, error) {
	data, err := c.Transmit(ctx, NewCommand(INSBackupKeys, 0, 0, nil))
	if err != nil {
		return nil, err
	}
	return c.drain(ctx, data)
}

// Restore sends an encrypted backup to the device.
func (c *Client) Restore(ctx context.Context, blob []byte) error {
	_, err := c.sendChunked(ctx, INSRestoreKeys, blob)
	return err
}

// GetResult fetches result chunk i.
func (c *Client) GetResult(ctx context.Context, i uint8) ([]byte, error) {
	return c.Transmit(ctx, NewCommand(INSGetResult, i, 0, nil))
}

// sendChunked streams payload and returns the data of the final response.
func (c *Client) sendChunked(ctx context.Context, ins byte, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrDataTooLong, len(payload))
	}
	chunks, err := wire.SplitChunks(payload, c.chunkSize)
	if err != nil {
		return nil, err
	}
	var last []byte
	for _, ch := range chunks {
		data := ch.Data
		if ch.Index == 0 {
			data = binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(ch.Data)), uint16(ch.Declared))
			data = append(data, ch.Data...)
		}
		last, err = c.Transmit(ctx, NewCommand(ins, ch.Index, 0, data))
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

// drain reads every result chunk announced by a one-byte count.
func (c *Client) drain(ctx context.Context, announce []byte) ([]byte, error) {
	if len(announce) != 1 {
		return nil, fmt.Errorf("%w: expected a chunk count, got %d bytes", ErrWrongLength, len(announce))
	}
	var out []byte
	for i := 0; i < int(announce[0]); i++ {
		chunk, err := c.GetResult(ctx, uint8(i))
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}
