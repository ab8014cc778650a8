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
	"sync"

	"github.com/jeremyhahn/go-frostsigner/pkg/handler"
	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/metrics"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
)

// Dispatcher decodes commands and routes them to a handler.Device. It
// implements transport.Processor. Commands are processed one at a time.
type Dispatcher struct {
	mu      sync.Mutex
	device  *handler.Device
	logger  logging.Logger
	metrics *metrics.Collector
}

// NewDispatcher returns a Dispatcher for device. logger and m may be nil.
func NewDispatcher(device *handler.Device, logger logging.Logger, m *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Dispatcher{device: device, logger: logger, metrics: m}
}

// Process handles one raw command and returns the encoded response.
func (d *Dispatcher) Process(ctx context.Context, raw []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd, err := ParseCommand(raw)
	if err != nil {
		d.logger.Error("malformed command: %v", err)
		d.abortTransfer()
		return (&Response{SW: StatusFromError(err)}).Bytes()
	}

	data, err := d.dispatch(ctx, cmd)
	sw := StatusFromError(err)
	name := InstructionName(cmd.INS)
	d.metrics.RecordCommand(name, uint16(sw))
	if err != nil {
		d.logger.Error("%s: status %s: %v", name, sw, err)
		return (&Response{SW: sw}).Bytes()
	}
	d.logger.Debug("%s: %d bytes out", name, len(data))
	return (&Response{Data: data, SW: SWOK}).Bytes()
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *Command) ([]byte, error) {
	if cmd.CLA != CLA {
		return nil, fmt.Errorf("%w: 0x%02X", ErrClaNotSupported, cmd.CLA)
	}

	switch cmd.INS {
	case INSGetVersion:
		if err := noParams(cmd); err != nil {
			return nil, err
		}
		return encodeVersion(d.device.Version()), nil

	case INSIdentity:
		if err := noParams(cmd); err != nil {
			return nil, err
		}
		info, err := d.device.Identity()
		if err != nil {
			return nil, err
		}
		return encodeIdentity(info)

	case INSReviewTx:
		if err := noParams(cmd); err != nil {
			return nil, err
		}
		if len(cmd.Data) < session.TxHashLen {
			return nil, fmt.Errorf("%w: review needs a %d byte hash", ErrWrongLength, session.TxHashLen)
		}
		var hash session.TxHash
		copy(hash[:], cmd.Data)
		return nil, d.device.Review(ctx, hash, string(cmd.Data[session.TxHashLen:]))

	case INSCommit:
		if err := noParams(cmd); err != nil {
			return nil, err
		}
		if len(cmd.Data) != session.TxHashLen {
			return nil, fmt.Errorf("%w: commit needs a %d byte hash", ErrWrongLength, session.TxHashLen)
		}
		var hash session.TxHash
		copy(hash[:], cmd.Data)
		return d.device.Commit(hash)

	case INSSign:
		chunk, err := chunkFrom(cmd)
		if err != nil {
			d.abortTransfer()
			return nil, err
		}
		reply, err := d.device.Sign(ctx, chunk)
		if err != nil {
			return nil, err
		}
		return replyData(reply), nil

	case INSBackupKeys:
		if err := noParams(cmd); err != nil {
			return nil, err
		}
		reply, err := d.device.Backup(ctx)
		if err != nil {
			return nil, err
		}
		return replyData(reply), nil

	case INSRestoreKeys:
		chunk, err := chunkFrom(cmd)
		if err != nil {
			d.abortTransfer()
			return nil, err
		}
		_, err = d.device.Restore(ctx, chunk)
		return nil, err

	case INSGetResult:
		if cmd.P2 != 0 || len(cmd.Data) != 0 {
			return nil, ErrWrongP1P2
		}
		return d.device.GetResult(cmd.P1)

	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrInsNotSupported, cmd.INS)
	}
}

// abortTransfer ends a chunked transfer that a framing error interrupted,
// so later chunks cannot resume it.
func (d *Dispatcher) abortTransfer() {
	if d.device.Session().State() != session.StateAccumulating {
		return
	}
	d.logger.Info("aborting partial transfer")
	d.device.Abort()
}

func noParams(cmd *Command) error {
	if cmd.P1 != 0 || cmd.P2 != 0 {
		return fmt.Errorf("%w: %02X %02X", ErrWrongP1P2, cmd.P1, cmd.P2)
	}
	return nil
}

// chunkFrom reads a chunk of a chunked instruction: P1 is the index and
// chunk 0 opens with the declared payload length.
func chunkFrom(cmd *Command) (session.Chunk, error) {
	if cmd.P2 != 0 {
		return session.Chunk{}, fmt.Errorf("%w: P2 %02X", ErrWrongP1P2, cmd.P2)
	}
	chunk := session.Chunk{Index: cmd.P1, Data: cmd.Data}
	if cmd.P1 == 0 {
		if len(cmd.Data) < 2 {
			return session.Chunk{}, fmt.Errorf("%w: first chunk lacks the declared length", ErrWrongLength)
		}
		chunk.Declared = int(binary.BigEndian.Uint16(cmd.Data))
		chunk.Data = cmd.Data[2:]
	}
	return chunk, nil
}

// replyData is empty while input is expected and the result chunk count
// once the result is ready.
func replyData(r handler.Reply) []byte {
	if r.More {
		return nil
	}
	return []byte{r.Total}
}

func encodeVersion(v handler.VersionInfo) []byte {
	out := []byte{v.Major, v.Minor, v.Patch}
	return append(out, v.Ciphersuite...)
}

func decodeVersion(data []byte) (*handler.VersionInfo, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: version is %d bytes", ErrWrongLength, len(data))
	}
	return &handler.VersionInfo{Major: data[0], Minor: data[1], Patch: data[2], Ciphersuite: string(data[3:])}, nil
}

// encodeIdentity lays out id(2) min(2) max(2) len(1) share len(1) groupkey.
func encodeIdentity(info *handler.IdentityInfo) ([]byte, error) {
	if len(info.VerifyingShare) > 0xFF || len(info.GroupPublicKey) > 0xFF ||
		info.Identifier > 0xFFFF || info.MaxSigners > 0xFFFF {
		return nil, fmt.Errorf("%w: identity does not fit its encoding", ErrWrongLength)
	}
	out := make([]byte, 0, 8+len(info.VerifyingShare)+len(info.GroupPublicKey))
	out = binary.BigEndian.AppendUint16(out, uint16(info.Identifier))
	out = binary.BigEndian.AppendUint16(out, uint16(info.MinSigners))
	out = binary.BigEndian.AppendUint16(out, uint16(info.MaxSigners))
	out = append(out, byte(len(info.VerifyingShare)))
	out = append(out, info.VerifyingShare...)
	out = append(out, byte(len(info.GroupPublicKey)))
	return append(out, info.GroupPublicKey...), nil
}

func decodeIdentity(data []byte) (*handler.IdentityInfo, error) {
	bad := fmt.Errorf("%w: malformed identity", ErrWrongLength)
	if len(data) < 7 {
		return nil, bad
	}
	info := &handler.IdentityInfo{
		Identifier: uint32(binary.BigEndian.Uint16(data[0:])),
		MinSigners: uint32(binary.BigEndian.Uint16(data[2:])),
		MaxSigners: uint32(binary.BigEndian.Uint16(data[4:])),
	}
	rest := data[6:]
	n := int(rest[0])
	if len(rest) < 1+n+1 {
		return nil, bad
	}
	info.VerifyingShare = append([]byte(nil), rest[1:1+n]...)
	rest = rest[1+n:]
	m := int(rest[0])
	if len(rest) != 1+m {
		return nil, bad
	}
	info.GroupPublicKey = append([]byte(nil), rest[1:]...)
	return info, nil
}
