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

// Package session holds the per-ceremony state of the signing device.
//
// A Context is created once per device and survives across commands. It
// owns the reassembly buffer for chunked commands and the one-shot mailbox
// through which the review stage hands an approved transaction hash to the
// signing stage.
//
// # Lifecycle
//
//	Idle --chunk 0--> Accumulating --last chunk--> Complete --Reset--> Idle
//
// Handlers must call Reset on every terminal path (success or error) so that
// no partial payload or stale approval survives into the next ceremony.
//
// A Context is not safe for concurrent use. The device processes a single
// command at a time.
package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-frostsigner/pkg/buffer"
)

// TxHashLen is the length in bytes of a transaction hash.
const TxHashLen = 32

// DefaultMaxPayload is the default reassembly capacity in bytes.
const DefaultMaxPayload = 4096

// TxHash is a fixed-length transaction hash.
type TxHash [TxHashLen]byte

var (
	// ErrCapacity indicates the declared or accumulated payload does not fit
	// in the reassembly buffer.
	ErrCapacity = errors.New("session: payload exceeds capacity")

	// ErrUnexpectedChunk indicates a chunk arrived out of sequence.
	ErrUnexpectedChunk = errors.New("session: unexpected chunk")

	// ErrOverrun indicates a chunk carried more bytes than were declared.
	ErrOverrun = errors.New("session: chunk overruns declared length")
)

// State is the accumulation state of a Context.
type State int

const (
	// StateIdle means no ceremony is in progress.
	StateIdle State = iota
	// StateAccumulating means chunk 0 has been received but the payload is incomplete.
	StateAccumulating
	// StateComplete means the declared payload length has been reached.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Chunk is one transport-delivered fragment of a command payload.
type Chunk struct {
	// Index is the ordinal of the chunk within the ceremony. Index 0 starts
	// a new ceremony.
	Index uint8

	// Declared is the total payload length announced by the host. It is
	// read from chunk 0 only.
	Declared int

	// Data is the fragment. It is copied into the Context.
	Data []byte
}

// Context is the per-device ceremony state.
type Context struct {
	buf        *buffer.Buffer
	state      State
	declared   int
	nextIndex  int
	ceremonyID string

	approved    TxHash
	hasApproval bool
}

// New creates an idle Context with the given reassembly capacity.
func New(capacity int) (*Context, error) {
	buf, err := buffer.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Context{buf: buf}, nil
}

// Accumulate appends chunk to the ceremony payload and reports whether the
// declared length has been reached.
//
// Chunk 0 discards any previous partial payload and starts a new ceremony.
// Every other chunk must carry the next expected index. On error the
// accumulation state is left as it was before the call; the caller decides
// whether to Reset.
func (c *Context) Accumulate(chunk Chunk) (bool, error) {
	if chunk.Index == 0 {
		if chunk.Declared < 0 || chunk.Declared > c.buf.Cap() {
			return false, fmt.Errorf("%w: declared %d, capacity %d", ErrCapacity, chunk.Declared, c.buf.Cap())
		}
		if len(chunk.Data) > chunk.Declared {
			return false, fmt.Errorf("%w: %d bytes in first chunk of %d",
				ErrOverrun, len(chunk.Data), chunk.Declared)
		}
		c.ResetCeremony()
		c.declared = chunk.Declared
		c.state = StateAccumulating
		c.ceremonyID = uuid.NewString()
	} else {
		if c.state != StateAccumulating || int(chunk.Index) != c.nextIndex {
			return false, fmt.Errorf("%w: got %d, state %s, expected %d",
				ErrUnexpectedChunk, chunk.Index, c.state, c.nextIndex)
		}
		if len(chunk.Data) > c.declared-c.buf.Len() {
			return false, fmt.Errorf("%w: %d bytes after %d of %d",
				ErrOverrun, len(chunk.Data), c.buf.Len(), c.declared)
		}
	}

	if err := c.buf.Append(chunk.Data); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCapacity, err)
	}
	c.nextIndex = int(chunk.Index) + 1

	if c.buf.Len() == c.declared {
		c.state = StateComplete
	}
	return c.state == StateComplete, nil
}

// Done reports whether the declared payload has been fully received.
func (c *Context) Done() bool { return c.state == StateComplete }

// State returns the accumulation state.
func (c *Context) State() State { return c.state }

// Buffer returns the reassembly buffer. Parsed views into it are valid
// until the next Reset.
func (c *Context) Buffer() *buffer.Buffer { return c.buf }

// Received returns the number of payload bytes accumulated so far.
func (c *Context) Received() int { return c.buf.Len() }

// Declared returns the payload length announced by chunk 0.
func (c *Context) Declared() int { return c.declared }

// CeremonyID returns an identifier for log correlation, empty when idle.
func (c *Context) CeremonyID() string { return c.ceremonyID }

// Approve deposits the hash the user approved during review. A later
// approval replaces an unconsumed earlier one.
func (c *Context) Approve(hash TxHash) {
	c.approved = hash
	c.hasApproval = true
}

// HasApproval reports whether an approval is waiting to be consumed.
func (c *Context) HasApproval() bool { return c.hasApproval }

// TakeApprovedHash returns the pending approval and clears the mailbox.
// The second result is false when no approval was deposited.
func (c *Context) TakeApprovedHash() (TxHash, bool) {
	hash, ok := c.approved, c.hasApproval
	c.approved = TxHash{}
	c.hasApproval = false
	return hash, ok
}

// ResetCeremony discards the reassembly state while leaving the approval
// mailbox alone.
func (c *Context) ResetCeremony() {
	c.buf.Reset()
	c.state = StateIdle
	c.declared = 0
	c.nextIndex = 0
	c.ceremonyID = ""
}

// Reset returns the Context to Idle, wiping the payload and any pending
// approval.
func (c *Context) Reset() {
	c.ResetCeremony()
	c.approved = TxHash{}
	c.hasApproval = false
}
