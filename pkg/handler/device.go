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

// Package handler implements the commands of the signing device.
//
// A Device owns the session context and the pending result. Each command
// method runs to a terminal state (a reply or an error) and leaves the
// session idle, except for chunked commands that still expect input.
// Results are released only when fully computed; on any error nothing is
// left for GetResult.
//
// A Device is not safe for concurrent use.
package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/jeremyhahn/go-frost/pkg/frost/group"

	"github.com/jeremyhahn/go-frostsigner/pkg/backup"
	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/metrics"
	"github.com/jeremyhahn/go-frostsigner/pkg/response"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
	"github.com/jeremyhahn/go-frostsigner/pkg/store"
	"github.com/jeremyhahn/go-frostsigner/pkg/ui"
	"github.com/jeremyhahn/go-frostsigner/pkg/wire"
)

// Firmware version reported by GetVersion.
const (
	VersionMajor uint8 = 1
	VersionMinor uint8 = 0
	VersionPatch uint8 = 0
)

// Capability is the threshold signing scheme. *frostsign.Scheme
// implements it.
type Capability interface {
	wire.Decoder
	DeriveNonces(kp *frost.KeyPackage, txHash []byte, identities []frost.Identifier) (*frostsign.SigningNonces, error)
	Sign(pkg *frostsign.SigningPackage, nonces *frostsign.SigningNonces, kp *frost.KeyPackage, randomizer *frostsign.Randomizer) (*frostsign.SignatureShare, error)
	SerializeSignatureShare(share *frostsign.SignatureShare) ([]byte, error)
	Commitments(kp *frost.KeyPackage, txHash []byte, identities []frost.Identifier) (*frostsign.SigningCommitments, error)
	SerializeCommitments(cm *frostsign.SigningCommitments) ([]byte, error)
	VerifyingShare(kp *frost.KeyPackage) (group.Element, error)
	SerializeElement(e group.Element) ([]byte, error)
}

// BackupCipher seals and opens key backups. *backup.Encryptor implements it.
type BackupCipher interface {
	DeriveKey() (*backup.Key, error)
	Encrypt(key *backup.Key, plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
}

// Operation names a command for logs, metrics and chunk ownership.
type Operation string

const (
	OpNone    Operation = ""
	OpSign    Operation = "sign"
	OpBackup  Operation = "backup"
	OpReview  Operation = "review"
	OpCommit  Operation = "commit"
	OpRestore Operation = "restore"
)

// Reply is the outcome of a command that produced no error.
type Reply struct {
	// More is set while a chunked command expects further input.
	More bool

	// Total is the number of result chunks available from GetResult.
	Total uint8
}

// Config wires a Device to its collaborators.
type Config struct {
	// MaxPayload is the reassembly capacity (default session.DefaultMaxPayload).
	MaxPayload int

	// ChunkSize is the result chunk size (default response.DefaultChunkSize).
	ChunkSize int

	Store     store.KeyStore
	Confirmer ui.Confirmer
	Backup    BackupCipher
	Scheme    Capability

	// Logger is optional.
	Logger logging.Logger

	// Metrics is optional.
	Metrics *metrics.Collector
}

// Device processes device commands.
type Device struct {
	session   *session.Context
	store     store.KeyStore
	confirmer ui.Confirmer
	cipher    BackupCipher
	scheme    Capability
	logger    logging.Logger
	metrics   *metrics.Collector
	chunkSize int

	active Operation
	result *response.Result
}

// New creates a Device from cfg.
func New(cfg *Config) (*Device, error) {
	if cfg == nil || cfg.Store == nil || cfg.Confirmer == nil || cfg.Backup == nil || cfg.Scheme == nil {
		return nil, errors.New("handler: store, confirmer, backup and scheme are required")
	}
	maxPayload := cfg.MaxPayload
	if maxPayload == 0 {
		maxPayload = session.DefaultMaxPayload
	}
	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = response.DefaultChunkSize
	}
	if chunkSize < 0 || chunkSize > response.DefaultChunkSize {
		return nil, fmt.Errorf("handler: chunk size %d out of range", chunkSize)
	}
	sess, err := session.New(maxPayload)
	if err != nil {
		return nil, fmt.Errorf("handler: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Device{
		session:   sess,
		store:     cfg.Store,
		confirmer: cfg.Confirmer,
		cipher:    cfg.Backup,
		scheme:    cfg.Scheme,
		logger:    logger,
		metrics:   cfg.Metrics,
		chunkSize: chunkSize,
	}, nil
}

// Session exposes the session context for inspection.
func (d *Device) Session() *session.Context { return d.session }

// Abort drops any partial input, pending approval and pending result.
func (d *Device) Abort() {
	if d.active != OpNone {
		d.metrics.RecordCeremony(string(d.active), metrics.OutcomeCanceled)
	}
	d.reset()
	d.dropResult()
}

// reset ends the current ceremony.
func (d *Device) reset() {
	d.session.Reset()
	d.active = OpNone
}

// fail ends the ceremony for op with err.
func (d *Device) fail(op Operation, err error) error {
	d.log().Error("%s failed: %v", op, err)
	outcome := metrics.OutcomeFailed
	switch {
	case errors.Is(err, ErrUserDenied):
		outcome = metrics.OutcomeDenied
	case errors.Is(err, ErrConfirmationCanceled):
		outcome = metrics.OutcomeCanceled
	}
	d.metrics.RecordCeremony(string(op), outcome)
	d.reset()
	return err
}

// succeed ends the ceremony for op.
func (d *Device) succeed(op Operation) {
	d.metrics.RecordCeremony(string(op), metrics.OutcomeOK)
	d.reset()
}

func (d *Device) log() logging.Logger {
	if id := d.session.CeremonyID(); id != "" {
		return logging.With(d.logger, "ceremony", id)
	}
	return d.logger
}

// accumulate feeds chunk into the session on behalf of op. Chunk 0 claims
// the session for op; any other chunk must belong to the claiming op.
func (d *Device) accumulate(op Operation, chunk session.Chunk) (bool, error) {
	if chunk.Index == 0 {
		d.dropResult()
	} else if d.active != op {
		return false, fmt.Errorf("%w: %s chunk %d while %q is active", ErrUnexpectedChunk, op, chunk.Index, d.active)
	}

	done, err := d.session.Accumulate(chunk)
	if err != nil {
		return false, err
	}
	d.active = op
	d.metrics.RecordChunk(string(op), len(chunk.Data))
	if chunk.Index == 0 {
		d.log().Debug("%s started, %d bytes declared", op, chunk.Declared)
	}
	return done, nil
}

// confirm asks the user and maps the answer to the error taxonomy.
func (d *Device) confirm(ctx context.Context, lines []string) error {
	ok, err := d.confirmer.Confirm(ctx, lines)
	switch {
	case err != nil:
		d.metrics.RecordConfirmation(metrics.OutcomeCanceled)
		return fmt.Errorf("%w: %v", ErrConfirmationCanceled, err)
	case !ok:
		d.metrics.RecordConfirmation(metrics.OutcomeDenied)
		return ErrUserDenied
	}
	d.metrics.RecordConfirmation(metrics.OutcomeOK)
	return nil
}

// publish makes payload the pending result. payload is owned by the result.
func (d *Device) publish(payload []byte) (Reply, error) {
	res, err := response.New(payload, d.chunkSize)
	if err != nil {
		frostsign.ZeroBytes(payload)
		return Reply{}, fmt.Errorf("%w: %v", ErrResultTooLarge, err)
	}
	d.dropResult()
	d.result = res
	d.metrics.SetPendingResult(true)
	return Reply{Total: res.Total()}, nil
}

func (d *Device) dropResult() {
	if d.result == nil {
		return
	}
	d.result.Zeroize()
	d.result = nil
	d.metrics.SetPendingResult(false)
}
