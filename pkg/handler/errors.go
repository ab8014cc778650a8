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

package handler

import (
	"errors"

	"github.com/jeremyhahn/go-frostsigner/pkg/session"
	"github.com/jeremyhahn/go-frostsigner/pkg/store"
	"github.com/jeremyhahn/go-frostsigner/pkg/wire"
)

// Ceremony errors. Every one of them ends the ceremony and resets the
// session before it is returned.
var (
	// ErrUserDenied indicates the user explicitly rejected the operation.
	ErrUserDenied = errors.New("handler: user denied")

	// ErrConfirmationCanceled indicates the prompt ended without an answer.
	ErrConfirmationCanceled = errors.New("handler: confirmation canceled")

	// ErrInvalidTxHash indicates no approval was pending or the approved
	// hash differs from the one in the request.
	ErrInvalidTxHash = errors.New("handler: invalid tx hash")

	// ErrTxSignFail indicates the signing capability rejected its inputs.
	ErrTxSignFail = errors.New("handler: transaction signing failed")

	// ErrBackupFailed indicates key derivation or encryption failed.
	ErrBackupFailed = errors.New("handler: backup failed")

	// ErrNoResult indicates no result is waiting for retrieval.
	ErrNoResult = errors.New("handler: no result pending")

	// ErrResultTooLarge indicates a result that cannot be chunked.
	ErrResultTooLarge = errors.New("handler: result too large")
)

// Errors raised by collaborators, re-exported so callers classify through
// this package alone.
var (
	ErrInvalidRandomizer     = wire.ErrInvalidRandomizer
	ErrInvalidSigningPackage = wire.ErrInvalidSigningPackage
	ErrInvalidPayload        = wire.ErrInvalidPayload
	ErrStore                 = store.ErrStore
	ErrCapacity              = session.ErrCapacity
	ErrUnexpectedChunk       = session.ErrUnexpectedChunk
	ErrOverrun               = session.ErrOverrun
)
