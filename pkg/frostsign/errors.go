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

// Package frostsign implements the participant side of rerandomized FROST
// round 2 signing and the coordinator helpers needed to check its output.
package frostsign

import (
	"errors"
	"fmt"
)

// MinSigners is the smallest threshold accepted by the dealer.
const MinSigners = 2

// MaxIdentifier is the largest identifier that fits the u16 wire encoding.
const MaxIdentifier = 0xFFFF

var (
	// ErrUnknownCiphersuite indicates an unsupported ciphersuite name or ID.
	ErrUnknownCiphersuite = errors.New("frostsign: unknown ciphersuite")

	// ErrInvalidRandomizer indicates a randomizer that is not a canonical scalar.
	ErrInvalidRandomizer = errors.New("frostsign: invalid randomizer")

	// ErrInvalidSigningPackage indicates a malformed or non-canonical signing package.
	ErrInvalidSigningPackage = errors.New("frostsign: invalid signing package")

	// ErrInvalidSignatureShare indicates a malformed signature share encoding.
	ErrInvalidSignatureShare = errors.New("frostsign: invalid signature share")

	// ErrInvalidSignature indicates a malformed signature encoding.
	ErrInvalidSignature = errors.New("frostsign: invalid signature")

	// ErrInvalidKeyPackage indicates a key package missing required fields.
	ErrInvalidKeyPackage = errors.New("frostsign: invalid key package")

	// ErrInvalidIdentifier indicates a zero or out-of-range identifier.
	ErrInvalidIdentifier = errors.New("frostsign: invalid identifier")

	// ErrInvalidThreshold indicates min/max signer counts that cannot form a scheme.
	ErrInvalidThreshold = errors.New("frostsign: invalid threshold")

	// ErrInvalidTxHash indicates a transaction hash of the wrong length.
	ErrInvalidTxHash = errors.New("frostsign: invalid transaction hash")

	// ErrSigningFailed indicates round 2 could not produce a share.
	ErrSigningFailed = errors.New("frostsign: signing failed")

	// ErrVerificationFailed indicates a share or signature did not verify.
	ErrVerificationFailed = errors.New("frostsign: verification failed")

	errIdentityElement = errors.New("identity element")
)

// SigningError describes why round 2 refused to sign. It matches
// ErrSigningFailed via errors.Is.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frostsign: signing failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("frostsign: signing failed: %s", e.Reason)
}

func (e *SigningError) Unwrap() error { return e.Err }

func (e *SigningError) Is(target error) bool {
	return target == ErrSigningFailed
}

func signingError(reason string, err error) error {
	return &SigningError{Reason: reason, Err: err}
}

// ShareVerificationError identifies the participant whose share failed
// verification.
type ShareVerificationError struct {
	Identifier uint32
}

func (e *ShareVerificationError) Error() string {
	return fmt.Sprintf("frostsign: signature share from participant %d does not verify", e.Identifier)
}

func (e *ShareVerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}
