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

package frostsign

import (
	"encoding/binary"
	"fmt"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite"
	"github.com/jeremyhahn/go-frost/pkg/frost/group"
)

// TxHashLen is the length of the transaction hash bound into the nonces.
const TxHashLen = 32

// DeriveNonces derives the round 1 nonces for one ceremony from the
// participant's secret share, the transaction hash and the participant set.
//
// The derivation is a pure function: no randomness is drawn, so a device
// that has lost its round 1 state recomputes the same nonces. The identity
// list is sorted and de-duplicated first, making the result independent of
// the order in which identities are supplied.
//
// Signing two different packages for the same hash with the same nonces
// would leak the share. Callers must only ever sign one package per hash;
// the review gate in the handler enforces one signature per approval.
func DeriveNonces(cs ciphersuite.Ciphersuite, share group.Scalar, txHash []byte, identities []frost.Identifier) (*SigningNonces, error) {
	if share == nil || share.IsZero() {
		return nil, fmt.Errorf("%w: empty secret share", ErrInvalidKeyPackage)
	}
	if len(txHash) != TxHashLen {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidTxHash, len(txHash))
	}

	ids := normalizeIdentifiers(identities)
	idsEnc := make([]byte, 0, 2+4*len(ids))
	idsEnc = binary.BigEndian.AppendUint16(idsEnc, uint16(len(ids)))
	for _, id := range ids {
		idsEnc = binary.BigEndian.AppendUint32(idsEnc, uint32(id))
	}

	grp := cs.Group()
	shareBytes := append([]byte(nil), grp.SerializeScalar(share)...)
	defer ZeroBytes(shareBytes)

	hiding := hashToScalar(cs, "nonce/hiding", shareBytes, txHash, idsEnc)
	binding := hashToScalar(cs, "nonce/binding", shareBytes, txHash, idsEnc)
	if hiding.IsZero() || binding.IsZero() {
		return nil, signingError("derived zero nonce", nil)
	}
	return &SigningNonces{Hiding: hiding, Binding: binding}, nil
}

// Commit returns the public commitments for nonces under identifier id.
func Commit(cs ciphersuite.Ciphersuite, id frost.Identifier, nonces *SigningNonces) *SigningCommitments {
	grp := cs.Group()
	return &SigningCommitments{
		Identifier: id,
		Hiding:     grp.ScalarBaseMult(nonces.Hiding),
		Binding:    grp.ScalarBaseMult(nonces.Binding),
	}
}

// NewSigningPackage builds a package with commitments sorted by identifier.
func NewSigningPackage(commitments []SigningCommitments, message []byte) *SigningPackage {
	cms := make([]SigningCommitments, len(commitments))
	copy(cms, commitments)
	sortCommitments(cms)
	return &SigningPackage{Commitments: cms, Message: append([]byte(nil), message...)}
}

// NewRandomizer draws a fresh randomizer. Coordinators pick one per
// ceremony and send it alongside the signing package.
func NewRandomizer(cs ciphersuite.Ciphersuite) (*Randomizer, error) {
	s, err := cs.Group().RandomScalar()
	if err != nil {
		return nil, err
	}
	return &Randomizer{Scalar: s}, nil
}
