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
	"sort"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite"
	"github.com/jeremyhahn/go-frost/pkg/frost/group"
)

// Domain separation prefix for every hash computed by this package.
const domainPrefix = "FROST-SIGNER/"

// Randomizer rerandomizes the group key for one signing ceremony so that
// signatures cannot be linked to the long-term group key.
type Randomizer struct {
	Scalar group.Scalar
}

// SigningCommitments are one participant's public round 1 commitments.
type SigningCommitments struct {
	Identifier frost.Identifier
	Hiding     group.Element
	Binding    group.Element
}

// SigningPackage is the coordinator's round 2 request: every participating
// signer's commitments plus the message to sign. Commitments are kept
// sorted by identifier.
type SigningPackage struct {
	Commitments []SigningCommitments
	Message     []byte
}

// Commitment returns the commitments for id, or nil.
func (p *SigningPackage) Commitment(id frost.Identifier) *SigningCommitments {
	for i := range p.Commitments {
		if p.Commitments[i].Identifier == id {
			return &p.Commitments[i]
		}
	}
	return nil
}

// Identifiers returns the participant identifiers in package order.
func (p *SigningPackage) Identifiers() []frost.Identifier {
	ids := make([]frost.Identifier, len(p.Commitments))
	for i, c := range p.Commitments {
		ids[i] = c.Identifier
	}
	return ids
}

// SigningNonces are a participant's secret round 1 nonces.
type SigningNonces struct {
	Hiding  group.Scalar
	Binding group.Scalar
}

// SignatureShare is a participant's round 2 output.
type SignatureShare struct {
	Identifier frost.Identifier
	Z          group.Scalar
}

// Signature is an aggregated Schnorr signature valid under the randomized
// group key.
type Signature struct {
	R group.Element
	Z group.Scalar
}

// hashToScalar derives a scalar through the ciphersuite's H3 with package
// domain separation.
func hashToScalar(cs ciphersuite.Ciphersuite, tag string, parts ...[]byte) group.Scalar {
	return cs.H3(domainInput(tag, parts))
}

// hashToBytes derives a digest through the ciphersuite's H4 with package
// domain separation.
func hashToBytes(cs ciphersuite.Ciphersuite, tag string, parts ...[]byte) []byte {
	return cs.H4(domainInput(tag, parts))
}

func domainInput(tag string, parts [][]byte) []byte {
	n := len(domainPrefix) + len(tag)
	for _, p := range parts {
		n += len(p)
	}
	input := make([]byte, 0, n)
	input = append(input, domainPrefix...)
	input = append(input, tag...)
	for _, p := range parts {
		input = append(input, p...)
	}
	return input
}

// identifierToScalar maps an identifier to its polynomial evaluation point.
func identifierToScalar(grp group.Group, id frost.Identifier) group.Scalar {
	buf := make([]byte, grp.ScalarLength())
	v := uint32(id)
	if grp.ByteOrder() == group.BigEndian {
		for i := len(buf) - 1; i >= 0 && v > 0; i-- {
			buf[i] = byte(v)
			v >>= 8
		}
	} else {
		for i := 0; i < len(buf) && v > 0; i++ {
			buf[i] = byte(v)
			v >>= 8
		}
	}
	// small integers are always canonical
	s, _ := grp.DeserializeScalar(buf)
	return s
}

// normalizeIdentifiers returns a sorted copy of ids with duplicates removed.
func normalizeIdentifiers(ids []frost.Identifier) []frost.Identifier {
	out := make([]frost.Identifier, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

// lagrangeCoefficient computes lambda_i = prod_{j != i} x_j / (x_j - x_i)
// over the participant set.
func lagrangeCoefficient(grp group.Group, id frost.Identifier, participants []frost.Identifier) (group.Scalar, error) {
	xi := identifierToScalar(grp, id)
	num := identifierToScalar(grp, 1)
	den := identifierToScalar(grp, 1)
	found := false
	for _, pid := range participants {
		if pid == id {
			found = true
			continue
		}
		xj := identifierToScalar(grp, pid)
		num = num.Mul(xj)
		den = den.Mul(xj.Sub(xi))
	}
	if !found {
		return nil, ErrInvalidIdentifier
	}
	inv, err := den.Inv()
	if err != nil {
		return nil, err
	}
	return num.Mul(inv), nil
}

// verificationShare returns the verifying key registered for id.
func verificationShare(kp *frost.KeyPackage, id frost.Identifier) group.Element {
	for _, vs := range kp.VerificationShares {
		if vs.Identifier == id {
			return vs.VerificationKey
		}
	}
	return nil
}
