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

// roundState holds the values every participant and the coordinator derive
// identically from a signing package.
type roundState struct {
	groupKey       group.Element // randomized
	bindingFactors map[frost.Identifier]group.Scalar
	commitment     group.Element
	challenge      group.Scalar
	participants   []frost.Identifier
}

// RandomizedGroupKey returns groupKey + randomizer*G, the key the final
// signature verifies under.
func RandomizedGroupKey(cs ciphersuite.Ciphersuite, groupKey group.Element, randomizer *Randomizer) group.Element {
	grp := cs.Group()
	key := grp.Identity()
	key = key.Add(groupKey)
	return key.Add(grp.ScalarBaseMult(randomizer.Scalar))
}

func newRoundState(cs ciphersuite.Ciphersuite, pkg *SigningPackage, groupKey group.Element, randomizer *Randomizer) (*roundState, error) {
	if err := checkPackage(pkg); err != nil {
		return nil, err
	}
	grp := cs.Group()
	codec := NewCodec(cs)

	rs := &roundState{
		groupKey:       RandomizedGroupKey(cs, groupKey, randomizer),
		bindingFactors: make(map[frost.Identifier]group.Scalar, len(pkg.Commitments)),
		participants:   pkg.Identifiers(),
	}
	keyBytes, err := grp.SerializeElement(rs.groupKey)
	if err != nil {
		return nil, signingError("serialize randomized group key", err)
	}

	var encoded []byte
	for i := range pkg.Commitments {
		enc, err := codec.encodeCommitments(&pkg.Commitments[i])
		if err != nil {
			return nil, signingError("encode commitments", err)
		}
		encoded = append(encoded, enc...)
	}
	msgHash := hashToBytes(cs, "msg", pkg.Message)
	comHash := hashToBytes(cs, "com", encoded)

	rs.commitment = grp.Identity()
	for _, cm := range pkg.Commitments {
		idBytes := grp.SerializeScalar(identifierToScalar(grp, cm.Identifier))
		rho := hashToScalar(cs, "rho", keyBytes, msgHash, comHash, idBytes)
		rs.bindingFactors[cm.Identifier] = rho

		rs.commitment = rs.commitment.Add(cm.Hiding)
		rs.commitment = rs.commitment.Add(grp.ScalarMult(cm.Binding, rho))
	}
	if rs.commitment.IsIdentity() {
		return nil, signingError("group commitment is the identity", nil)
	}

	rBytes, err := grp.SerializeElement(rs.commitment)
	if err != nil {
		return nil, signingError("serialize group commitment", err)
	}
	rs.challenge = challenge(cs, rBytes, keyBytes, pkg.Message)
	return rs, nil
}

func challenge(cs ciphersuite.Ciphersuite, r, key, msg []byte) group.Scalar {
	return hashToScalar(cs, "chal", r, key, msg)
}

// Sign computes this participant's round 2 signature share.
//
// The share is bound to the randomized group key, so it only aggregates
// into a signature that verifies under RandomizedGroupKey.
func Sign(cs ciphersuite.Ciphersuite, pkg *SigningPackage, nonces *SigningNonces, kp *frost.KeyPackage, randomizer *Randomizer) (*SignatureShare, error) {
	if err := checkKeyPackage(kp); err != nil {
		return nil, signingError("key package", err)
	}
	if nonces == nil || nonces.Hiding == nil || nonces.Binding == nil {
		return nil, signingError("missing nonces", nil)
	}
	if randomizer == nil || randomizer.Scalar == nil {
		return nil, signingError("missing randomizer", ErrInvalidRandomizer)
	}
	if pkg == nil {
		return nil, signingError("missing signing package", ErrInvalidSigningPackage)
	}
	if uint32(len(pkg.Commitments)) < kp.MinSigners {
		return nil, signingError("not enough signers", ErrInvalidThreshold)
	}

	own := pkg.Commitment(kp.Identifier)
	if own == nil {
		return nil, signingError("own commitment missing from package", ErrInvalidSigningPackage)
	}
	grp := cs.Group()
	expected := Commit(cs, kp.Identifier, nonces)
	if !expected.Hiding.Equal(own.Hiding) || !expected.Binding.Equal(own.Binding) {
		return nil, signingError("own commitment does not match nonces", ErrInvalidSigningPackage)
	}

	rs, err := newRoundState(cs, pkg, kp.GroupPublicKey, randomizer)
	if err != nil {
		return nil, err
	}
	lambda, err := lagrangeCoefficient(grp, kp.Identifier, rs.participants)
	if err != nil {
		return nil, signingError("lagrange coefficient", err)
	}

	// z_i = d_i + e_i*rho_i + lambda_i*s_i*c
	z := nonces.Hiding.Copy()
	z = z.Add(nonces.Binding.Copy().Mul(rs.bindingFactors[kp.Identifier]))
	z = z.Add(lambda.Mul(kp.SecretShare).Mul(rs.challenge))

	return &SignatureShare{Identifier: kp.Identifier, Z: z}, nil
}

func checkKeyPackage(kp *frost.KeyPackage) error {
	switch {
	case kp == nil:
		return ErrInvalidKeyPackage
	case kp.Identifier == 0 || uint32(kp.Identifier) > MaxIdentifier:
		return ErrInvalidIdentifier
	case kp.SecretShare == nil || kp.SecretShare.IsZero():
		return ErrInvalidKeyPackage
	case kp.GroupPublicKey == nil || kp.GroupPublicKey.IsIdentity():
		return ErrInvalidKeyPackage
	}
	return nil
}

// checkPackage enforces the structural rules the codec guarantees for
// decoded packages, for packages built in memory.
func checkPackage(pkg *SigningPackage) error {
	if len(pkg.Commitments) == 0 {
		return signingError("empty signing package", ErrInvalidSigningPackage)
	}
	for i, cm := range pkg.Commitments {
		if cm.Identifier == 0 || uint32(cm.Identifier) > MaxIdentifier {
			return signingError("bad identifier", ErrInvalidIdentifier)
		}
		if i > 0 && cm.Identifier <= pkg.Commitments[i-1].Identifier {
			return signingError("duplicate or unsorted identifiers", ErrInvalidSigningPackage)
		}
		if cm.Hiding == nil || cm.Binding == nil || cm.Hiding.IsIdentity() || cm.Binding.IsIdentity() {
			return signingError("identity commitment", ErrInvalidSigningPackage)
		}
	}
	return nil
}

func sortCommitments(cms []SigningCommitments) {
	sort.Slice(cms, func(i, j int) bool { return cms[i].Identifier < cms[j].Identifier })
}
