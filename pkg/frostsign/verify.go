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
	"fmt"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite"
	"github.com/jeremyhahn/go-frost/pkg/frost/group"
)

// VerifyShare checks share against the signer's verifying key:
//
//	z_i*G == D_i + rho_i*E_i + c*lambda_i*Y_i
func VerifyShare(cs ciphersuite.Ciphersuite, pkg *SigningPackage, share *SignatureShare, verifyingShare, groupKey group.Element, randomizer *Randomizer) error {
	rs, err := newRoundState(cs, pkg, groupKey, randomizer)
	if err != nil {
		return err
	}
	return rs.verifyShare(cs.Group(), pkg, share, verifyingShare)
}

func (rs *roundState) verifyShare(grp group.Group, pkg *SigningPackage, share *SignatureShare, verifyingShare group.Element) error {
	cm := pkg.Commitment(share.Identifier)
	if cm == nil || verifyingShare == nil {
		return &ShareVerificationError{Identifier: uint32(share.Identifier)}
	}
	lambda, err := lagrangeCoefficient(grp, share.Identifier, rs.participants)
	if err != nil {
		return err
	}

	rhs := grp.Identity()
	rhs = rhs.Add(cm.Hiding)
	rhs = rhs.Add(grp.ScalarMult(cm.Binding, rs.bindingFactors[share.Identifier]))
	rhs = rhs.Add(grp.ScalarMult(verifyingShare, lambda.Mul(rs.challenge)))

	if !grp.ScalarBaseMult(share.Z).Equal(rhs) {
		return &ShareVerificationError{Identifier: uint32(share.Identifier)}
	}
	return nil
}

// Aggregate combines one share per package participant into a signature
// valid under the randomized group key. When verifyingShares is non-nil
// every share is checked first and the first bad share is reported as a
// *ShareVerificationError.
func Aggregate(
	cs ciphersuite.Ciphersuite,
	pkg *SigningPackage,
	shares []*SignatureShare,
	groupKey group.Element,
	randomizer *Randomizer,
	verifyingShares map[frost.Identifier]group.Element,
) (*Signature, error) {
	if len(shares) != len(pkg.Commitments) {
		return nil, fmt.Errorf("%w: %d shares for %d commitments",
			ErrInvalidSignatureShare, len(shares), len(pkg.Commitments))
	}
	rs, err := newRoundState(cs, pkg, groupKey, randomizer)
	if err != nil {
		return nil, err
	}
	grp := cs.Group()

	seen := make(map[frost.Identifier]bool, len(shares))
	z := grp.NewScalar()
	for _, share := range shares {
		if share == nil || pkg.Commitment(share.Identifier) == nil || seen[share.Identifier] {
			return nil, fmt.Errorf("%w: unexpected share", ErrInvalidSignatureShare)
		}
		seen[share.Identifier] = true
		if verifyingShares != nil {
			if err := rs.verifyShare(grp, pkg, share, verifyingShares[share.Identifier]); err != nil {
				return nil, err
			}
		}
		z = z.Add(share.Z)
	}
	// the randomizer's contribution to the randomized key
	z = z.Add(randomizer.Scalar.Copy().Mul(rs.challenge))

	return &Signature{R: rs.commitment, Z: z}, nil
}

// Verify checks sig over message under the randomized group key:
//
//	z*G == R + c*PK'
func Verify(cs ciphersuite.Ciphersuite, sig *Signature, message []byte, groupKey group.Element, randomizer *Randomizer) error {
	if sig == nil || sig.R == nil || sig.Z == nil {
		return ErrInvalidSignature
	}
	grp := cs.Group()
	key := RandomizedGroupKey(cs, groupKey, randomizer)

	keyBytes, err := grp.SerializeElement(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	rBytes, err := grp.SerializeElement(sig.R)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	c := challenge(cs, rBytes, keyBytes, message)

	rhs := grp.Identity()
	rhs = rhs.Add(sig.R)
	rhs = rhs.Add(grp.ScalarMult(key, c))
	if !grp.ScalarBaseMult(sig.Z).Equal(rhs) {
		return ErrVerificationFailed
	}
	return nil
}

// VerificationShares indexes a key package's verifying shares by identifier.
func VerificationShares(kp *frost.KeyPackage) map[frost.Identifier]group.Element {
	out := make(map[frost.Identifier]group.Element, len(kp.VerificationShares))
	for _, vs := range kp.VerificationShares {
		out[vs.Identifier] = vs.VerificationKey
	}
	return out
}
