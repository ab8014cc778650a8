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
	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite"
	"github.com/jeremyhahn/go-frost/pkg/frost/group"
)

// Scheme bundles the codec and the round 2 operations for one ciphersuite
// behind methods, which is the shape the device handler consumes.
type Scheme struct {
	*Codec
}

// NewScheme returns a Scheme for cs.
func NewScheme(cs ciphersuite.Ciphersuite) *Scheme {
	return &Scheme{Codec: NewCodec(cs)}
}

// NewSchemeByName resolves name with CiphersuiteByName.
func NewSchemeByName(name string) (*Scheme, error) {
	cs, err := CiphersuiteByName(name)
	if err != nil {
		return nil, err
	}
	return NewScheme(cs), nil
}

// DeriveNonces derives the ceremony nonces from the key package's share.
func (s *Scheme) DeriveNonces(kp *frost.KeyPackage, txHash []byte, identities []frost.Identifier) (*SigningNonces, error) {
	if kp == nil {
		return nil, ErrInvalidKeyPackage
	}
	return DeriveNonces(s.cs, kp.SecretShare, txHash, identities)
}

// Sign produces the round 2 share and drops the nonces afterwards.
func (s *Scheme) Sign(pkg *SigningPackage, nonces *SigningNonces, kp *frost.KeyPackage, randomizer *Randomizer) (*SignatureShare, error) {
	defer nonces.Zeroize(s.grp)
	return Sign(s.cs, pkg, nonces, kp, randomizer)
}

// Commit returns the commitments a coordinator needs from this signer.
func (s *Scheme) Commit(id frost.Identifier, nonces *SigningNonces) *SigningCommitments {
	return Commit(s.cs, id, nonces)
}

// Commitments derives the nonces for txHash and returns only their public
// commitments. The nonces are wiped before returning.
func (s *Scheme) Commitments(kp *frost.KeyPackage, txHash []byte, identities []frost.Identifier) (*SigningCommitments, error) {
	nonces, err := s.DeriveNonces(kp, txHash, identities)
	if err != nil {
		return nil, err
	}
	defer nonces.Zeroize(s.grp)
	return Commit(s.cs, kp.Identifier, nonces), nil
}

// VerifyingShare returns the verifying key kp records for its own identifier.
func (s *Scheme) VerifyingShare(kp *frost.KeyPackage) (group.Element, error) {
	if err := checkKeyPackage(kp); err != nil {
		return nil, err
	}
	if vs := verificationShare(kp, kp.Identifier); vs != nil {
		return vs, nil
	}
	return s.grp.ScalarBaseMult(kp.SecretShare), nil
}
