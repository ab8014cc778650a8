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

// polynomial is a secret sharing polynomial
// f(x) = coeffs[0] + coeffs[1]*x + ... + coeffs[t-1]*x^(t-1).
type polynomial struct {
	grp    group.Group
	coeffs []group.Scalar
}

func randomPolynomial(grp group.Group, degree uint32) (*polynomial, error) {
	coeffs := make([]group.Scalar, degree+1)
	for i := range coeffs {
		s, err := grp.RandomScalar()
		if err != nil {
			return nil, err
		}
		coeffs[i] = s
	}
	return &polynomial{grp: grp, coeffs: coeffs}, nil
}

// evaluate uses Horner's method.
func (p *polynomial) evaluate(x group.Scalar) group.Scalar {
	result := p.grp.NewScalar()
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		result = result.Mul(x)
		result = result.Add(p.coeffs[i])
	}
	return result
}

func (p *polynomial) zeroize() {
	zero := p.grp.NewScalar()
	for i := range p.coeffs {
		p.coeffs[i] = zero
	}
	p.coeffs = nil
}

// GenerateWithDealer splits a fresh random secret into maxSigners key
// packages, any minSigners of which can sign. Identifiers are 1..maxSigners.
//
// A trusted dealer sees the whole secret. This is for provisioning test and
// development devices; production keys come from a DKG.
func GenerateWithDealer(cs ciphersuite.Ciphersuite, minSigners, maxSigners uint32) ([]*frost.KeyPackage, error) {
	if minSigners < MinSigners || maxSigners < minSigners || maxSigners > MaxIdentifier {
		return nil, ErrInvalidThreshold
	}
	grp := cs.Group()

	poly, err := randomPolynomial(grp, minSigners-1)
	if err != nil {
		return nil, err
	}
	defer poly.zeroize()

	groupKey := grp.ScalarBaseMult(poly.coeffs[0])

	shares := make([]group.Scalar, maxSigners)
	verification := make([]frost.VerificationShare, maxSigners)
	for i := uint32(0); i < maxSigners; i++ {
		id := frost.Identifier(i + 1)
		shares[i] = poly.evaluate(identifierToScalar(grp, id))
		verification[i] = frost.VerificationShare{
			Identifier:      id,
			VerificationKey: grp.ScalarBaseMult(shares[i]),
		}
	}

	packages := make([]*frost.KeyPackage, maxSigners)
	for i := range packages {
		vs := make([]frost.VerificationShare, len(verification))
		copy(vs, verification)
		packages[i] = &frost.KeyPackage{
			Identifier:         frost.Identifier(i + 1),
			SecretShare:        shares[i],
			GroupPublicKey:     groupKey,
			VerificationShares: vs,
			MinSigners:         minSigners,
			MaxSigners:         maxSigners,
		}
	}
	return packages, nil
}
