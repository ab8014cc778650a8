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
	"strings"

	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite/ed25519_sha512"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite/ed448_shake256"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite/p256_sha256"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite/ristretto255_sha512"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite/secp256k1_sha256"
)

// Ciphersuite IDs as reported by ciphersuite.Ciphersuite.ID.
const (
	IDEd25519      = "FROST-ED25519-SHA512-v1"
	IDRistretto255 = "FROST-RISTRETTO255-SHA512-v1"
	IDSecp256k1    = "FROST-secp256k1-SHA256-v1"
	IDP256         = "FROST-P256-SHA256-v1"
	IDEd448        = "FROST-ED448-SHAKE256-v1"
)

// DefaultCiphersuite is the short name used when none is configured.
const DefaultCiphersuite = "ed25519"

// CiphersuiteNames lists the accepted short names.
var CiphersuiteNames = []string{"ed25519", "ristretto255", "secp256k1", "p256", "ed448"}

// CiphersuiteByName resolves a short name ("ed25519") or a full ciphersuite
// ID ("FROST-ED25519-SHA512-v1"). Matching is case-insensitive.
func CiphersuiteByName(name string) (ciphersuite.Ciphersuite, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ed25519", strings.ToLower(IDEd25519):
		return ed25519_sha512.New(), nil
	case "ristretto255", strings.ToLower(IDRistretto255):
		return ristretto255_sha512.New(), nil
	case "secp256k1", strings.ToLower(IDSecp256k1):
		return secp256k1_sha256.New(), nil
	case "p256", strings.ToLower(IDP256):
		return p256_sha256.New(), nil
	case "ed448", strings.ToLower(IDEd448):
		return ed448_shake256.New(), nil
	default:
		return nil, ErrUnknownCiphersuite
	}
}
