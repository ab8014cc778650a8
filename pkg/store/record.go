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

package store

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/jeremyhahn/go-frost/pkg/frost/ciphersuite"
	"github.com/jeremyhahn/go-frost/pkg/frost/group"

	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

// RootSecretSize is the length of a generated device root secret.
const RootSecretSize = 32

// BackupCodec encodes the material exported for backup.
const BackupCodec = transport.CodecCBOR

// ShareRecord is the persisted form of one verifying share.
type ShareRecord struct {
	Identifier uint32 `json:"identifier" msgpack:"identifier" cbor:"1,keyasint" yaml:"identifier" bson:"identifier" toml:"identifier"`
	Key        string `json:"key" msgpack:"key" cbor:"2,keyasint" yaml:"key" bson:"key" toml:"key"`
}

// KeyRecord is the persisted form of a device's key material. Scalars and
// elements are hex encoded in their ciphersuite serialization.
type KeyRecord struct {
	Ciphersuite        string        `json:"ciphersuite" msgpack:"ciphersuite" cbor:"1,keyasint" yaml:"ciphersuite" bson:"ciphersuite" toml:"ciphersuite"`
	Identifier         uint32        `json:"identifier" msgpack:"identifier" cbor:"2,keyasint" yaml:"identifier" bson:"identifier" toml:"identifier"`
	SecretShare        string        `json:"secret_share" msgpack:"secret_share" cbor:"3,keyasint" yaml:"secret_share" bson:"secret_share" toml:"secret_share"`
	GroupPublicKey     string        `json:"group_public_key" msgpack:"group_public_key" cbor:"4,keyasint" yaml:"group_public_key" bson:"group_public_key" toml:"group_public_key"`
	VerificationShares []ShareRecord `json:"verification_shares" msgpack:"verification_shares" cbor:"5,keyasint" yaml:"verification_shares" bson:"verification_shares" toml:"verification_shares"`
	MinSigners         uint32        `json:"min_signers" msgpack:"min_signers" cbor:"6,keyasint" yaml:"min_signers" bson:"min_signers" toml:"min_signers"`
	MaxSigners         uint32        `json:"max_signers" msgpack:"max_signers" cbor:"7,keyasint" yaml:"max_signers" bson:"max_signers" toml:"max_signers"`
	Identities         []uint32      `json:"identities" msgpack:"identities" cbor:"8,keyasint" yaml:"identities" bson:"identities" toml:"identities"`
	RootSecret         string        `json:"root_secret,omitempty" msgpack:"root_secret,omitempty" cbor:"9,keyasint,omitempty" yaml:"root_secret,omitempty" bson:"root_secret,omitempty" toml:"root_secret,omitempty"`
}

// NewKeyRecord converts kp into its persisted form. identities is the
// signer set this device takes part in; rootSecret seeds backup keys.
func NewKeyRecord(suite string, kp *frost.KeyPackage, identities []frost.Identifier, rootSecret []byte) (*KeyRecord, error) {
	cs, err := frostsign.CiphersuiteByName(suite)
	if err != nil {
		return nil, err
	}
	if kp == nil || kp.SecretShare == nil || kp.GroupPublicKey == nil {
		return nil, frostsign.ErrInvalidKeyPackage
	}
	grp := cs.Group()

	gk, err := grp.SerializeElement(kp.GroupPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: group key: %v", frostsign.ErrInvalidKeyPackage, err)
	}
	shares := make([]ShareRecord, 0, len(kp.VerificationShares))
	for _, vs := range kp.VerificationShares {
		raw, err := grp.SerializeElement(vs.VerificationKey)
		if err != nil {
			return nil, fmt.Errorf("%w: verifying share %d: %v", frostsign.ErrInvalidKeyPackage, vs.Identifier, err)
		}
		shares = append(shares, ShareRecord{Identifier: uint32(vs.Identifier), Key: hex.EncodeToString(raw)})
	}

	ids := make([]uint32, 0, len(identities))
	for _, id := range identities {
		ids = append(ids, uint32(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return &KeyRecord{
		Ciphersuite:        suite,
		Identifier:         uint32(kp.Identifier),
		SecretShare:        hex.EncodeToString(grp.SerializeScalar(kp.SecretShare)),
		GroupPublicKey:     hex.EncodeToString(gk),
		VerificationShares: shares,
		MinSigners:         kp.MinSigners,
		MaxSigners:         kp.MaxSigners,
		Identities:         ids,
		RootSecret:         hex.EncodeToString(rootSecret),
	}, nil
}

// KeyPackage decodes the record. Failures match ErrCorrupt.
func (r *KeyRecord) KeyPackage() (*frost.KeyPackage, error) {
	cs, err := frostsign.CiphersuiteByName(r.Ciphersuite)
	if err != nil {
		return nil, wrap(ErrCorrupt, "ciphersuite", err)
	}
	grp := cs.Group()

	rawShare, err := hex.DecodeString(r.SecretShare)
	if err != nil {
		return nil, wrap(ErrCorrupt, "secret share", err)
	}
	defer frostsign.ZeroBytes(rawShare)
	share, err := grp.DeserializeScalar(rawShare)
	if err != nil {
		return nil, wrap(ErrCorrupt, "secret share", err)
	}

	gk, err := decodeElement(cs, r.GroupPublicKey)
	if err != nil {
		return nil, wrap(ErrCorrupt, "group key", err)
	}

	shares := make([]frost.VerificationShare, 0, len(r.VerificationShares))
	for _, s := range r.VerificationShares {
		key, err := decodeElement(cs, s.Key)
		if err != nil {
			return nil, wrap(ErrCorrupt, fmt.Sprintf("verifying share %d", s.Identifier), err)
		}
		shares = append(shares, frost.VerificationShare{
			Identifier:      frost.Identifier(s.Identifier),
			VerificationKey: key,
		})
	}

	return &frost.KeyPackage{
		Identifier:         frost.Identifier(r.Identifier),
		SecretShare:        share,
		GroupPublicKey:     gk,
		VerificationShares: shares,
		MinSigners:         r.MinSigners,
		MaxSigners:         r.MaxSigners,
	}, nil
}

// IdentitySet returns the signer identifiers recorded for this device.
func (r *KeyRecord) IdentitySet() []frost.Identifier {
	ids := make([]frost.Identifier, 0, len(r.Identities))
	for _, id := range r.Identities {
		ids = append(ids, frost.Identifier(id))
	}
	return ids
}

// DecodeRootSecret returns a fresh copy of the root secret.
func (r *KeyRecord) DecodeRootSecret() ([]byte, error) {
	if r.RootSecret == "" {
		return nil, wrap(ErrNotProvisioned, "root secret", fmt.Errorf("empty"))
	}
	secret, err := hex.DecodeString(r.RootSecret)
	if err != nil {
		return nil, wrap(ErrCorrupt, "root secret", err)
	}
	return secret, nil
}

// Validate decodes every field once.
func (r *KeyRecord) Validate() error {
	if _, err := r.KeyPackage(); err != nil {
		return err
	}
	secret, err := r.DecodeRootSecret()
	if err != nil {
		return err
	}
	frostsign.ZeroBytes(secret)
	return nil
}

// Clone returns a deep copy.
func (r *KeyRecord) Clone() *KeyRecord {
	out := *r
	out.VerificationShares = append([]ShareRecord(nil), r.VerificationShares...)
	out.Identities = append([]uint32(nil), r.Identities...)
	return &out
}

// exportRecord strips the root secret, which never leaves the device.
func exportRecord(r *KeyRecord) ([]byte, error) {
	out := r.Clone()
	out.RootSecret = ""
	s, err := transport.NewSerializer(BackupCodec)
	if err != nil {
		return nil, err
	}
	return s.Marshal(out)
}

// importRecord decodes backup material and keeps the current root secret.
func importRecord(material []byte, current *KeyRecord) (*KeyRecord, error) {
	s, err := transport.NewSerializer(BackupCodec)
	if err != nil {
		return nil, err
	}
	var rec KeyRecord
	if err := s.Unmarshal(material, &rec); err != nil {
		return nil, wrap(ErrCorrupt, "backup material", err)
	}
	if current != nil {
		rec.RootSecret = current.RootSecret
	}
	if _, err := rec.KeyPackage(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodeElement(cs ciphersuite.Ciphersuite, s string) (group.Element, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return cs.Group().DeserializeElement(raw)
}
