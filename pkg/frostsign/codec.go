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

	"github.com/jeremyhahn/go-frostsigner/pkg/buffer"
)

// Codec converts signing types to and from their canonical byte form for a
// single ciphersuite.
//
// Signing package layout (integers are big-endian):
//
//	u16 count
//	count * (u16 identifier || hiding element || binding element)
//	u16 message length || message
//
// Commitments must appear in strictly increasing identifier order. Decoding
// rejects identity elements, zero identifiers and trailing bytes.
type Codec struct {
	cs  ciphersuite.Ciphersuite
	grp group.Group
}

// NewCodec returns a Codec for cs.
func NewCodec(cs ciphersuite.Ciphersuite) *Codec {
	return &Codec{cs: cs, grp: cs.Group()}
}

// Ciphersuite returns the ciphersuite the codec is bound to.
func (c *Codec) Ciphersuite() ciphersuite.Ciphersuite { return c.cs }

// SerializeRandomizer encodes r as a scalar.
func (c *Codec) SerializeRandomizer(r *Randomizer) []byte {
	return c.grp.SerializeScalar(r.Scalar)
}

// DeserializeRandomizer decodes a canonical scalar.
func (c *Codec) DeserializeRandomizer(data []byte) (*Randomizer, error) {
	if len(data) != c.grp.ScalarLength() {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrInvalidRandomizer, len(data), c.grp.ScalarLength())
	}
	s, err := c.grp.DeserializeScalar(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRandomizer, err)
	}
	return &Randomizer{Scalar: s}, nil
}

// SerializeSigningPackage encodes p. Commitments are written in the order
// given; callers build packages with NewSigningPackage to get them sorted.
func (c *Codec) SerializeSigningPackage(p *SigningPackage) ([]byte, error) {
	if len(p.Commitments) > 0xFFFF || len(p.Message) > 0xFFFF {
		return nil, fmt.Errorf("%w: field exceeds u16 length", ErrInvalidSigningPackage)
	}
	elemLen := c.grp.ElementLength()
	out := make([]byte, 0, 2+len(p.Commitments)*(2+2*elemLen)+2+len(p.Message))
	out = binary.BigEndian.AppendUint16(out, uint16(len(p.Commitments)))
	for _, cm := range p.Commitments {
		enc, err := c.encodeCommitments(&cm)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(p.Message)))
	out = append(out, p.Message...)
	return out, nil
}

// DeserializeSigningPackage decodes and validates a signing package.
func (c *Codec) DeserializeSigningPackage(data []byte) (*SigningPackage, error) {
	r := buffer.Wrap(data)
	count, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: missing commitment count", ErrInvalidSigningPackage)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no commitments", ErrInvalidSigningPackage)
	}

	elemLen := c.grp.ElementLength()
	pkg := &SigningPackage{Commitments: make([]SigningCommitments, 0, count)}
	var prev uint16
	for i := 0; i < int(count); i++ {
		id, err := r.ReadU16()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated commitment %d: %v", ErrInvalidSigningPackage, i, err)
		}
		if id == 0 || (i > 0 && id <= prev) {
			return nil, fmt.Errorf("%w: identifier %d out of order or zero", ErrInvalidSigningPackage, id)
		}
		prev = id

		raw, err := r.ReadSlice(2 * elemLen)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated commitment %d: %v", ErrInvalidSigningPackage, id, err)
		}
		hidingRaw, bindingRaw := raw[:elemLen], raw[elemLen:]
		hiding, err := c.decodeElement(hidingRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: hiding commitment of %d: %v", ErrInvalidSigningPackage, id, err)
		}
		binding, err := c.decodeElement(bindingRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: binding commitment of %d: %v", ErrInvalidSigningPackage, id, err)
		}
		pkg.Commitments = append(pkg.Commitments, SigningCommitments{
			Identifier: frost.Identifier(id),
			Hiding:     hiding,
			Binding:    binding,
		})
	}

	msgLen, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: missing message length", ErrInvalidSigningPackage)
	}
	msg, err := r.ReadSlice(int(msgLen))
	if err != nil {
		return nil, fmt.Errorf("%w: truncated message: %v", ErrInvalidSigningPackage, err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidSigningPackage, r.Remaining())
	}
	pkg.Message = append([]byte(nil), msg...)
	return pkg, nil
}

// SerializeCommitments encodes a single participant's commitments in the
// same form used inside a signing package.
func (c *Codec) SerializeCommitments(cm *SigningCommitments) ([]byte, error) {
	return c.encodeCommitments(cm)
}

// DeserializeCommitments decodes the output of SerializeCommitments.
func (c *Codec) DeserializeCommitments(data []byte) (*SigningCommitments, error) {
	r := buffer.Wrap(data)
	id, err := r.ReadU16()
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: bad identifier", ErrInvalidSigningPackage)
	}
	elemLen := c.grp.ElementLength()
	raw, err := r.ReadSlice(2 * elemLen)
	if err != nil || r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: commitment length %d", ErrInvalidSigningPackage, len(data))
	}
	hidingRaw, bindingRaw := raw[:elemLen], raw[elemLen:]
	hiding, err := c.decodeElement(hidingRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigningPackage, err)
	}
	binding, err := c.decodeElement(bindingRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigningPackage, err)
	}
	return &SigningCommitments{Identifier: frost.Identifier(id), Hiding: hiding, Binding: binding}, nil
}

// SerializeSignatureShare encodes s as u16 identifier || scalar.
func (c *Codec) SerializeSignatureShare(s *SignatureShare) ([]byte, error) {
	if s.Identifier == 0 || uint32(s.Identifier) > MaxIdentifier {
		return nil, ErrInvalidIdentifier
	}
	out := binary.BigEndian.AppendUint16(nil, uint16(s.Identifier))
	return append(out, c.grp.SerializeScalar(s.Z)...), nil
}

// DeserializeSignatureShare decodes the output of SerializeSignatureShare.
func (c *Codec) DeserializeSignatureShare(data []byte) (*SignatureShare, error) {
	if len(data) != 2+c.grp.ScalarLength() {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignatureShare, len(data))
	}
	id := binary.BigEndian.Uint16(data)
	if id == 0 {
		return nil, fmt.Errorf("%w: zero identifier", ErrInvalidSignatureShare)
	}
	z, err := c.grp.DeserializeScalar(data[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignatureShare, err)
	}
	return &SignatureShare{Identifier: frost.Identifier(id), Z: z}, nil
}

// SerializeSignature encodes sig as R || z.
func (c *Codec) SerializeSignature(sig *Signature) ([]byte, error) {
	r, err := c.grp.SerializeElement(sig.R)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return append(r, c.grp.SerializeScalar(sig.Z)...), nil
}

// DeserializeSignature decodes the output of SerializeSignature.
func (c *Codec) DeserializeSignature(data []byte) (*Signature, error) {
	elemLen := c.grp.ElementLength()
	if len(data) != elemLen+c.grp.ScalarLength() {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(data))
	}
	r, err := c.grp.DeserializeElement(data[:elemLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	z, err := c.grp.DeserializeScalar(data[elemLen:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &Signature{R: r, Z: z}, nil
}

// SerializeElement encodes a group element such as a verifying key.
func (c *Codec) SerializeElement(e group.Element) ([]byte, error) {
	return c.grp.SerializeElement(e)
}

// DeserializeElement decodes a non-identity group element.
func (c *Codec) DeserializeElement(data []byte) (group.Element, error) {
	return c.decodeElement(data)
}

func (c *Codec) encodeCommitments(cm *SigningCommitments) ([]byte, error) {
	if cm.Identifier == 0 || uint32(cm.Identifier) > MaxIdentifier {
		return nil, fmt.Errorf("%w: identifier %d", ErrInvalidSigningPackage, cm.Identifier)
	}
	hiding, err := c.grp.SerializeElement(cm.Hiding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigningPackage, err)
	}
	binding, err := c.grp.SerializeElement(cm.Binding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigningPackage, err)
	}
	out := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(hiding)+len(binding)), uint16(cm.Identifier))
	out = append(out, hiding...)
	return append(out, binding...), nil
}

func (c *Codec) decodeElement(data []byte) (group.Element, error) {
	e, err := c.grp.DeserializeElement(data)
	if err != nil {
		return nil, err
	}
	if e.IsIdentity() {
		return nil, errIdentityElement
	}
	return e, nil
}
