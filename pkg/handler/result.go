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

package handler

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-frostsigner/pkg/response"
)

// GetResult returns chunk i of the pending result. Reading the last chunk
// releases the result.
func (d *Device) GetResult(i uint8) ([]byte, error) {
	if d.result == nil {
		return nil, ErrNoResult
	}
	chunk, err := d.result.Chunk(i)
	if errors.Is(err, response.ErrChunkIndex) {
		return nil, fmt.Errorf("%w: %v", ErrNoResult, err)
	}
	if err != nil {
		return nil, err
	}
	if d.result.IsLast(i) {
		d.dropResult()
	}
	return chunk, nil
}

// HasResult reports whether a result is pending.
func (d *Device) HasResult() bool { return d.result != nil }

// IdentityInfo is the public half of the device key.
type IdentityInfo struct {
	Identifier     uint32
	VerifyingShare []byte
	GroupPublicKey []byte
	MinSigners     uint32
	MaxSigners     uint32
}

// Identity returns this device's identifier and public keys.
func (d *Device) Identity() (*IdentityInfo, error) {
	kp, err := d.store.LoadKeyPackage()
	if err != nil {
		return nil, err
	}
	vs, err := d.scheme.VerifyingShare(kp)
	if err != nil {
		return nil, err
	}
	rawVS, err := d.scheme.SerializeElement(vs)
	if err != nil {
		return nil, err
	}
	rawGK, err := d.scheme.SerializeElement(kp.GroupPublicKey)
	if err != nil {
		return nil, err
	}
	return &IdentityInfo{
		Identifier:     uint32(kp.Identifier),
		VerifyingShare: rawVS,
		GroupPublicKey: rawGK,
		MinSigners:     kp.MinSigners,
		MaxSigners:     kp.MaxSigners,
	}, nil
}

// VersionInfo describes the firmware.
type VersionInfo struct {
	Major, Minor, Patch uint8
	Ciphersuite         string
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d (%s)", v.Major, v.Minor, v.Patch, v.Ciphersuite)
}

// Version reports the firmware version and provisioned ciphersuite.
func (d *Device) Version() VersionInfo {
	return VersionInfo{
		Major:       VersionMajor,
		Minor:       VersionMinor,
		Patch:       VersionPatch,
		Ciphersuite: d.store.Ciphersuite(),
	}
}
