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
	"context"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/jeremyhahn/go-frost/pkg/frost/group"
	"github.com/stretchr/testify/mock"

	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
)

// mockCapability records which signing operations are reached.
type mockCapability struct {
	mock.Mock
}

func (m *mockCapability) DeserializeRandomizer(data []byte) (*frostsign.Randomizer, error) {
	args := m.Called(data)
	r, _ := args.Get(0).(*frostsign.Randomizer)
	return r, args.Error(1)
}

func (m *mockCapability) DeserializeSigningPackage(data []byte) (*frostsign.SigningPackage, error) {
	args := m.Called(data)
	p, _ := args.Get(0).(*frostsign.SigningPackage)
	return p, args.Error(1)
}

func (m *mockCapability) DeriveNonces(kp *frost.KeyPackage, txHash []byte, ids []frost.Identifier) (*frostsign.SigningNonces, error) {
	args := m.Called(kp, txHash, ids)
	n, _ := args.Get(0).(*frostsign.SigningNonces)
	return n, args.Error(1)
}

func (m *mockCapability) Sign(pkg *frostsign.SigningPackage, nonces *frostsign.SigningNonces, kp *frost.KeyPackage, r *frostsign.Randomizer) (*frostsign.SignatureShare, error) {
	args := m.Called(pkg, nonces, kp, r)
	s, _ := args.Get(0).(*frostsign.SignatureShare)
	return s, args.Error(1)
}

func (m *mockCapability) SerializeSignatureShare(share *frostsign.SignatureShare) ([]byte, error) {
	args := m.Called(share)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockCapability) Commitments(kp *frost.KeyPackage, txHash []byte, ids []frost.Identifier) (*frostsign.SigningCommitments, error) {
	args := m.Called(kp, txHash, ids)
	c, _ := args.Get(0).(*frostsign.SigningCommitments)
	return c, args.Error(1)
}

func (m *mockCapability) SerializeCommitments(cm *frostsign.SigningCommitments) ([]byte, error) {
	args := m.Called(cm)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockCapability) VerifyingShare(kp *frost.KeyPackage) (group.Element, error) {
	args := m.Called(kp)
	e, _ := args.Get(0).(group.Element)
	return e, args.Error(1)
}

func (m *mockCapability) SerializeElement(e group.Element) ([]byte, error) {
	args := m.Called(e)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

// mockStore is a KeyStore whose calls are scripted.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadKeyPackage() (*frost.KeyPackage, error) {
	args := m.Called()
	kp, _ := args.Get(0).(*frost.KeyPackage)
	return kp, args.Error(1)
}

func (m *mockStore) LoadIdentities() ([]frost.Identifier, error) {
	args := m.Called()
	ids, _ := args.Get(0).([]frost.Identifier)
	return ids, args.Error(1)
}

func (m *mockStore) ExportBackupMaterial() ([]byte, error) {
	args := m.Called()
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockStore) ImportBackupMaterial(material []byte) error {
	return m.Called(material).Error(0)
}

func (m *mockStore) RootSecret() ([]byte, error) {
	args := m.Called()
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockStore) Ciphersuite() string {
	return m.Called().String(0)
}

// mockConfirmer scripts confirmation answers.
type mockConfirmer struct {
	mock.Mock
}

func (m *mockConfirmer) Confirm(ctx context.Context, lines []string) (bool, error) {
	args := m.Called(ctx, lines)
	return args.Bool(0), args.Error(1)
}
