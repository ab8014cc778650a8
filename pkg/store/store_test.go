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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

// provisionable is implemented by every backend.
type provisionable interface {
	KeyStore
	Provision(rec *KeyRecord) error
}

func testRecord(t *testing.T, idx int, root byte) (*KeyRecord, *frost.KeyPackage) {
	t.Helper()
	cs, err := frostsign.CiphersuiteByName(frostsign.DefaultCiphersuite)
	require.NoError(t, err)
	kps, err := frostsign.GenerateWithDealer(cs, 2, 3)
	require.NoError(t, err)

	rec, err := NewKeyRecord(frostsign.DefaultCiphersuite, kps[idx], []frost.Identifier{3, 1, 2}, bytes.Repeat([]byte{root}, RootSecretSize))
	require.NoError(t, err)
	return rec, kps[idx]
}

func backends(t *testing.T) map[string]func() provisionable {
	return map[string]func() provisionable{
		"memory": func() provisionable { return NewMemoryStore(nil) },
		"file": func() provisionable {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "keys", "device.yaml"), transport.CodecYAML)
			require.NoError(t, err)
			return s
		},
		"sql": func() provisionable {
			s, err := OpenSQLStore(InMemorySQLiteDSN)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestKeyStoreBackends(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()

			_, err := s.LoadKeyPackage()
			assert.ErrorIs(t, err, ErrNotProvisioned)
			assert.ErrorIs(t, err, ErrStore)
			_, err = s.RootSecret()
			assert.ErrorIs(t, err, ErrStore)
			assert.Empty(t, s.Ciphersuite())

			rec, kp := testRecord(t, 0, 0x11)
			require.NoError(t, s.Provision(rec))

			loaded, err := s.LoadKeyPackage()
			require.NoError(t, err)
			assert.Equal(t, kp.Identifier, loaded.Identifier)
			assert.Equal(t, kp.MinSigners, loaded.MinSigners)
			assert.Len(t, loaded.VerificationShares, 3)
			assert.True(t, kp.GroupPublicKey.Equal(loaded.GroupPublicKey))

			ids, err := s.LoadIdentities()
			require.NoError(t, err)
			assert.Equal(t, []frost.Identifier{1, 2, 3}, ids)
			assert.Equal(t, frostsign.DefaultCiphersuite, s.Ciphersuite())

			secret, err := s.RootSecret()
			require.NoError(t, err)
			assert.Equal(t, bytes.Repeat([]byte{0x11}, RootSecretSize), secret)
			secret[0] = 0
			again, err := s.RootSecret()
			require.NoError(t, err)
			assert.Equal(t, byte(0x11), again[0], "root secret must be returned as a copy")
		})
	}
}

func TestBackupMaterialRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			src := open()
			rec, kp := testRecord(t, 1, 0xAA)
			require.NoError(t, src.Provision(rec))

			material, err := src.ExportBackupMaterial()
			require.NoError(t, err)
			assert.False(t, bytes.Contains(material, []byte(rec.RootSecret)), "root secret must not be exported")

			dst := open()
			other, _ := testRecord(t, 2, 0xBB)
			require.NoError(t, dst.Provision(other))
			require.NoError(t, dst.ImportBackupMaterial(material))

			restored, err := dst.LoadKeyPackage()
			require.NoError(t, err)
			assert.Equal(t, kp.Identifier, restored.Identifier)

			secret, err := dst.RootSecret()
			require.NoError(t, err)
			assert.Equal(t, bytes.Repeat([]byte{0xBB}, RootSecretSize), secret, "import keeps the device root secret")

			assert.ErrorIs(t, dst.ImportBackupMaterial([]byte{0x01, 0x02}), ErrCorrupt)
		})
	}
}

func TestProvisionRejectsBadRecords(t *testing.T) {
	s := NewMemoryStore(nil)
	assert.ErrorIs(t, s.Provision(nil), ErrStore)

	rec, _ := testRecord(t, 0, 1)
	bad := rec.Clone()
	bad.SecretShare = "zz"
	assert.ErrorIs(t, s.Provision(bad), ErrCorrupt)

	bad = rec.Clone()
	bad.Ciphersuite = "rot13"
	assert.ErrorIs(t, s.Provision(bad), ErrCorrupt)

	bad = rec.Clone()
	bad.RootSecret = ""
	assert.ErrorIs(t, s.Provision(bad), ErrNotProvisioned)
}

func TestFileStoreCorruptAndMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	s, err := NewFileStore(path, transport.CodecJSON)
	require.NoError(t, err)

	rec, _ := testRecord(t, 0, 7)
	require.NoError(t, s.Provision(rec))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = s.LoadKeyPackage()
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = NewFileStore(path, "xml")
	assert.ErrorIs(t, err, ErrStore)
}

func TestSQLStoreFilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvm", "device.db")
	s, err := OpenSQLStore(path)
	require.NoError(t, err)
	rec, kp := testRecord(t, 0, 3)
	require.NoError(t, s.Provision(rec))
	require.NoError(t, s.Provision(rec), "second provision updates the slot")
	require.NoError(t, s.Close())

	reopened, err := OpenSQLStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	var count int64
	require.NoError(t, reopened.Client().Model(&NVMEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	loaded, err := reopened.LoadKeyPackage()
	require.NoError(t, err)
	assert.Equal(t, kp.Identifier, loaded.Identifier)
}
