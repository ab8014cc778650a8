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

package backup

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	secret []byte
	err    error
}

func (s staticSource) RootSecret() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte(nil), s.secret...), nil
}

func newEncryptor() *Encryptor {
	return NewEncryptor(staticSource{secret: bytes.Repeat([]byte{0x5a}, 32)})
}

func TestEncryptDecrypt(t *testing.T) {
	enc := newEncryptor()
	key, err := enc.DeriveKey()
	require.NoError(t, err)

	plaintext := []byte("key package material")
	blob, err := enc.Encrypt(key, plaintext)
	require.NoError(t, err)

	assert.Len(t, blob, len(plaintext)+Overhead)
	assert.Equal(t, Version, blob[0])
	assert.Equal(t, key.Salt[:], blob[1:1+SaltSize])
	assert.NotContains(t, string(blob), string(plaintext))

	got, err := enc.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestFreshSaltPerKey(t *testing.T) {
	enc := newEncryptor()
	a, err := enc.DeriveKey()
	require.NoError(t, err)
	b, err := enc.DeriveKey()
	require.NoError(t, err)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.key, b.key)
}

func TestDecryptFailures(t *testing.T) {
	enc := newEncryptor()
	key, _ := enc.DeriveKey()
	blob, err := enc.Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	t.Run("tampered_ciphertext", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[len(bad)-1] ^= 1
		_, err := enc.Decrypt(bad)
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("tampered_salt", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[1] ^= 1
		_, err := enc.Decrypt(bad)
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("wrong_root_secret", func(t *testing.T) {
		other := NewEncryptor(staticSource{secret: bytes.Repeat([]byte{0x11}, 32)})
		_, err := other.Decrypt(blob)
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("short", func(t *testing.T) {
		_, err := enc.Decrypt(blob[:Overhead-1])
		assert.ErrorIs(t, err, ErrInvalidBlob)
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[0] = 9
		_, err := enc.Decrypt(bad)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})
}

func TestKeySourceFailure(t *testing.T) {
	boom := errors.New("nvm unavailable")
	enc := NewEncryptor(staticSource{err: boom})
	_, err := enc.DeriveKey()
	assert.ErrorIs(t, err, ErrKeyDerivation)
	assert.ErrorIs(t, err, boom)

	_, err = NewEncryptor(staticSource{}).DeriveKey()
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestRandFailure(t *testing.T) {
	enc := NewEncryptor(staticSource{secret: []byte{1}}, WithRand(failingReader{}))
	_, err := enc.DeriveKey()
	assert.ErrorIs(t, err, ErrKeyDerivation)

	_, err = enc.Encrypt(&Key{}, []byte("x"))
	assert.ErrorIs(t, err, ErrEncryption)
}

func TestKeyZeroize(t *testing.T) {
	k, err := newEncryptor().DeriveKey()
	require.NoError(t, err)
	k.Zeroize()
	assert.Equal(t, [KeySize]byte{}, k.key)
}
