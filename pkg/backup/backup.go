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

// Package backup encrypts exported key material under a key derived from
// the device root secret.
//
// Blob layout:
//
//	version(1) || salt(32) || nonce(12) || ciphertext || tag(16)
//
// The version, salt and nonce are authenticated as associated data.
package backup

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Version is the current blob format version.
const Version byte = 1

// Info is the HKDF context string for backup keys.
const Info = "frostsigner/backup/v1"

const (
	// SaltSize is the length of the per-backup HKDF salt.
	SaltSize = 32
	// KeySize is the length of the derived AEAD key.
	KeySize = chacha20poly1305.KeySize

	headerSize = 1 + SaltSize + chacha20poly1305.NonceSize
)

// Overhead is the number of bytes a blob adds to its plaintext.
const Overhead = headerSize + chacha20poly1305.Overhead

var (
	// ErrKeyDerivation indicates the root secret was unavailable or the KDF failed.
	ErrKeyDerivation = errors.New("backup: key derivation failed")

	// ErrEncryption indicates the AEAD could not seal the plaintext.
	ErrEncryption = errors.New("backup: encryption failed")

	// ErrDecryption indicates the blob did not authenticate.
	ErrDecryption = errors.New("backup: decryption failed")

	// ErrInvalidBlob indicates a blob too short to hold a header and tag.
	ErrInvalidBlob = errors.New("backup: invalid blob")

	// ErrUnsupportedVersion indicates an unknown blob version.
	ErrUnsupportedVersion = errors.New("backup: unsupported version")
)

// KeySource supplies the device root secret the backup key is derived from.
// The returned slice belongs to the caller, which wipes it after use.
type KeySource interface {
	RootSecret() ([]byte, error)
}

// Key is a derived backup key together with the salt that produced it.
type Key struct {
	Salt [SaltSize]byte
	key  [KeySize]byte
}

// Zeroize wipes the key bytes.
func (k *Key) Zeroize() {
	if k == nil {
		return
	}
	k.key = [KeySize]byte{}
	k.Salt = [SaltSize]byte{}
}

// Encryptor derives keys and seals backups.
type Encryptor struct {
	source KeySource
	rand   io.Reader
}

// Option configures an Encryptor.
type Option func(*Encryptor)

// WithRand replaces crypto/rand as the source of salts and nonces.
func WithRand(r io.Reader) Option {
	return func(e *Encryptor) { e.rand = r }
}

// NewEncryptor returns an Encryptor bound to source.
func NewEncryptor(source KeySource, opts ...Option) *Encryptor {
	e := &Encryptor{source: source, rand: rand.Reader}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DeriveKey draws a fresh salt and derives a key with HKDF-SHA256 over the
// root secret.
func (e *Encryptor) DeriveKey() (*Key, error) {
	k := &Key{}
	if _, err := io.ReadFull(e.rand, k.Salt[:]); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrKeyDerivation, err)
	}
	if err := e.derive(k); err != nil {
		return nil, err
	}
	return k, nil
}

func (e *Encryptor) derive(k *Key) error {
	secret, err := e.source.RootSecret()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	defer wipe(secret)
	if len(secret) == 0 {
		return fmt.Errorf("%w: empty root secret", ErrKeyDerivation)
	}
	kdf := hkdf.New(sha256.New, secret, k.Salt[:], []byte(Info))
	if _, err := io.ReadFull(kdf, k.key[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return nil
}

// Encrypt seals plaintext under key with a fresh random nonce.
func (e *Encryptor) Encrypt(key *Key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key.key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	out[0] = Version
	copy(out[1:], key.Salt[:])
	nonce := out[1+SaltSize : headerSize]
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrEncryption, err)
	}
	return aead.Seal(out, nonce, plaintext, out[:headerSize]), nil
}

// Decrypt re-derives the key from the salt in blob and opens it.
func (e *Encryptor) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidBlob, len(blob))
	}
	if blob[0] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, blob[0])
	}

	k := &Key{}
	defer k.Zeroize()
	copy(k.Salt[:], blob[1:1+SaltSize])
	if err := e.derive(k); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(k.key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	header := blob[:headerSize]
	plaintext, err := aead.Open(nil, blob[1+SaltSize:headerSize], blob[headerSize:], header)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
