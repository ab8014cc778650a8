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

// Package store persists the device's key material.
//
// Three backends share one KeyRecord model: MemoryStore for tests,
// FileStore for a codec-encoded record file and SQLStore for a SQLite
// table managed with GORM. Every error returned by a store matches
// ErrStore; ErrNotProvisioned and ErrCorrupt refine it.
package store

import (
	"sync"

	"github.com/jeremyhahn/go-frost/pkg/frost"

	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
)

// KeyStore is the device's secure key storage.
type KeyStore interface {
	// LoadKeyPackage returns this device's key package.
	LoadKeyPackage() (*frost.KeyPackage, error)

	// LoadIdentities returns the identifiers of the signer set.
	LoadIdentities() ([]frost.Identifier, error)

	// ExportBackupMaterial returns the key material to encrypt for backup.
	// The caller wipes the returned slice.
	ExportBackupMaterial() ([]byte, error)

	// ImportBackupMaterial replaces the key material with a decrypted backup.
	ImportBackupMaterial(material []byte) error

	// RootSecret returns a copy of the device root secret. The caller wipes it.
	RootSecret() ([]byte, error)

	// Ciphersuite returns the provisioned ciphersuite name, empty if none.
	Ciphersuite() string
}

// backend loads and saves the single device record.
type backend interface {
	load() (*KeyRecord, error)
	save(rec *KeyRecord) error
}

// records implements KeyStore on top of a backend.
type records struct {
	b backend
}

func (r records) LoadKeyPackage() (*frost.KeyPackage, error) {
	rec, err := r.b.load()
	if err != nil {
		return nil, err
	}
	return rec.KeyPackage()
}

func (r records) LoadIdentities() ([]frost.Identifier, error) {
	rec, err := r.b.load()
	if err != nil {
		return nil, err
	}
	return rec.IdentitySet(), nil
}

func (r records) ExportBackupMaterial() ([]byte, error) {
	rec, err := r.b.load()
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	material, err := exportRecord(rec)
	if err != nil {
		return nil, wrap(ErrCorrupt, "export", err)
	}
	return material, nil
}

func (r records) ImportBackupMaterial(material []byte) error {
	current, err := r.b.load()
	if err != nil {
		return err
	}
	rec, err := importRecord(material, current)
	if err != nil {
		return err
	}
	return r.b.save(rec)
}

func (r records) RootSecret() ([]byte, error) {
	rec, err := r.b.load()
	if err != nil {
		return nil, err
	}
	return rec.DecodeRootSecret()
}

func (r records) Ciphersuite() string {
	rec, err := r.b.load()
	if err != nil {
		return ""
	}
	return rec.Ciphersuite
}

// Provision validates rec and stores it, replacing any previous record.
func (r records) Provision(rec *KeyRecord) error {
	if rec == nil {
		return wrap(ErrCorrupt, "provision", frostsign.ErrInvalidKeyPackage)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	return r.b.save(rec.Clone())
}

// MemoryStore keeps the record in memory.
type MemoryStore struct {
	records
	mu  sync.Mutex
	rec *KeyRecord
}

// NewMemoryStore returns a store holding rec, which may be nil.
func NewMemoryStore(rec *KeyRecord) *MemoryStore {
	s := &MemoryStore{}
	if rec != nil {
		s.rec = rec.Clone()
	}
	s.records = records{b: s}
	return s
}

func (s *MemoryStore) load() (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, ErrNotProvisioned
	}
	return s.rec.Clone(), nil
}

func (s *MemoryStore) save(rec *KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec.Clone()
	return nil
}
