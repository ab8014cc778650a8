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
	"os"
	"path/filepath"
	"sync"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// FileStore keeps the record in a single codec-encoded file.
type FileStore struct {
	records
	mu         sync.Mutex
	path       string
	serializer *transport.Serializer
}

// NewFileStore returns a store backed by path, encoded with codec. The
// file need not exist yet.
func NewFileStore(path, codec string) (*FileStore, error) {
	s, err := transport.NewSerializer(codec)
	if err != nil {
		return nil, wrap(ErrUnavailable, "codec", err)
	}
	fs := &FileStore{path: filepath.Clean(path), serializer: s}
	fs.records = records{b: fs}
	return fs, nil
}

// Path returns the record file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNotProvisioned
	}
	if err != nil {
		return nil, wrap(ErrUnavailable, "read", err)
	}
	var rec KeyRecord
	if err := s.serializer.Unmarshal(data, &rec); err != nil {
		return nil, wrap(ErrCorrupt, "decode", err)
	}
	return &rec, nil
}

// save writes to a temporary file and renames it over the record.
func (s *FileStore) save(rec *KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.serializer.Marshal(rec)
	if err != nil {
		return wrap(ErrCorrupt, "encode", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return wrap(ErrUnavailable, "mkdir", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return wrap(ErrUnavailable, "write", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return wrap(ErrUnavailable, "rename", err)
	}
	return nil
}
