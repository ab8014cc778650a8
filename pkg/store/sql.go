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
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

const (
	// InMemorySQLiteDSN is a special DSN to create an ephemeral in-memory SQLite database.
	InMemorySQLiteDSN = ":memory:"

	// DefaultSlot names the row holding the device record.
	DefaultSlot = "device"

	sqlCodec = transport.CodecCBOR
)

var gormConfig = &gorm.Config{
	Logger: logger.Default.LogMode(logger.Silent),
}

// NVMEntry is one slot of device non-volatile memory.
type NVMEntry struct {
	ID        uint   `gorm:"primaryKey"`
	Slot      string `gorm:"uniqueIndex;not null"`
	Codec     string `gorm:"not null"`
	Data      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (NVMEntry) TableName() string { return "nvm_entries" }

// SQLStore keeps the record in a SQLite table.
type SQLStore struct {
	records
	client     *gorm.DB
	slot       string
	serializer *transport.Serializer
}

// OpenSQLStore opens (or creates) the SQLite database at path. Use
// InMemorySQLiteDSN for an ephemeral store.
func OpenSQLStore(path string) (*SQLStore, error) {
	dsn := path
	if dsn != InMemorySQLiteDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), dirMode); err != nil {
			return nil, wrap(ErrUnavailable, "open", errors.Wrapf(err, "failed to create directory for %s", dsn))
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, wrap(ErrUnavailable, "open", errors.Wrap(err, "failed to open SQLite database"))
	}
	if err := db.AutoMigrate(&NVMEntry{}); err != nil {
		return nil, wrap(ErrUnavailable, "open", errors.Wrap(err, "failed to auto-migrate database schema"))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, wrap(ErrUnavailable, "open", errors.Wrap(err, "failed to get underlying sql.DB"))
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	s, err := transport.NewSerializer(sqlCodec)
	if err != nil {
		return nil, wrap(ErrUnavailable, "codec", err)
	}
	st := &SQLStore{client: db, slot: DefaultSlot, serializer: s}
	st.records = records{b: st}
	return st, nil
}

// Client returns the internal *gorm.DB instance.
func (s *SQLStore) Client() *gorm.DB { return s.client }

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "failed to close database connection")
	}
	return nil
}

func (s *SQLStore) load() (*KeyRecord, error) {
	var entry NVMEntry
	err := s.client.Where("slot = ?", s.slot).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotProvisioned
	}
	if err != nil {
		return nil, wrap(ErrUnavailable, "load", errors.Wrap(err, "failed to query slot"))
	}

	ser := s.serializer
	if entry.Codec != ser.Codec() {
		if ser, err = transport.NewSerializer(entry.Codec); err != nil {
			return nil, wrap(ErrCorrupt, "load", err)
		}
	}
	var rec KeyRecord
	if err := ser.Unmarshal(entry.Data, &rec); err != nil {
		return nil, wrap(ErrCorrupt, "decode", err)
	}
	return &rec, nil
}

func (s *SQLStore) save(rec *KeyRecord) error {
	data, err := s.serializer.Marshal(rec)
	if err != nil {
		return wrap(ErrCorrupt, "encode", err)
	}
	entry := NVMEntry{Slot: s.slot, Codec: s.serializer.Codec(), Data: data}

	err = s.client.Transaction(func(tx *gorm.DB) error {
		var existing NVMEntry
		err := tx.Where("slot = ?", s.slot).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&entry).Error
		case err != nil:
			return err
		}
		return tx.Model(&existing).Updates(map[string]any{
			"codec": entry.Codec,
			"data":  entry.Data,
		}).Error
	})
	if err != nil {
		return wrap(ErrUnavailable, "save", errors.Wrapf(err, "failed to write slot %s", s.slot))
	}
	return nil
}
