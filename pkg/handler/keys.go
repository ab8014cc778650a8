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
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
)

// Backup exports the key material encrypted under a fresh backup key. The
// ciphertext becomes the pending result only after the user approves.
func (d *Device) Backup(ctx context.Context) (Reply, error) {
	d.reset()
	d.dropResult()

	blob, err := d.sealBackup()
	if err != nil {
		return Reply{}, d.fail(OpBackup, err)
	}

	fp := sha256.Sum256(blob)
	lines := []string{
		"Export encrypted key backup",
		fmt.Sprintf("Size: %d bytes", len(blob)),
		"Fingerprint: " + hex.EncodeToString(fp[:8]),
	}
	if err := d.confirm(ctx, lines); err != nil {
		frostsign.ZeroBytes(blob)
		return Reply{}, d.fail(OpBackup, err)
	}

	reply, err := d.publish(blob)
	if err != nil {
		return Reply{}, d.fail(OpBackup, err)
	}
	d.log().Info("backup ready in %d chunks", reply.Total)
	d.succeed(OpBackup)
	return reply, nil
}

func (d *Device) sealBackup() ([]byte, error) {
	material, err := d.store.ExportBackupMaterial()
	if err != nil {
		return nil, err
	}
	defer frostsign.ZeroBytes(material)

	key, err := d.cipher.DeriveKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	defer key.Zeroize()

	blob, err := d.cipher.Encrypt(key, material)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	return blob, nil
}

// Restore accumulates one chunk of an encrypted backup. Once complete the
// backup is opened, confirmed with the user and imported into the store.
func (d *Device) Restore(ctx context.Context, chunk session.Chunk) (Reply, error) {
	done, err := d.accumulate(OpRestore, chunk)
	if err != nil {
		return Reply{}, d.fail(OpRestore, err)
	}
	if !done {
		return Reply{More: true}, nil
	}

	material, err := d.cipher.Decrypt(d.session.Buffer().Bytes())
	if err != nil {
		return Reply{}, d.fail(OpRestore, fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}
	defer frostsign.ZeroBytes(material)

	lines := []string{
		"Restore key backup",
		"This replaces the key share stored on the device",
	}
	if err := d.confirm(ctx, lines); err != nil {
		return Reply{}, d.fail(OpRestore, err)
	}
	if err := d.store.ImportBackupMaterial(material); err != nil {
		return Reply{}, d.fail(OpRestore, err)
	}
	d.log().Info("backup restored")
	d.succeed(OpRestore)
	return Reply{}, nil
}
