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
	"errors"
	"fmt"
)

// ErrStore is matched by every error returned from a KeyStore.
var ErrStore = errors.New("store: key store error")

var (
	// ErrNotProvisioned indicates no key material has been stored yet.
	ErrNotProvisioned error = &kindError{"store: device not provisioned"}

	// ErrCorrupt indicates stored key material could not be decoded.
	ErrCorrupt error = &kindError{"store: key material corrupt"}

	// ErrUnavailable indicates the backing medium could not be accessed.
	ErrUnavailable error = &kindError{"store: backend unavailable"}
)

type kindError struct{ msg string }

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == ErrStore }

// wrap annotates err with kind unless it already carries one.
func wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStore) {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", kind, op, err)
}
