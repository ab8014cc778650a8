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

package frostsign

import (
	"crypto/subtle"

	"github.com/jeremyhahn/go-frost/pkg/frost/group"
)

// ZeroBytes overwrites b with zeros in a way the compiler will not elide.
func ZeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// Zeroize drops the nonce scalars. group.Scalar does not expose its storage,
// so the best available is overwriting with zero scalars and releasing the
// references.
func (n *SigningNonces) Zeroize(grp group.Group) {
	if n == nil {
		return
	}
	if grp != nil {
		n.Hiding = grp.NewScalar()
		n.Binding = grp.NewScalar()
	}
	n.Hiding = nil
	n.Binding = nil
}
