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
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jeremyhahn/go-frostsigner/pkg/metrics"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
	"github.com/jeremyhahn/go-frostsigner/pkg/wire"
)

// Sign accumulates one chunk of a signing request. Once the request is
// complete it is parsed, checked against the approved hash and signed.
// The signature share becomes the pending result.
func (d *Device) Sign(ctx context.Context, chunk session.Chunk) (Reply, error) {
	done, err := d.accumulate(OpSign, chunk)
	if err != nil {
		return Reply{}, d.fail(OpSign, err)
	}
	if !done {
		return Reply{More: true}, nil
	}

	share, err := d.sign()
	if err != nil {
		return Reply{}, d.fail(OpSign, err)
	}
	reply, err := d.publish(share)
	if err != nil {
		return Reply{}, d.fail(OpSign, err)
	}
	d.log().Info("signature share ready in %d chunks", reply.Total)
	d.succeed(OpSign)
	return reply, nil
}

// sign runs the complete request held in the session buffer.
func (d *Device) sign() ([]byte, error) {
	req, err := wire.Parse(d.session.Buffer(), d.scheme)
	if err != nil {
		return nil, err
	}

	approved, ok := d.session.TakeApprovedHash()
	if !ok {
		return nil, fmt.Errorf("%w: no approved hash", ErrInvalidTxHash)
	}
	if subtle.ConstantTimeCompare(approved[:], req.TxHash[:]) != 1 {
		return nil, fmt.Errorf("%w: request hash differs from approved hash", ErrInvalidTxHash)
	}
	d.log().Debug("tx hash %s approved", hex.EncodeToString(req.TxHash[:]))

	kp, err := d.store.LoadKeyPackage()
	if err != nil {
		return nil, err
	}
	identities, err := d.store.LoadIdentities()
	if err != nil {
		return nil, err
	}

	nonces, err := d.scheme.DeriveNonces(kp, req.TxHash[:], identities)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxSignFail, err)
	}

	start := time.Now()
	share, err := d.scheme.Sign(req.SigningPackage, nonces, kp, req.Randomizer)
	d.metrics.ObserveSigning(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxSignFail, err)
	}

	out, err := d.scheme.SerializeSignatureShare(share)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxSignFail, err)
	}
	return out, nil
}

// Review shows hash to the user and, on approval, deposits it for the next
// Sign ceremony. summary is optional text shown with the hash; it must be
// printable UTF-8 of at most MaxSummaryLen bytes.
func (d *Device) Review(ctx context.Context, hash session.TxHash, summary string) error {
	d.reset()
	d.dropResult()

	if err := checkSummary(summary); err != nil {
		return d.fail(OpReview, err)
	}

	lines := []string{"Review transaction", "Hash: " + hex.EncodeToString(hash[:])}
	if summary != "" {
		lines = append(lines, summary)
	}
	if err := d.confirm(ctx, lines); err != nil {
		return d.fail(OpReview, err)
	}
	d.session.Approve(hash)
	d.metrics.RecordCeremony(string(OpReview), metrics.OutcomeOK)
	d.log().Info("tx hash approved for signing")
	return nil
}

// MaxSummaryLen bounds the review summary shown on the confirmation screen.
const MaxSummaryLen = 200

// checkSummary keeps host text that could rewrite the prompt, such as
// terminal escapes, line breaks or invalid UTF-8, off the screen.
func checkSummary(summary string) error {
	if len(summary) > MaxSummaryLen {
		return fmt.Errorf("%w: summary is %d bytes, limit %d", ErrInvalidPayload, len(summary), MaxSummaryLen)
	}
	if !utf8.ValidString(summary) {
		return fmt.Errorf("%w: summary is not valid UTF-8", ErrInvalidPayload)
	}
	for i, r := range summary {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%w: summary has unprintable rune %U at byte %d", ErrInvalidPayload, r, i)
		}
	}
	return nil
}

// Commit returns this device's public nonce commitments for hash. The host
// collects them from every signer to build the signing package. Commit does
// not consume or require an approval.
func (d *Device) Commit(hash session.TxHash) ([]byte, error) {
	kp, err := d.store.LoadKeyPackage()
	if err != nil {
		return nil, err
	}
	identities, err := d.store.LoadIdentities()
	if err != nil {
		return nil, err
	}
	cm, err := d.scheme.Commitments(kp, hash[:], identities)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxSignFail, err)
	}
	out, err := d.scheme.SerializeCommitments(cm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxSignFail, err)
	}
	d.metrics.RecordCeremony(string(OpCommit), metrics.OutcomeOK)
	return out, nil
}
