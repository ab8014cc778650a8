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

package apdu

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-frostsigner/pkg/backup"
	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/handler"
	"github.com/jeremyhahn/go-frostsigner/pkg/metrics"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
	"github.com/jeremyhahn/go-frostsigner/pkg/store"
	"github.com/jeremyhahn/go-frostsigner/pkg/ui"
	"github.com/jeremyhahn/go-frostsigner/pkg/wire"
)

var identities = []frost.Identifier{1, 2, 3}

// loopback hands commands straight to a Dispatcher.
type loopback struct {
	d *Dispatcher
}

func (l loopback) Exchange(ctx context.Context, command []byte) ([]byte, error) {
	return l.d.Process(ctx, command), nil
}

type rig struct {
	scheme     *frostsign.Scheme
	kps        []*frost.KeyPackage
	store      *store.MemoryStore
	device     *handler.Device
	dispatcher *Dispatcher
	client     *Client
	confirmer  *ui.StaticConfirmer
	metrics    *metrics.Collector
}

func newRig(t *testing.T, chunkSize int) *rig {
	t.Helper()
	scheme, err := frostsign.NewSchemeByName("ed25519")
	require.NoError(t, err)
	kps, err := frostsign.GenerateWithDealer(scheme.Ciphersuite(), 2, 3)
	require.NoError(t, err)
	rec, err := store.NewKeyRecord("ed25519", kps[0], identities, bytes.Repeat([]byte{1}, store.RootSecretSize))
	require.NoError(t, err)
	ks := store.NewMemoryStore(rec)

	m, err := metrics.New(metrics.DefaultConfig())
	require.NoError(t, err)
	confirmer := &ui.StaticConfirmer{Approve: true}
	device, err := handler.New(&handler.Config{
		Store:     ks,
		Confirmer: confirmer,
		Backup:    backup.NewEncryptor(ks),
		Scheme:    scheme,
		Metrics:   m,
	})
	require.NoError(t, err)

	d := NewDispatcher(device, nil, m)
	client, err := NewClient(loopback{d: d}, chunkSize)
	require.NoError(t, err)
	return &rig{scheme: scheme, kps: kps, store: ks, device: device, dispatcher: d, client: client, confirmer: confirmer, metrics: m}
}

func (r *rig) status(t *testing.T, raw []byte) StatusWord {
	t.Helper()
	resp, err := ParseResponse(r.dispatcher.Process(context.Background(), raw))
	require.NoError(t, err)
	return resp.SW
}

func TestDispatcher_Framing(t *testing.T) {
	r := newRig(t, 0)

	tests := []struct {
		name string
		raw  []byte
		want StatusWord
	}{
		{name: "short", raw: []byte{0xE0}, want: SWWrongLength},
		{name: "lc mismatch", raw: []byte{0xE0, 0x00, 0, 0, 4, 1}, want: SWWrongLength},
		{name: "class", raw: []byte{0x80, 0x00, 0, 0, 0}, want: SWClaNotSupported},
		{name: "instruction", raw: []byte{0xE0, 0x7F, 0, 0, 0}, want: SWInsNotSupported},
		{name: "version params", raw: []byte{0xE0, INSGetVersion, 1, 0, 0}, want: SWWrongP1P2},
		{name: "review short hash", raw: []byte{0xE0, INSReviewTx, 0, 0, 1, 0}, want: SWWrongLength},
		{name: "commit short hash", raw: []byte{0xE0, INSCommit, 0, 0, 1, 0}, want: SWWrongLength},
		{name: "sign without length", raw: []byte{0xE0, INSSign, 0, 0, 1, 0}, want: SWWrongLength},
		{name: "sign p2", raw: []byte{0xE0, INSSign, 0, 1, 2, 0, 0}, want: SWWrongP1P2},
		{name: "sign out of order", raw: []byte{0xE0, INSSign, 3, 0, 1, 0}, want: SWUnexpectedChunk},
		{name: "no result", raw: []byte{0xE0, INSGetResult, 0, 0, 0}, want: SWNoResult},
		{name: "capacity", raw: []byte{0xE0, INSSign, 0, 0, 2, 0xFF, 0xFF}, want: SWCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.status(t, tt.raw))
		})
	}
}

func TestDispatcher_FramingErrorEndsTransfer(t *testing.T) {
	first := []byte{0xE0, INSSign, 0, 0, 4, 0, 10, 1, 2}
	next := []byte{0xE0, INSSign, 1, 0, 2, 3, 4}

	tests := []struct {
		name string
		bad  []byte
		want StatusWord
	}{
		{name: "bad p2", bad: []byte{0xE0, INSSign, 1, 1, 2, 3, 4}, want: SWWrongP1P2},
		{name: "truncated", bad: []byte{0xE0}, want: SWWrongLength},
		{name: "lc mismatch", bad: []byte{0xE0, INSSign, 1, 0, 9, 3}, want: SWWrongLength},
		{name: "restore p2", bad: []byte{0xE0, INSRestoreKeys, 1, 2, 1, 3}, want: SWWrongP1P2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 0)
			require.Equal(t, SWOK, r.status(t, first))
			require.Equal(t, session.StateAccumulating, r.device.Session().State())

			assert.Equal(t, tt.want, r.status(t, tt.bad))
			assert.Equal(t, session.StateIdle, r.device.Session().State())
			assert.Equal(t, SWUnexpectedChunk, r.status(t, next))
		})
	}
}

func TestDispatcher_FramingErrorWhileIdleKeepsResult(t *testing.T) {
	r := newRig(t, 0)
	ctx := context.Background()

	total, err := r.client.Transmit(ctx, NewCommand(INSBackupKeys, 0, 0, nil))
	require.NoError(t, err)
	require.Len(t, total, 1)

	assert.Equal(t, SWWrongP1P2, r.status(t, []byte{0xE0, INSSign, 0, 1, 2, 0, 0}))
	assert.Equal(t, SWOK, r.status(t, []byte{0xE0, INSGetResult, 0, 0, 0}))
}

func TestDispatcher_ReviewSummary(t *testing.T) {
	r := newRig(t, 0)
	hash := sha256.Sum256([]byte("summary"))

	review := func(summary string) []byte {
		raw, err := NewCommand(INSReviewTx, 0, 0, append(hash[:], summary...)).Bytes()
		require.NoError(t, err)
		return raw
	}

	assert.Equal(t, SWInvalidPayload, r.status(t, review("\x1b[2Jok")))
	assert.Equal(t, SWInvalidPayload, r.status(t, review("pay \xff")))
	assert.Zero(t, r.confirmer.Calls())

	assert.Equal(t, SWOK, r.status(t, review("to: bob")))
	assert.Contains(t, r.confirmer.LastPrompt(), "to: bob")
}

func TestDispatcher_SignWithoutReview(t *testing.T) {
	r := newRig(t, 0)
	ctx := context.Background()
	hash := session.TxHash(sha256.Sum256([]byte("unreviewed")))

	payload, _, _ := buildRequest(t, r, hash, []byte("unreviewed"))
	_, err := r.client.Sign(ctx, payload)
	assert.ErrorIs(t, err, handler.ErrInvalidTxHash)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, SWInvalidTxHash, se.SW)

	n, err := testutil.GatherAndCount(r.metrics.Registry(), "frostsigner_device_commands_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func buildRequest(t *testing.T, r *rig, hash session.TxHash, message []byte) ([]byte, *frostsign.SigningPackage, *frostsign.Randomizer) {
	t.Helper()
	ctx := context.Background()
	raw, err := r.client.Commit(ctx, hash)
	require.NoError(t, err)
	own, err := r.scheme.DeserializeCommitments(raw)
	require.NoError(t, err)
	peer, err := r.scheme.Commitments(r.kps[2], hash[:], identities)
	require.NoError(t, err)

	pkg := frostsign.NewSigningPackage([]frostsign.SigningCommitments{*own, *peer}, message)
	randomizer, err := frostsign.NewRandomizer(r.scheme.Ciphersuite())
	require.NoError(t, err)
	rawPkg, err := r.scheme.SerializeSigningPackage(pkg)
	require.NoError(t, err)
	payload, err := wire.Encode(r.scheme.SerializeRandomizer(randomizer), rawPkg, hash[:])
	require.NoError(t, err)
	return payload, pkg, randomizer
}

func TestClient_SignCeremony(t *testing.T) {
	for _, size := range []int{0, 64, 17} {
		r := newRig(t, size)
		ctx := context.Background()
		message := bytes.Repeat([]byte{0x5A}, 96)
		hash := session.TxHash(sha256.Sum256(message))

		require.NoError(t, r.client.Review(ctx, hash, "to: bob"))
		payload, pkg, randomizer := buildRequest(t, r, hash, message)

		rawShare, err := r.client.Sign(ctx, payload)
		require.NoError(t, err, "chunk size %d", size)
		share, err := r.scheme.DeserializeSignatureShare(rawShare)
		require.NoError(t, err)

		cs := r.scheme.Ciphersuite()
		gk := r.kps[0].GroupPublicKey
		nonces, err := r.scheme.DeriveNonces(r.kps[2], hash[:], identities)
		require.NoError(t, err)
		peer, err := r.scheme.Sign(pkg, nonces, r.kps[2], randomizer)
		require.NoError(t, err)

		sig, err := frostsign.Aggregate(cs, pkg, []*frostsign.SignatureShare{share, peer}, gk, randomizer, frostsign.VerificationShares(r.kps[0]))
		require.NoError(t, err)
		require.NoError(t, frostsign.Verify(cs, sig, message, gk, randomizer))
		assert.False(t, r.device.HasResult())
	}
}

func TestClient_VersionAndIdentity(t *testing.T) {
	r := newRig(t, 0)
	ctx := context.Background()

	v, err := r.client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.device.Version(), *v)

	info, err := r.client.Identity(ctx)
	require.NoError(t, err)
	want, err := r.device.Identity()
	require.NoError(t, err)
	assert.Equal(t, want, info)
}

func TestClient_BackupRestore(t *testing.T) {
	r := newRig(t, 100)
	ctx := context.Background()

	r.confirmer.Approve = false
	_, err := r.client.Backup(ctx)
	assert.ErrorIs(t, err, handler.ErrUserDenied)
	_, err = r.client.GetResult(ctx, 0)
	assert.ErrorIs(t, err, handler.ErrNoResult)

	r.confirmer.Approve = true
	blob, err := r.client.Backup(ctx)
	require.NoError(t, err)
	assert.Greater(t, len(blob), backup.Overhead)

	require.NoError(t, r.client.Restore(ctx, blob))

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0x80
	err = r.client.Restore(ctx, tampered)
	assert.ErrorIs(t, err, handler.ErrInvalidPayload)
}

func TestIdentityEncoding(t *testing.T) {
	info := &handler.IdentityInfo{
		Identifier:     7,
		MinSigners:     2,
		MaxSigners:     9,
		VerifyingShare: bytes.Repeat([]byte{1}, 33),
		GroupPublicKey: bytes.Repeat([]byte{2}, 33),
	}
	raw, err := encodeIdentity(info)
	require.NoError(t, err)
	back, err := decodeIdentity(raw)
	require.NoError(t, err)
	assert.Equal(t, info, back)

	for i := 0; i < len(raw); i++ {
		_, err := decodeIdentity(raw[:i])
		assert.Error(t, err, "truncated at %d", i)
	}
}

func TestNewClient_ChunkSize(t *testing.T) {
	_, err := NewClient(loopback{}, DefaultChunkSize+1)
	assert.Error(t, err)
	_, err = NewClient(loopback{}, -1)
	assert.Error(t, err)
}
