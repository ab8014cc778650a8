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

package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/store"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	thttp "github.com/jeremyhahn/go-frostsigner/pkg/transport/http"
	"github.com/jeremyhahn/go-frostsigner/pkg/wire"
)

// resetFlags restores every flag of cmd and its children to its default,
// so one test's flags do not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := strings.Trim(f.DefValue, "[]")
			var vals []string
			if def != "" {
				vals = strings.Split(def, ",")
			}
			_ = sv.Replace(vals)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetIn(strings.NewReader(""))
	// keep a developer's own config file out of the tests
	args = append(args, "--config", filepath.Join(t.TempDir(), "none.yaml"))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	require.NotNil(t, rootCmd)
	assert.Equal(t, "frostsigner", rootCmd.Use)

	expected := []string{"version", "config", "certgen", "keys", "serve", "review", "commit", "sign", "backup", "restore", "info", "demo"}
	for _, name := range expected {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "expected subcommand %s not found", name)
	}
}

func TestGlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "protocol", "address", "codec", "timeout", "tls-cert", "tls-key", "tls-ca", "store", "store-backend", "store-codec", "log-level", "log-format"} {
		t.Run(name, func(t *testing.T) {
			require.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "flag %s not found", name)
		})
	}
}

func TestServeFlags(t *testing.T) {
	for _, name := range []string{"confirmer", "max-payload", "chunk-size", "rate", "burst", "metrics", "metrics-listen"} {
		t.Run(name, func(t *testing.T) {
			require.NotNil(t, serveCmd.Flags().Lookup(name), "flag %s not found", name)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "frostsigner version dev")
	assert.Contains(t, out, "Go version:")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	out, err := execute(t, "config", "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = execute(t, "config", "init", "--output", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--output", path, "--force")
	assert.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	out, err := execute(t, "config", "show", "--codec", "cbor")
	require.NoError(t, err)
	assert.Contains(t, out, "codec: cbor")
	assert.Contains(t, out, "FROSTSIGNER_")
}

func TestCertgen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	out, err := execute(t, "certgen", "--output", dir, "--name", "dev", "--hosts", "localhost,127.0.0.1,::1")
	require.NoError(t, err)
	assert.Contains(t, out, "Certificate generated successfully")

	_, err = os.Stat(filepath.Join(dir, "dev.crt"))
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, "dev.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestCertgenInvalidDays(t *testing.T) {
	_, err := execute(t, "certgen", "--output", t.TempDir(), "--days", "0")
	assert.ErrorContains(t, err, "days must be at least 1")
}

func TestKeysGenerateAndShow(t *testing.T) {
	tests := []struct {
		backend string
		codec   string
		file    string
	}{
		{backend: BackendFile, codec: "json", file: "device-2.json"},
		{backend: BackendFile, codec: "cbor", file: "device-2.cbor"},
		{backend: BackendSQL, codec: "json", file: "device-2.db"},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"/"+tt.codec, func(t *testing.T) {
			dir := t.TempDir()
			out, err := execute(t, "keys", "generate", "-t", "2", "-n", "3", "-o", dir,
				"--store-backend", tt.backend, "--store-codec", tt.codec)
			require.NoError(t, err)
			assert.Contains(t, out, "Group public key:")
			assert.Contains(t, out, "Threshold: 2 of 3")

			path := filepath.Join(dir, tt.file)
			out, err = execute(t, "keys", "show", "--store", path,
				"--store-backend", tt.backend, "--store-codec", tt.codec)
			require.NoError(t, err)
			assert.Contains(t, out, "Identifier: 2")
			assert.Contains(t, out, "Threshold: 2 of 3")
		})
	}
}

func TestKeysGenerateValidation(t *testing.T) {
	_, err := execute(t, "keys", "generate", "-t", "4", "-n", "3", "-o", t.TempDir())
	assert.ErrorContains(t, err, "must be >= threshold")

	_, err = execute(t, "keys", "generate", "-o", t.TempDir(), "--ciphersuite", "rsa")
	assert.Error(t, err)
}

func TestKeysShowUnprovisioned(t *testing.T) {
	_, err := execute(t, "keys", "show", "--store", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDemo(t *testing.T) {
	for _, suite := range []string{"ed25519", "secp256k1"} {
		t.Run(suite, func(t *testing.T) {
			out, err := execute(t, "demo", "--ciphersuite", suite, "--codec", "msgpack")
			require.NoError(t, err)
			assert.Contains(t, out, "Signature verified")
			assert.Contains(t, out, "backup exported and restored")
		})
	}
}

// hostRig is a provisioned device served over HTTP for the host commands.
type hostRig struct {
	dir    string
	addr   string
	scheme *frostsign.Scheme
	peer   *frost.KeyPackage
	ids    []frost.Identifier
}

func newHostRig(t *testing.T) *hostRig {
	t.Helper()
	dir := t.TempDir()
	_, err := execute(t, "keys", "generate", "-t", "2", "-n", "3", "-o", dir)
	require.NoError(t, err)

	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(""))
	cmd.SetErr(new(bytes.Buffer))
	dev, err := buildDevice(cmd, deviceOptions{
		StoreBackend: BackendFile,
		StorePath:    filepath.Join(dir, "device-1.json"),
		StoreCodec:   "json",
		Confirmer:    ConfirmerApprove,
	}, logging.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	cfg := transport.NewHTTPConfig("127.0.0.1:0")
	server, err := thttp.NewServer(cfg, dev.Dispatcher, transport.DeviceInfo{Version: dev.Device.Version().String()}, nil)
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop(context.Background()) })

	peerStore, err := store.NewFileStore(filepath.Join(dir, "device-2.json"), "json")
	require.NoError(t, err)
	peer, err := peerStore.LoadKeyPackage()
	require.NoError(t, err)
	ids, err := peerStore.LoadIdentities()
	require.NoError(t, err)
	scheme, err := frostsign.NewSchemeByName(peerStore.Ciphersuite())
	require.NoError(t, err)

	return &hostRig{dir: dir, addr: server.Address(), scheme: scheme, peer: peer, ids: ids}
}

func (r *hostRig) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append(args, "--address", r.addr)...)
}

func TestHostCommands_SignCeremony(t *testing.T) {
	r := newHostRig(t)
	message := []byte("send 5 coins to carol")
	hash := sha256.Sum256(message)
	hashHex := hex.EncodeToString(hash[:])

	out, err := r.run(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Identifier: 1")

	out, err = r.run(t, "review", "--hash", hashHex, "--summary", "to: carol")
	require.NoError(t, err)
	assert.Contains(t, out, "Approved")

	out, err = r.run(t, "commit", "--hash", hashHex)
	require.NoError(t, err)
	rawOwn, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	own, err := r.scheme.DeserializeCommitments(rawOwn)
	require.NoError(t, err)
	peerCommit, err := r.scheme.Commitments(r.peer, hash[:], r.ids)
	require.NoError(t, err)

	pkg := frostsign.NewSigningPackage([]frostsign.SigningCommitments{*own, *peerCommit}, message)
	cs := r.scheme.Ciphersuite()
	randomizer, err := frostsign.NewRandomizer(cs)
	require.NoError(t, err)
	rawPkg, err := r.scheme.SerializeSigningPackage(pkg)
	require.NoError(t, err)
	payload, err := wire.Encode(r.scheme.SerializeRandomizer(randomizer), rawPkg, hash[:])
	require.NoError(t, err)

	// a small chunk size forces several chunks
	out, err = r.run(t, "sign", "--payload", hex.EncodeToString(payload), "--chunk-size", "64")
	require.NoError(t, err)
	rawShare, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	share, err := r.scheme.DeserializeSignatureShare(rawShare)
	require.NoError(t, err)

	nonces, err := r.scheme.DeriveNonces(r.peer, hash[:], r.ids)
	require.NoError(t, err)
	peerShare, err := r.scheme.Sign(pkg, nonces, r.peer, randomizer)
	require.NoError(t, err)

	gk := r.peer.GroupPublicKey
	sig, err := frostsign.Aggregate(cs, pkg, []*frostsign.SignatureShare{share, peerShare}, gk, randomizer, frostsign.VerificationShares(r.peer))
	require.NoError(t, err)
	assert.NoError(t, frostsign.Verify(cs, sig, message, gk, randomizer))
}

func TestHostCommands_SignRejectsUnreviewedHash(t *testing.T) {
	r := newHostRig(t)
	hash := sha256.Sum256([]byte("never reviewed"))
	payload, err := wire.Encode(make([]byte, 32), []byte{0, 0}, hash[:])
	require.NoError(t, err)

	_, err = r.run(t, "sign", "--payload", hex.EncodeToString(payload))
	assert.Error(t, err)
}

func TestHostCommands_BackupRestore(t *testing.T) {
	r := newHostRig(t)
	file := filepath.Join(t.TempDir(), "device-1.bak")

	out, err := r.run(t, "backup", "--output", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written")

	blob, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotEmpty(t, blob)

	out, err = r.run(t, "restore", "--input", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")

	_, err = r.run(t, "restore", "--input", filepath.Join(t.TempDir(), "missing.bak"))
	assert.ErrorContains(t, err, "failed to read backup")
}

func TestHostCommands_InputValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "short hash", args: []string{"review", "--hash", "abcd"}, want: "invalid hash"},
		{name: "bad hex", args: []string{"commit", "--hash", "zz"}, want: "invalid hash"},
		{name: "no payload", args: []string{"sign"}, want: "signing request is required"},
		{name: "both payloads", args: []string{"sign", "--payload", "00", "--file", "x"}, want: "either --payload or --file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestHostCommands_Unreachable(t *testing.T) {
	_, err := execute(t, "info", "--address", "127.0.0.1:1", "--timeout", "500ms")
	assert.ErrorContains(t, err, "failed to connect")
}
