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
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-frostsigner/pkg/apdu"
	"github.com/jeremyhahn/go-frostsigner/pkg/backup"
	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/handler"
	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
	"github.com/jeremyhahn/go-frostsigner/pkg/store"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport/memory"
	"github.com/jeremyhahn/go-frostsigner/pkg/ui"
	"github.com/jeremyhahn/go-frostsigner/pkg/wire"
)

var (
	demoMessage string
	demoBackup  bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a complete signing ceremony in memory",
	Long: `Provision three devices with a trusted dealer, connect to two of them over
the in-memory transport and run review, commit and sign. The host aggregates
the two signature shares and verifies the result under the group key.

Example:
  frostsigner demo --ciphersuite secp256k1 --message "hello"`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().String("ciphersuite", frostsign.DefaultCiphersuite, "FROST ciphersuite")
	demoCmd.Flags().StringVar(&demoMessage, "message", "frostsigner demo transaction", "message to sign")
	demoCmd.Flags().BoolVar(&demoBackup, "backup", true, "also export and restore a key backup")
}

// demoDevice is one device reachable through the memory transport.
type demoDevice struct {
	kp     *frost.KeyPackage
	client *apdu.Client
	conn   *memory.Client
}

func newDemoDevice(ctx context.Context, t *memory.Transport, suite string, scheme *frostsign.Scheme, kp *frost.KeyPackage, ids []frost.Identifier, logger logging.Logger) (*demoDevice, error) {
	rootSecret := make([]byte, store.RootSecretSize)
	if _, err := rand.Read(rootSecret); err != nil {
		return nil, err
	}
	defer frostsign.ZeroBytes(rootSecret)

	rec, err := store.NewKeyRecord(suite, kp, ids, rootSecret)
	if err != nil {
		return nil, err
	}
	ks := store.NewMemoryStore(rec)
	device, err := handler.New(&handler.Config{
		Store:     ks,
		Confirmer: &ui.StaticConfirmer{Approve: true},
		Backup:    backup.NewEncryptor(ks),
		Scheme:    scheme,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("device-%d", kp.Identifier)
	if _, err := t.Register(name, apdu.NewDispatcher(device, logger, nil), logger); err != nil {
		return nil, err
	}
	conn, err := memory.NewClient(t, transport.NewMemoryConfig(name))
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	client, err := apdu.NewClient(conn, 0)
	if err != nil {
		return nil, err
	}
	return &demoDevice{kp: kp, client: client, conn: conn}, nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, "demo")
	if err != nil {
		return err
	}
	suite, err := cmd.Flags().GetString("ciphersuite")
	if err != nil {
		return err
	}
	scheme, err := frostsign.NewSchemeByName(suite)
	if err != nil {
		return fmt.Errorf("%w: %s", err, suite)
	}
	cs := scheme.Ciphersuite()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	kps, err := frostsign.GenerateWithDealer(cs, 2, 3)
	if err != nil {
		return fmt.Errorf("dealer failed: %w", err)
	}
	ids := make([]frost.Identifier, 0, len(kps))
	for _, kp := range kps {
		ids = append(ids, kp.Identifier)
	}
	fmt.Fprintf(out, "Provisioned 3 devices, threshold 2 (%s)\n", cs.ID())

	mt, err := memory.NewTransport(viper.GetString("codec"))
	if err != nil {
		return err
	}
	signers := make([]*demoDevice, 0, 2)
	for _, kp := range kps[:2] {
		d, err := newDemoDevice(ctx, mt, suite, scheme, kp, ids, logger)
		if err != nil {
			return fmt.Errorf("device %d: %w", kp.Identifier, err)
		}
		defer func(name string) {
			_ = d.conn.Disconnect()
			mt.Unregister(name)
		}(fmt.Sprintf("device-%d", kp.Identifier))
		signers = append(signers, d)
	}

	message := []byte(demoMessage)
	hash := session.TxHash(sha256.Sum256(message))
	fmt.Fprintf(out, "Transaction hash: %s\n", hex.EncodeToString(hash[:]))

	commitments := make([]frostsign.SigningCommitments, 0, len(signers))
	for _, d := range signers {
		v, err := d.client.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Device %d: firmware %s\n", d.kp.Identifier, v)

		if err := d.client.Review(ctx, hash, demoMessage); err != nil {
			return fmt.Errorf("device %d review: %w", d.kp.Identifier, err)
		}
		raw, err := d.client.Commit(ctx, hash)
		if err != nil {
			return fmt.Errorf("device %d commit: %w", d.kp.Identifier, err)
		}
		cm, err := scheme.DeserializeCommitments(raw)
		if err != nil {
			return err
		}
		commitments = append(commitments, *cm)
	}

	pkg := frostsign.NewSigningPackage(commitments, message)
	randomizer, err := frostsign.NewRandomizer(cs)
	if err != nil {
		return err
	}
	rawPkg, err := scheme.SerializeSigningPackage(pkg)
	if err != nil {
		return err
	}
	payload, err := wire.Encode(scheme.SerializeRandomizer(randomizer), rawPkg, hash[:])
	if err != nil {
		return err
	}

	shares := make([]*frostsign.SignatureShare, 0, len(signers))
	for _, d := range signers {
		raw, err := d.client.Sign(ctx, payload)
		if err != nil {
			return fmt.Errorf("device %d sign: %w", d.kp.Identifier, err)
		}
		share, err := scheme.DeserializeSignatureShare(raw)
		if err != nil {
			return err
		}
		shares = append(shares, share)
		fmt.Fprintf(out, "Device %d: signature share received (%d bytes)\n", d.kp.Identifier, len(raw))
	}

	groupKey := kps[0].GroupPublicKey
	sig, err := frostsign.Aggregate(cs, pkg, shares, groupKey, randomizer, frostsign.VerificationShares(kps[0]))
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	if err := frostsign.Verify(cs, sig, message, groupKey, randomizer); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	rawSig, err := scheme.SerializeSignature(sig)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Signature: %s\n", hex.EncodeToString(rawSig))
	fmt.Fprintln(out, "Signature verified under the randomized group key")

	if demoBackup {
		if err := demoBackupRoundTrip(ctx, signers[0]); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		fmt.Fprintf(out, "Device %d: backup exported and restored\n", signers[0].kp.Identifier)
	}
	return nil
}

// demoBackupRoundTrip exports a backup and restores it into the same device,
// checking that the identity survives.
func demoBackupRoundTrip(ctx context.Context, d *demoDevice) error {
	before, err := d.client.Identity(ctx)
	if err != nil {
		return err
	}
	blob, err := d.client.Backup(ctx)
	if err != nil {
		return err
	}
	if err := d.client.Restore(ctx, blob); err != nil {
		return err
	}
	after, err := d.client.Identity(ctx)
	if err != nil {
		return err
	}
	if after.Identifier != before.Identifier || !bytes.Equal(after.VerifyingShare, before.VerifyingShare) {
		return fmt.Errorf("identity changed after restore")
	}
	return nil
}
