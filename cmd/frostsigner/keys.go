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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeremyhahn/go-frost/pkg/frost"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/store"
)

var (
	keysCiphersuite string
	keysThreshold   int
	keysSigners     int
	keysOutput      string
)

// keysCmd groups key provisioning commands.
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Provision and inspect device keys",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Provision devices with a trusted dealer",
	Long: `Split a fresh group key into one share per device and write one key store
per device into the output directory.

Every store also receives a random device root secret, from which backup
keys are derived. The dealer forgets all secrets when the command exits.

Examples:
  # Three devices, any two can sign
  frostsigner keys generate --threshold 2 --signers 3 --output ./devices

  # secp256k1 shares in SQLite stores
  frostsigner keys generate --ciphersuite secp256k1 --store-backend sql \
    --threshold 2 --signers 3 --output ./devices`,
	RunE: runKeysGenerate,
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the identity of the local key store",
	RunE:  runKeysShow,
}

func init() {
	keysGenerateCmd.Flags().StringVar(&keysCiphersuite, "ciphersuite", frostsign.DefaultCiphersuite, "FROST ciphersuite (ed25519, ristretto255, secp256k1, p256, ed448)")
	keysGenerateCmd.Flags().IntVarP(&keysThreshold, "threshold", "t", 2, "minimum signers required (t)")
	keysGenerateCmd.Flags().IntVarP(&keysSigners, "signers", "n", 3, "total devices (n)")
	keysGenerateCmd.Flags().StringVarP(&keysOutput, "output", "o", "./devices", "output directory")

	bindFlags(keysGenerateCmd, map[string]string{
		"device.ciphersuite": "ciphersuite",
	})

	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysShowCmd)
}

// storeFileName names the store of device id for backend.
func storeFileName(backend, codec string, id frost.Identifier) string {
	if backend == BackendSQL {
		return fmt.Sprintf("device-%d.db", id)
	}
	return fmt.Sprintf("device-%d.%s", id, codec)
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	if keysThreshold < 1 {
		return fmt.Errorf("threshold must be at least 1")
	}
	if keysSigners < keysThreshold {
		return fmt.Errorf("signers (%d) must be >= threshold (%d)", keysSigners, keysThreshold)
	}
	suite := viper.GetString("device.ciphersuite")
	cs, err := frostsign.CiphersuiteByName(suite)
	if err != nil {
		return fmt.Errorf("%w: %s", err, suite)
	}

	kps, err := frostsign.GenerateWithDealer(cs, uint32(keysThreshold), uint32(keysSigners)) //#nosec G115 -- validated above
	if err != nil {
		return fmt.Errorf("dealer failed: %w", err)
	}
	ids := make([]frost.Identifier, 0, len(kps))
	for _, kp := range kps {
		ids = append(ids, kp.Identifier)
	}

	if err := os.MkdirAll(keysOutput, 0o700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	backend := viper.GetString("store.backend")
	codec := viper.GetString("store.codec")

	out := cmd.OutOrStdout()
	for _, kp := range kps {
		path := filepath.Join(keysOutput, storeFileName(backend, codec, kp.Identifier))
		if err := provisionStore(backend, path, codec, suite, kp, ids); err != nil {
			return fmt.Errorf("device %d: %w", kp.Identifier, err)
		}
		fmt.Fprintf(out, "Device %d: %s\n", kp.Identifier, path)
	}

	groupKey, err := frostsign.NewCodec(cs).SerializeElement(kps[0].GroupPublicKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Group public key: %s\n", hex.EncodeToString(groupKey))
	fmt.Fprintf(out, "Threshold: %d of %d (%s)\n", keysThreshold, keysSigners, cs.ID())
	return nil
}

func provisionStore(backend, path, codec, suite string, kp *frost.KeyPackage, ids []frost.Identifier) error {
	rootSecret := make([]byte, store.RootSecretSize)
	if _, err := rand.Read(rootSecret); err != nil {
		return err
	}
	defer frostsign.ZeroBytes(rootSecret)

	rec, err := store.NewKeyRecord(suite, kp, ids, rootSecret)
	if err != nil {
		return err
	}
	ks, closer, err := openStore(backend, path, codec)
	if err != nil {
		return err
	}
	defer closer.Close()
	return ks.Provision(rec)
}

func runKeysShow(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, "keys")
	if err != nil {
		return err
	}
	opts := deviceOptionsFromViper()
	opts.Confirmer = ConfirmerDeny
	dev, err := buildDevice(cmd, opts, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	id, err := dev.Device.Identity()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Version: %s\n", dev.Device.Version())
	fmt.Fprintf(out, "Identifier: %d\n", id.Identifier)
	fmt.Fprintf(out, "Threshold: %d of %d\n", id.MinSigners, id.MaxSigners)
	fmt.Fprintf(out, "Verifying share: %s\n", hex.EncodeToString(id.VerifyingShare))
	fmt.Fprintf(out, "Group public key: %s\n", hex.EncodeToString(id.GroupPublicKey))
	return nil
}
