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
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-frostsigner/pkg/apdu"
	"github.com/jeremyhahn/go-frostsigner/pkg/session"
)

var (
	hostHash      string
	hostSummary   string
	hostPayload   string
	signFile      string
	backupOutput  string
	restoreInput  string
	hostChunkSize int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Ask the device to approve a transaction hash",
	Long: `Show a transaction hash and summary on the device. Once the owner approves,
the device signs exactly one request carrying that hash.

Example:
  frostsigner review --hash 9f86d081...0f00a08 --summary "pay 1 coin to bob"`,
	RunE: runReview,
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Fetch the device's signing commitments for a hash",
	RunE:  runCommit,
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Send a signing request and print the signature share",
	Long: `Send a signing request (randomizer, signing package and hash) to the device
and print the hex encoded signature share. The request must carry the hash
approved with 'frostsigner review'.

Examples:
  frostsigner sign --payload 0020...
  frostsigner sign --file request.bin`,
	RunE: runSign,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export an encrypted backup of the device keys",
	RunE:  runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore device keys from an encrypted backup",
	RunE:  runRestore,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the version and identity of a running device",
	RunE:  runInfo,
}

func init() {
	for _, c := range []*cobra.Command{reviewCmd, commitCmd} {
		c.Flags().StringVar(&hostHash, "hash", "", "transaction hash (hex, 32 bytes)")
		if err := c.MarkFlagRequired("hash"); err != nil {
			panic(fmt.Sprintf("failed to mark hash flag as required: %v", err))
		}
	}
	reviewCmd.Flags().StringVar(&hostSummary, "summary", "", "text shown next to the hash")

	signCmd.Flags().StringVar(&hostPayload, "payload", "", "signing request (hex)")
	signCmd.Flags().StringVar(&signFile, "file", "", "signing request file (raw bytes)")

	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "backup.bin", "backup file")
	restoreCmd.Flags().StringVarP(&restoreInput, "input", "i", "backup.bin", "backup file")

	for _, c := range []*cobra.Command{signCmd, restoreCmd} {
		c.Flags().IntVar(&hostChunkSize, "chunk-size", apdu.DefaultChunkSize, "command data bytes per chunk")
	}
}

// withDevice connects to the configured device and runs fn.
func withDevice(cmd *cobra.Command, fn func(ctx context.Context, c *apdu.Client) error) error {
	logger, err := newLogger(cmd, "host")
	if err != nil {
		return err
	}
	cfg, err := transportConfig(logger)
	if err != nil {
		return err
	}
	ex, err := defaultFactory.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	ctx := cmd.Context()
	if err := ex.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Address, err)
	}
	defer ex.Disconnect()

	chunkSize := hostChunkSize
	if chunkSize == 0 {
		chunkSize = apdu.DefaultChunkSize
	}
	client, err := apdu.NewClient(ex, chunkSize)
	if err != nil {
		return err
	}
	return fn(ctx, client)
}

func parseHash(s string) (session.TxHash, error) {
	var h session.TxHash
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid hash: %d bytes, want %d", len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}

func runReview(cmd *cobra.Command, args []string) error {
	hash, err := parseHash(hostHash)
	if err != nil {
		return err
	}
	return withDevice(cmd, func(ctx context.Context, c *apdu.Client) error {
		if err := c.Review(ctx, hash, hostSummary); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Approved")
		return nil
	})
}

func runCommit(cmd *cobra.Command, args []string) error {
	hash, err := parseHash(hostHash)
	if err != nil {
		return err
	}
	return withDevice(cmd, func(ctx context.Context, c *apdu.Client) error {
		commitments, err := c.Commit(ctx, hash)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(commitments))
		return nil
	})
}

func readPayload() ([]byte, error) {
	switch {
	case hostPayload != "" && signFile != "":
		return nil, fmt.Errorf("use either --payload or --file")
	case hostPayload != "":
		return hex.DecodeString(strings.TrimPrefix(hostPayload, "0x"))
	case signFile != "":
		return os.ReadFile(signFile)
	default:
		return nil, fmt.Errorf("a signing request is required (--payload or --file)")
	}
}

func runSign(cmd *cobra.Command, args []string) error {
	payload, err := readPayload()
	if err != nil {
		return err
	}
	return withDevice(cmd, func(ctx context.Context, c *apdu.Client) error {
		share, err := c.Sign(ctx, payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(share))
		return nil
	})
}

func runBackup(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, c *apdu.Client) error {
		blob, err := c.Backup(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(backupOutput, blob, 0o600); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup written: %s (%d bytes)\n", backupOutput, len(blob))
		return nil
	})
}

func runRestore(cmd *cobra.Command, args []string) error {
	blob, err := os.ReadFile(restoreInput)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	return withDevice(cmd, func(ctx context.Context, c *apdu.Client) error {
		if err := c.Restore(ctx, blob); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Restored")
		return nil
	})
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, c *apdu.Client) error {
		v, err := c.Version(ctx)
		if err != nil {
			return err
		}
		id, err := c.Identity(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version: %s\n", v)
		fmt.Fprintf(out, "Identifier: %d\n", id.Identifier)
		fmt.Fprintf(out, "Threshold: %d of %d\n", id.MinSigners, id.MaxSigners)
		fmt.Fprintf(out, "Verifying share: %s\n", hex.EncodeToString(id.VerifyingShare))
		fmt.Fprintf(out, "Group public key: %s\n", hex.EncodeToString(id.GroupPublicKey))
		return nil
	})
}
