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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tlsconfig "github.com/jeremyhahn/go-frostsigner/pkg/transport/tls"
)

// certgenCmd represents the certgen command
var certgenCmd = &cobra.Command{
	Use:   "certgen",
	Short: "Generate a TLS certificate and key",
	Long: `Generate a self-signed ECDSA P-256 certificate and private key for a device
or host. The certificate can serve as its own CA for --tls-ca.

Examples:
  # Certificate for a local device
  frostsigner certgen --output ./certs --name device

  # Certificate for several names
  frostsigner certgen --name device --hosts localhost,127.0.0.1,signer.example.com`,
	RunE: runCertgen,
}

func init() {
	certgenCmd.Flags().StringP("output", "o", "./certs", "output directory")
	certgenCmd.Flags().String("name", "device", "file name for the certificate and key")
	certgenCmd.Flags().Int("days", 365, "certificate validity period in days")
	certgenCmd.Flags().StringSlice("hosts", []string{"localhost", "127.0.0.1"}, "DNS names and IP addresses")

	bindFlags(certgenCmd, map[string]string{
		"certgen.output": "output",
		"certgen.name":   "name",
		"certgen.days":   "days",
		"certgen.hosts":  "hosts",
	})
}

func runCertgen(cmd *cobra.Command, args []string) error {
	dir := viper.GetString("certgen.output")
	name := viper.GetString("certgen.name")
	days := viper.GetInt("certgen.days")
	hosts := viper.GetStringSlice("certgen.hosts")

	if days < 1 {
		return fmt.Errorf("days must be at least 1")
	}
	if name == "" {
		return fmt.Errorf("name is required")
	}

	out := cmd.OutOrStdout()
	if verbose {
		fmt.Fprintf(out, "Generating certificate %q for %v, valid %d days\n", name, hosts, days)
	}

	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned(hosts, time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	certPath := filepath.Join(dir, name+".crt")
	// #nosec G306 -- certificates are public
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	keyPath := filepath.Join(dir, name+".key")
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	fmt.Fprintf(out, "Certificate generated successfully:\n")
	fmt.Fprintf(out, "  Certificate: %s\n", certPath)
	fmt.Fprintf(out, "  Private Key: %s\n", keyPath)
	fmt.Fprintf(out, "\nUse with --tls-cert and --tls-key flags\n")
	return nil
}
