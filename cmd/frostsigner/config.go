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
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configOutput string
	configForce  bool
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Generate and manage frostsigner configuration files.

Configuration files use YAML format and can specify default values for
all command-line flags. Command-line flags override config file values.

Environment variables can also be used with the FROSTSIGNER_ prefix.
For example: FROSTSIGNER_SERVER_PROTOCOL=quic

Examples:
  # Generate default config file
  frostsigner config init

  # Generate config file in custom location
  frostsigner config init --output /etc/frostsigner/config.yaml

  # Show current config
  frostsigner config show`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a sample configuration file",
	Long:  `Generate a sample configuration file with default values and documentation.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration including values from config file, environment, and defaults.`,
	Run:   runConfigShow,
}

func init() {
	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", "", "output path (default: $HOME/.frostsigner/config.yaml)")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

const sampleConfig = `# frostsigner configuration file
# Command-line flags override these values

# Device endpoint
server:
  protocol: http              # http, quic, grpc
  address: "127.0.0.1:9443"   # listen address for serve, target for host commands
  rate: 10                    # sustained exchanges per second (0: unlimited)
  burst: 20

# Message codec: json, msgpack, cbor, yaml, bson, toml
codec: json
timeout: 30s

# TLS configuration (mandatory for quic)
tls:
  cert: ""      # Path to TLS certificate file
  key: ""       # Path to TLS private key file
  ca: ""        # Path to CA certificate (server: require client certs)

# Key store
store:
  backend: file               # file or sql
  # path: "/var/lib/frostsigner/device.json"  (default: $HOME/.frostsigner/device.json)
  codec: json                 # file store codec: json, yaml, toml, cbor, msgpack

# Device settings
device:
  ciphersuite: "ed25519"      # used by 'keys generate'
  max_payload: 0              # reassembly capacity (0: default)
  chunk_size: 0               # result chunk size (0: default)

# Approval UI: tui, prompt, approve, deny
ui:
  confirmer: prompt

# Prometheus metrics
metrics:
  enabled: true
  listen: ""                  # separate listener for quic and grpc

# Logging
log:
  level: info                 # debug, info, warn, error
  format: console             # console or json

# Certgen settings
certgen:
  output: "./certs"
  name: "device"
  days: 365
  hosts:
    - "localhost"
    - "127.0.0.1"

# Verbose output
verbose: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	outputPath := configOutput
	if outputPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		outputPath = filepath.Join(homeDir, ".frostsigner", "config.yaml")
	}

	if _, err := os.Stat(outputPath); err == nil && !configForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", outputPath)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(outputPath, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit the file to customize settings, or use command-line flags to override.")
	fmt.Fprintf(out, "\nTo use this config file:\n")
	fmt.Fprintf(out, "  frostsigner --config %s <command>\n", outputPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "======================")

	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Fprintln(out, "No configuration loaded (using defaults)")
		return
	}

	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "%s: %v\n", key, settings[key])
	}

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "\nLoaded from: %s\n", viper.ConfigFileUsed())
	}

	fmt.Fprintf(out, "\nEnvironment variables with %s_ prefix override these values.\n", EnvPrefix)
	fmt.Fprintln(out, "Command-line flags override both config file and environment variables.")
}
