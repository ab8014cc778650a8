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
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

// Version information - set via ldflags at build time
var (
	// Version is the semantic version (from VERSION file)
	Version = "dev"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// EnvPrefix prefixes environment overrides, e.g. FROSTSIGNER_SERVER_PROTOCOL.
const EnvPrefix = "FROSTSIGNER"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "frostsigner",
	Short: "FROST threshold signing device",
	Long: `frostsigner runs a FROST threshold signing device and talks to one.

The device holds one key share, asks its owner to approve every transaction
hash before signing, and produces encrypted key backups on request. Hosts
speak APDU commands to it over HTTP, QUIC or gRPC.

Use 'frostsigner keys generate' to provision devices with a trusted dealer.
Use 'frostsigner serve' to run a device.
Use 'frostsigner review', 'commit' and 'sign' to run a signing ceremony.
Use 'frostsigner demo' for a complete in-memory ceremony.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()
		return nil
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version number and build information of frostsigner.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "frostsigner version %s\n", Version)
		fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
		fmt.Fprintf(out, "Build date: %s\n", BuildTime)
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.frostsigner/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.String("protocol", string(transport.ProtocolHTTP), "transport protocol (http, quic, grpc)")
	pf.String("address", "127.0.0.1:9443", "device address: listen address for serve, target for host commands")
	pf.String("codec", transport.DefaultCodec, "message codec (json, msgpack, cbor, yaml, bson, toml)")
	pf.Duration("timeout", transport.DefaultTimeout, "exchange timeout")
	pf.String("tls-cert", "", "TLS certificate file path")
	pf.String("tls-key", "", "TLS private key file path")
	pf.String("tls-ca", "", "CA certificate (server: require client certs; client: verify the device)")
	pf.String("store", defaultStorePath(), "key store path")
	pf.String("store-backend", "file", "key store backend (file, sql)")
	pf.String("store-codec", "json", "file store codec")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")

	bindFlags(rootCmd, map[string]string{
		"server.protocol": "protocol",
		"server.address":  "address",
		"codec":           "codec",
		"timeout":         "timeout",
		"tls.cert":        "tls-cert",
		"tls.key":         "tls-key",
		"tls.ca":          "tls-ca",
		"store.path":      "store",
		"store.backend":   "store-backend",
		"store.codec":     "store-codec",
		"log.level":       "log-level",
		"log.format":      "log-format",
		"verbose":         "verbose",
	})

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(certgenCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(demoCmd)
}

// bindFlags binds viper keys to the named local or persistent flags of cmd.
// Each key is bound once: viper keeps only the last binding.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", name, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME/.frostsigner")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".frostsigner", "device.json")
	}
	return filepath.Join(home, ".frostsigner", "device.json")
}

// newLogger builds the CLI logger from log.level and log.format.
func newLogger(cmd *cobra.Command, component string) (logging.Logger, error) {
	l, err := logging.New(cmd.ErrOrStderr(), viper.GetString("log.level"), viper.GetString("log.format"))
	if err != nil {
		return nil, err
	}
	return l.With("component", component), nil
}

// transportConfig assembles the transport settings shared by serve and
// the host commands.
func transportConfig(logger logging.Logger) (*transport.Config, error) {
	protocol, err := transport.ParseProtocol(viper.GetString("server.protocol"))
	if err != nil {
		return nil, err
	}
	cfg := transport.NewConfig()
	cfg.Protocol = protocol
	cfg.Address = viper.GetString("server.address")
	cfg.CodecType = viper.GetString("codec")
	cfg.TLSCertFile = viper.GetString("tls.cert")
	cfg.TLSKeyFile = viper.GetString("tls.key")
	cfg.TLSCAFile = viper.GetString("tls.ca")
	if d := viper.GetDuration("timeout"); d > 0 {
		cfg.Timeout = d
	}
	if viper.IsSet("server.rate") {
		cfg.RateLimit = viper.GetFloat64("server.rate")
	}
	if viper.IsSet("server.burst") {
		cfg.RateBurst = viper.GetInt("server.burst")
	}
	cfg.Logger = logger
	return cfg, nil
}
