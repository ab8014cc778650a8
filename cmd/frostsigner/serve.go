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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a signing device",
	Long: `Run a signing device on the configured transport.

The device loads its key share from the key store and asks for approval on
this terminal (or as configured with --confirmer) before signing or
exporting a backup. Exchanges are processed one at a time.

Examples:
  # Serve over HTTP with terminal prompts
  frostsigner serve --address 127.0.0.1:9443 --store ./device-1.json

  # Serve over QUIC (TLS is mandatory)
  frostsigner serve --protocol quic --address 0.0.0.0:9444 \
    --tls-cert certs/device.crt --tls-key certs/device.key

  # Serve over gRPC with mTLS and a SQLite key store
  frostsigner serve --protocol grpc --store-backend sql --store ./device.db \
    --tls-cert device.crt --tls-key device.key --tls-ca hosts-ca.crt`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("confirmer", ConfirmerPrompt, "approval UI (tui, prompt, approve, deny)")
	f.Int("max-payload", 0, "reassembly capacity in bytes (0: default)")
	f.Int("chunk-size", 0, "result chunk size in bytes (0: default)")
	f.Float64("rate", transport.DefaultRateLimit, "sustained exchanges per second (0: unlimited)")
	f.Int("burst", transport.DefaultRateBurst, "exchange burst size")
	f.Bool("metrics", true, "record Prometheus metrics")
	f.String("metrics-listen", "", "separate metrics listener for quic and grpc (empty: disabled)")

	bindFlags(serveCmd, map[string]string{
		"ui.confirmer":       "confirmer",
		"device.max_payload": "max-payload",
		"device.chunk_size":  "chunk-size",
		"server.rate":        "rate",
		"server.burst":       "burst",
		"metrics.enabled":    "metrics",
		"metrics.listen":     "metrics-listen",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, "device")
	if err != nil {
		return err
	}
	dev, err := buildDevice(cmd, deviceOptionsFromViper(), logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	cfg, err := transportConfig(logger)
	if err != nil {
		return err
	}
	info := transport.DeviceInfo{
		Version:     dev.Device.Version().String(),
		Ciphersuite: dev.Store.Ciphersuite(),
	}

	var metricsHandler http.Handler
	if dev.Metrics.Enabled() {
		metricsHandler = dev.Metrics.Handler()
	}
	server, err := defaultFactory.NewServer(cfg, dev.Dispatcher, info, metricsHandler)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	var metricsServer *http.Server
	if addr := viper.GetString("metrics.listen"); addr != "" && metricsHandler != nil && cfg.Protocol != transport.ProtocolHTTP {
		metricsServer = &http.Server{Addr: addr, Handler: metricsHandler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener: %v", err)
			}
		}()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Device started: firmware %s\n", info.Version)
	fmt.Fprintf(out, "Listening on: %s://%s\n", cfg.Protocol, server.Address())

	<-ctx.Done()
	fmt.Fprintln(out, "\nShutting down device...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(stopCtx)
	}
	if err := server.Stop(stopCtx); err != nil {
		return fmt.Errorf("error stopping server: %w", err)
	}
	fmt.Fprintln(out, "Device stopped")
	return nil
}
