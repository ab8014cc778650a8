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
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-frostsigner/pkg/apdu"
	"github.com/jeremyhahn/go-frostsigner/pkg/backup"
	"github.com/jeremyhahn/go-frostsigner/pkg/frostsign"
	"github.com/jeremyhahn/go-frostsigner/pkg/handler"
	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/metrics"
	"github.com/jeremyhahn/go-frostsigner/pkg/store"
	"github.com/jeremyhahn/go-frostsigner/pkg/ui"
)

// Store backends.
const (
	BackendFile = "file"
	BackendSQL  = "sql"
)

// Confirmer names accepted by --confirmer.
const (
	ConfirmerTUI     = "tui"
	ConfirmerPrompt  = "prompt"
	ConfirmerApprove = "approve"
	ConfirmerDeny    = "deny"
)

// provisioner is a KeyStore that accepts a fresh record.
type provisioner interface {
	store.KeyStore
	Provision(rec *store.KeyRecord) error
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the configured backend. The closer releases it.
func openStore(backend, path, codec string) (provisioner, io.Closer, error) {
	switch backend {
	case BackendFile, "":
		fs, err := store.NewFileStore(path, codec)
		if err != nil {
			return nil, nil, err
		}
		return fs, nopCloser{}, nil
	case BackendSQL:
		ss, err := store.OpenSQLStore(path)
		if err != nil {
			return nil, nil, err
		}
		return ss, ss, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s (supported: file, sql)", backend)
	}
}

// newConfirmer returns the confirmer named by name.
func newConfirmer(name string, in io.Reader, out io.Writer) (ui.Confirmer, error) {
	switch name {
	case ConfirmerTUI:
		return ui.NewTUIConfirmer(in, out), nil
	case ConfirmerPrompt, "":
		return ui.NewPromptConfirmer(in, out), nil
	case ConfirmerApprove:
		return &ui.StaticConfirmer{Approve: true}, nil
	case ConfirmerDeny:
		return &ui.StaticConfirmer{}, nil
	default:
		return nil, fmt.Errorf("unknown confirmer: %s (supported: tui, prompt, approve, deny)", name)
	}
}

// deviceOptions are the settings a device is built from.
type deviceOptions struct {
	StoreBackend string
	StorePath    string
	StoreCodec   string
	Confirmer    string
	MaxPayload   int
	ChunkSize    int
	Metrics      bool
}

func deviceOptionsFromViper() deviceOptions {
	return deviceOptions{
		StoreBackend: viper.GetString("store.backend"),
		StorePath:    viper.GetString("store.path"),
		StoreCodec:   viper.GetString("store.codec"),
		Confirmer:    viper.GetString("ui.confirmer"),
		MaxPayload:   viper.GetInt("device.max_payload"),
		ChunkSize:    viper.GetInt("device.chunk_size"),
		Metrics:      viper.GetBool("metrics.enabled"),
	}
}

// runningDevice is a device wired to its store and dispatcher.
type runningDevice struct {
	Device     *handler.Device
	Dispatcher *apdu.Dispatcher
	Metrics    *metrics.Collector
	Store      store.KeyStore
	closer     io.Closer
}

func (r *runningDevice) Close() error { return r.closer.Close() }

// buildDevice opens the store and wires a device around it.
func buildDevice(cmd *cobra.Command, opts deviceOptions, logger logging.Logger) (*runningDevice, error) {
	ks, closer, err := openStore(opts.StoreBackend, opts.StorePath, opts.StoreCodec)
	if err != nil {
		return nil, err
	}

	suite := ks.Ciphersuite()
	if suite == "" {
		_ = closer.Close()
		return nil, fmt.Errorf("device at %s is not provisioned (run 'frostsigner keys generate')", opts.StorePath)
	}
	scheme, err := frostsign.NewSchemeByName(suite)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	confirmer, err := newConfirmer(opts.Confirmer, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	mcfg := metrics.DefaultConfig()
	mcfg.Enabled = opts.Metrics
	collector, err := metrics.New(mcfg)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	device, err := handler.New(&handler.Config{
		MaxPayload: opts.MaxPayload,
		ChunkSize:  opts.ChunkSize,
		Store:      ks,
		Confirmer:  confirmer,
		Backup:     backup.NewEncryptor(ks),
		Scheme:     scheme,
		Logger:     logger,
		Metrics:    collector,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &runningDevice{
		Device:     device,
		Dispatcher: apdu.NewDispatcher(device, logger, collector),
		Metrics:    collector,
		Store:      ks,
		closer:     closer,
	}, nil
}
