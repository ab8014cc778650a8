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
	"fmt"
	"net/http"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport/grpc"
	thttp "github.com/jeremyhahn/go-frostsigner/pkg/transport/http"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport/quic"
)

// DeviceServer is a running device endpoint.
type DeviceServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Address() string
}

// HostClient is the host side of a transport.
type HostClient interface {
	transport.Exchanger
	Connect(ctx context.Context) error
	Disconnect() error
}

// TransportFactory creates device servers and host clients.
// This interface enables dependency injection for testing.
type TransportFactory interface {
	// NewServer creates a device server for the given protocol. metrics is
	// only served by protocols with an HTTP surface.
	NewServer(cfg *transport.Config, processor transport.Processor, info transport.DeviceInfo, metrics http.Handler) (DeviceServer, error)

	// NewClient creates a host client for the given protocol.
	NewClient(cfg *transport.Config) (HostClient, error)
}

// DefaultTransportFactory implements TransportFactory using real transport implementations.
type DefaultTransportFactory struct{}

// NewServer creates a server based on cfg.Protocol.
func (f *DefaultTransportFactory) NewServer(cfg *transport.Config, processor transport.Processor, info transport.DeviceInfo, metrics http.Handler) (DeviceServer, error) {
	switch cfg.Protocol {
	case transport.ProtocolHTTP:
		return thttp.NewServer(cfg, processor, info, metrics)
	case transport.ProtocolQUIC:
		return quic.NewServer(cfg, processor)
	case transport.ProtocolGRPC:
		return grpc.NewServer(cfg, processor)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s (supported: http, quic, grpc)", cfg.Protocol)
	}
}

// NewClient creates a client based on cfg.Protocol.
func (f *DefaultTransportFactory) NewClient(cfg *transport.Config) (HostClient, error) {
	switch cfg.Protocol {
	case transport.ProtocolHTTP:
		return thttp.NewClient(cfg)
	case transport.ProtocolQUIC:
		return quic.NewClient(cfg)
	case transport.ProtocolGRPC:
		return grpc.NewClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s (supported: http, quic, grpc)", cfg.Protocol)
	}
}

// Default factory instance used by the package.
// Can be overridden in tests for dependency injection.
var defaultFactory TransportFactory = &DefaultTransportFactory{}
