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

// Package transport carries device commands between a host and a signing
// device.
//
// The device speaks ISO-7816 style APDUs. A transport moves one raw command
// to the device and one raw response (data followed by a two byte status
// word) back. Four transports are provided:
//   - http: a REST endpoint with content negotiation and optional TLS 1.3
//   - quic: one bidirectional stream per exchange, TLS 1.3 mandatory
//   - grpc: a unary Exchange call encoded with the configured codec
//   - memory: an in-process binding used by tests and the demo command
//
// Transports carry no cryptographic role and never inspect payloads beyond
// size limits.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
)

// Protocol identifies a transport implementation.
type Protocol string

const (
	// ProtocolHTTP is the HTTP/REST transport.
	ProtocolHTTP Protocol = "http"

	// ProtocolQUIC is the QUIC stream transport.
	ProtocolQUIC Protocol = "quic"

	// ProtocolGRPC is the gRPC transport.
	ProtocolGRPC Protocol = "grpc"

	// ProtocolMemory is the in-process transport.
	ProtocolMemory Protocol = "memory"
)

func (p Protocol) String() string { return string(p) }

// Processor executes one raw command on the device and returns the raw
// response. It never fails at this layer: device errors are encoded in
// the status word.
type Processor interface {
	Process(ctx context.Context, command []byte) []byte
}

// Exchanger is the host view of a transport.
type Exchanger interface {
	Exchange(ctx context.Context, command []byte) ([]byte, error)
}

// Config holds the settings shared by transports.
type Config struct {
	// Protocol selects the transport.
	Protocol Protocol

	// Address is host:port for network transports or an arbitrary name for
	// memory.
	Address string

	// TLSCertFile is the certificate presented by this side.
	TLSCertFile string

	// TLSKeyFile is the private key for TLSCertFile.
	TLSKeyFile string

	// TLSCAFile is the CA used to verify the peer. On a server it enables
	// client certificate verification.
	TLSCAFile string

	// CodecType is the body codec: json, msgpack, cbor, yaml, bson or toml.
	CodecType string

	// Timeout bounds a single exchange.
	Timeout time.Duration

	// MaxMessageSize bounds request and response bodies in bytes.
	MaxMessageSize int

	// RateLimit is the sustained number of exchanges per second accepted
	// by a server. Zero disables limiting.
	RateLimit float64

	// RateBurst is the burst size paired with RateLimit.
	RateBurst int

	// Logger receives transport events. Nil discards them.
	Logger logging.Logger
}

// GetLogger returns the configured logger or a no-op one.
func (c *Config) GetLogger() logging.Logger {
	if c == nil || c.Logger == nil {
		return logging.NopLogger{}
	}
	return c.Logger
}

// DeviceInfo describes a running device for health checks.
type DeviceInfo struct {
	Version     string
	Ciphersuite string
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("DeviceInfo{Version=%s, Ciphersuite=%s}", d.Version, d.Ciphersuite)
}
