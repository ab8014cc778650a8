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

package transport

import (
	"fmt"
	"net"
	"os"
	"time"
)

const (
	// DefaultTimeout is the default exchange timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxMessageSize is the default maximum body size (64KB).
	DefaultMaxMessageSize = 64 * 1024

	// DefaultCodec is the default message codec.
	DefaultCodec = CodecJSON

	// DefaultRateLimit is the default sustained exchange rate per second.
	DefaultRateLimit = 50

	// DefaultRateBurst is the default burst size.
	DefaultRateBurst = 100
)

// NewConfig creates a new Config with default values.
//
// Callers should set Address and other protocol-specific fields.
func NewConfig() *Config {
	return &Config{
		Protocol:       ProtocolHTTP,
		CodecType:      DefaultCodec,
		Timeout:        DefaultTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
		RateLimit:      DefaultRateLimit,
		RateBurst:      DefaultRateBurst,
	}
}

// NewHTTPConfig creates a Config for HTTP transport.
func NewHTTPConfig(address string) *Config {
	cfg := NewConfig()
	cfg.Protocol = ProtocolHTTP
	cfg.Address = address
	return cfg
}

// NewQUICConfig creates a Config for QUIC transport. QUIC always runs
// TLS 1.3, so servers must also set certificate files.
func NewQUICConfig(address string) *Config {
	cfg := NewConfig()
	cfg.Protocol = ProtocolQUIC
	cfg.Address = address
	return cfg
}

// NewGRPCConfig creates a Config for gRPC transport.
func NewGRPCConfig(address string) *Config {
	cfg := NewConfig()
	cfg.Protocol = ProtocolGRPC
	cfg.Address = address
	return cfg
}

// NewMemoryConfig creates a Config for in-memory transport (testing).
func NewMemoryConfig(identifier string) *Config {
	cfg := NewConfig()
	cfg.Protocol = ProtocolMemory
	cfg.Address = identifier
	return cfg
}

// NewTLSConfig creates an HTTP Config with TLS enabled.
//
// For server-side TLS, provide certFile and keyFile.
// For mTLS (mutual TLS), also provide caFile.
func NewTLSConfig(address, certFile, keyFile, caFile string) *Config {
	cfg := NewHTTPConfig(address)
	cfg.TLSCertFile = certFile
	cfg.TLSKeyFile = keyFile
	cfg.TLSCAFile = caFile
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}

	switch c.Protocol {
	case ProtocolHTTP, ProtocolQUIC, ProtocolGRPC:
		if c.Address == "" {
			return fmt.Errorf("%w: address is required", ErrInvalidAddress)
		}
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
	case ProtocolMemory:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProtocol, c.Protocol)
	}

	if c.HasTLS() {
		if c.Protocol == ProtocolMemory {
			return NewTLSError("TLS is not supported by the memory transport", ErrInvalidConfig)
		}
		if err := c.validateTLS(); err != nil {
			return err
		}
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("%w: rate burst must be positive when limiting", ErrInvalidConfig)
	}

	if c.CodecType == "" {
		return fmt.Errorf("%w: codec type is required", ErrInvalidConfig)
	}
	if _, err := NewSerializer(c.CodecType); err != nil {
		return fmt.Errorf("%w: %s", ErrCodecNotSupported, c.CodecType)
	}
	return nil
}

// HasTLS returns true if TLS is configured.
func (c *Config) HasTLS() bool {
	return c.TLSCertFile != "" || c.TLSKeyFile != "" || c.TLSCAFile != ""
}

// IsMutualTLS returns true if mutual TLS (mTLS) is configured.
func (c *Config) IsMutualTLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != "" && c.TLSCAFile != ""
}

// ParseProtocol resolves a protocol name.
func ParseProtocol(name string) (Protocol, error) {
	switch p := Protocol(name); p {
	case ProtocolHTTP, ProtocolQUIC, ProtocolGRPC, ProtocolMemory:
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidProtocol, name)
}

// IsServerTLS returns true if server-side TLS is configured (but not mTLS).
func (c *Config) IsServerTLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != "" && c.TLSCAFile == ""
}

func (c *Config) validateTLS() error {
	if c.TLSCertFile != "" && c.TLSKeyFile == "" {
		return NewTLSError("TLS key file required when cert file is specified", ErrCertificateInvalid)
	}
	if c.TLSKeyFile != "" && c.TLSCertFile == "" {
		return NewTLSError("TLS cert file required when key file is specified", ErrCertificateInvalid)
	}

	checks := []struct {
		path string
		err  error
		what string
	}{
		{c.TLSCertFile, ErrCertificateNotFound, "cert"},
		{c.TLSKeyFile, ErrPrivateKeyNotFound, "key"},
		{c.TLSCAFile, ErrCANotFound, "CA"},
	}
	for _, chk := range checks {
		if chk.path == "" {
			continue
		}
		if _, err := os.Stat(chk.path); os.IsNotExist(err) {
			return NewTLSError(fmt.Sprintf("%s file not found: %s", chk.what, chk.path), chk.err)
		}
	}
	return nil
}

// Clone creates a copy of the config. The Logger is shared.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// String returns a string representation of the config (with sensitive data redacted).
func (c *Config) String() string {
	tlsStatus := "disabled"
	if c.IsMutualTLS() {
		tlsStatus = "mTLS"
	} else if c.IsServerTLS() {
		tlsStatus = "TLS"
	}

	return fmt.Sprintf("Config{Protocol=%s, Address=%s, TLS=%s, Codec=%s, Timeout=%s, Rate=%.1f/%d}",
		c.Protocol, c.Address, tlsStatus, c.CodecType, c.Timeout, c.RateLimit, c.RateBurst)
}
