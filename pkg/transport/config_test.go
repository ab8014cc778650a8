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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewHTTPConfig("127.0.0.1:9443")
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, DefaultCodec, cfg.CodecType)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxMessageSize, cfg.MaxMessageSize)
	assert.NoError(t, cfg.Validate())
	assert.IsType(t, logging.NopLogger{}, cfg.GetLogger())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad_protocol", func(c *Config) { c.Protocol = "carrier-pigeon" }, ErrInvalidProtocol},
		{"empty_address", func(c *Config) { c.Address = "" }, ErrInvalidAddress},
		{"no_port", func(c *Config) { c.Address = "localhost" }, ErrInvalidAddress},
		{"zero_timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidConfig},
		{"zero_size", func(c *Config) { c.MaxMessageSize = 0 }, ErrInvalidConfig},
		{"negative_rate", func(c *Config) { c.RateLimit = -1 }, ErrInvalidConfig},
		{"rate_without_burst", func(c *Config) { c.RateBurst = 0 }, ErrInvalidConfig},
		{"empty_codec", func(c *Config) { c.CodecType = "" }, ErrInvalidConfig},
		{"bad_codec", func(c *Config) { c.CodecType = "xml" }, ErrCodecNotSupported},
		{"cert_without_key", func(c *Config) { c.TLSCertFile = "/nope.crt" }, ErrCertificateInvalid},
		{"missing_cert_file", func(c *Config) {
			c.TLSCertFile = "/does/not/exist.crt"
			c.TLSKeyFile = "/does/not/exist.key"
		}, ErrCertificateNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewHTTPConfig("127.0.0.1:9443")
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalidConfig)
}

func TestConfigMemory(t *testing.T) {
	cfg := NewMemoryConfig("device-1")
	assert.NoError(t, cfg.Validate())

	cfg.TLSCAFile = "/ca.pem"
	var tlsErr *TLSError
	assert.ErrorAs(t, cfg.Validate(), &tlsErr)
}

func TestConfigTLSModes(t *testing.T) {
	dir := t.TempDir()
	paths := map[string]string{}
	for _, name := range []string{"cert.pem", "key.pem", "ca.pem"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0600))
		paths[name] = p
	}

	server := NewTLSConfig("127.0.0.1:9443", paths["cert.pem"], paths["key.pem"], "")
	assert.NoError(t, server.Validate())
	assert.True(t, server.IsServerTLS())
	assert.False(t, server.IsMutualTLS())
	assert.Contains(t, server.String(), "TLS=TLS")

	mutual := NewTLSConfig("127.0.0.1:9443", paths["cert.pem"], paths["key.pem"], paths["ca.pem"])
	assert.NoError(t, mutual.Validate())
	assert.True(t, mutual.IsMutualTLS())
	assert.Contains(t, mutual.String(), "TLS=mTLS")
}

func TestConfigCloneAndString(t *testing.T) {
	cfg := NewHTTPConfig("127.0.0.1:1")
	clone := cfg.Clone()
	clone.Address = "127.0.0.1:2"
	assert.Equal(t, "127.0.0.1:1", cfg.Address)
	assert.True(t, strings.Contains(cfg.String(), "TLS=disabled"))

	var nilCfg *Config
	assert.Nil(t, nilCfg.Clone())
}

func TestTypedErrors(t *testing.T) {
	assert.Nil(t, NewConnectionError("x", nil))
	assert.Nil(t, NewExchangeError("id", 0, nil))

	err := NewConnectionError("127.0.0.1:1", ErrConnectionFailed)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Contains(t, err.Error(), "127.0.0.1:1")

	err = NewExchangeError("req-9", 429, ErrRateLimited)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "status=429")

	err = NewTLSError("bad", nil)
	assert.Equal(t, "TLS error: bad", err.Error())
}

func TestNetworkProtocolConfigs(t *testing.T) {
	for _, cfg := range []*Config{NewQUICConfig("127.0.0.1:9444"), NewGRPCConfig("127.0.0.1:9445")} {
		assert.NoError(t, cfg.Validate(), cfg.Protocol.String())
		cfg.Address = "nohost"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidAddress)
	}
}

func TestParseProtocol(t *testing.T) {
	for _, name := range []string{"http", "quic", "grpc", "memory"} {
		p, err := ParseProtocol(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.String())
	}
	_, err := ParseProtocol("usb")
	assert.ErrorIs(t, err, ErrInvalidProtocol)
}
