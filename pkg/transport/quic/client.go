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

package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	tlsconfig "github.com/jeremyhahn/go-frostsigner/pkg/transport/tls"
)

// Client talks to a QUIC device Server. It implements transport.Exchanger.
type Client struct {
	config     *transport.Config
	serializer *transport.Serializer
	tlsConfig  *tls.Config

	mu   sync.RWMutex
	conn *quic.Conn
}

// NewClient creates a client for the server at config.Address. Without a
// CA file the server certificate is not verified.
func NewClient(config *transport.Config) (*Client, error) {
	if config == nil {
		return nil, transport.ErrInvalidConfig
	}
	if config.Protocol != transport.ProtocolQUIC {
		return nil, transport.ErrInvalidProtocol
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	serializer, err := transport.NewSerializer(config.CodecType)
	if err != nil {
		return nil, err
	}

	var tlsCfg *tls.Config
	if config.HasTLS() {
		host, _, err := net.SplitHostPort(config.Address)
		if err != nil {
			host = config.Address
		}
		tlsCfg, err = tlsconfig.ClientConfig(config.TLSCertFile, config.TLSKeyFile, config.TLSCAFile, host)
		if err != nil {
			return nil, transport.NewTLSError("failed to configure TLS", err)
		}
	} else {
		tlsCfg = tlsconfig.InsecureClientConfig()
	}
	tlsCfg.NextProtos = []string{NextProto}

	return &Client{config: config, serializer: serializer, tlsConfig: tlsCfg}, nil
}

// Connect performs the QUIC handshake. It is a no-op when connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	conn, err := quic.DialAddr(dialCtx, c.config.Address, c.tlsConfig, quicConfig(c.config, -1))
	if err != nil {
		return transport.NewConnectionError(c.config.Address, errors.Join(transport.ErrConnectionFailed, err))
	}
	c.conn = conn
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return transport.ErrNotConnected
	}
	err := c.conn.CloseWithError(0, "client disconnect")
	c.conn = nil
	return err
}

// Exchange sends command on a fresh stream and returns the raw device
// response.
func (c *Client) Exchange(ctx context.Context, command []byte) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, transport.ErrNotConnected
	}

	id := uuid.NewString()
	data, err := c.serializer.Marshal(transport.NewExchangeRequest(id, command))
	if err != nil {
		return nil, transport.NewExchangeError(id, 0, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, transport.NewConnectionError(c.config.Address, errors.Join(transport.ErrConnectionFailed, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}
	// unblock the read if ctx is canceled before the deadline
	stop := context.AfterFunc(ctx, func() { stream.CancelRead(0) })
	defer stop()

	if err := writeFrame(stream, data, c.config.MaxMessageSize); err != nil {
		stream.CancelWrite(0)
		return nil, transport.NewExchangeError(id, 0, streamError(ctx, err))
	}
	_ = stream.Close()

	out, err := readFrame(stream, c.config.MaxMessageSize)
	if err != nil {
		return nil, transport.NewExchangeError(id, 0, streamError(ctx, err))
	}

	resp := &transport.ExchangeResponse{}
	if err := c.serializer.Unmarshal(out, resp); err != nil {
		return nil, transport.NewExchangeError(id, 0, err)
	}
	if resp.ID != id {
		return nil, transport.NewExchangeError(id, 0, fmt.Errorf("%w: response for %q", transport.ErrInvalidMessage, resp.ID))
	}
	return resp.Bytes()
}

// streamError translates a failed read into a transport error.
func streamError(ctx context.Context, err error) error {
	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) && streamErr.Remote {
		return errorFor(streamErr.ErrorCode)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return context.DeadlineExceeded
	}
	return err
}
