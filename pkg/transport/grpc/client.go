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

package grpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	tlsconfig "github.com/jeremyhahn/go-frostsigner/pkg/transport/tls"
)

// Client talks to a gRPC device Server. It implements transport.Exchanger.
type Client struct {
	config *transport.Config
	opts   []grpc.DialOption

	mu   sync.RWMutex
	conn *grpc.ClientConn
}

// NewClient creates a client for the server at config.Address.
func NewClient(config *transport.Config) (*Client, error) {
	if config == nil {
		return nil, transport.ErrInvalidConfig
	}
	if config.Protocol != transport.ProtocolGRPC {
		return nil, transport.ErrInvalidProtocol
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	serializer, err := transport.NewSerializer(config.CodecType)
	if err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(codec{s: serializer}),
			grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(config.MaxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                max(config.Timeout, 10*time.Second),
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if config.HasTLS() {
		tlsCfg, err := tlsconfig.ClientConfig(config.TLSCertFile, config.TLSKeyFile, config.TLSCAFile, "")
		if err != nil {
			return nil, transport.NewTLSError("failed to configure TLS", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	return &Client{config: config, opts: opts}, nil
}

// Connect dials the server and waits until the channel is ready or the
// configured timeout passes. It is a no-op when connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	conn, err := grpc.NewClient("dns:///"+c.config.Address, c.opts...)
	if err != nil {
		return transport.NewConnectionError(c.config.Address, errors.Join(transport.ErrConnectionFailed, err))
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	conn.Connect()
	if !waitForReady(connectCtx, conn) {
		_ = conn.Close()
		return transport.NewConnectionError(c.config.Address, errors.Join(transport.ErrConnectionFailed, context.DeadlineExceeded))
	}
	c.conn = conn
	return nil
}

// Disconnect closes the channel.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return transport.ErrNotConnected
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Exchange sends command and returns the raw device response.
func (c *Client) Exchange(ctx context.Context, command []byte) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, transport.ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	id := uuid.NewString()
	resp := new(transport.ExchangeResponse)
	if err := conn.Invoke(ctx, MethodExchange, transport.NewExchangeRequest(id, command), resp); err != nil {
		return nil, transport.NewExchangeError(id, 0, fromStatus(err))
	}
	if resp.ID != id {
		return nil, transport.NewExchangeError(id, 0, fmt.Errorf("%w: response for %q", transport.ErrInvalidMessage, resp.ID))
	}
	return resp.Bytes()
}

// waitForReady waits for the connection to become ready or for ctx to expire.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) bool {
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return true
		}
		if state == connectivity.Shutdown {
			return false
		}
		if !conn.WaitForStateChange(ctx, state) {
			return false
		}
	}
}
