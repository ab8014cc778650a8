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

package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	tlsconfig "github.com/jeremyhahn/go-frostsigner/pkg/transport/tls"
)

// Client talks to a device Server. It implements transport.Exchanger.
type Client struct {
	config     *transport.Config
	client     *http.Client
	serializer *transport.Serializer
	useTLS     bool

	mu        sync.RWMutex
	connected bool
	health    *transport.HealthResponse
}

// NewClient creates a client for the server at config.Address.
func NewClient(config *transport.Config) (*Client, error) {
	if config == nil {
		return nil, transport.ErrInvalidConfig
	}
	if config.Protocol != transport.ProtocolHTTP {
		return nil, transport.ErrInvalidProtocol
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	serializer, err := transport.NewSerializer(config.CodecType)
	if err != nil {
		return nil, err
	}

	// Create HTTP client with connection pooling
	httpTransport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	useTLS := false
	if config.HasTLS() {
		tlsCfg, err := tlsconfig.ClientConfig(config.TLSCertFile, config.TLSKeyFile, config.TLSCAFile, "")
		if err != nil {
			return nil, transport.NewTLSError("failed to configure TLS", err)
		}
		httpTransport.TLSClientConfig = tlsCfg
		useTLS = true
	}

	return &Client{
		config:     config,
		client:     &http.Client{Timeout: config.Timeout, Transport: httpTransport},
		serializer: serializer,
		useTLS:     useTLS,
	}, nil
}

// Connect checks the server health endpoint.
func (c *Client) Connect(ctx context.Context) error {
	health, err := c.Health(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.health = health
	c.mu.Unlock()
	return nil
}

// Disconnect closes idle connections.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return transport.ErrNotConnected
	}
	c.client.CloseIdleConnections()
	c.connected = false
	return nil
}

// Device returns the device description received on Connect.
func (c *Client) Device() transport.DeviceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.health == nil {
		return transport.DeviceInfo{}
	}
	return transport.DeviceInfo{Version: c.health.Version, Ciphersuite: c.health.Ciphersuite}
}

// Health queries the health endpoint.
func (c *Client) Health(ctx context.Context) (*transport.HealthResponse, error) {
	data, err := c.doRequest(ctx, http.MethodGet, PathHealth, "", nil)
	if err != nil {
		return nil, err
	}
	health := &transport.HealthResponse{}
	if err := c.serializer.Unmarshal(data, health); err != nil {
		return nil, err
	}
	return health, nil
}

// Exchange sends command and returns the raw device response.
func (c *Client) Exchange(ctx context.Context, command []byte) ([]byte, error) {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		return nil, transport.ErrNotConnected
	}

	id := uuid.NewString()
	data, err := c.doRequest(ctx, http.MethodPost, PathExchange, id, transport.NewExchangeRequest(id, command))
	if err != nil {
		return nil, transport.NewExchangeError(id, 0, err)
	}

	resp := &transport.ExchangeResponse{}
	if err := c.serializer.Unmarshal(data, resp); err != nil {
		return nil, transport.NewExchangeError(id, 0, err)
	}
	if resp.ID != id {
		return nil, transport.NewExchangeError(id, 0, fmt.Errorf("%w: response for %q", transport.ErrInvalidMessage, resp.ID))
	}
	return resp.Bytes()
}

// doRequest performs an HTTP request with serialization.
func (c *Client) doRequest(ctx context.Context, method, path, requestID string, body any) ([]byte, error) {
	scheme := "http"
	if c.useTLS {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, c.config.Address, path)

	var reqBody io.Reader
	if body != nil {
		data, err := c.serializer.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		if len(data) > c.config.MaxMessageSize {
			return nil, transport.ErrMessageTooLarge
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set(HeaderContentType, c.serializer.ContentType())
	}
	req.Header.Set(HeaderAccept, c.serializer.ContentType())
	if requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transport.NewConnectionError(c.config.Address, fmt.Errorf("%w: %v", transport.ErrConnectionFailed, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.config.MaxMessageSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errMsg transport.ErrorMessage
		jsonSerializer, _ := transport.NewSerializer(transport.CodecJSON)
		if err := jsonSerializer.Unmarshal(respBody, &errMsg); err == nil && errMsg.Code != 0 {
			return nil, &HTTPError{StatusCode: errMsg.Code, Message: errMsg.Message}
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}
