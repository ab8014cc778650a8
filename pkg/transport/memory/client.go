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

package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

// Client is the host side of the memory transport. It implements
// transport.Exchanger.
type Client struct {
	transport  *Transport
	config     *transport.Config
	serializer *transport.Serializer

	mu       sync.RWMutex
	endpoint *Endpoint
}

// NewClient creates a client for the endpoint named by config.Address.
func NewClient(t *Transport, config *transport.Config) (*Client, error) {
	if t == nil || config == nil {
		return nil, transport.ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Protocol != transport.ProtocolMemory {
		return nil, transport.ErrInvalidProtocol
	}
	return &Client{transport: t, config: config, serializer: t.serializer}, nil
}

// Connect resolves the endpoint.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ep, err := c.transport.lookup(c.config.Address)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.endpoint = ep
	c.mu.Unlock()
	return nil
}

// Disconnect forgets the endpoint.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endpoint == nil {
		return transport.ErrNotConnected
	}
	c.endpoint = nil
	return nil
}

// Exchange sends command and returns the raw response.
func (c *Client) Exchange(ctx context.Context, command []byte) ([]byte, error) {
	c.mu.RLock()
	ep := c.endpoint
	c.mu.RUnlock()
	if ep == nil {
		return nil, transport.ErrNotConnected
	}
	if len(command) > c.config.MaxMessageSize {
		return nil, transport.ErrMessageTooLarge
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	id := uuid.NewString()
	payload, err := c.serializer.Marshal(transport.NewExchangeRequest(id, command))
	if err != nil {
		return nil, err
	}
	reply, err := ep.send(ctx, payload)
	if err != nil {
		return nil, transport.NewExchangeError(id, 0, err)
	}

	var resp transport.ExchangeResponse
	if err := c.serializer.Unmarshal(reply, &resp); err != nil {
		return nil, transport.NewExchangeError(id, 0, err)
	}
	if resp.ID != id {
		return nil, transport.NewExchangeError(id, 0, transport.ErrInvalidMessage)
	}
	return resp.Bytes()
}
