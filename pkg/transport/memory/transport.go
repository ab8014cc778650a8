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

// Package memory provides an in-process transport for tests and the demo.
//
// A Transport is a registry of device endpoints. Each endpoint runs one
// goroutine that drains its message channel, so commands reach the device
// one at a time exactly as they would over the wire. Requests and
// responses are still encoded with the configured codec.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

// ErrEndpointExists indicates a second Register under the same ID.
var ErrEndpointExists = errors.New("memory: endpoint already registered")

// message is one encoded request and the channel its reply goes to.
type message struct {
	ctx     context.Context
	payload []byte
	reply   chan result
}

type result struct {
	payload []byte
	err     error
}

// Transport routes requests to registered endpoints.
type Transport struct {
	mu         sync.RWMutex
	endpoints  map[string]*Endpoint
	serializer *transport.Serializer
}

// NewTransport creates a transport encoding messages with codecType
// (json when empty).
func NewTransport(codecType string) (*Transport, error) {
	if codecType == "" {
		codecType = transport.CodecJSON
	}
	serializer, err := transport.NewSerializer(codecType)
	if err != nil {
		return nil, fmt.Errorf("failed to create serializer: %w", err)
	}
	return &Transport{
		endpoints:  make(map[string]*Endpoint),
		serializer: serializer,
	}, nil
}

// Register binds processor to id and starts serving it.
func (t *Transport) Register(id string, processor transport.Processor, logger logging.Logger) (*Endpoint, error) {
	if id == "" || processor == nil {
		return nil, transport.ErrInvalidConfig
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.endpoints[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrEndpointExists, id)
	}

	ep := &Endpoint{
		id:         id,
		processor:  processor,
		serializer: t.serializer,
		logger:     logger,
		messages:   make(chan *message),
		done:       make(chan struct{}),
	}
	t.endpoints[id] = ep
	go ep.processMessages()
	return ep, nil
}

// Unregister stops the endpoint for id. Pending exchanges fail with
// transport.ErrDeviceUnavailable.
func (t *Transport) Unregister(id string) {
	t.mu.Lock()
	ep, ok := t.endpoints[id]
	delete(t.endpoints, id)
	t.mu.Unlock()
	if ok {
		ep.stop()
	}
}

// lookup returns the endpoint for id.
func (t *Transport) lookup(id string) (*Endpoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ep, ok := t.endpoints[id]
	if !ok {
		return nil, transport.NewConnectionError(id, transport.ErrDeviceUnavailable)
	}
	return ep, nil
}

// Endpoint is the device side of the transport.
type Endpoint struct {
	id         string
	processor  transport.Processor
	serializer *transport.Serializer
	logger     logging.Logger
	messages   chan *message
	done       chan struct{}
	stopOnce   sync.Once
}

// Address returns the endpoint address.
func (e *Endpoint) Address() string { return "memory://" + e.id }

func (e *Endpoint) stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

func (e *Endpoint) processMessages() {
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.messages:
			payload, err := e.handle(msg)
			msg.reply <- result{payload: payload, err: err}
		}
	}
}

func (e *Endpoint) handle(msg *message) ([]byte, error) {
	var req transport.ExchangeRequest
	if err := e.serializer.Unmarshal(msg.payload, &req); err != nil {
		return nil, err
	}
	command, err := req.Bytes()
	if err != nil {
		return nil, transport.NewExchangeError(req.ID, 0, err)
	}
	e.logger.Debug("memory exchange %s: %d bytes", req.ID, len(command))

	response := e.processor.Process(msg.ctx, command)
	return e.serializer.Marshal(transport.NewExchangeResponse(req.ID, response))
}

// send delivers payload and waits for the reply.
func (e *Endpoint) send(ctx context.Context, payload []byte) ([]byte, error) {
	select {
	case <-e.done:
		return nil, transport.NewConnectionError(e.id, transport.ErrDeviceUnavailable)
	default:
	}
	msg := &message{ctx: ctx, payload: payload, reply: make(chan result, 1)}
	select {
	case e.messages <- msg:
	case <-e.done:
		return nil, transport.NewConnectionError(e.id, transport.ErrDeviceUnavailable)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// once accepted the command runs to completion; the device is never
	// interrupted mid-ceremony
	res := <-msg.reply
	return res.payload, res.err
}
