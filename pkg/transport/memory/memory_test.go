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
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

// echo returns the command followed by 0x9000 and counts calls.
type echo struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	block   chan struct{}
}

func (e *echo) Process(ctx context.Context, command []byte) []byte {
	if e.block != nil {
		e.started <- struct{}{}
		<-e.block
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return append(append([]byte(nil), command...), 0x90, 0x00)
}

func connect(t *testing.T, tr *Transport, id string) *Client {
	t.Helper()
	c, err := NewClient(tr, transport.NewMemoryConfig(id))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestNewTransport(t *testing.T) {
	for _, codec := range append(transport.Codecs(), "") {
		tr, err := NewTransport(codec)
		require.NoError(t, err, codec)
		assert.NotNil(t, tr)
	}
	_, err := NewTransport("xml")
	assert.ErrorIs(t, err, transport.ErrCodecNotSupported)
}

func TestRegister(t *testing.T) {
	tr, err := NewTransport("")
	require.NoError(t, err)

	ep, err := tr.Register("dev", &echo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory://dev", ep.Address())

	_, err = tr.Register("dev", &echo{}, nil)
	assert.ErrorIs(t, err, ErrEndpointExists)
	_, err = tr.Register("", &echo{}, nil)
	assert.ErrorIs(t, err, transport.ErrInvalidConfig)
	_, err = tr.Register("other", nil, nil)
	assert.ErrorIs(t, err, transport.ErrInvalidConfig)
}

func TestExchange_AllCodecs(t *testing.T) {
	for _, codec := range transport.Codecs() {
		t.Run(codec, func(t *testing.T) {
			tr, err := NewTransport(codec)
			require.NoError(t, err)
			p := &echo{}
			_, err = tr.Register("dev", p, nil)
			require.NoError(t, err)
			defer tr.Unregister("dev")

			c := connect(t, tr, "dev")
			cmd := []byte{0xE0, 0x00, 0x00, 0x00, 0x00}
			resp, err := c.Exchange(context.Background(), cmd)
			require.NoError(t, err)
			assert.Equal(t, append(cmd, 0x90, 0x00), resp)
			assert.Equal(t, 1, p.calls)
		})
	}
}

func TestClient_Errors(t *testing.T) {
	tr, err := NewTransport("")
	require.NoError(t, err)

	_, err = NewClient(nil, transport.NewMemoryConfig("dev"))
	assert.ErrorIs(t, err, transport.ErrInvalidConfig)
	_, err = NewClient(tr, transport.NewHTTPConfig("localhost:1"))
	assert.ErrorIs(t, err, transport.ErrInvalidProtocol)

	c, err := NewClient(tr, transport.NewMemoryConfig("missing"))
	require.NoError(t, err)
	_, err = c.Exchange(context.Background(), []byte{1})
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.ErrorIs(t, c.Connect(context.Background()), transport.ErrDeviceUnavailable)
	assert.ErrorIs(t, c.Disconnect(), transport.ErrNotConnected)

	_, err = tr.Register("dev", &echo{}, nil)
	require.NoError(t, err)
	c = connect(t, tr, "dev")
	_, err = c.Exchange(context.Background(), bytes.Repeat([]byte{1}, transport.DefaultMaxMessageSize+1))
	assert.ErrorIs(t, err, transport.ErrMessageTooLarge)

	tr.Unregister("dev")
	_, err = c.Exchange(context.Background(), []byte{1})
	assert.ErrorIs(t, err, transport.ErrDeviceUnavailable)

	var xerr *transport.ExchangeError
	assert.ErrorAs(t, err, &xerr)
	assert.NotEmpty(t, xerr.RequestID)
}

func TestExchange_ContextCanceledWhileBusy(t *testing.T) {
	tr, err := NewTransport("")
	require.NoError(t, err)
	p := &echo{started: make(chan struct{}, 1), block: make(chan struct{})}
	_, err = tr.Register("dev", p, nil)
	require.NoError(t, err)
	c := connect(t, tr, "dev")

	first := make(chan error, 1)
	go func() {
		_, err := c.Exchange(context.Background(), []byte{1})
		first <- err
	}()

	<-p.started

	// the endpoint is busy with the first command, so the second cannot be
	// delivered before its deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Exchange(ctx, []byte{2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(p.block)
	require.NoError(t, <-first)
}

func TestExchange_Sequential(t *testing.T) {
	tr, err := NewTransport(transport.CodecCBOR)
	require.NoError(t, err)
	p := &echo{}
	_, err = tr.Register("dev", p, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		c := connect(t, tr, "dev")
		wg.Add(1)
		go func(i byte) {
			defer wg.Done()
			resp, err := c.Exchange(context.Background(), []byte{i})
			assert.NoError(t, err)
			assert.Equal(t, []byte{i, 0x90, 0x00}, resp)
		}(byte(i))
	}
	wg.Wait()
	assert.Equal(t, 8, p.calls)
}
