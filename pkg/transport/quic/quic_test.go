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
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	tlsconfig "github.com/jeremyhahn/go-frostsigner/pkg/transport/tls"
)

// echoProcessor answers with the command followed by 0x9000. With block
// set it waits for ctx instead and reports the cancellation.
type echoProcessor struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
	block    bool
	canceled chan struct{}
}

func (p *echoProcessor) Process(ctx context.Context, command []byte) []byte {
	if p.inFlight.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.inFlight.Add(-1)
	if p.block {
		<-ctx.Done()
		close(p.canceled)
		return []byte{0x69, 0x86}
	}
	time.Sleep(2 * time.Millisecond)
	return append(append([]byte(nil), command...), 0x90, 0x00)
}

type certs struct {
	cert, key string
}

func writeCerts(t *testing.T) certs {
	t.Helper()
	cert, key, err := tlsconfig.WriteSelfSigned(t.TempDir(), []string{"127.0.0.1", "localhost"}, time.Hour)
	require.NoError(t, err)
	return certs{cert: cert, key: key}
}

func startServer(t *testing.T, c certs, p transport.Processor, mutate func(*transport.Config)) *Server {
	t.Helper()
	cfg := transport.NewQUICConfig("127.0.0.1:0")
	cfg.TLSCertFile = c.cert
	cfg.TLSKeyFile = c.key
	if mutate != nil {
		mutate(cfg)
	}
	s, err := NewServer(cfg, p)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func connect(t *testing.T, s *Server, c certs, mutate func(*transport.Config)) *Client {
	t.Helper()
	cfg := transport.NewQUICConfig(s.Address())
	cfg.TLSCAFile = c.cert
	if mutate != nil {
		mutate(cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Disconnect() })
	return client
}

func TestNewServer_Validation(t *testing.T) {
	c := writeCerts(t)
	p := &echoProcessor{}

	_, err := NewServer(nil, p)
	assert.ErrorIs(t, err, transport.ErrInvalidConfig)

	_, err = NewServer(transport.NewHTTPConfig("127.0.0.1:0"), p)
	assert.ErrorIs(t, err, transport.ErrInvalidProtocol)

	_, err = NewServer(transport.NewQUICConfig("127.0.0.1:0"), p)
	var tlsErr *transport.TLSError
	assert.ErrorAs(t, err, &tlsErr)

	cfg := transport.NewQUICConfig("127.0.0.1:0")
	cfg.TLSCertFile, cfg.TLSKeyFile = c.cert, c.key
	_, err = NewServer(cfg, nil)
	assert.ErrorIs(t, err, transport.ErrInvalidConfig)

	_, err = NewClient(transport.NewGRPCConfig("127.0.0.1:1"))
	assert.ErrorIs(t, err, transport.ErrInvalidProtocol)
}

func TestExchange_AllCodecs(t *testing.T) {
	c := writeCerts(t)
	for _, codec := range transport.Codecs() {
		t.Run(codec, func(t *testing.T) {
			setCodec := func(cfg *transport.Config) { cfg.CodecType = codec }
			s := startServer(t, c, &echoProcessor{}, setCodec)
			client := connect(t, s, c, setCodec)

			cmd := []byte{0xE0, 0x00, 0x00, 0x00}
			resp, err := client.Exchange(context.Background(), cmd)
			require.NoError(t, err)
			assert.Equal(t, append(cmd, 0x90, 0x00), resp)
		})
	}
}

func TestClient_State(t *testing.T) {
	c := writeCerts(t)
	s := startServer(t, c, &echoProcessor{}, nil)

	cfg := transport.NewQUICConfig(s.Address())
	cfg.TLSCAFile = c.cert
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.Exchange(context.Background(), []byte{1})
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.ErrorIs(t, client.Disconnect(), transport.ErrNotConnected)

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Disconnect())
}

func TestClient_InsecureWithoutCA(t *testing.T) {
	c := writeCerts(t)
	s := startServer(t, c, &echoProcessor{}, nil)

	client, err := NewClient(transport.NewQUICConfig(s.Address()))
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()

	resp, err := client.Exchange(context.Background(), []byte{9})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 0x90, 0x00}, resp)
}

func TestClient_Unreachable(t *testing.T) {
	cfg := transport.NewQUICConfig("127.0.0.1:1")
	cfg.Timeout = 300 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	var connErr *transport.ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, transport.ErrConnectionFailed)
}

func TestServer_SerializesExchanges(t *testing.T) {
	c := writeCerts(t)
	p := &echoProcessor{}
	s := startServer(t, c, p, func(cfg *transport.Config) { cfg.RateLimit = 0 })
	client := connect(t, s, c, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			resp, err := client.Exchange(context.Background(), []byte{b})
			if err == nil && !bytes.Equal(resp, []byte{b, 0x90, 0x00}) {
				err = errors.New("mismatched response")
			}
			errs <- err
		}(byte(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.False(t, p.overlap.Load())
}

func TestServer_RateLimit(t *testing.T) {
	c := writeCerts(t)
	s := startServer(t, c, &echoProcessor{}, func(cfg *transport.Config) {
		cfg.RateLimit = 0.001
		cfg.RateBurst = 1
	})
	client := connect(t, s, c, nil)

	_, err := client.Exchange(context.Background(), []byte{1})
	require.NoError(t, err)
	_, err = client.Exchange(context.Background(), []byte{2})
	assert.ErrorIs(t, err, transport.ErrRateLimited)
}

func TestMessageTooLarge(t *testing.T) {
	c := writeCerts(t)
	s := startServer(t, c, &echoProcessor{}, func(cfg *transport.Config) { cfg.MaxMessageSize = 256 })

	t.Run("client limit", func(t *testing.T) {
		client := connect(t, s, c, func(cfg *transport.Config) { cfg.MaxMessageSize = 64 })
		_, err := client.Exchange(context.Background(), make([]byte, 100))
		assert.ErrorIs(t, err, transport.ErrMessageTooLarge)
	})

	t.Run("server limit", func(t *testing.T) {
		client := connect(t, s, c, nil)
		_, err := client.Exchange(context.Background(), make([]byte, 1000))
		assert.ErrorIs(t, err, transport.ErrMessageTooLarge)

		resp, err := client.Exchange(context.Background(), []byte{3})
		require.NoError(t, err)
		assert.Equal(t, []byte{3, 0x90, 0x00}, resp)
	})
}

func TestExchange_ContextCancelReachesDevice(t *testing.T) {
	c := writeCerts(t)
	p := &echoProcessor{block: true, canceled: make(chan struct{})}
	s := startServer(t, c, p, nil)
	client := connect(t, s, c, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := client.Exchange(ctx, []byte{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-p.canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("device context was not canceled")
	}
}

func TestMutualTLS(t *testing.T) {
	c := writeCerts(t)
	requireClientCert := func(cfg *transport.Config) { cfg.TLSCAFile = c.cert }

	t.Run("accepted", func(t *testing.T) {
		s := startServer(t, c, &echoProcessor{}, requireClientCert)
		client := connect(t, s, c, func(cfg *transport.Config) {
			cfg.TLSCertFile, cfg.TLSKeyFile = c.cert, c.key
		})
		resp, err := client.Exchange(context.Background(), []byte{7})
		require.NoError(t, err)
		assert.Equal(t, []byte{7, 0x90, 0x00}, resp)
	})

	t.Run("client without certificate rejected", func(t *testing.T) {
		s := startServer(t, c, &echoProcessor{}, requireClientCert)
		cfg := transport.NewQUICConfig(s.Address())
		cfg.TLSCAFile = c.cert
		cfg.Timeout = 2 * time.Second
		client, err := NewClient(cfg)
		require.NoError(t, err)

		// the handshake may complete on the client before the server
		// rejects the missing certificate
		err = client.Connect(context.Background())
		if err == nil {
			defer client.Disconnect()
			_, err = client.Exchange(context.Background(), []byte{1})
		}
		assert.Error(t, err)
	})
}

func TestServer_StartStop(t *testing.T) {
	c := writeCerts(t)
	s := startServer(t, c, &echoProcessor{}, nil)
	assert.NotEqual(t, "127.0.0.1:0", s.Address())
	assert.ErrorIs(t, s.Start(context.Background()), transport.ErrAlreadyStarted)

	client := connect(t, s, c, nil)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	_, err := client.Exchange(context.Background(), []byte{1})
	assert.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("apdu"), 16))
	assert.Equal(t, 8, buf.Len())

	got, err := readFrame(&buf, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("apdu"), got)

	assert.ErrorIs(t, writeFrame(&buf, make([]byte, 17), 16), transport.ErrMessageTooLarge)

	buf.Reset()
	require.NoError(t, writeFrame(&buf, make([]byte, 17), 32))
	_, err = readFrame(&buf, 16)
	assert.ErrorIs(t, err, transport.ErrMessageTooLarge)
}

func TestStreamCodes(t *testing.T) {
	for _, err := range []error{transport.ErrMessageTooLarge, transport.ErrRateLimited, transport.ErrInvalidMessage} {
		assert.ErrorIs(t, errorFor(codeFor(err)), err)
	}
	assert.ErrorIs(t, errorFor(0x999), transport.ErrConnectionFailed)
}
