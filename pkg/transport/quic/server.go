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
	"errors"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	tlsconfig "github.com/jeremyhahn/go-frostsigner/pkg/transport/tls"
)

// Server exposes a device over QUIC.
type Server struct {
	config     *transport.Config
	processor  transport.Processor
	serializer *transport.Serializer
	limiter    *rate.Limiter
	logger     logging.Logger

	// exchangeMu keeps the device single-threaded.
	exchangeMu sync.Mutex

	mu       sync.Mutex
	udpConn  *net.UDPConn
	listener *quic.Listener
	conns    map[*quic.Conn]struct{}
	started  bool
	stopped  bool
	wg       sync.WaitGroup
}

// NewServer creates a QUIC server for processor. QUIC requires TLS 1.3,
// so config must name a certificate and key.
func NewServer(config *transport.Config, processor transport.Processor) (*Server, error) {
	if config == nil || processor == nil {
		return nil, transport.ErrInvalidConfig
	}
	if config.Protocol != transport.ProtocolQUIC {
		return nil, transport.ErrInvalidProtocol
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.TLSCertFile == "" || config.TLSKeyFile == "" {
		return nil, transport.NewTLSError("QUIC requires TLS certificate and key", transport.ErrCertificateNotFound)
	}

	serializer, err := transport.NewSerializer(config.CodecType)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     config,
		processor:  processor,
		serializer: serializer,
		logger:     config.GetLogger(),
		conns:      make(map[*quic.Conn]struct{}),
	}
	if config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	return s, nil
}

// quicConfig bounds flow control windows by the message size.
func quicConfig(cfg *transport.Config, incomingStreams int64) *quic.Config {
	window := uint64(cfg.MaxMessageSize) + 4 //#nosec G115 -- validated positive
	return &quic.Config{
		MaxIdleTimeout:                 2 * cfg.Timeout,
		KeepAlivePeriod:                cfg.Timeout / 2,
		MaxIncomingStreams:             incomingStreams,
		MaxIncomingUniStreams:          -1, // unidirectional streams are not used
		InitialStreamReceiveWindow:     window,
		MaxStreamReceiveWindow:         window,
		InitialConnectionReceiveWindow: window * 10,
		MaxConnectionReceiveWindow:     window * 10,
	}
}

// Start begins listening for connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return transport.ErrAlreadyStarted
	}

	tlsCfg, err := tlsconfig.ServerConfig(s.config.TLSCertFile, s.config.TLSKeyFile, s.config.TLSCAFile)
	if err != nil {
		return transport.NewTLSError("failed to configure TLS", err)
	}
	tlsCfg.NextProtos = []string{NextProto}

	udpAddr, err := net.ResolveUDPAddr("udp", s.config.Address)
	if err != nil {
		return transport.NewConnectionError(s.config.Address, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return transport.NewConnectionError(s.config.Address, errors.Join(transport.ErrListenerFailed, err))
	}
	listener, err := quic.Listen(udpConn, tlsCfg, quicConfig(s.config, 100))
	if err != nil {
		_ = udpConn.Close()
		return transport.NewConnectionError(s.config.Address, errors.Join(transport.ErrListenerFailed, err))
	}

	s.udpConn = udpConn
	s.listener = listener
	s.started = true

	s.wg.Add(1)
	go s.acceptConnections()
	s.logger.Info("device listening on quic://%s (mtls=%t)", listener.Addr(), s.config.IsMutualTLS())
	return nil
}

// Stop closes every connection and the listener, then waits for in-flight
// exchanges or ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	_ = s.listener.Close()
	for conn := range s.conns {
		_ = conn.CloseWithError(0, "server shutdown")
	}
	_ = s.udpConn.Close()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Address returns the listening address.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept(context.Background())
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			_ = conn.CloseWithError(0, "server shutdown")
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn *quic.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	s.logger.Debug("quic connection from %s", conn.RemoteAddr())
	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleStream(stream)
	}
}

// handleStream runs one exchange.
func (s *Server) handleStream(stream *quic.Stream) {
	defer s.wg.Done()

	if s.limiter != nil && !s.limiter.Allow() {
		s.reject(stream, transport.ErrRateLimited)
		return
	}

	_ = stream.SetReadDeadline(time.Now().Add(s.config.Timeout))
	data, err := readFrame(stream, s.config.MaxMessageSize)
	if err != nil {
		s.reject(stream, err)
		return
	}
	req := &transport.ExchangeRequest{}
	if err := s.serializer.Unmarshal(data, req); err != nil {
		s.reject(stream, err)
		return
	}
	command, err := req.Bytes()
	if err != nil {
		s.reject(stream, err)
		return
	}

	s.exchangeMu.Lock()
	response := s.processor.Process(stream.Context(), command)
	s.exchangeMu.Unlock()

	out, err := s.serializer.Marshal(transport.NewExchangeResponse(req.ID, response))
	if err != nil {
		s.reject(stream, err)
		return
	}
	if err := writeFrame(stream, out, s.config.MaxMessageSize); err != nil {
		s.reject(stream, err)
		return
	}
	s.logger.Debug("exchange %s: %d bytes in, %d bytes out", req.ID, len(command), len(response))
	_ = stream.Close()
}

func (s *Server) reject(stream *quic.Stream, err error) {
	code := codeFor(err)
	s.logger.Debug("rejecting quic stream %d: %v", stream.StreamID(), err)
	stream.CancelRead(code)
	stream.CancelWrite(code)
}
