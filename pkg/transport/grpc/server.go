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
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	tlsconfig "github.com/jeremyhahn/go-frostsigner/pkg/transport/tls"
)

// Server exposes a device over gRPC.
type Server struct {
	config     *transport.Config
	processor  transport.Processor
	serializer *transport.Serializer
	limiter    *rate.Limiter
	logger     logging.Logger

	// exchangeMu keeps the device single-threaded.
	exchangeMu sync.Mutex

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
	started  bool
	stopped  bool
	wg       sync.WaitGroup
}

// NewServer creates a gRPC server for processor. TLS is optional; when
// any TLS file is set a certificate is required.
func NewServer(config *transport.Config, processor transport.Processor) (*Server, error) {
	if config == nil || processor == nil {
		return nil, transport.ErrInvalidConfig
	}
	if config.Protocol != transport.ProtocolGRPC {
		return nil, transport.ErrInvalidProtocol
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.HasTLS() && config.TLSCertFile == "" {
		return nil, transport.NewTLSError("server TLS needs a certificate", transport.ErrCertificateNotFound)
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
	}
	if config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	return s, nil
}

// Start begins listening.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return transport.ErrAlreadyStarted
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return transport.NewConnectionError(s.config.Address, errors.Join(transport.ErrListenerFailed, err))
	}

	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(codec{s: s.serializer}),
		grpc.MaxRecvMsgSize(s.config.MaxMessageSize),
		grpc.MaxSendMsgSize(s.config.MaxMessageSize),
		grpc.UnaryInterceptor(s.rateLimit),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    s.config.Timeout,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if s.config.HasTLS() {
		tlsCfg, err := tlsconfig.ServerConfig(s.config.TLSCertFile, s.config.TLSKeyFile, s.config.TLSCAFile)
		if err != nil {
			_ = listener.Close()
			return transport.NewTLSError("failed to configure TLS", err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	s.server = grpc.NewServer(opts...)
	s.server.RegisterService(&serviceDesc, &deviceService{s: s})
	s.listener = listener
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("gRPC server error: %v", err)
		}
	}()
	s.logger.Info("device listening on grpc://%s (tls=%t, mtls=%t)", listener.Addr(), s.config.HasTLS(), s.config.IsMutualTLS())
	return nil
}

// Stop drains in-flight exchanges, forcing the stop when ctx ends first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	server := s.server
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		server.Stop()
	}
	s.wg.Wait()
	return nil
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

func (s *Server) rateLimit(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return nil, status.Error(codes.ResourceExhausted, transport.ErrRateLimited.Error())
	}
	return handler(ctx, req)
}

// deviceService implements DeviceServer on top of the processor.
type deviceService struct {
	s *Server
}

func (d *deviceService) Exchange(ctx context.Context, req *transport.ExchangeRequest) (*transport.ExchangeResponse, error) {
	command, err := req.Bytes()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	d.s.exchangeMu.Lock()
	response := d.s.processor.Process(ctx, command)
	d.s.exchangeMu.Unlock()

	d.s.logger.Debug("exchange %s: %d bytes in, %d bytes out", req.ID, len(command), len(response))
	return transport.NewExchangeResponse(req.ID, response), nil
}
