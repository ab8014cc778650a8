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
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-frostsigner/pkg/logging"
	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
	tlsconfig "github.com/jeremyhahn/go-frostsigner/pkg/transport/tls"
)

// Server exposes a device over HTTP.
type Server struct {
	config     *transport.Config
	processor  transport.Processor
	info       transport.DeviceInfo
	metrics    http.Handler
	serializer *transport.Serializer
	limiter    *rate.Limiter
	logger     logging.Logger

	// exchangeMu keeps the device single-threaded.
	exchangeMu sync.Mutex

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	started  bool
	stopped  bool
}

// NewServer creates a server for processor. metrics may be nil, in which
// case /metrics is not served.
func NewServer(config *transport.Config, processor transport.Processor, info transport.DeviceInfo, metrics http.Handler) (*Server, error) {
	if config == nil || processor == nil {
		return nil, transport.ErrInvalidConfig
	}
	if config.Protocol != transport.ProtocolHTTP {
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
		info:       info,
		metrics:    metrics,
		serializer: serializer,
		logger:     config.GetLogger(),
	}
	if config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	return s, nil
}

// Handler returns the routed handler, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathExchange, s.handleExchange)
	mux.HandleFunc(PathHealth, s.handleHealth)
	if s.metrics != nil {
		mux.Handle(PathMetrics, s.metrics)
	}
	return mux
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
		return transport.NewConnectionError(s.config.Address, fmt.Errorf("%w: %v", transport.ErrListenerFailed, err))
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.config.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	// no write timeout: an exchange may wait on the user

	if s.config.HasTLS() {
		tlsCfg, err := tlsconfig.ServerConfig(s.config.TLSCertFile, s.config.TLSKeyFile, s.config.TLSCAFile)
		if err != nil {
			_ = listener.Close()
			return transport.NewTLSError("failed to configure TLS", err)
		}
		s.server.TLSConfig = tlsCfg
		listener = tls.NewListener(listener, tlsCfg)
	}
	s.listener = listener
	s.started = true

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()
	s.logger.Info("device listening on %s (tls=%t, mtls=%t)", listener.Addr(), s.config.HasTLS(), s.config.IsMutualTLS())
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.server == nil {
		return nil
	}
	s.stopped = true
	return s.server.Shutdown(ctx)
}

// Address returns the listening address.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "only POST allowed")
		return
	}
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)

	if s.limiter != nil && !s.limiter.Allow() {
		s.writeError(w, http.StatusTooManyRequests, transport.ErrRateLimited.Error())
		return
	}

	req := &transport.ExchangeRequest{}
	reqSerializer, err := s.readRequest(w, r, req)
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Sprintf("invalid request: %v", err))
		return
	}
	command, err := req.Bytes()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = requestID
	}

	s.exchangeMu.Lock()
	response := s.processor.Process(r.Context(), command)
	s.exchangeMu.Unlock()

	s.logger.Debug("exchange %s: %d bytes in, %d bytes out", req.ID, len(command), len(response))
	s.writeResponse(w, r, reqSerializer, http.StatusOK, transport.NewExchangeResponse(req.ID, response))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "only GET allowed")
		return
	}
	s.writeResponse(w, r, s.serializer, http.StatusOK, &transport.HealthResponse{
		Status:      "ok",
		Version:     s.info.Version,
		Ciphersuite: s.info.Ciphersuite,
	})
}

// readRequest decodes the body with the codec named by Content-Type,
// falling back to the configured codec.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request, v any) (*transport.Serializer, error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.MaxMessageSize))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	serializer := s.serializer
	if ct := r.Header.Get(HeaderContentType); ct != "" {
		if serializer, err = transport.SerializerForContentType(ct); err != nil {
			return nil, err
		}
	}
	if err := serializer.Unmarshal(body, v); err != nil {
		return nil, err
	}
	return serializer, nil
}

// writeResponse encodes v with the codec named by Accept, falling back to
// fallback.
func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, fallback *transport.Serializer, status int, v any) {
	serializer := fallback
	if accept := r.Header.Get(HeaderAccept); accept != "" && accept != "*/*" {
		if negotiated, err := transport.SerializerForContentType(accept); err == nil {
			serializer = negotiated
		}
	}

	data, err := serializer.Marshal(v)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to serialize response: %v", err))
		return
	}
	w.Header().Set(HeaderContentType, serializer.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes an error response. Errors are always JSON.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	data, err := json.Marshal(&transport.ErrorMessage{Code: status, Message: message})
	if err != nil {
		w.Header().Set(HeaderContentType, ContentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500,"message":"internal server error"}`))
		return
	}
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
