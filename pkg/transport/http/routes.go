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

// Package http provides the HTTP/REST transport for the signing device.
//
// A Server exposes a device Processor on three endpoints:
//   - POST /v1/apdu: one command exchange, body negotiated by Content-Type
//     and Accept across every transport codec
//   - GET /v1/health: liveness and device description
//   - GET /metrics: Prometheus exposition
//
// Exchanges are serialized: the device sees exactly one command at a time.
// TLS 1.3 and mutual TLS are configured from transport.Config.
package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

const (
	// API version prefix
	apiVersion = "v1"
)

// REST endpoint paths
const (
	// PathExchange - POST: exchange one command APDU
	PathExchange = "/" + apiVersion + "/apdu"

	// PathHealth - GET: health check endpoint
	PathHealth = "/" + apiVersion + "/health"

	// PathMetrics - GET: Prometheus metrics
	PathMetrics = "/metrics"
)

// HTTP headers
const (
	// HeaderContentType specifies the serialization format of the request/response
	HeaderContentType = "Content-Type"

	// HeaderAccept specifies the desired serialization format for the response
	HeaderAccept = "Accept"

	// HeaderRequestID is a unique identifier for request tracing
	HeaderRequestID = "X-Request-ID"
)

// ContentTypeJSON is used for error bodies regardless of negotiation.
const ContentTypeJSON = "application/json"

// HTTPError is a non-2xx reply.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto transport sentinels.
func (e *HTTPError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return target == transport.ErrRateLimited
	case http.StatusRequestEntityTooLarge:
		return target == transport.ErrMessageTooLarge
	case http.StatusServiceUnavailable:
		return target == transport.ErrDeviceUnavailable
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return target == transport.ErrInvalidMessage
	}
	return false
}

// statusFor picks the reply code for a request handling error.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transport.ErrCodecNotSupported):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}
