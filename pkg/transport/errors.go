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

package transport

import (
	"errors"
	"fmt"
)

// Connection and network errors.
var (
	// ErrConnectionFailed indicates that reaching the device failed.
	ErrConnectionFailed = errors.New("transport: connection failed")

	// ErrNotConnected indicates Exchange was called before Connect.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyStarted indicates a server was started twice.
	ErrAlreadyStarted = errors.New("transport: server already started")

	// ErrListenerFailed indicates the listener failed to start.
	ErrListenerFailed = errors.New("transport: listener failed to start")

	// ErrDeviceUnavailable indicates no device is bound to the transport.
	ErrDeviceUnavailable = errors.New("transport: device unavailable")
)

// Message errors.
var (
	// ErrInvalidMessage indicates the message format is invalid.
	ErrInvalidMessage = errors.New("transport: invalid message")

	// ErrMessageTooLarge indicates the message exceeds maximum size.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrRateLimited indicates the server refused the exchange.
	ErrRateLimited = errors.New("transport: rate limited")
)

// Configuration and validation errors.
var (
	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("transport: invalid configuration")

	// ErrInvalidProtocol indicates an unsupported or invalid protocol.
	ErrInvalidProtocol = errors.New("transport: invalid protocol")

	// ErrInvalidAddress indicates the address format is invalid.
	ErrInvalidAddress = errors.New("transport: invalid address")
)

// TLS and security errors.
var (
	// ErrCertificateInvalid indicates the TLS certificate is invalid.
	ErrCertificateInvalid = errors.New("transport: TLS certificate invalid")

	// ErrCertificateNotFound indicates the certificate file was not found.
	ErrCertificateNotFound = errors.New("transport: certificate file not found")

	// ErrPrivateKeyNotFound indicates the private key file was not found.
	ErrPrivateKeyNotFound = errors.New("transport: private key file not found")

	// ErrCANotFound indicates the CA certificate file was not found.
	ErrCANotFound = errors.New("transport: CA certificate file not found")
)

// Codec errors.
var (
	// ErrCodecNotSupported indicates the codec is not supported.
	ErrCodecNotSupported = errors.New("transport: codec not supported")

	// ErrEncodingFailed indicates message encoding failed.
	ErrEncodingFailed = errors.New("transport: message encoding failed")

	// ErrDecodingFailed indicates message decoding failed.
	ErrDecodingFailed = errors.New("transport: message decoding failed")
)

// ConnectionError wraps connection errors with additional context.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (address=%s): %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(address string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectionError{
		Address: address,
		Err:     err,
	}
}

// ExchangeError ties a failed exchange to its request ID.
type ExchangeError struct {
	RequestID  string
	StatusCode int
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("exchange error (request=%s, status=%d): %v", e.RequestID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("exchange error (request=%s): %v", e.RequestID, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError creates a new ExchangeError.
func NewExchangeError(requestID string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &ExchangeError{RequestID: requestID, StatusCode: statusCode, Err: err}
}

// TLSError wraps TLS-related errors.
type TLSError struct {
	Message string
	Err     error
}

func (e *TLSError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TLS error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("TLS error: %s", e.Message)
}

func (e *TLSError) Unwrap() error {
	return e.Err
}

// NewTLSError creates a new TLSError.
func NewTLSError(message string, err error) error {
	return &TLSError{
		Message: message,
		Err:     err,
	}
}
