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
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Hex-encoded fields keep every codec, including TOML, lossless.

// ExchangeRequest carries one command APDU from host to device.
type ExchangeRequest struct {
	ID      string `json:"id" msgpack:"id" cbor:"1,keyasint" yaml:"id" bson:"id" toml:"id"`
	Command string `json:"command" msgpack:"command" cbor:"2,keyasint" yaml:"command" bson:"command" toml:"command"`
}

// ExchangeResponse carries the device reply, status word included.
type ExchangeResponse struct {
	ID       string `json:"id" msgpack:"id" cbor:"1,keyasint" yaml:"id" bson:"id" toml:"id"`
	Response string `json:"response" msgpack:"response" cbor:"2,keyasint" yaml:"response" bson:"response" toml:"response"`
	SW       uint16 `json:"sw" msgpack:"sw" cbor:"3,keyasint" yaml:"sw" bson:"sw" toml:"sw"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status      string `json:"status" msgpack:"status" cbor:"1,keyasint" yaml:"status" bson:"status" toml:"status"`
	Version     string `json:"version" msgpack:"version" cbor:"2,keyasint" yaml:"version" bson:"version" toml:"version"`
	Ciphersuite string `json:"ciphersuite" msgpack:"ciphersuite" cbor:"3,keyasint" yaml:"ciphersuite" bson:"ciphersuite" toml:"ciphersuite"`
}

// ErrorMessage - error details
type ErrorMessage struct {
	Code    int    `json:"code" msgpack:"code" cbor:"1,keyasint" yaml:"code" bson:"code" toml:"code"`
	Message string `json:"message" msgpack:"message" cbor:"2,keyasint" yaml:"message" bson:"message" toml:"message"`
}

// NewExchangeRequest wraps command under request id.
func NewExchangeRequest(id string, command []byte) *ExchangeRequest {
	return &ExchangeRequest{ID: id, Command: hex.EncodeToString(command)}
}

// Bytes decodes the command field.
func (r *ExchangeRequest) Bytes() ([]byte, error) {
	b, err := hex.DecodeString(r.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: command: %v", ErrInvalidMessage, err)
	}
	return b, nil
}

// NewExchangeResponse wraps a raw device response. SW mirrors the trailing
// status word for readers that do not parse the response.
func NewExchangeResponse(id string, response []byte) *ExchangeResponse {
	var sw uint16
	if len(response) >= 2 {
		sw = binary.BigEndian.Uint16(response[len(response)-2:])
	}
	return &ExchangeResponse{ID: id, Response: hex.EncodeToString(response), SW: sw}
}

// Bytes decodes the response field.
func (r *ExchangeResponse) Bytes() ([]byte, error) {
	b, err := hex.DecodeString(r.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: response: %v", ErrInvalidMessage, err)
	}
	return b, nil
}
