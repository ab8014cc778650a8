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
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"
)

// Codec names accepted by NewSerializer.
const (
	CodecJSON    = "json"
	CodecMsgPack = "msgpack"
	CodecCBOR    = "cbor"
	CodecYAML    = "yaml"
	CodecBSON    = "bson"
	CodecTOML    = "toml"
)

// contentTypes maps codec names to their HTTP media types.
var contentTypes = map[string]string{
	CodecJSON:    "application/json",
	CodecMsgPack: "application/msgpack",
	CodecCBOR:    "application/cbor",
	CodecYAML:    "application/yaml",
	CodecBSON:    "application/bson",
	CodecTOML:    "application/toml",
}

// SerializerError represents serialization errors
type SerializerError struct {
	Operation string
	CodecType string
	Err       error
}

func (e *SerializerError) Error() string {
	return fmt.Sprintf("serializer: %s failed for codec %s: %v", e.Operation, e.CodecType, e.Err)
}

func (e *SerializerError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the matching codec sentinel.
func (e *SerializerError) Is(target error) bool {
	switch e.Operation {
	case "create":
		return target == ErrCodecNotSupported
	case "marshal":
		return target == ErrEncodingFailed
	case "unmarshal":
		return target == ErrDecodingFailed
	}
	return false
}

// Serializer encodes exchange messages and key records with one of the
// supported codecs.
type Serializer struct {
	codecType string
}

// Codecs returns the supported codec names in sorted order.
func Codecs() []string {
	names := make([]string, 0, len(contentTypes))
	for name := range contentTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSerializer creates a new serializer with the specified codec type.
// Names are case-insensitive.
func NewSerializer(codecType string) (*Serializer, error) {
	name := strings.ToLower(strings.TrimSpace(codecType))
	if _, ok := contentTypes[name]; !ok {
		return nil, &SerializerError{
			Operation: "create",
			CodecType: codecType,
			Err:       fmt.Errorf("unsupported codec type: %s", codecType),
		}
	}
	return &Serializer{codecType: name}, nil
}

// SerializerForContentType picks the serializer matching a Content-Type or
// Accept header value. Parameters such as charset are ignored.
func SerializerForContentType(header string) (*Serializer, error) {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return nil, &SerializerError{Operation: "create", CodecType: header, Err: err}
	}
	for name, ct := range contentTypes {
		if ct == mediaType {
			return &Serializer{codecType: name}, nil
		}
	}
	return nil, &SerializerError{
		Operation: "create",
		CodecType: header,
		Err:       fmt.Errorf("unsupported content type: %s", mediaType),
	}
}

// Codec returns the codec name.
func (s *Serializer) Codec() string { return s.codecType }

// ContentType returns the HTTP media type for the codec.
func (s *Serializer) ContentType() string { return contentTypes[s.codecType] }

// Marshal serializes a message to bytes
func (s *Serializer) Marshal(msg any) ([]byte, error) {
	var data []byte
	var err error

	switch s.codecType {
	case CodecJSON:
		data, err = json.Marshal(msg)
	case CodecMsgPack:
		data, err = msgpack.Marshal(msg)
	case CodecCBOR:
		data, err = cbor.Marshal(msg)
	case CodecYAML:
		data, err = yaml.Marshal(msg)
	case CodecBSON:
		data, err = bson.Marshal(msg)
	case CodecTOML:
		buf := new(bytes.Buffer)
		err = toml.NewEncoder(buf).Encode(msg)
		data = buf.Bytes()
	default:
		err = fmt.Errorf("unsupported codec type: %s", s.codecType)
	}

	if err != nil {
		return nil, &SerializerError{
			Operation: "marshal",
			CodecType: s.codecType,
			Err:       err,
		}
	}
	return data, nil
}

// Unmarshal deserializes bytes into a message
func (s *Serializer) Unmarshal(data []byte, msg any) error {
	var err error

	switch s.codecType {
	case CodecJSON:
		err = json.Unmarshal(data, msg)
	case CodecMsgPack:
		err = msgpack.Unmarshal(data, msg)
	case CodecCBOR:
		err = cbor.Unmarshal(data, msg)
	case CodecYAML:
		err = yaml.Unmarshal(data, msg)
	case CodecBSON:
		err = bson.Unmarshal(data, msg)
	case CodecTOML:
		err = toml.Unmarshal(data, msg)
	default:
		err = fmt.Errorf("unsupported codec type: %s", s.codecType)
	}

	if err != nil {
		return &SerializerError{
			Operation: "unmarshal",
			CodecType: s.codecType,
			Err:       err,
		}
	}
	return nil
}
