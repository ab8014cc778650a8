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

// Package grpc carries device exchanges over gRPC.
//
// The service has a single unary method, Exchange, whose messages are the
// transport ExchangeRequest and ExchangeResponse encoded with the
// configured codec instead of protobuf. Rejections use gRPC status codes:
// InvalidArgument for malformed requests, ResourceExhausted for rate
// limiting and oversized messages.
package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeremyhahn/go-frostsigner/pkg/transport"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "frostsigner.v1.Device"

	// MethodExchange is the full method name of Exchange.
	MethodExchange = "/" + ServiceName + "/Exchange"
)

// DeviceServer is the server API of the Device service.
type DeviceServer interface {
	Exchange(ctx context.Context, req *transport.ExchangeRequest) (*transport.ExchangeResponse, error)
}

func exchangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(transport.ExchangeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodExchange}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeviceServer).Exchange(ctx, req.(*transport.ExchangeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc describes the Device service for grpc.Server.RegisterService.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeviceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exchange", Handler: exchangeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "frostsigner/v1/device",
}

// codec adapts a transport.Serializer to the gRPC codec interface.
type codec struct {
	s *transport.Serializer
}

func (c codec) Marshal(v any) ([]byte, error)      { return c.s.Marshal(v) }
func (c codec) Unmarshal(data []byte, v any) error { return c.s.Unmarshal(data, v) }
func (c codec) Name() string                       { return "frostsigner-" + c.s.Codec() }

// fromStatus maps a gRPC status back to a transport error.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		if strings.Contains(st.Message(), transport.ErrRateLimited.Error()) {
			return transport.ErrRateLimited
		}
		return errors.Join(transport.ErrMessageTooLarge, err)
	case codes.InvalidArgument, codes.Internal:
		return errors.Join(transport.ErrInvalidMessage, err)
	case codes.Unavailable:
		return errors.Join(transport.ErrDeviceUnavailable, err)
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Canceled:
		return context.Canceled
	default:
		return err
	}
}
