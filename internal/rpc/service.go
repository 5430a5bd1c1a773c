// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package rpc exposes the query gate over gRPC.
//
// The service is registered from a hand-written descriptor and exchanges
// google.protobuf.Struct messages, so no generated code is needed. Every call
// is an independent pass through the gate; the only state shared between
// calls is the gate's read-only configuration and its executor permits.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "sqlgate.v1.QueryGate"

	methodCheck = "/" + ServiceName + "/Check"
	methodRun   = "/" + ServiceName + "/Run"

	// TokenHeader carries the shared secret when the server requires one.
	TokenHeader = "x-sqlgate-token"
)

// QueryGateServer is the server API of the QueryGate service.
type QueryGateServer interface {
	// Check sanitizes, bounds and validates a statement without running it.
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Run checks a statement and executes it when allowed.
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterQueryGateServer registers srv on registrar.
func RegisterQueryGateServer(registrar grpc.ServiceRegistrar, srv QueryGateServer) {
	registrar.RegisterService(&queryGateServiceDesc, srv)
}

var queryGateServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryGateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: checkHandler},
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sqlgate/v1/query_gate.proto",
}

func checkHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryGateServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCheck}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryGateServer).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func runHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryGateServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRun}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryGateServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
