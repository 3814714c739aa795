package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * Service descriptor.
 *
 * Requests and responses are google.protobuf.Struct values, so the service
 * needs no generated message types. The descriptor and client below are
 * what protoc-gen-go-grpc would emit for:
 *
 *   service DerivationService {
 *     rpc AffectedEntries(google.protobuf.Struct) returns (google.protobuf.Struct);
 *     rpc ResolveErrors(google.protobuf.Struct) returns (google.protobuf.Struct);
 *     rpc SyncDefinition(google.protobuf.Struct) returns (google.protobuf.Struct);
 *   }
 */

const serviceName = "fieldflow.v1.DerivationService"

// Full method names.
const (
	AffectedEntriesMethod = "/" + serviceName + "/AffectedEntries"
	ResolveErrorsMethod   = "/" + serviceName + "/ResolveErrors"
	SyncDefinitionMethod  = "/" + serviceName + "/SyncDefinition"
)

// DerivationServer is the server API for DerivationService.
type DerivationServer interface {
	AffectedEntries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveErrors(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncDefinition(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDerivationServer registers srv on s.
func RegisterDerivationServer(s grpc.ServiceRegistrar, srv DerivationServer) {
	s.RegisterService(&DerivationServiceDesc, srv)
}

type unaryMethod func(DerivationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts method to grpc's method handler signature.
func unaryHandler(fullMethod string, method unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(DerivationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(DerivationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// DerivationServiceDesc is the grpc.ServiceDesc for DerivationService.
var DerivationServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DerivationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AffectedEntries",
			Handler:    unaryHandler(AffectedEntriesMethod, DerivationServer.AffectedEntries),
		},
		{
			MethodName: "ResolveErrors",
			Handler:    unaryHandler(ResolveErrorsMethod, DerivationServer.ResolveErrors),
		},
		{
			MethodName: "SyncDefinition",
			Handler:    unaryHandler(SyncDefinitionMethod, DerivationServer.SyncDefinition),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fieldflow/v1/derivation.proto",
}

// DerivationClient is the client API for DerivationService.
type DerivationClient struct {
	cc grpc.ClientConnInterface
}

// NewDerivationClient creates a client over cc.
func NewDerivationClient(cc grpc.ClientConnInterface) *DerivationClient {
	return &DerivationClient{cc: cc}
}

func (c *DerivationClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AffectedEntries calls DerivationService.AffectedEntries.
func (c *DerivationClient) AffectedEntries(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AffectedEntriesMethod, in, opts...)
}

// ResolveErrors calls DerivationService.ResolveErrors.
func (c *DerivationClient) ResolveErrors(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ResolveErrorsMethod, in, opts...)
}

// SyncDefinition calls DerivationService.SyncDefinition.
func (c *DerivationClient) SyncDefinition(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SyncDefinitionMethod, in, opts...)
}
