package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "ledger.v1.AllocationLedger"

	distributeMethod      = "/" + ServiceName + "/Distribute"
	redistributeMethod    = "/" + ServiceName + "/Redistribute"
	recordSaleMethod      = "/" + ServiceName + "/RecordSale"
	listAllocationsMethod = "/" + ServiceName + "/ListAllocations"
)

type AllocationLedgerClient interface {
	Distribute(ctx context.Context, in *DistributeRequest, opts ...grpc.CallOption) (*TransferResponse, error)
	Redistribute(ctx context.Context, in *RedistributeRequest, opts ...grpc.CallOption) (*TransferResponse, error)
	RecordSale(ctx context.Context, in *RecordSaleRequest, opts ...grpc.CallOption) (*RecordSaleResponse, error)
	ListAllocations(ctx context.Context, in *ListAllocationsRequest, opts ...grpc.CallOption) (*ListAllocationsResponse, error)
}

type allocationLedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewAllocationLedgerClient(cc grpc.ClientConnInterface) AllocationLedgerClient {
	return &allocationLedgerClient{cc}
}

func (c *allocationLedgerClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *allocationLedgerClient) Distribute(ctx context.Context, in *DistributeRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	out := new(TransferResponse)
	if err := c.invoke(ctx, distributeMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *allocationLedgerClient) Redistribute(ctx context.Context, in *RedistributeRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	out := new(TransferResponse)
	if err := c.invoke(ctx, redistributeMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *allocationLedgerClient) RecordSale(ctx context.Context, in *RecordSaleRequest, opts ...grpc.CallOption) (*RecordSaleResponse, error) {
	out := new(RecordSaleResponse)
	if err := c.invoke(ctx, recordSaleMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *allocationLedgerClient) ListAllocations(ctx context.Context, in *ListAllocationsRequest, opts ...grpc.CallOption) (*ListAllocationsResponse, error) {
	out := new(ListAllocationsResponse)
	if err := c.invoke(ctx, listAllocationsMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

type AllocationLedgerServer interface {
	Distribute(context.Context, *DistributeRequest) (*TransferResponse, error)
	Redistribute(context.Context, *RedistributeRequest) (*TransferResponse, error)
	RecordSale(context.Context, *RecordSaleRequest) (*RecordSaleResponse, error)
	ListAllocations(context.Context, *ListAllocationsRequest) (*ListAllocationsResponse, error)
	mustEmbedUnimplementedAllocationLedgerServer()
}

// UnimplementedAllocationLedgerServer must be embedded by server
// implementations.
type UnimplementedAllocationLedgerServer struct{}

func (UnimplementedAllocationLedgerServer) Distribute(context.Context, *DistributeRequest) (*TransferResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Distribute not implemented")
}

func (UnimplementedAllocationLedgerServer) Redistribute(context.Context, *RedistributeRequest) (*TransferResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Redistribute not implemented")
}

func (UnimplementedAllocationLedgerServer) RecordSale(context.Context, *RecordSaleRequest) (*RecordSaleResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RecordSale not implemented")
}

func (UnimplementedAllocationLedgerServer) ListAllocations(context.Context, *ListAllocationsRequest) (*ListAllocationsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAllocations not implemented")
}

func (UnimplementedAllocationLedgerServer) mustEmbedUnimplementedAllocationLedgerServer() {}

func RegisterAllocationLedgerServer(s grpc.ServiceRegistrar, srv AllocationLedgerServer) {
	s.RegisterService(&AllocationLedger_ServiceDesc, srv)
}

func distributeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DistributeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AllocationLedgerServer).Distribute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: distributeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AllocationLedgerServer).Distribute(ctx, req.(*DistributeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func redistributeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RedistributeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AllocationLedgerServer).Redistribute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: redistributeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AllocationLedgerServer).Redistribute(ctx, req.(*RedistributeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func recordSaleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RecordSaleRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AllocationLedgerServer).RecordSale(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recordSaleMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AllocationLedgerServer).RecordSale(ctx, req.(*RecordSaleRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listAllocationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListAllocationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AllocationLedgerServer).ListAllocations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listAllocationsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AllocationLedgerServer).ListAllocations(ctx, req.(*ListAllocationsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var AllocationLedger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AllocationLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Distribute", Handler: distributeHandler},
		{MethodName: "Redistribute", Handler: redistributeHandler},
		{MethodName: "RecordSale", Handler: recordSaleHandler},
		{MethodName: "ListAllocations", Handler: listAllocationsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.proto",
}
