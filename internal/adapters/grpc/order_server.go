package grpc

import (
	"context"
	"errors"
	"io"
	"strings"

	"orderbridge/internal/commit"
	"orderbridge/internal/ledger"
	"orderbridge/internal/orders"

	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Full method names of the intake service.
const (
	SubmitBatchMethod  = "/orderbridge.v1.Orders/SubmitBatch"
	GetStatusMethod    = "/orderbridge.v1.Orders/GetStatus"
	StreamOrdersMethod = "/orderbridge.v1.Orders/StreamOrders"
)

// OrderService defines the behavior needed by the gRPC intake adapter.
type OrderService interface {
	ProcessBatch(ctx context.Context, envs []orders.Envelope) []commit.Result
	Status(ctx context.Context, key orders.Key) (ledger.Entry, error)
}

// SubmitBatchRequest carries one batch of orders.
type SubmitBatchRequest struct {
	Orders []orders.Envelope `json:"orders"`
}

// SubmitBatchResponse carries one result per order, in submission order.
type SubmitBatchResponse struct {
	Results []commit.Result `json:"results"`
}

// GetStatusRequest names one order key.
type GetStatusRequest struct {
	ExternalOrderID string `json:"externalOrderId"`
	InstanceID      string `json:"instanceId"`
}

// GetStatusResponse is the ledger entry of a key.
type GetStatusResponse struct {
	ExternalOrderID   string `json:"externalOrderId"`
	InstanceID        string `json:"instanceId"`
	Status            string `json:"status"`
	PayloadHash       string `json:"payloadHash"`
	ExternalDocID     string `json:"externalDocId,omitempty"`
	ExternalDocNumber string `json:"externalDocNumber,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
}

// OrdersStreamServer is the server side of StreamOrders.
type OrdersStreamServer interface {
	Recv() (*orders.Envelope, error)
	SendAndClose(*SubmitBatchResponse) error
	Context() context.Context
}

// OrderIntakeServer is implemented by the intake service.
type OrderIntakeServer interface {
	SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*SubmitBatchResponse, error)
	GetStatus(ctx context.Context, req *GetStatusRequest) (*GetStatusResponse, error)
	StreamOrders(stream OrdersStreamServer) error
}

// OrderServer adapts OrderService to gRPC.
type OrderServer struct {
	service OrderService
}

// NewOrderServer constructs an OrderServer.
func NewOrderServer(svc OrderService) *OrderServer {
	return &OrderServer{service: svc}
}

// SubmitBatch processes a batch. Per-order failures are results, not RPC
// errors.
func (s *OrderServer) SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*SubmitBatchResponse, error) {
	if len(req.Orders) == 0 {
		return nil, status.Error(codes.InvalidArgument, "orders must contain at least one order")
	}
	return &SubmitBatchResponse{Results: s.service.ProcessBatch(ctx, req.Orders)}, nil
}

// GetStatus looks up the ledger entry of a key.
func (s *OrderServer) GetStatus(ctx context.Context, req *GetStatusRequest) (*GetStatusResponse, error) {
	key := orders.Key{
		ExternalOrderID: strings.TrimSpace(req.ExternalOrderID),
		InstanceID:      strings.TrimSpace(req.InstanceID),
	}
	if key.ExternalOrderID == "" || key.InstanceID == "" {
		return nil, status.Error(codes.InvalidArgument, "externalOrderId and instanceId are required")
	}

	entry, err := s.service.Status(ctx, key)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return &GetStatusResponse{
		ExternalOrderID:   entry.Key.ExternalOrderID,
		InstanceID:        entry.Key.InstanceID,
		Status:            string(entry.Status),
		PayloadHash:       entry.PayloadHash,
		ExternalDocID:     entry.ExternalDocID,
		ExternalDocNumber: entry.ExternalDocNumber,
		ErrorMessage:      entry.ErrorMessage,
	}, nil
}

// StreamOrders receives orders one by one, processes each as it arrives and
// answers with every result once the client closes its side.
func (s *OrderServer) StreamOrders(stream OrdersStreamServer) error {
	resp := &SubmitBatchResponse{}
	for {
		env, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(resp)
		}
		if err != nil {
			return status.Errorf(codes.Internal, "recv: %v", err)
		}
		resp.Results = append(resp.Results, s.service.ProcessBatch(stream.Context(), []orders.Envelope{*env})...)
	}
}

func mapOrderError(err error) error {
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if errors.Is(err, ledger.ErrNotFound) {
		return status.Error(codes.NotFound, "order not found")
	}
	if errors.Is(err, orders.ErrValidation) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Unavailable, "order ledger unavailable")
}

// OrdersServiceDesc describes the intake service for registration.
var OrdersServiceDesc = grpcpkg.ServiceDesc{
	ServiceName: "orderbridge.v1.Orders",
	HandlerType: (*OrderIntakeServer)(nil),
	Methods: []grpcpkg.MethodDesc{
		{MethodName: "SubmitBatch", Handler: submitBatchHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams: []grpcpkg.StreamDesc{
		{StreamName: "StreamOrders", Handler: streamOrdersHandler, ClientStreams: true},
	},
	Metadata: "orderbridge/v1/orders",
}

// RegisterOrderIntakeServer registers srv on s.
func RegisterOrderIntakeServer(s grpcpkg.ServiceRegistrar, srv OrderIntakeServer) {
	s.RegisterService(&OrdersServiceDesc, srv)
}

func submitBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpcpkg.UnaryServerInterceptor) (any, error) {
	in := new(SubmitBatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderIntakeServer).SubmitBatch(ctx, in)
	}
	info := &grpcpkg.UnaryServerInfo{Server: srv, FullMethod: SubmitBatchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderIntakeServer).SubmitBatch(ctx, req.(*SubmitBatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpcpkg.UnaryServerInterceptor) (any, error) {
	in := new(GetStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderIntakeServer).GetStatus(ctx, in)
	}
	info := &grpcpkg.UnaryServerInfo{Server: srv, FullMethod: GetStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderIntakeServer).GetStatus(ctx, req.(*GetStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamOrdersHandler(srv any, stream grpcpkg.ServerStream) error {
	return srv.(OrderIntakeServer).StreamOrders(&ordersStreamServer{ServerStream: stream})
}

type ordersStreamServer struct {
	grpcpkg.ServerStream
}

func (s *ordersStreamServer) Recv() (*orders.Envelope, error) {
	env := new(orders.Envelope)
	if err := s.ServerStream.RecvMsg(env); err != nil {
		return nil, err
	}
	return env, nil
}

func (s *ordersStreamServer) SendAndClose(resp *SubmitBatchResponse) error {
	return s.ServerStream.SendMsg(resp)
}
