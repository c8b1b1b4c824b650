package grpc

import (
	"context"
	"errors"
	"fmt"

	"orderbridge/internal/gateway"
	"orderbridge/internal/orders"

	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/status"
)

// ERPSessionFactory opens one client connection per downstream session.
type ERPSessionFactory struct {
	target string
	opts   []grpcpkg.DialOption
}

// NewERPSessionFactory constructs a factory dialing target with opts.
func NewERPSessionFactory(target string, opts ...grpcpkg.DialOption) *ERPSessionFactory {
	return &ERPSessionFactory{target: target, opts: opts}
}

// Open dials the ERP and waits until the connection is ready. Any failure
// here happens before the order is sent.
func (f *ERPSessionFactory) Open(ctx context.Context) (gateway.Session, error) {
	conn, err := grpcpkg.NewClient(f.target, f.opts...)
	if err != nil {
		return nil, gateway.NewError(gateway.Unavailable, fmt.Errorf("create erp client: %w", err))
	}

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return &erpSession{conn: conn}, nil
		}
		if state == connectivity.TransientFailure || state == connectivity.Shutdown {
			_ = conn.Close()
			return nil, gateway.NewError(gateway.Unavailable, fmt.Errorf("connect erp: %s", state))
		}
		if !conn.WaitForStateChange(ctx, state) {
			_ = conn.Close()
			return nil, gateway.NewError(gateway.Unavailable, fmt.Errorf("connect erp: %w", ctx.Err()))
		}
	}
}

type erpSession struct {
	conn *grpcpkg.ClientConn
}

func (s *erpSession) CreateOrder(ctx context.Context, draft orders.Draft) (gateway.DocRef, error) {
	req := toWire(draft)
	resp := new(CreateOrderResponse)
	if err := s.conn.Invoke(ctx, CreateOrderMethod, req, resp, grpcpkg.CallContentSubtype(codecName)); err != nil {
		return gateway.DocRef{}, mapERPError(err)
	}
	return gateway.DocRef{ID: resp.DocEntry, Number: resp.DocNumber}, nil
}

func (s *erpSession) Close() error {
	return s.conn.Close()
}

func toWire(d orders.Draft) *CreateOrderRequest {
	req := &CreateOrderRequest{
		ExternalOrderID:   d.Key.ExternalOrderID,
		InstanceID:        d.Key.InstanceID,
		OrderDate:         d.OrderDate,
		CustomerCode:      d.CustomerCode,
		SalespersonCode:   d.SalespersonCode,
		WarehouseCode:     d.WarehouseCode,
		CustomerReference: d.CustomerReference,
		Comments:          d.Comments,
		Lines:             make([]OrderLine, 0, len(d.Lines)),
	}
	for _, line := range d.Lines {
		req.Lines = append(req.Lines, OrderLine{
			ProductCode:     line.ProductCode,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
		})
	}
	return req
}

// mapERPError classifies a failed call on an established connection.
// Only codes that prove the ERP refused the request before applying it are
// treated as definite.
func mapERPError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return gateway.NewError(gateway.UnknownOutcome, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return gateway.NewError(gateway.UnknownOutcome, err)
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound,
		codes.AlreadyExists, codes.PermissionDenied, codes.OutOfRange:
		return gateway.NewError(gateway.Rejected, err)
	case codes.ResourceExhausted, codes.Unauthenticated, codes.Unimplemented:
		return gateway.NewError(gateway.Unavailable, err)
	default:
		return gateway.NewError(gateway.UnknownOutcome, err)
	}
}
