package grpc

import (
	"context"

	grpcpkg "google.golang.org/grpc"

	"github.com/shopspring/decimal"
)

// CreateOrderMethod is the full method name of the ERP order creation call.
const CreateOrderMethod = "/erp.v1.SalesOrders/CreateOrder"

// CreateOrderRequest is the ERP wire form of a sale order.
type CreateOrderRequest struct {
	ExternalOrderID   string      `json:"externalOrderId"`
	InstanceID        string      `json:"instanceId"`
	OrderDate         string      `json:"docDate"`
	CustomerCode      string      `json:"cardCode"`
	SalespersonCode   string      `json:"slpCode"`
	WarehouseCode     string      `json:"whsCode"`
	CustomerReference string      `json:"numAtCard"`
	Comments          string      `json:"comments,omitempty"`
	Lines             []OrderLine `json:"documentLines"`
}

// OrderLine is one ERP document line.
type OrderLine struct {
	ProductCode     string          `json:"itemCode"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// CreateOrderResponse carries the ERP document identifiers.
type CreateOrderResponse struct {
	DocEntry  string `json:"docEntry"`
	DocNumber string `json:"docNum"`
}

// ERPServer is implemented by services answering the ERP contract.
type ERPServer interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
}

// ERPServiceDesc describes the ERP sales order service for registration.
var ERPServiceDesc = grpcpkg.ServiceDesc{
	ServiceName: "erp.v1.SalesOrders",
	HandlerType: (*ERPServer)(nil),
	Methods: []grpcpkg.MethodDesc{
		{MethodName: "CreateOrder", Handler: createOrderHandler},
	},
	Streams:  []grpcpkg.StreamDesc{},
	Metadata: "erp/v1/sales_orders",
}

// RegisterERPServer registers srv on s.
func RegisterERPServer(s grpcpkg.ServiceRegistrar, srv ERPServer) {
	s.RegisterService(&ERPServiceDesc, srv)
}

func createOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpcpkg.UnaryServerInterceptor) (any, error) {
	in := new(CreateOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ERPServer).CreateOrder(ctx, in)
	}
	info := &grpcpkg.UnaryServerInfo{Server: srv, FullMethod: CreateOrderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ERPServer).CreateOrder(ctx, req.(*CreateOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}
