package handler

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/apartment-hub/internal/auth"
	"github.com/rl1809/apartment-hub/internal/core/domain"
	"github.com/rl1809/apartment-hub/internal/core/service"
)

// OrderServiceServer is the server side of apartment.v1.OrderService.
// Messages are google.protobuf.Struct so clients need no generated stubs.
type OrderServiceServer interface {
	CreateOrderFromCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfirmOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

const orderServiceName = "apartment.v1.OrderService"

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrderFromCart", Handler: unaryHandler("CreateOrderFromCart", OrderServiceServer.CreateOrderFromCart)},
		{MethodName: "ConfirmOrder", Handler: unaryHandler("ConfirmOrder", OrderServiceServer.ConfirmOrder)},
		{MethodName: "GetCart", Handler: unaryHandler("GetCart", OrderServiceServer.GetCart)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "apartment/v1/order.proto",
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

type unaryMethod func(OrderServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, method unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + orderServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(OrderServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCHandler struct {
	orders *service.OrderService
	carts  *service.CartService
	tokens *auth.Tokens
}

func NewGRPCHandler(orders *service.OrderService, carts *service.CartService, tokens *auth.Tokens) *GRPCHandler {
	return &GRPCHandler{orders: orders, carts: carts, tokens: tokens}
}

func (h *GRPCHandler) CreateOrderFromCart(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	order, err := h.orders.CreateFromCart(ctx, p)
	if err != nil {
		return nil, grpcError(err)
	}
	return orderStruct(order)
}

func (h *GRPCHandler) ConfirmOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	orderID := req.GetFields()["order_id"].GetStringValue()
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := h.orders.Confirm(ctx, p, orderID)
	if err != nil {
		return nil, grpcError(err)
	}
	return orderStruct(order)
}

func (h *GRPCHandler) GetCart(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := h.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	cart, err := h.carts.Summarize(ctx, p)
	if err != nil {
		return nil, grpcError(err)
	}

	lines := make([]any, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, map[string]any{
			"id":           l.ID,
			"product_id":   l.ProductID,
			"product_name": l.Product.Name,
			"price":        l.Product.Price.String(),
			"quantity":     l.Quantity,
			"subtotal":     l.Subtotal().String(),
		})
	}
	return structpb.NewStruct(map[string]any{
		"id":    cart.ID,
		"lines": lines,
		"total": cart.Total().String(),
	})
}

func (h *GRPCHandler) authenticate(ctx context.Context) (domain.Principal, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return domain.Principal{}, status.Error(codes.Unauthenticated, "missing token")
	}
	tokenStr, ok := strings.CutPrefix(values[0], "Bearer ")
	if !ok {
		return domain.Principal{}, status.Error(codes.Unauthenticated, "missing token")
	}
	p, err := h.tokens.Parse(tokenStr)
	if err != nil {
		return domain.Principal{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return p, nil
}

func grpcError(err error) error {
	code := codes.Internal
	switch httpStatus, _ := statusFor(err); httpStatus {
	case http.StatusNotFound:
		code = codes.NotFound
	case http.StatusForbidden:
		code = codes.PermissionDenied
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusConflict:
		code = codes.Aborted
	case http.StatusServiceUnavailable:
		code = codes.Canceled
	}
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

// Amounts travel as strings to keep decimal precision.
func orderStruct(o *domain.Order) (*structpb.Struct, error) {
	lines := make([]any, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, map[string]any{
			"id":           l.ID,
			"product_id":   l.ProductID,
			"product_name": l.ProductName,
			"quantity":     l.Quantity,
			"price":        l.Price.String(),
		})
	}
	return structpb.NewStruct(map[string]any{
		"id":           o.ID,
		"resident_id":  o.ResidentID,
		"status":       string(o.Status),
		"total_amount": o.Total.String(),
		"lines":        lines,
	})
}
