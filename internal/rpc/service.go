package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "amm.v1.Exchange"

// ExchangeServer is the server side of the Exchange service.
type ExchangeServer interface {
	Quote(context.Context, *QuoteRequest) (*QuoteResponse, error)
	PoolInfo(context.Context, *PoolInfoRequest) (*PoolInfoResponse, error)
	Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error)
}

// RegisterExchangeServer registers srv on s.
func RegisterExchangeServer(s grpc.ServiceRegistrar, srv ExchangeServer) {
	s.RegisterService(&exchangeServiceDesc, srv)
}

// unary builds a method handler for one request/response pair.
func unary[Req, Resp any](method string, call func(ExchangeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExchangeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExchangeServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var exchangeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ExchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Quote", ExchangeServer.Quote),
		unary("PoolInfo", ExchangeServer.PoolInfo),
		unary("Refresh", ExchangeServer.Refresh),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "amm/v1/exchange",
}

// Client is the client side of the Exchange service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.CallContentSubtype(codecName))
}

func (c *Client) Quote(ctx context.Context, in *QuoteRequest) (*QuoteResponse, error) {
	out := new(QuoteResponse)
	if err := c.invoke(ctx, "Quote", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PoolInfo(ctx context.Context, in *PoolInfoRequest) (*PoolInfoResponse, error) {
	out := new(PoolInfoResponse)
	if err := c.invoke(ctx, "PoolInfo", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, in *RefreshRequest) (*RefreshResponse, error) {
	out := new(RefreshResponse)
	if err := c.invoke(ctx, "Refresh", in, out); err != nil {
		return nil, err
	}
	return out, nil
}
