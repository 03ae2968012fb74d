package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls PaymentsService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Dial opens a plaintext connection, as the other internal services do.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) RegisterInstrument(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, "RegisterInstrument", in, opts...)
}

func (c *Client) GetInstrument(ctx context.Context, instrumentID string, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, "GetInstrument", map[string]any{"instrument_id": instrumentID}, opts...)
}

func (c *Client) CreateTransaction(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, "CreateTransaction", in, opts...)
}

func (c *Client) GetTransaction(ctx context.Context, txnID string, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, "GetTransaction", map[string]any{"txn_id": txnID}, opts...)
}

func (c *Client) ProcessWebhook(ctx context.Context, provider, rawBody, signature string, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, "ProcessWebhook", map[string]any{
		"provider":  provider,
		"raw_body":  rawBody,
		"signature": signature,
	}, opts...)
}
