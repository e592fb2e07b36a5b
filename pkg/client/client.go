// Package client is the remote side of the fixture: test processes use it to
// ship a model and its inputs to a predictd server and get the outputs back.
package client

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"predictd/internal/rpc"
	"predictd/pkg/types"
)

// DefaultAddr is the port the fixture has always listened on.
const DefaultAddr = "127.0.0.1:18812"

type options struct {
	policy   rpc.Policy
	method   string
	dialOpts []grpc.DialOption
}

// Option configures a Client.
type Option func(*options)

// WithPolicy overrides the serialization policy. It must match the server's.
func WithPolicy(p rpc.Policy) Option { return func(o *options) { o.policy = p } }

// WithLiteMethod sends calls to RunLiteModel instead of RunModel.
func WithLiteMethod() Option { return func(o *options) { o.method = rpc.RunLiteModelMethod } }

// WithDialOptions appends raw gRPC dial options (e.g. a bufconn dialer).
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

type Client struct {
	conn   *grpc.ClientConn
	method string
}

// New creates a client for addr. No connection is made until the first call.
func New(addr string, opts ...Option) (*Client, error) {
	o := options{policy: rpc.DefaultPolicy(), method: rpc.RunModelMethod}
	for _, fn := range opts {
		fn(&o)
	}
	dial := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, o.policy.DialOptions()...)
	dial = append(dial, o.dialOpts...)
	conn, err := grpc.NewClient(addr, dial...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, method: o.method}, nil
}

// RunModel executes one inference pass remotely. Server-side failures come
// back as gRPC status errors carrying the original message.
func (c *Client) RunModel(ctx context.Context, model, params []byte, inputs map[string]types.InputTensor) (map[string]types.Tensor, error) {
	req := &types.RunModelRequest{Model: model, Params: params, Inputs: inputs}
	var resp types.RunModelResponse
	if err := c.Invoke(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Outputs, nil
}

// Invoke sends a typed request and decodes the typed response. A request id
// is attached unless ctx already carries one.
func (c *Client) Invoke(ctx context.Context, req *types.RunModelRequest, resp *types.RunModelResponse, opts ...grpc.CallOption) error {
	if md, ok := metadata.FromOutgoingContext(ctx); !ok || len(md.Get(rpc.RequestIDHeader)) == 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, rpc.RequestIDHeader, uuid.NewString())
	}
	return c.conn.Invoke(ctx, c.method, req, resp, opts...)
}

func (c *Client) Close() error { return c.conn.Close() }
