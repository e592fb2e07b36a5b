package rpc

import (
	"bytes"

	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of the predictd codec.
const CodecName = "predictd-json"

// Defaults applied when corresponding Policy fields are unset.
const defaultMaxMessageBytes = 256 << 20

// Policy is the serialization policy handed to the transport at startup.
// It is installed per server and per client connection, never registered
// process-wide.
type Policy struct {
	// DisallowUnknownFields rejects payloads carrying fields the typed
	// request/response structs do not declare.
	DisallowUnknownFields bool
	// MaxMessageBytes bounds a single request or response.
	MaxMessageBytes int
}

// DefaultPolicy is strict decoding with a 256 MiB message limit.
func DefaultPolicy() Policy {
	return Policy{DisallowUnknownFields: true, MaxMessageBytes: defaultMaxMessageBytes}
}

func (p Policy) maxBytes() int {
	if p.MaxMessageBytes <= 0 {
		return defaultMaxMessageBytes
	}
	return p.MaxMessageBytes
}

// Codec encodes the typed messages as JSON.
type Codec struct {
	policy Policy
}

var _ encoding.Codec = (*Codec)(nil)

func NewCodec(p Policy) *Codec { return &Codec{policy: p} }

func (c *Codec) Name() string { return CodecName }

func (c *Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (c *Codec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.policy.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

// ServerOptions returns the gRPC server options enforcing p.
func (p Policy) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ForceServerCodec(NewCodec(p)),
		grpc.MaxRecvMsgSize(p.maxBytes()),
		grpc.MaxSendMsgSize(p.maxBytes()),
	}
}

// DialOptions returns the client options enforcing p.
func (p Policy) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(NewCodec(p)),
			grpc.MaxCallRecvMsgSize(p.maxBytes()),
			grpc.MaxCallSendMsgSize(p.maxBytes()),
		),
	}
}
