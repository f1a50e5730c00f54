package server

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype this codec registers under.
const codecName = "json"

// jsonCodec is a google.golang.org/grpc/encoding.Codec that marshals
// messages as JSON instead of protobuf wire format. This repo has no
// protoc-generated bindings, so the demonstration server and client
// exercise real grpc.Server/grpc.ClientConn transport mechanics (framing,
// HTTP/2 streams, deadlines, status codes) paired with plain Go structs
// instead of generated proto messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
