package wire

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered with grpc's encoding package so the gRPC
// transport frames our JSON Frame values instead of requiring generated
// protobuf message types (DESIGN.md documents why: no protoc toolchain is
// assumed to be available to generate .pb.go stubs). grpc-go's own wire
// format still carries protobuf for its control frames; this codec only
// replaces the per-message body encoding.
const CodecName = "batata-json"

// jsonCodec implements encoding.Codec by delegating to encoding/json. It
// works on any Go value, not just proto.Message, which is what lets the
// hand-written ServiceDesc in service.go carry plain Frame structs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
