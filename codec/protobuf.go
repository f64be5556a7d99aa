package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Protobuf is a Codec for a concrete message type.
type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *mypb.User { return &mypb.User{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}
func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

var structValue = NewProtobuf(func() *structpb.Value { return &structpb.Value{} })

// Structpb serializes dynamic values as a google.protobuf.Value.
// It accepts what structpb.NewValue accepts: nil, bools, numbers, strings,
// []byte (base64 string), []any and map[string]any. All numbers decode as
// float64.
type Structpb struct{}

var _ Codec[any] = Structpb{}

func (Structpb) Encode(v any) ([]byte, error) {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return nil, fmt.Errorf("structpb: %w", err)
	}
	return structValue.Encode(pv)
}

func (Structpb) Decode(b []byte) (any, error) {
	pv, err := structValue.Decode(b)
	if err != nil {
		return nil, err
	}
	return pv.AsInterface(), nil
}
