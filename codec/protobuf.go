package codec

import "google.golang.org/protobuf/proto"

// Protobuf encodes proto messages. New allocates the message Decode fills,
// e.g. func() *pb.User { return new(pb.User) }.
type Protobuf[T proto.Message] struct {
	New func() T
}

// NewProtobuf returns a Protobuf codec using ctor to allocate messages.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{New: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return proto.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.New()
	err := proto.Unmarshal(b, m)
	return m, err
}
