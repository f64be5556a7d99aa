package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ByName returns a codec for dynamic payloads by its configuration name:
// "msgpack" (also ""), "cbor", "json" or "structpb".
func ByName(name string) (Codec[any], error) {
	switch name {
	case "", "msgpack":
		return Msgpack[any]{}, nil
	case "cbor":
		c, err := NewCBOR[any](false)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "json":
		return JSON[any]{}, nil
	case "structpb":
		return Structpb{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
