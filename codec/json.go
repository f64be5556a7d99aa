package codec

import "encoding/json"

// JSON is a Codec backed by encoding/json. Numbers decoded into `any` become
// float64, so prefer Msgpack or CBOR when integer payloads must keep their
// type.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
