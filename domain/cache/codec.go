package cache

import "encoding/json"

// Codec converts cached values to and from bytes for byte-oriented
// persistence backends.
type Codec[V any] interface {
	// Marshal encodes a value.
	Marshal(value V) ([]byte, error)

	// Unmarshal decodes a value.
	Unmarshal(data []byte) (V, error)
}

// JSONCodec is the default Codec, backed by encoding/json.
type JSONCodec[V any] struct{}

// Marshal encodes the value as JSON.
func (JSONCodec[V]) Marshal(value V) ([]byte, error) {
	return json.Marshal(value)
}

// Unmarshal decodes the value from JSON.
func (JSONCodec[V]) Unmarshal(data []byte) (V, error) {
	var value V
	err := json.Unmarshal(data, &value)
	return value, err
}

var _ Codec[any] = JSONCodec[any]{}
