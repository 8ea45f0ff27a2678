// Package codec converts typed values to the byte payloads stored on cache
// nodes. Typed[V] in the root package takes any Codec[V].
package codec

// Codec encodes/decodes values V to []byte for storage.
// Implementations must be safe for concurrent use.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
