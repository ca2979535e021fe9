// Package codec selects a wire format for the stats snapshot reporter
// (internal/engine/stats.go) and the supervisor control channel
// (internal/supervisor/control.go): the same build-tag-selected JSON
// variants plus a MessagePack option, shared across both call sites.
package codec

import "fmt"

// Codec defines the interface for encoding/decoding messages.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Name() string
}

// Type names a codec selection.
type Type string

const (
	TypeJSON    Type = "json"
	TypeMsgPack Type = "msgpack"
)

// New creates a codec for the given type. Empty string selects JSON.
func New(t Type) (Codec, error) {
	switch t {
	case TypeJSON, "":
		return &JSONCodec{}, nil
	case TypeMsgPack:
		return &MessagePackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec type: %s", t)
	}
}
