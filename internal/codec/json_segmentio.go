//go:build json_segmentio

package codec

import "github.com/segmentio/encoding/json"

// JSONCodec implements Codec using segmentio/encoding/json, selected
// via the json_segmentio build tag.
type JSONCodec struct{}

func (c *JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Name() string { return "json-segmentio" }
