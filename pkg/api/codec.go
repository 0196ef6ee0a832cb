package api

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// codec carries plain Go structs as JSON. It replaces connect's protobuf
// codecs: none of the trustchain messages are protobuf messages.
type codec struct{}

var _ connect.Codec = codec{}

func (codec) Name() string { return "json" }

func (codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(b []byte, v any) error {
	// Empty request bodies are accepted for parameterless procedures.
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}
