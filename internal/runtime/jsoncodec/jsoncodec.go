// Package jsoncodec is the JSON codec shared by the inspector, statistics
// reports and the demo host. It is backed by sonic in std-compatible mode.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// MarshalString is Marshal for callers that want a string, such as log fields.
func MarshalString(v any) (string, error) {
	return api.MarshalToString(v)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Encode writes v followed by a newline.
func Encode(w io.Writer, v any) error {
	return api.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return api.NewDecoder(r).Decode(v)
}
