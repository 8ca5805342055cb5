package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// SortMapKeys keeps encoded output stable so identical responses serialize to
// identical bytes.
var defaultConfig = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}

// LookupString extracts the string at path from a possibly malformed document
// without decoding the rest of it. The boolean is false when the path is
// missing or does not hold a string.
func LookupString(data []byte, path ...any) (string, bool) {
	node, err := sonic.Get(data, path...)
	if err != nil {
		return "", false
	}
	value, err := node.StrictString()
	if err != nil {
		return "", false
	}
	return value, true
}
