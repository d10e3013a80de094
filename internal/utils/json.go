package utils

import (
	"bytes"
	"encoding/json"
)

// MarshalNoEscape marshals v without HTML escaping. Telemetry events
// carry request paths and query strings; rewriting '<', '>' and '&' to
// unicode escapes would make the JSONL records harder to grep.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder adds a trailing newline; remove it for parity with json.Marshal.
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return out, nil
}
