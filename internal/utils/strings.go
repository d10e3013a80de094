// Package utils provides common utility functions.
package utils

// MaskKey masks a credential for safe logging (shows first 8 and last 4 chars).
// Use this to avoid logging sensitive headers in plain text.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
