// Package jsonq provides typed field extraction over raw JSON API responses.
// Callers name the field they want with a Path; extraction is best-effort and
// never panics on malformed input.
package jsonq

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Path is a dotted field-access expression evaluated against a JSON document
// (e.g. "server.status", "droplet.networks.v4.0.ip_address").
type Path string

// String returns the raw path expression.
func (p Path) String() string {
	return string(p)
}

// IsZero reports whether the path is empty.
func (p Path) IsZero() bool {
	return strings.TrimSpace(string(p)) == ""
}

// Extract evaluates the path against body and returns the value as a string.
// The second return value is false when the document is not valid JSON, the
// path does not resolve, or the resolved value is empty.
func Extract(body []byte, path Path) (string, bool) {
	if path.IsZero() || !gjson.ValidBytes(body) {
		return "", false
	}
	result := gjson.GetBytes(body, string(path))
	if !result.Exists() {
		return "", false
	}
	value := result.String()
	if value == "" {
		return "", false
	}
	return value, true
}

// ErrorMessage extracts a human-readable error message from an API error
// body. It tries the conventional {"error":{"message":...}} shape first,
// then a top-level "error" or "message" string. Any parse or shape failure
// returns fallback verbatim; this function never fails.
func ErrorMessage(body []byte, fallback string) string {
	if !gjson.ValidBytes(body) {
		return fallback
	}
	for _, path := range []string{"error.message", "error", "message"} {
		result := gjson.GetBytes(body, path)
		if result.Exists() && result.Type == gjson.String && result.Str != "" {
			return result.Str
		}
	}
	return fallback
}
