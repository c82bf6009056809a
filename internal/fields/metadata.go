package fields

import (
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Metadata maps field keys to raw values on a lead.
type Metadata map[string]any

// DecodeMetadata reads the metadata column. Malformed input yields an
// empty map rather than an error.
func DecodeMetadata(raw any) Metadata {
	switch v := raw.(type) {
	case nil:
		return Metadata{}
	case Metadata:
		return v
	case map[string]any:
		return Metadata(v)
	case string:
		return decodeJSON([]byte(v))
	case []byte:
		return decodeJSON(v)
	}
	return Metadata{}
}

func decodeJSON(b []byte) Metadata {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return Metadata{}
	}
	return m
}

// Encode serializes the metadata for storage.
func (m Metadata) Encode() (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DeriveKey builds a snake_case field key from a display label, stripping
// accents. Labels starting with a digit get an "f_" prefix.
func DeriveKey(label string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(label) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	key := b.String()
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	key = strings.Trim(key, "_")
	if key != "" && key[0] >= '0' && key[0] <= '9' {
		key = "f_" + key
	}
	return key
}

// ValidKey reports whether key is lowercase snake_case starting with a letter.
func ValidKey(key string) bool {
	if key == "" || key[0] < 'a' || key[0] > 'z' {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '_' {
			return false
		}
	}
	return true
}
