package transport

import "strings"

// NormalizeContextKeys recursively converts the keys of a free-form
// context map to snake_case, so that callers embedding this SDK
// alongside a Python or JS counterpart (which may hand it camelCase
// keys) still produce the snake_case wire shape the rest of this module's
// domain types use. Adapted from a camelCase-normalizer that did the
// opposite direction for inbound database-backed payloads; here the
// target convention is reversed to match VerificationRequest's own
// snake_case JSON tags.
func NormalizeContextKeys(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		normalized := make(map[string]interface{}, len(v))
		for key, value := range v {
			normalized[camelToSnake(key)] = NormalizeContextKeys(value)
		}
		return normalized
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = NormalizeContextKeys(item)
		}
		return out
	default:
		return data
	}
}

func camelToSnake(s string) string {
	if strings.Contains(s, "_") {
		return s
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
