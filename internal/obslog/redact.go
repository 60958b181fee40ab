package obslog

import (
	"regexp"
	"strings"
)

// redactedMarker replaces any sensitive value the redactor matches.
const redactedMarker = "***REDACTED***"

// sensitiveKeys are map/JSON object keys whose values are always replaced
// outright, regardless of content, when redaction is enabled.
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"api_key":       true,
	"apikey":        true,
	"token":         true,
	"secret":        true,
}

// valuePatterns catch sensitive-looking substrings embedded in otherwise
// ordinary text (log messages, error strings, tool output) that a key-based
// check alone would miss.
var valuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9_\-.]+`),
	regexp.MustCompile(`sk-[0-9A-Za-z]{6,}`),
}

// redactor masks sensitive values before they reach the debug log. A nil
// or disabled redactor is a no-op passthrough.
type redactor struct {
	enabled bool
}

func newRedactor(mode string) *redactor {
	return &redactor{enabled: mode != "none"}
}

func (r *redactor) string(s string) string {
	if !r.enabled {
		return s
	}
	for _, pattern := range valuePatterns {
		s = pattern.ReplaceAllString(s, redactedMarker)
	}
	return s
}

func (r *redactor) value(v any) any {
	if !r.enabled {
		return v
	}
	switch val := v.(type) {
	case string:
		return r.string(val)
	case error:
		return r.string(val.Error())
	case map[string]any:
		return r.mapValue(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.value(item)
		}
		return out
	default:
		return v
	}
}

func (r *redactor) mapValue(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		lowerKey := strings.ToLower(strings.ReplaceAll(k, "-", "_"))
		if sensitiveKeys[lowerKey] {
			out[k] = redactedMarker
			continue
		}
		out[k] = r.value(v)
	}
	return out
}
