package logging

import (
	"context"
	"strings"
	"unicode"
)

// maxLoggedValue is counted in runes.
const maxLoggedValue = 1000

// SanitizeForLog makes untrusted input safe to put in a log line: control
// characters are dropped and very long values are truncated on a rune
// boundary.
func SanitizeForLog(data string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, data)

	n := 0
	for i := range clean {
		if n == maxLoggedValue {
			return clean[:i] + "...[TRUNCATED]"
		}
		n++
	}
	return clean
}

// LogSecurityEvent logs a rejected or suspicious request. String values are
// passed through SanitizeForLog.
func LogSecurityEvent(ctx context.Context, logger Logger, event string, fields ...interface{}) {
	if logger == nil {
		return
	}
	out := make([]interface{}, 0, len(fields)+4)
	out = append(out, "event_type", "security", "event", event)
	for i := 0; i+1 < len(fields); i += 2 {
		v := fields[i+1]
		if s, ok := v.(string); ok {
			v = SanitizeForLog(s)
		}
		out = append(out, fields[i], v)
	}
	logger.Warn(ctx, nil, "security event", out...)
}
