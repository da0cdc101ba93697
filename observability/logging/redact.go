package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are masked wherever they are logged, at any group depth.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"bearer":        {},
	"jwt":           {},
	"password":      {},
	"private_key":   {},
	"secret":        {},
	"signature":     {},
	"token":         {},
}

var sensitiveSuffixes = []string{"_secret", "_token", "_key"}

// IsSensitive reports whether values logged under key must be masked. Keys
// are matched case-insensitively; dashes count as underscores.
func IsSensitive(key string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
	if _, ok := sensitiveKeys[normalized]; ok {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// redactAttr masks the value of a sensitive attribute. Empty values pass
// through so absent credentials stay visible as absent.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) || attr.Value.Kind() == slog.KindGroup {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}

// MaskURL strips credentials from an endpoint before it is logged: user info
// and every query value are replaced. Unparseable input is masked entirely.
func MaskURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return RedactedValue
	}
	if parsed.User != nil {
		parsed.User = url.User(RedactedValue)
	}
	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			query.Set(key, RedactedValue)
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}
