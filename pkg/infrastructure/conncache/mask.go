package conncache

import (
	"net/url"
	"strings"
)

// MaskTarget hides credentials in a connection target but keeps enough of
// it to be recognisable in logs.
//
// Behaviour:
//
//   - empty or ":memory:"  → returned verbatim
//   - URL-like targets     → redact the password and sensitive query params
//   - anything else        → keep first/last 3 runes, mask the middle
//
// If the target cannot be parsed as a URL it falls back to the middle mask
// so that nothing secret leaks.
func MaskTarget(target string) string {
	if target == "" || target == ":memory:" || target == "duckdb::memory:" {
		return target
	}

	u, err := url.Parse(target)
	if err == nil && looksLikeURL(u) {
		if ui := u.User; ui != nil {
			user := ui.Username()
			if _, hasPass := ui.Password(); hasPass {
				u.User = url.UserPassword(user, "*****")
			} else {
				u.User = url.User(user)
			}
		}

		q := u.Query()
		for k := range q {
			if isSensitiveKey(k) {
				q.Set(k, "*****")
			}
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	runes := []rune(target)
	if len(runes) <= 10 {
		return "***"
	}
	return string(runes[:3]) + "***" + string(runes[len(runes)-3:])
}

// looksLikeURL reports whether u has enough URL structure to redact field by field.
func looksLikeURL(u *url.URL) bool {
	return u.Host != "" || u.User != nil || u.RawQuery != ""
}

// isSensitiveKey reports whether a query key should have its value masked.
func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "pass"),
		strings.Contains(key, "token"),
		strings.Contains(key, "secret"),
		strings.HasSuffix(key, "key"):
		return true
	default:
		return false
	}
}
