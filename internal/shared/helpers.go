// Package shared provides small helpers used by the packages that talk to
// registries and identity providers over HTTP.
package shared

import (
	"fmt"
	"strings"
	"time"
)

// HTTPStatusError creates a formatted error for non-2xx HTTP responses. The
// body is trimmed and left out when empty.
func HTTPStatusError(status int, url string, body []byte) error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		return fmt.Errorf("status=%d url=%s", status, url)
	}
	return fmt.Errorf("status=%d url=%s response=%s", status, url, message)
}

// ParseTimeFlexible accepts RFC 3339 and the "2006-01-02 15:04:05" forms
// used in HTTP headers, with an optional zone. It returns the zero time
// when nothing matches.
func ParseTimeFlexible(value string) time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05 -0700 MST",
		"2006-01-02 15:04:05 -0700",
		"2006-01-02 15:04:05 MST",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
