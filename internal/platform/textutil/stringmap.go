package textutil

import "strings"

// CompactAttributes trims message attributes and keeps only entries where both key and value
// are non-blank. Pub/Sub subscription filters treat a present-but-empty attribute as a match, so
// blanks must not be sent. Returns nil when nothing is left.
func CompactAttributes(values map[string]string) map[string]string {
	var result map[string]string
	for key, value := range values {
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if result == nil {
			result = make(map[string]string, len(values))
		}
		result[key] = value
	}
	return result
}
