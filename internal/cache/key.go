package cache

import (
	"sort"
	"strings"
)

// RequestKey builds the canonical cache key for a logical request:
// "<method>_<path>" plus "?k1=v1&k2=v2" with parameter names sorted, so
// identical requests always map to the same key regardless of the order
// callers supply parameters in.
//
// Example: RequestKey("GET", "/ponds", map[string]string{"season": "7"})
// yields "get_/ponds?season=7".
func RequestKey(method, path string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(method)))
	b.WriteString("_")
	b.WriteString(path)
	if len(params) == 0 {
		return b.String()
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString("?")
	for i, name := range names {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(params[name])
	}
	return b.String()
}
