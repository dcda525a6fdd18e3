package gateway

import "strings"

// Resolve returns *override when the request carried the field, def
// otherwise. An explicit zero or false is a value, not an absence.
func Resolve[T any](override *T, def T) T {
	if override != nil {
		return *override
	}
	return def
}

// ResolveString treats an empty or blank string as absent.
func ResolveString(override, def string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return def
}
