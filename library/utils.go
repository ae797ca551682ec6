// Package library contains helper functions
package library

import "strings"

const bearerPrefix = "bearer "

// StripBearerPrefix removes any number of leading "Bearer " prefixes from an
// Authorization header value. Matching is case-insensitive.
func StripBearerPrefix(header string) string {
	value := strings.TrimSpace(header)
	for len(value) >= len(bearerPrefix) && strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		value = strings.TrimSpace(value[len(bearerPrefix):])
	}

	return value
}
