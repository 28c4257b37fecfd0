// Package util provides utility functions for the excursbot application.
package util

import (
	"math/rand"
	"strings"
)

// RandomIndex returns a uniformly random index in [0, n). Used to pick a
// congratulation variant. Non-cryptographic.
func RandomIndex(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.Intn(n)
}

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; intended for log correlation, not for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}

	return builder.String()
}

// GenerateRequestID generates a unique request ID with "req_" prefix for
// webhook log correlation.
func GenerateRequestID() string {
	return GenerateRandomID("req_", 16)
}
