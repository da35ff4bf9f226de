// Package idutil provides utilities for invocation ID generation.
//
// Invocation IDs in minibox follow Docker's container ID conventions:
//   - Full ID: 64-character hexadecimal string
//   - Short ID: First 12 characters of the full ID
//
// The short ID names the per-invocation rootfs directory, so two concurrent
// runs never operate on the same filesystem tree.
package idutil

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	// FullIDLength is the length of a full invocation ID (64 hex characters = 32 bytes).
	FullIDLength = 64

	// ShortIDLength is the standard short ID length (12 characters, Docker convention).
	ShortIDLength = 12
)

// GenerateID generates a random 64-character hexadecimal invocation ID.
func GenerateID() string {
	bytes := make([]byte, 32) // 32 bytes = 64 hex characters
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to predictable ID if random generation fails.
		// This should never happen in practice.
		return "0000000000000000000000000000000000000000000000000000000000000000"
	}
	return hex.EncodeToString(bytes)
}

// ShortID returns the first 12 characters of the invocation ID.
func ShortID(id string) string {
	if len(id) >= ShortIDLength {
		return id[:ShortIDLength]
	}
	return id
}
