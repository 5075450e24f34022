// Package idgen generates the broker's two kinds of opaque identifier:
// unbiased alphanumeric room IDs and hex short IDs, both drawn from a
// CSPRNG.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// rejectionCeiling is the largest multiple of len(alphanumeric) that
// fits in a byte. Bytes at or above it are discarded so every kept
// byte maps onto the alphabet with equal probability; without this,
// byte%62 would favor the first 256%62=8 characters of the alphabet.
const rejectionCeiling = 256 - (256 % len(alphanumeric))

// RoomID returns a uniformly-distributed alphanumeric string of the
// given length, suitable for room IDs (default length 8).
func RoomID(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("idgen: length must be positive, got %d", length)
	}

	out := make([]byte, length)
	buf := make([]byte, 1)
	for i := 0; i < length; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("idgen: read random byte: %w", err)
		}

		b := buf[0]
		if int(b) >= rejectionCeiling {
			continue
		}

		out[i] = alphanumeric[int(b)%len(alphanumeric)]
		i++
	}

	return string(out), nil
}

// ShortID returns a random hex string encoding the given number of
// random bytes, two hex chars per byte (12 bytes -> 24 hex chars;
// chat message ids use 6 bytes and guest usernames 3).
func ShortID(numBytes int) (string, error) {
	if numBytes <= 0 {
		return "", fmt.Errorf("idgen: numBytes must be positive, got %d", numBytes)
	}

	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: read random bytes: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// MustShortID panics on entropy-source failure. Reserved for paths
// where the caller has no meaningful recovery (e.g. minting a guest
// username during handshake) and a failing CSPRNG means the process
// is already unhealthy.
func MustShortID(numBytes int) string {
	id, err := ShortID(numBytes)
	if err != nil {
		panic(err)
	}
	return id
}
