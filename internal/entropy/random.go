// Package entropy draws run seeds from the operating system's randomness
// source, for scenarios that ask for a fresh seed (seed: 0).
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"
)

// Seed returns a positive non-zero int64 from crypto/rand. Falls back to the
// clock if the system source fails.
func Seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand unavailable, seeding from clock", "error", err)
		return clockSeed()
	}
	// Clear the sign bit.
	n := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if n == 0 {
		return clockSeed()
	}
	return n
}

func clockSeed() int64 {
	n := time.Now().UnixNano() & (1<<63 - 1)
	if n == 0 {
		n = 1
	}
	return n
}
