package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex returns the SHA-256 digest of the input encoded as lowercase hex.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns the first n hex characters of the input's SHA-256
// digest. It lets logs correlate identifiers without recording them.
func ShortDigest(input string, n int) string {
	full := Sha256Hex(input)
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}
