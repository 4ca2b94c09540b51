package utils

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ContentDigest returns the hex BLAKE2b-256 of data. It is recorded with
// every upload attempt so a stored file can later be checked against what
// the gateway actually sent.
func ContentDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
