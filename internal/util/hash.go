package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex is recorded as the upload checksum in document metadata.
func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}
