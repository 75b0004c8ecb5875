package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateKey joins prefix and parts with ':'.
func GenerateKey(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}

// HashKey returns a fixed-length hex digest of the given parts, used to key
// arbitrary payloads.
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
