package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "rdm_3f2a…". An empty prefix yields
// the bare hex string.
func NewID(prefix string) string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	if prefix == "" {
		return hex.EncodeToString(buf)
	}
	return prefix + "_" + hex.EncodeToString(buf)
}
