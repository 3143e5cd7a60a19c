package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the SHA-256 hash of b.
func Digest(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}
