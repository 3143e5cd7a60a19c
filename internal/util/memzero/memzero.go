// Package memzero clears sensitive buffers once they are no longer needed.
package memzero

import "crypto/subtle"

// Zero overwrites b in place.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.XORBytes(b, b, b)
}

// Key overwrites a 32-byte key.
func Key(k *[32]byte) { Zero(k[:]) }
