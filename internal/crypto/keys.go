package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"payengine/internal/domain"
)

// GenerateBoxKeyPair returns a fresh Curve25519 key pair for one session.
func GenerateBoxKeyPair() (priv domain.BoxPrivate, pub domain.BoxPublic, err error) {
	pk, sk, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	return domain.BoxPrivate(*sk), domain.BoxPublic(*pk), nil
}

// ParseBoxPublic decodes a base64 public key and checks its length.
func ParseBoxPublic(s string) (domain.BoxPublic, error) {
	b, err := FromB64(s)
	if err != nil {
		return domain.BoxPublic{}, fmt.Errorf("decode public key: %w", err)
	}
	if len(b) != 32 {
		return domain.BoxPublic{}, fmt.Errorf("public key: want 32 bytes, got %d", len(b))
	}
	return domain.MustBoxPublic(b), nil
}
