package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/box"

	"payengine/internal/domain"
	"payengine/internal/util/memzero"
)

// NonceSize is the length of the nonce prefixed to every sealed body.
const NonceSize = 24

var (
	// ErrShortCiphertext is returned when the input cannot hold a nonce and tag.
	ErrShortCiphertext = errors.New("ciphertext too short")
	// ErrOpen is returned when authentication fails.
	ErrOpen = errors.New("cannot open sealed body")
)

// Seal encrypts plaintext for peer and returns nonce || box.
func Seal(plaintext []byte, peer domain.BoxPublic, priv domain.BoxPrivate) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	pk := [32]byte(peer)
	sk := [32]byte(priv)
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+box.Overhead)
	copy(out, nonce[:])
	return box.Seal(out, plaintext, &nonce, &pk, &sk), nil
}

// Open authenticates and decrypts a nonce-prefixed box sent by peer.
func Open(sealed []byte, peer domain.BoxPublic, priv domain.BoxPrivate) ([]byte, error) {
	if len(sealed) < NonceSize+box.Overhead {
		return nil, ErrShortCiphertext
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])
	pk := [32]byte(peer)
	sk := [32]byte(priv)
	pt, ok := box.Open(nil, sealed[NonceSize:], &nonce, &pk, &sk)
	if !ok {
		return nil, ErrOpen
	}
	return pt, nil
}

// Wipe zeroes a plaintext buffer returned by Open.
func Wipe(b []byte) { memzero.Zero(b) }

// WipeKey zeroes a private key that will not be used again.
func WipeKey(k *domain.BoxPrivate) { memzero.Key((*[32]byte)(k)) }
