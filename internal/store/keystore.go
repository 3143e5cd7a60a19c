package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// sealedFormatVersion is the current version of the sealed file format.
const sealedFormatVersion = 1

// ErrWrongPassphrase is returned when the passphrase is wrong or the file
// has been modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted journal")

// sealedFile is the on-disk JSON holding the ciphertext and KDF parameters.
type sealedFile struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

type kdfParams struct{ N, R, P int }

// defaultKDF are the scrypt tunables for new files.
var defaultKDF = kdfParams{N: 1 << 15, R: 8, P: 1}

// seal derives a key from passphrase under a fresh salt and encrypts raw.
// Every call uses a new salt, so the zero nonce never repeats under a key.
func seal(passphrase string, raw []byte, kp kdfParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	aead, err := deriveAEAD(passphrase, salt[:], kp)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	return json.Marshal(sealedFile{
		V:      sealedFormatVersion,
		Salt:   salt[:],
		N:      kp.N,
		R:      kp.R,
		P:      kp.P,
		Cipher: aead.Seal(nil, nonce[:], raw, salt[:]),
	})
}

// unseal reverses seal.
func unseal(passphrase string, b []byte) ([]byte, error) {
	var sf sealedFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("decode sealed file: %w", err)
	}
	if sf.V > sealedFormatVersion {
		return nil, fmt.Errorf("unsupported journal version %d", sf.V)
	}
	aead, err := deriveAEAD(passphrase, sf.Salt, kdfParams{N: sf.N, R: sf.R, P: sf.P})
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], sf.Cipher, sf.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func deriveAEAD(passphrase string, salt []byte, kp kdfParams) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, kp.N, kp.R, kp.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return chacha20poly1305.New(key)
}
