package domain

import "fmt"

// ------------- X25519 (NaCl box) -------------

// BoxPublic is a Curve25519 public key used for sealed message bodies.
type BoxPublic [32]byte

// BoxPrivate is the matching Curve25519 private key.
type BoxPrivate [32]byte

func (k BoxPublic) Slice() []byte  { return k[:] }
func (k BoxPrivate) Slice() []byte { return k[:] }

// IsZero reports whether the key was never set.
func (k BoxPublic) IsZero() bool { return k == BoxPublic{} }

func MustBoxPublic(b []byte) BoxPublic {
	if len(b) != 32 {
		panic(fmt.Errorf("box public: want 32 bytes, got %d", len(b)))
	}
	var out BoxPublic
	copy(out[:], b)
	return out
}

func MustBoxPrivate(b []byte) BoxPrivate {
	if len(b) != 32 {
		panic(fmt.Errorf("box private: want 32 bytes, got %d", len(b)))
	}
	var out BoxPrivate
	copy(out[:], b)
	return out
}
