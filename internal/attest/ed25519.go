package attest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"payengine/internal/domain"
	"payengine/internal/util/memzero"
)

// Statement is the attestation blob produced by Software.
type Statement struct {
	KeyID     string `json:"key_id"`
	PublicKey []byte `json:"public_key"`
	Signature []byte `json:"signature"`
}

// Software is an in-process Attestor backed by Ed25519 keys. It is meant for
// the CLI and tests; devices use their platform attestation service instead.
type Software struct {
	mu   sync.Mutex
	keys map[domain.KeyID]ed25519.PrivateKey
}

var _ domain.Attestor = (*Software)(nil)

func NewSoftware() *Software {
	return &Software{keys: make(map[domain.KeyID]ed25519.PrivateKey)}
}

// GenerateKey creates a new signing key and returns its id.
func (s *Software) GenerateKey(ctx context.Context) (domain.KeyID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	id := domain.KeyID(uuid.NewString())
	s.mu.Lock()
	s.keys[id] = sk
	s.mu.Unlock()
	return id, nil
}

// Attest signs challengeHash with the key and returns a JSON Statement.
// Keys are single use: the key is forgotten once it has signed.
func (s *Software) Attest(ctx context.Context, keyID domain.KeyID, challengeHash []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	sk, ok := s.keys[keyID]
	delete(s.keys, keyID)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("attest: unknown key %q", keyID)
	}
	defer memzero.Zero(sk)
	st := Statement{
		KeyID:     string(keyID),
		PublicKey: sk.Public().(ed25519.PublicKey),
		Signature: ed25519.Sign(sk, challengeHash),
	}
	return json.Marshal(st)
}

// Verify checks a Statement produced by Attest against challengeHash.
func Verify(blob, challengeHash []byte) (Statement, error) {
	var st Statement
	if err := json.Unmarshal(blob, &st); err != nil {
		return st, fmt.Errorf("decode statement: %w", err)
	}
	if len(st.PublicKey) != ed25519.PublicKeySize {
		return st, fmt.Errorf("statement public key: want %d bytes, got %d", ed25519.PublicKeySize, len(st.PublicKey))
	}
	if !ed25519.Verify(ed25519.PublicKey(st.PublicKey), challengeHash, st.Signature) {
		return st, fmt.Errorf("statement signature invalid")
	}
	return st, nil
}
