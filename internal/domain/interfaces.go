package domain

import "context"

// KeyID identifies a device key created by the attestation service.
type KeyID string

// Attestor is the platform device-attestation service.
type Attestor interface {
	GenerateKey(ctx context.Context) (KeyID, error)
	// Attest returns an opaque attestation blob binding keyID to challengeHash.
	Attest(ctx context.Context, keyID KeyID, challengeHash []byte) ([]byte, error)
}

// Transport is the persistent socket. Receive blocks until a frame arrives,
// the context ends, or the connection fails.
type Transport interface {
	Connect(ctx context.Context, url string) error
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// TokenSource fetches the pt-token and attestation challenge over plain
// request/response, before any socket exists.
type TokenSource interface {
	FetchPTToken(ctx context.Context) (PTToken, error)
}
