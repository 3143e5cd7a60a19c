package hosttest

import (
	"encoding/json"

	"golang.org/x/crypto/curve25519"

	"payengine/internal/crypto"
	"payengine/internal/domain"
)

// ObjectFrame builds a frame with an object body.
func ObjectFrame(typ string, body any) []byte {
	b, _ := json.Marshal(map[string]any{"type": typ, "body": body})
	return b
}

// ErrorFrame builds an "error" type frame with a string body.
func ErrorFrame(msg string) []byte {
	return ObjectFrame("error", msg)
}

// SocketErrorFrame builds a frame carrying an "error" array.
func SocketErrorFrame(msgs ...string) []byte {
	b, _ := json.Marshal(map[string]any{"type": "error", "error": msgs})
	return b
}

// SealedFrame seals body to clientPub and includes the host key as
// public_key.
func SealedFrame(typ string, body any, clientPub domain.BoxPublic, hostPriv domain.BoxPrivate) ([]byte, error) {
	pt, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	ct, err := crypto.Seal(pt, clientPub, hostPriv)
	if err != nil {
		return nil, err
	}
	hostPub, err := curve25519.X25519(hostPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"type":       typ,
		"body":       crypto.B64(ct),
		"public_key": crypto.B64(hostPub),
	})
}
