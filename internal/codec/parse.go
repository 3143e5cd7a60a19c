package codec

import (
	"bytes"
	"encoding/json"
	"strings"

	"payengine/internal/crypto"
	"payengine/internal/domain"
)

// FallbackErrorMessage is used when an "error" array has no string entries.
const FallbackErrorMessage = "An unknown socket error occurred"

// Frame is a classified inbound frame.
type Frame struct {
	Type string
	// Body is the object body, already decrypted when the type is encrypted.
	Body map[string]any
	// Message is set for error frames.
	Message string
	// SocketError marks frames that carried an "error" array.
	SocketError bool
}

// IsError reports whether the frame is an error to surface to the caller.
func (f Frame) IsError() bool { return f.SocketError || f.Type == TypeError }

type inbound struct {
	Type      string          `json:"type"`
	Body      json.RawMessage `json:"body"`
	PublicKey string          `json:"public_key"`
	Error     []any           `json:"error"`
}

// Parse classifies raw. sess supplies the client key used to open encrypted
// bodies and may be nil before the handshake completes. Errors are always
// *domain.Error of kind ProtocolError.
//
// Steps:
//  1. Decode the frame as JSON.
//  2. An "error" array becomes a socket error frame.
//  3. "body" must be present.
//  4. Object bodies are used as is; string bodies are opened when the type
//     is encrypted, kept as the message for "error", and rejected otherwise.
func Parse(raw []byte, sess *domain.Session) (Frame, error) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Frame{}, domain.ProtocolError("could not decode frame", err)
	}

	if in.Error != nil {
		return Frame{Type: TypeError, Message: joinErrors(in.Error), SocketError: true}, nil
	}

	body := bytes.TrimSpace(in.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return Frame{}, domain.ProtocolError("missing body", nil)
	}

	switch body[0] {
	case '{':
		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return Frame{}, domain.ProtocolError("could not decode body", err)
		}
		return Frame{Type: in.Type, Body: m}, nil
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return Frame{}, domain.ProtocolError("could not decode body", err)
		}
		switch {
		case IsEncrypted(in.Type):
			m, err := openBody(s, in.PublicKey, sess)
			if err != nil {
				return Frame{}, err
			}
			return Frame{Type: in.Type, Body: m}, nil
		case in.Type == TypeError:
			return Frame{Type: TypeError, Message: s}, nil
		}
	}
	return Frame{}, domain.ProtocolError("invalid body type", nil)
}

func joinErrors(errs []any) string {
	var b strings.Builder
	for _, e := range errs {
		if s, ok := e.(string); ok {
			b.WriteString(s)
		}
	}
	if b.Len() == 0 {
		return FallbackErrorMessage
	}
	return b.String()
}

// openBody decrypts a sealed body. The frame's own public_key wins over the
// session's server key when present.
func openBody(body, publicKey string, sess *domain.Session) (map[string]any, error) {
	if sess == nil {
		return nil, domain.ProtocolError("encrypted body without a session", nil)
	}
	peer := sess.PublicKey
	if publicKey != "" {
		k, err := crypto.ParseBoxPublic(publicKey)
		if err != nil {
			return nil, domain.ProtocolError("invalid frame public key", err)
		}
		peer = k
	}
	sealed, err := crypto.FromB64(body)
	if err != nil {
		return nil, domain.ProtocolError("could not decode encrypted body", err)
	}
	pt, err := crypto.Open(sealed, peer, sess.ClientPrivate)
	if err != nil {
		return nil, domain.ProtocolError("could not decrypt body", err)
	}
	defer crypto.Wipe(pt)

	var m map[string]any
	if err := json.Unmarshal(pt, &m); err != nil {
		return nil, domain.ProtocolError("could not parse body", err)
	}
	return m, nil
}
