package codec

import (
	"encoding/json"
	"fmt"

	"payengine/internal/crypto"
	"payengine/internal/domain"
)

// Outbound actions.
const (
	ActionHostToken    = "host:hostToken"
	ActionCalculateFee = "host:calculateFee"
	ActionPTInstrument = "host:ptInstrument"
	ActionIdempotency  = "host:idempotency"
	ActionTransfer     = "host:transfer"
	ActionTokenize     = "host:tokenize"
)

// Inbound frame types.
const (
	TypeHostToken        = "host_token"
	TypeCalculatedFee    = "calculated_fee"
	TypePTInstrument     = "pt_instrument"
	TypeIdempotency      = "idempotency"
	TypeTransferComplete = "transfer_complete"
	TypeBarcodeComplete  = "barcode_complete"
	TypeTokenizeComplete = "tokenize_complete"
	TypeError            = "error"
)

// encryptedTypes carry a sealed string body.
var encryptedTypes = map[string]bool{
	TypePTInstrument:     true,
	TypeIdempotency:      true,
	TypeTransferComplete: true,
	TypeBarcodeComplete:  true,
	TypeTokenizeComplete: true,
}

// IsEncrypted reports whether frames of type t carry a sealed body.
func IsEncrypted(t string) bool { return encryptedTypes[t] }

type envelope struct {
	Action  string `json:"action"`
	Encoded string `json:"encoded"`
}

// Encode wraps payload as {"action", "encoded": base64(JSON(payload))}.
func Encode(action string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	return json.Marshal(envelope{Action: action, Encoded: crypto.B64(b)})
}

// EncodeRaw inlines the JSON fields of payload next to "action".
// payload must marshal to a JSON object.
func EncodeRaw(action string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("%s payload is not an object: %w", action, err)
	}
	fields["action"] = action
	return json.Marshal(fields)
}

// SealedPayload is the encoded form of an instrument-bearing request.
type SealedPayload struct {
	Encrypted  string `json:"encrypted"`
	PublicKey  string `json:"public_key"`
	SessionKey string `json:"session_key"`
}

// Seal encrypts payload to the session's server key with the session's
// client key pair.
func Seal(payload any, sess *domain.Session) (SealedPayload, error) {
	if sess == nil || sess.PublicKey.IsZero() {
		return SealedPayload{}, fmt.Errorf("seal: no session key")
	}
	pt, err := json.Marshal(payload)
	if err != nil {
		return SealedPayload{}, fmt.Errorf("marshal sealed payload: %w", err)
	}
	defer crypto.Wipe(pt)

	ct, err := crypto.Seal(pt, sess.PublicKey, sess.ClientPrivate)
	if err != nil {
		return SealedPayload{}, fmt.Errorf("seal payload: %w", err)
	}
	return SealedPayload{
		Encrypted:  crypto.B64(ct),
		PublicKey:  crypto.B64(sess.ClientPublic.Slice()),
		SessionKey: sess.SessionKey,
	}, nil
}

// EncodeSealed seals payload and wraps it with Encode.
func EncodeSealed(action string, payload any, sess *domain.Session) ([]byte, error) {
	sp, err := Seal(payload, sess)
	if err != nil {
		return nil, err
	}
	return Encode(action, sp)
}
