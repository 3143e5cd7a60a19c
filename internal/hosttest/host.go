package hosttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"payengine/internal/attest"
	"payengine/internal/codec"
	"payengine/internal/crypto"
	"payengine/internal/domain"
	"payengine/internal/validate"
)

// Host is a scripted payment host. Exported fields may be changed between
// calls; they are read under the host's lock.
type Host struct {
	PTToken   string
	Challenge string
	Origin    string

	// CardFee and BankFee are quoted for card and ACH fee requests.
	CardFee int64
	BankFee int64
	// HoldFees queues fee responses until ReleaseFees.
	HoldFees bool
	// TransferState is reported by transfer_complete.
	TransferState string
	// VerifyAttestation checks host-token attestations with attest.Verify.
	VerifyAttestation bool
	// BadHostToken answers host:hostToken with an unusable public key.
	BadHostToken bool
	// TokenErr fails FetchPTToken.
	TokenErr error
	// Errors maps an action to the message of an error frame sent instead of
	// the normal response.
	Errors map[string]string

	priv domain.BoxPrivate
	pub  domain.BoxPublic

	mu         sync.Mutex
	clientPub  domain.BoxPublic
	instrument map[string]any
	payment    codec.IdempotencyRequest
	held       [][]byte
	counts     map[string]int
	sessions   int
}

var _ domain.TokenSource = (*Host)(nil)

// New returns a host with a fresh box key pair.
func New() (*Host, error) {
	priv, pub, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return nil, err
	}
	return &Host{
		PTToken:       "pt-" + uuid.NewString(),
		Challenge:     "challenge-" + uuid.NewString(),
		Origin:        "native",
		TransferState: "SUCCESS",
		Errors:        map[string]string{},
		priv:          priv,
		pub:           pub,
		counts:        map[string]int{},
	}, nil
}

// PublicKey is the host's box public key.
func (h *Host) PublicKey() domain.BoxPublic { return h.pub }

// FetchPTToken implements domain.TokenSource in memory.
func (h *Host) FetchPTToken(ctx context.Context) (domain.PTToken, error) {
	if err := ctx.Err(); err != nil {
		return domain.PTToken{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.TokenErr != nil {
		return domain.PTToken{}, h.TokenErr
	}
	return domain.PTToken{Token: h.PTToken, Origin: h.Origin, Challenge: h.Challenge}, nil
}

// Count returns how many frames with action the host has handled.
func (h *Host) Count(action string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[action]
}

// Sessions returns the number of host tokens issued.
func (h *Host) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions
}

// ReleaseFees returns the held fee responses in the order they were queued.
func (h *Host) ReleaseFees() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.held
	h.held = nil
	return out
}

// Handle answers one client frame. Malformed frames get an error frame.
func (h *Host) Handle(frame []byte) [][]byte {
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		return [][]byte{ErrorFrame("malformed frame")}
	}
	action, _ := m["action"].(string)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[action]++
	if msg, ok := h.Errors[action]; ok {
		return [][]byte{ErrorFrame(msg)}
	}

	out, err := h.dispatch(action, m)
	if err != nil {
		return [][]byte{SocketErrorFrame(err.Error())}
	}
	if out == nil {
		return nil
	}
	return [][]byte{out}
}

func (h *Host) dispatch(action string, m map[string]any) ([]byte, error) {
	switch action {
	case codec.ActionHostToken:
		var req codec.HostTokenRequest
		if err := decodeEncoded(m, &req); err != nil {
			return nil, err
		}
		return h.hostToken(req)

	case codec.ActionCalculateFee:
		var req codec.CalculateFeeRequest
		if err := decodeEncoded(m, &req); err != nil {
			return nil, err
		}
		fee := h.CardFee
		if req.IsACH {
			fee = h.BankFee
		}
		f := ObjectFrame(codec.TypeCalculatedFee, map[string]any{"fee": fee, "bank_id": req.BankID})
		if h.HoldFees {
			h.held = append(h.held, f)
			return nil, nil
		}
		return f, nil

	case codec.ActionPTInstrument, codec.ActionTokenize:
		var req struct {
			Type         string         `json:"type"`
			Instrument   map[string]any `json:"instrument"`
			Amount       int64          `json:"amount"`
			BuyerOptions map[string]any `json:"buyer_options"`
		}
		if err := h.openSealed(m, &req); err != nil {
			return nil, err
		}
		h.instrument = req.Instrument
		if action == codec.ActionTokenize {
			return h.sealedFrame(codec.TypeTokenizeComplete, map[string]any{
				"payment_method_id": "pm_" + uuid.NewString(),
				"last_four":         h.lastFour(),
				"brand":             h.brand(),
				"expiration_date":   h.expiry(),
				"payment_type":      req.Type,
			})
		}
		if req.Type == string(domain.KindCash) {
			return h.sealedFrame(codec.TypeBarcodeComplete, map[string]any{
				"barcode_id":  "bc_" + uuid.NewString(),
				"barcode_url": "https://barcodes.example/bc",
				"map_url":     "https://maps.example/retail",
				"amount":      req.Amount,
				"merchant":    "test-merchant",
			})
		}
		return h.sealedFrame(codec.TypePTInstrument, map[string]any{
			"pt_instrument": "ptins_" + uuid.NewString(),
			"first_six":     h.firstSix(),
			"last_four":     h.lastFour(),
			"brand":         h.brand(),
		})

	case codec.ActionIdempotency:
		var req codec.IdempotencyRequest
		if err := decodeEncoded(m, &req); err != nil {
			return nil, err
		}
		h.payment = req
		return h.sealedFrame(codec.TypeIdempotency, map[string]any{
			"payment_token": "ptok_" + uuid.NewString(),
			"idempotency":   "rcpt_" + uuid.NewString(),
			"payment": map[string]any{
				"amount":      req.Amount,
				"service_fee": req.ServiceFee,
				"currency":    "USD",
				"merchant":    "test-merchant",
				"fee_mode":    string(req.FeeMode),
			},
		})

	case codec.ActionTransfer:
		token, _ := m["payment_token"].(string)
		if token == "" {
			return nil, fmt.Errorf("transfer without payment token")
		}
		return h.sealedFrame(codec.TypeTransferComplete, map[string]any{
			"receipt_number": "rcpt_" + uuid.NewString(),
			"transfer_token": "tr_" + uuid.NewString(),
			"last_four":      h.lastFour(),
			"brand":          h.brand(),
			"created_at":     "2025-01-01T00:00:00Z",
			"amount":         h.payment.Amount,
			"service_fee":    h.payment.ServiceFee,
			"state":          h.TransferState,
			"tags":           h.payment.Tags,
		})
	}
	return nil, fmt.Errorf("unknown action %q", action)
}

func (h *Host) hostToken(req codec.HostTokenRequest) ([]byte, error) {
	if req.PTToken != h.PTToken {
		return nil, fmt.Errorf("unknown pt-token")
	}
	if h.VerifyAttestation {
		blob, err := crypto.FromB64(req.Attestation)
		if err != nil {
			return nil, fmt.Errorf("attestation encoding: %w", err)
		}
		sum := crypto.Digest([]byte(h.Challenge))
		if _, err := attest.Verify(blob, sum[:]); err != nil {
			return nil, err
		}
	}
	h.sessions++
	pub := crypto.B64(h.pub.Slice())
	if h.BadHostToken {
		pub = "not-a-key"
	}
	return ObjectFrame(codec.TypeHostToken, map[string]any{
		"hostToken":  "ht_" + uuid.NewString(),
		"sessionKey": "sk_" + uuid.NewString(),
		"publicKey":  pub,
	}), nil
}

func decodeEncoded(m map[string]any, out any) error {
	enc, _ := m["encoded"].(string)
	b, err := crypto.FromB64(enc)
	if err != nil {
		return fmt.Errorf("decode encoded: %w", err)
	}
	return json.Unmarshal(b, out)
}

func (h *Host) openSealed(m map[string]any, out any) error {
	var sp codec.SealedPayload
	if err := decodeEncoded(m, &sp); err != nil {
		return err
	}
	clientPub, err := crypto.ParseBoxPublic(sp.PublicKey)
	if err != nil {
		return err
	}
	ct, err := crypto.FromB64(sp.Encrypted)
	if err != nil {
		return err
	}
	pt, err := crypto.Open(ct, clientPub, h.priv)
	if err != nil {
		return err
	}
	h.clientPub = clientPub
	return json.Unmarshal(pt, out)
}

func (h *Host) sealedFrame(typ string, body any) ([]byte, error) {
	if h.clientPub.IsZero() {
		return nil, fmt.Errorf("no client key for %s", typ)
	}
	return SealedFrame(typ, body, h.clientPub, h.priv)
}

func (h *Host) number() string {
	n, _ := h.instrument["number"].(string)
	if n == "" {
		n, _ = h.instrument["account_number"].(string)
	}
	return n
}

func (h *Host) firstSix() string { return validate.BIN(h.number()) }

func (h *Host) lastFour() string {
	n := h.number()
	if len(n) <= 4 {
		return n
	}
	return n[len(n)-4:]
}

func (h *Host) brand() string {
	if _, ok := h.instrument["routing_number"]; ok {
		return "ACH"
	}
	return validate.Brand(h.number())
}

func (h *Host) expiry() string {
	m, _ := h.instrument["expiration_month"].(string)
	y, _ := h.instrument["expiration_year"].(string)
	if m == "" {
		return ""
	}
	return m + "/" + y
}
