package codec

import "payengine/internal/domain"

// HostTokenRequest is the first message on a new socket.
type HostTokenRequest struct {
	PTToken     string `json:"ptToken"`
	Origin      string `json:"origin"`
	Attestation string `json:"attestation"`
	Timing      int64  `json:"timing"`
}

// CalculateFeeRequest asks for a fee quote. BankID is the card BIN, or nil
// for ACH.
type CalculateFeeRequest struct {
	Amount int64   `json:"amount"`
	IsACH  bool    `json:"is_ach"`
	BankID *string `json:"bank_id"`
	Timing int64   `json:"timing"`
}

// InstrumentRequest is the sealed plaintext of host:ptInstrument and
// host:tokenize.
type InstrumentRequest struct {
	Type         domain.InstrumentKind `json:"type"`
	Instrument   domain.Instrument     `json:"instrument"`
	BuyerOptions domain.BuyerOptions   `json:"buyer_options"`
	Amount       int64                 `json:"amount,omitempty"`
	FeeMode      domain.FeeMode        `json:"fee_mode,omitempty"`
	Timing       int64                 `json:"timing"`
}

// NewInstrumentRequest normalizes the instrument for the wire. Card numbers
// lose their display separators.
func NewInstrumentRequest(inst domain.Instrument, buyer domain.BuyerOptions, timing int64) InstrumentRequest {
	switch c := inst.(type) {
	case domain.Card:
		c.Number = c.Digits()
		inst = c
	case *domain.Card:
		cc := *c
		cc.Number = cc.Digits()
		inst = cc
	}
	return InstrumentRequest{Type: inst.Kind(), Instrument: inst, BuyerOptions: buyer, Timing: timing}
}

// IdempotencyRequest asks for a payment token for a created instrument.
type IdempotencyRequest struct {
	PTInstrument       string            `json:"pt_instrument"`
	SessionKey         string            `json:"session_key"`
	Amount             int64             `json:"amount"`
	ServiceFee         int64             `json:"service_fee"`
	FeeMode            domain.FeeMode    `json:"fee_mode"`
	ReceiptDescription string            `json:"receipt_description,omitempty"`
	Tags               map[string]string `json:"tags,omitempty"`
	Timing             int64             `json:"timing"`
}

// TransferRequest captures a payment token. It is sent raw.
type TransferRequest struct {
	PaymentToken string            `json:"payment_token"`
	SessionKey   string            `json:"session_key"`
	FeeMode      domain.FeeMode    `json:"fee_mode"`
	Tags         map[string]string `json:"tags,omitempty"`
	Timing       int64             `json:"timing"`
}
