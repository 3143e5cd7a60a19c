package codec

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"payengine/internal/domain"
)

// ErrUnknownType is returned by Decode for types with no registered schema.
var ErrUnknownType = errors.New("unknown frame type")

// HostTokenIssued answers host:hostToken.
type HostTokenIssued struct {
	HostToken  string `json:"hostToken"`
	SessionKey string `json:"sessionKey"`
	PublicKey  string `json:"publicKey"`
}

// FeeCalculated answers host:calculateFee. BankID is nil for ACH quotes.
type FeeCalculated struct {
	Fee    *int64  `json:"fee"`
	BankID *string `json:"bank_id"`
}

// InstrumentCreated answers host:ptInstrument.
type InstrumentCreated struct {
	PTInstrument string `json:"pt_instrument"`
	FirstSix     string `json:"first_six"`
	LastFour     string `json:"last_four"`
	Brand        string `json:"brand"`
}

// PaymentDetails echoes the amounts the host priced.
type PaymentDetails struct {
	Amount     int64  `json:"amount"`
	ServiceFee int64  `json:"service_fee"`
	Currency   string `json:"currency"`
	Merchant   string `json:"merchant"`
	FeeMode    string `json:"fee_mode"`
}

// PaymentTokenIssued answers host:idempotency.
type PaymentTokenIssued struct {
	PaymentToken string         `json:"payment_token"`
	Idempotency  string         `json:"idempotency"`
	Payment      PaymentDetails `json:"payment"`
}

// TransferComplete answers host:transfer.
type TransferComplete struct {
	ReceiptNumber string            `json:"receipt_number"`
	TransferToken string            `json:"transfer_token"`
	LastFour      string            `json:"last_four"`
	Brand         string            `json:"brand"`
	CreatedAt     string            `json:"created_at"`
	Amount        int64             `json:"amount"`
	ServiceFee    int64             `json:"service_fee"`
	State         string            `json:"state"`
	Tags          map[string]string `json:"tags"`
}

// StateFailure is the transfer state reported for declined payments.
const StateFailure = "FAILURE"

// Failed reports whether the host declined the transfer.
func (t TransferComplete) Failed() bool { return t.State == StateFailure }

// BarcodeComplete answers a cash host:ptInstrument flow.
type BarcodeComplete struct {
	BarcodeID  string `json:"barcode_id"`
	BarcodeURL string `json:"barcode_url"`
	MapURL     string `json:"map_url"`
	Amount     int64  `json:"amount"`
	Merchant   string `json:"merchant"`
}

// PaymentMethodTokenized answers host:tokenize.
type PaymentMethodTokenized struct {
	PaymentMethodID string `json:"payment_method_id"`
	LastFour        string `json:"last_four"`
	Brand           string `json:"brand"`
	ExpirationDate  string `json:"expiration_date"`
	PaymentType     string `json:"payment_type"`
}

// schemas maps a frame type to a constructor for its variant.
var schemas = map[string]func() any{
	TypeHostToken:        func() any { return &HostTokenIssued{} },
	TypeCalculatedFee:    func() any { return &FeeCalculated{} },
	TypePTInstrument:     func() any { return &InstrumentCreated{} },
	TypeIdempotency:      func() any { return &PaymentTokenIssued{} },
	TypeTransferComplete: func() any { return &TransferComplete{} },
	TypeBarcodeComplete:  func() any { return &BarcodeComplete{} },
	TypeTokenizeComplete: func() any { return &PaymentMethodTokenized{} },
}

// Decoder maps frame bodies onto typed variants.
type Decoder struct {
	// Strict rejects body fields the variant does not declare.
	Strict bool
}

// Decode returns a pointer to the variant registered for f.Type. Error frames
// have no variant; callers check IsError first.
func (d Decoder) Decode(f Frame) (any, error) {
	if f.IsError() {
		return nil, fmt.Errorf("decode error frame: %s", f.Message)
	}
	mk, ok := schemas[f.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	out := mk()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		ErrorUnused:      d.Strict,
		WeaklyTypedInput: !d.Strict,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(f.Body); err != nil {
		return nil, domain.ProtocolError(fmt.Sprintf("decode %s body", f.Type), err)
	}
	return out, nil
}
