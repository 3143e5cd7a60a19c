package domain

// OutcomeKind tells which result field of an Outcome is set.
type OutcomeKind string

const (
	OutcomeToken         OutcomeKind = "token"
	OutcomeTransfer      OutcomeKind = "transfer"
	OutcomeBarcode       OutcomeKind = "barcode"
	OutcomePaymentMethod OutcomeKind = "payment_method"
)

// Outcome is the successful resolution of a tokenize, capture or
// tokenize-only call.
type Outcome struct {
	Kind          OutcomeKind
	Token         *TokenResult
	Transfer      *TransferResult
	Barcode       *BarcodeResult
	PaymentMethod *PaymentMethodResult
}

// TokenResult describes an issued, not yet captured payment token.
type TokenResult struct {
	ReceiptNumber string
	PaymentToken  string
	FirstSix      string
	LastFour      string
	Brand         string
	Amount        int64
	ServiceFee    int64
	FeeMode       FeeMode
}

// TransferResult describes a completed (or declined) transfer.
type TransferResult struct {
	ReceiptNumber string
	TransferToken string
	LastFour      string
	Brand         string
	CreatedAt     string
	Amount        int64
	ServiceFee    int64
	State         string
	Tags          map[string]string
}

// BarcodeResult is returned for cash payments.
type BarcodeResult struct {
	BarcodeID  string
	BarcodeURL string
	MapURL     string
	Amount     int64
	Merchant   string
}

// PaymentMethodResult is returned by tokenize-only calls.
type PaymentMethodResult struct {
	PaymentMethodID string
	LastFour        string
	Brand           string
	ExpirationDate  string
	PaymentType     string
}

// FeeQuote is a fee estimate for the current selection.
type FeeQuote struct {
	BIN string // empty for ACH
	ACH bool
	Fee int64
}
