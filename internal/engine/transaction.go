package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"payengine/internal/codec"
	"payengine/internal/domain"
)

// TxState is a transaction step.
type TxState int

const (
	Idle TxState = iota
	InstrumentSent
	TokenIssued
	TransferSent
	Complete
	Failed
)

func (s TxState) String() string {
	switch s {
	case Idle:
		return "idle"
	case InstrumentSent:
		return "instrument_sent"
	case TokenIssued:
		return "token_issued"
	case TransferSent:
		return "transfer_sent"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("tx(%d)", int(s))
	}
}

// TokenizeRequest starts a payment.
type TokenizeRequest struct {
	Instrument domain.Instrument
	// Amount is in minor units and must be positive.
	Amount int64
	// FeeMode defaults to Surcharge.
	FeeMode            domain.FeeMode
	Buyer              domain.BuyerOptions
	Tags               map[string]string
	ReceiptDescription string
}

type flow int

const (
	flowPayment flow = iota
	flowTokenizeOnly
)

// transaction is guarded by Engine.mu.
type transaction struct {
	id      string
	flow    flow
	req     TokenizeRequest
	state   TxState
	started time.Time

	ptInstrument string
	firstSix     string
	lastFour     string
	brand        string
	paymentToken string
	token        *domain.TokenResult

	// future is the caller waiting on the current step, nil while a
	// service-fee payment waits for Capture.
	future *Future[domain.Outcome]
}

func newTransaction(f flow, req TokenizeRequest, fut *Future[domain.Outcome], now time.Time) *transaction {
	if req.FeeMode == "" {
		req.FeeMode = domain.Surcharge
	}
	return &transaction{
		id:      uuid.NewString(),
		flow:    f,
		req:     req,
		state:   Idle,
		started: now,
		future:  fut,
	}
}

func (t *transaction) isCash() bool {
	return t.req.Instrument != nil && t.req.Instrument.Kind() == domain.KindCash
}

func (t *transaction) awaitingCapture() bool {
	return t.state == Complete && t.future == nil && t.paymentToken != ""
}

func (t *transaction) tokenResult(v *codec.PaymentTokenIssued) *domain.TokenResult {
	return &domain.TokenResult{
		ReceiptNumber: v.Idempotency,
		PaymentToken:  v.PaymentToken,
		FirstSix:      t.firstSix,
		LastFour:      t.lastFour,
		Brand:         t.brand,
		Amount:        v.Payment.Amount,
		ServiceFee:    v.Payment.ServiceFee,
		FeeMode:       t.req.FeeMode,
	}
}

func transferResult(v *codec.TransferComplete) *domain.TransferResult {
	return &domain.TransferResult{
		ReceiptNumber: v.ReceiptNumber,
		TransferToken: v.TransferToken,
		LastFour:      v.LastFour,
		Brand:         v.Brand,
		CreatedAt:     v.CreatedAt,
		Amount:        v.Amount,
		ServiceFee:    v.ServiceFee,
		State:         v.State,
		Tags:          v.Tags,
	}
}
