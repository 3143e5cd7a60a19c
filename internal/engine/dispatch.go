package engine

import (
	"errors"

	"go.uber.org/zap"

	"payengine/internal/codec"
	"payengine/internal/domain"
)

// handleFrame runs on the session read loop for every frame that is not the
// answer to an awaited request.
//
// Steps:
//  1. Parse the frame with the current session keys.
//  2. Error frames fail the pending transaction, or go to the error
//     observer when nothing is pending.
//  3. Decode the body into its variant and dispatch on it. Unknown types
//     are ignored.
func (e *Engine) handleFrame(raw []byte) {
	e.mu.Lock()
	sess := e.sessionCopy()
	tx := e.tx
	e.mu.Unlock()

	f, err := codec.Parse(raw, sess)
	if err != nil {
		e.protocolFailure(tx, err)
		return
	}
	if f.IsError() {
		e.log.Warn("host reported an error", zap.String("message", f.Message), zap.Bool("socket", f.SocketError))
		if tx != nil {
			e.fail(tx, domain.TransactionError(f.Message, nil))
			return
		}
		e.reportError(domain.ProtocolError(f.Message, nil))
		return
	}

	v, err := e.decoder.Decode(f)
	if errors.Is(err, codec.ErrUnknownType) {
		e.log.Debug("ignoring frame", zap.String("type", f.Type))
		return
	}
	if err != nil {
		e.protocolFailure(tx, err)
		return
	}

	switch v := v.(type) {
	case *codec.FeeCalculated:
		e.applyFee(v)
	case *codec.InstrumentCreated:
		e.onInstrumentCreated(v)
	case *codec.PaymentTokenIssued:
		e.onPaymentToken(v)
	case *codec.TransferComplete:
		e.onTransferComplete(v)
	case *codec.BarcodeComplete:
		e.onBarcode(v)
	case *codec.PaymentMethodTokenized:
		e.onPaymentMethod(v)
	default:
		e.log.Debug("unexpected frame", zap.String("type", f.Type))
	}
}

// protocolFailure fails tx with err, or reports err when nothing is pending.
func (e *Engine) protocolFailure(tx *transaction, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		err = domain.ProtocolError("bad frame", err)
	}
	e.log.Warn("dropping frame", zap.Error(err))
	if tx != nil {
		e.fail(tx, err)
		return
	}
	e.reportError(err)
}

// current returns the pending transaction when it is at state. Callers hold
// e.mu.
func (e *Engine) current(state TxState) *transaction {
	if e.tx == nil || e.tx.state != state {
		return nil
	}
	return e.tx
}

func (e *Engine) onInstrumentCreated(v *codec.InstrumentCreated) {
	e.mu.Lock()
	tx := e.current(InstrumentSent)
	if tx == nil || tx.flow != flowPayment || tx.ptInstrument != "" {
		e.mu.Unlock()
		e.log.Debug("unexpected instrument frame")
		return
	}
	tx.ptInstrument = v.PTInstrument
	tx.firstSix = v.FirstSix
	tx.lastFour = v.LastFour
	tx.brand = v.Brand
	sess := e.sessionCopy()
	e.mu.Unlock()
	if sess == nil {
		e.fail(tx, domain.HandshakeError("engine is not ready", nil))
		return
	}

	fee := int64(0)
	if q, ok := e.Quote(tx.req.Instrument); ok {
		fee = q.Fee
	}
	frame, err := codec.Encode(codec.ActionIdempotency, codec.IdempotencyRequest{
		PTInstrument:       v.PTInstrument,
		SessionKey:         sess.SessionKey,
		Amount:             tx.req.Amount,
		ServiceFee:         fee,
		FeeMode:            tx.req.FeeMode,
		ReceiptDescription: tx.req.ReceiptDescription,
		Tags:               tx.req.Tags,
		Timing:             e.now().UnixMilli(),
	})
	if err != nil {
		e.fail(tx, domain.ProtocolError("encode idempotency request", err))
		return
	}
	ctx, cancel := e.sendCtx()
	defer cancel()
	if err := e.conn.Send(ctx, frame); err != nil {
		e.fail(tx, domain.ProtocolError("send idempotency request", err))
	}
}

func (e *Engine) onPaymentToken(v *codec.PaymentTokenIssued) {
	e.mu.Lock()
	tx := e.current(InstrumentSent)
	if tx == nil || tx.ptInstrument == "" {
		e.mu.Unlock()
		e.log.Debug("unexpected payment token frame")
		return
	}
	tx.paymentToken = v.PaymentToken
	tx.token = tx.tokenResult(v)
	tx.state = TokenIssued
	surcharge := tx.req.FeeMode == domain.Surcharge
	if surcharge {
		tx.state = TransferSent
	}
	sess := e.sessionCopy()
	token := tx.token
	e.mu.Unlock()

	e.log.Info("payment token issued",
		zap.String("tx", tx.id),
		zap.String("fee_mode", string(tx.req.FeeMode)),
		zap.String("service_fee", domain.FormatMinor(v.Payment.ServiceFee)))

	if !surcharge {
		e.succeed(tx, domain.Outcome{Kind: domain.OutcomeToken, Token: token}, false)
		return
	}
	if sess == nil {
		e.fail(tx, domain.HandshakeError("engine is not ready", nil))
		return
	}
	e.notify()
	ctx, cancel := e.sendCtx()
	defer cancel()
	e.sendTransfer(ctx, tx, sess)
}

func (e *Engine) onTransferComplete(v *codec.TransferComplete) {
	e.mu.Lock()
	tx := e.current(TransferSent)
	e.mu.Unlock()
	if tx == nil {
		e.log.Debug("unexpected transfer frame")
		return
	}
	res := transferResult(v)
	if v.Failed() {
		e.fail(tx, domain.TransactionError("payment declined", res))
		return
	}
	e.log.Info("transfer complete",
		zap.String("tx", tx.id),
		zap.String("receipt", v.ReceiptNumber),
		zap.String("amount", domain.FormatMinor(v.Amount)))
	e.succeed(tx, domain.Outcome{Kind: domain.OutcomeTransfer, Transfer: res}, true)
}

func (e *Engine) onBarcode(v *codec.BarcodeComplete) {
	e.mu.Lock()
	tx := e.current(InstrumentSent)
	e.mu.Unlock()
	if tx == nil || !tx.isCash() {
		e.log.Debug("unexpected barcode frame")
		return
	}
	e.succeed(tx, domain.Outcome{Kind: domain.OutcomeBarcode, Barcode: &domain.BarcodeResult{
		BarcodeID:  v.BarcodeID,
		BarcodeURL: v.BarcodeURL,
		MapURL:     v.MapURL,
		Amount:     v.Amount,
		Merchant:   v.Merchant,
	}}, true)
}

func (e *Engine) onPaymentMethod(v *codec.PaymentMethodTokenized) {
	e.mu.Lock()
	tx := e.current(InstrumentSent)
	e.mu.Unlock()
	if tx == nil || tx.flow != flowTokenizeOnly {
		e.log.Debug("unexpected tokenize frame")
		return
	}
	e.succeed(tx, domain.Outcome{Kind: domain.OutcomePaymentMethod, PaymentMethod: &domain.PaymentMethodResult{
		PaymentMethodID: v.PaymentMethodID,
		LastFour:        v.LastFour,
		Brand:           v.Brand,
		ExpirationDate:  v.ExpirationDate,
		PaymentType:     v.PaymentType,
	}}, true)
}

// handleSocketError runs once per lost connection. The session is dropped,
// a pending transaction fails and a new handshake starts unless suspended.
func (e *Engine) handleSocketError(err error) {
	e.mu.Lock()
	e.dropSession()
	tx := e.tx
	e.mu.Unlock()

	lost := domain.ProtocolError("connection lost", err)
	e.reportError(lost)
	if tx != nil {
		e.fail(tx, lost)
		return
	}
	e.notify()
	e.restart()
}
