package engine

import (
	"context"

	"go.uber.org/zap"

	"payengine/internal/codec"
	"payengine/internal/domain"
	"payengine/internal/metrics"
	"payengine/internal/validate"
)

// selection is the payment method currently shown to the buyer.
type selection int

const (
	selectNone selection = iota
	selectCard
	selectBank
)

// SelectCard records the card being typed. A new BIN clears the card fee and
// requests a fresh quote. Fewer than six digits leaves the selection
// without a BIN.
func (e *Engine) SelectCard(pan string) {
	bin := validate.BIN(pan)

	e.mu.Lock()
	changed := bin != e.cardBIN
	e.selection = selectCard
	e.cardBIN = bin
	if changed {
		e.cardFee.Store(-1)
	}
	e.mu.Unlock()

	if !changed {
		return
	}
	e.notify()
	if bin != "" {
		e.requestFee(context.Background(), false, bin)
	}
}

// SelectBank switches the selection to ACH and requests a bank fee quote.
func (e *Engine) SelectBank() {
	e.mu.Lock()
	e.selection = selectBank
	e.mu.Unlock()
	e.requestFee(context.Background(), true, "")
}

// SetAmount sets the payment amount in minor units. A change discards both
// quotes and requests one for the current selection.
func (e *Engine) SetAmount(amount int64) {
	e.mu.Lock()
	changed := amount != e.amount
	e.amount = amount
	if changed {
		e.cardFee.Store(-1)
		e.bankFee.Store(-1)
	}
	e.mu.Unlock()

	if !changed {
		return
	}
	e.notify()
	e.refreshFee()
}

// Amount returns the amount set with SetAmount.
func (e *Engine) Amount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.amount
}

// RequestCardFee asks the host for the fee on a card starting with bin. The
// answer arrives asynchronously and is applied only if bin is still selected.
func (e *Engine) RequestCardFee(ctx context.Context, bin string) error {
	return e.sendFee(ctx, false, bin)
}

// RequestBankFee asks the host for the ACH fee.
func (e *Engine) RequestBankFee(ctx context.Context) error {
	return e.sendFee(ctx, true, "")
}

// refreshFee re-requests the quote for the current selection, if any.
func (e *Engine) refreshFee() {
	e.mu.Lock()
	sel, bin := e.selection, e.cardBIN
	e.mu.Unlock()

	switch {
	case sel == selectCard && bin != "":
		e.requestFee(context.Background(), false, bin)
	case sel == selectBank:
		e.requestFee(context.Background(), true, "")
	}
}

// requestFee sends a quote request when the engine is Ready and an amount
// is set. Failures are logged only.
func (e *Engine) requestFee(ctx context.Context, ach bool, bin string) {
	e.mu.Lock()
	ready := e.sess != nil && !e.suspended && e.amount > 0
	e.mu.Unlock()
	if !ready {
		return
	}
	if err := e.sendFee(ctx, ach, bin); err != nil {
		e.log.Debug("fee request not sent", zap.Bool("ach", ach), zap.String("bin", bin), zap.Error(err))
	}
}

func (e *Engine) sendFee(ctx context.Context, ach bool, bin string) error {
	e.mu.Lock()
	ready := e.sess != nil && !e.suspended
	amount := e.amount
	e.mu.Unlock()
	if !ready {
		return domain.HandshakeError("engine is not ready", nil)
	}

	req := codec.CalculateFeeRequest{Amount: amount, IsACH: ach, Timing: e.now().UnixMilli()}
	if !ach {
		if len(bin) != 6 || !validate.IsDigits(bin) {
			return domain.ValidationError([]string{"bin"})
		}
		req.BankID = &bin
	}
	frame, err := codec.Encode(codec.ActionCalculateFee, req)
	if err != nil {
		return domain.ProtocolError("encode fee request", err)
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()
	if err := e.conn.Send(ctx, frame); err != nil {
		return domain.ProtocolError("send fee request", err)
	}
	return nil
}

// applyFee stores a quote. Card quotes for a BIN other than the selected one
// are stale and dropped. The BIN check and the store happen under e.mu, the
// same lock SelectCard clears the fee under.
func (e *Engine) applyFee(v *codec.FeeCalculated) {
	if v.Fee == nil {
		e.log.Warn("There was an error calculating the fees")
		e.reportError(domain.ProtocolError("There was an error calculating the fees", nil))
		return
	}

	if v.BankID == nil {
		e.bankFee.Store(*v.Fee)
		e.rec.IncCounter(metrics.EventFeeApplied, map[string]string{metrics.LabelKind: "ach"})
		e.notify()
		return
	}

	e.mu.Lock()
	current := e.cardBIN
	fresh := *v.BankID == current
	if fresh {
		e.cardFee.Store(*v.Fee)
	}
	e.mu.Unlock()
	if !fresh {
		e.log.Debug("stale fee quote dropped", zap.String("bin", *v.BankID), zap.String("selected", current))
		e.rec.IncCounter(metrics.EventFeeStale, nil)
		return
	}
	e.rec.IncCounter(metrics.EventFeeApplied, map[string]string{metrics.LabelKind: "card"})
	e.notify()
}

// Quote returns the fee for inst, or false when no matching quote is held.
func (e *Engine) Quote(inst domain.Instrument) (domain.FeeQuote, bool) {
	switch v := inst.(type) {
	case domain.Card:
		return e.cardQuote(v.BIN())
	case *domain.Card:
		return e.cardQuote(v.BIN())
	case domain.BankAccount, *domain.BankAccount:
		fee := e.bankFee.Load()
		return domain.FeeQuote{ACH: true, Fee: fee}, fee >= 0
	}
	return domain.FeeQuote{}, false
}

func (e *Engine) cardQuote(bin string) (domain.FeeQuote, bool) {
	e.mu.Lock()
	current := e.cardBIN
	fee := e.cardFee.Load()
	e.mu.Unlock()
	if bin == "" || bin != current || fee < 0 {
		return domain.FeeQuote{BIN: bin}, false
	}
	return domain.FeeQuote{BIN: bin, Fee: fee}, true
}
