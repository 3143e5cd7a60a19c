// Package engine is the payment transaction engine.
//
// An Engine owns one session at a time. Connect (or Resume) runs the
// handshake; once Ready, Tokenize drives
//
//	Idle → InstrumentSent → TokenIssued → TransferSent → Complete
//
// for surcharge payments, and stops at Complete with a deferred capture for
// service-fee payments until Capture is called. Cash instruments complete
// with a barcode and TokenizePaymentMethod stores an instrument without
// paying.
//
// Every call returns a single-shot Future; success and failure arrive the
// same way. At most one transaction is in flight: a concurrent Tokenize is
// rejected, never queued. Completion, failure and Cancel clear the
// transaction and start a fresh handshake in the background.
//
// Fee quotes are requested fire-and-forget for the current card BIN or for
// ACH, and a card quote is applied only while its BIN is still selected.
package engine
