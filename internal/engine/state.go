package engine

import "payengine/internal/handshake"

// State is the observable engine state used to gate user actions.
type State struct {
	Ready           bool
	Busy            bool
	AwaitingCapture bool
	Handshake       handshake.State
	Transaction     TxState
	// CardFee and BankFee are -1 until a matching quote is applied.
	CardFee int64
	BankFee int64
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() State {
	s := State{
		Ready:     e.sess != nil && !e.suspended,
		Busy:      e.tx != nil,
		Handshake: e.hs.State(),
		CardFee:   e.cardFee.Load(),
		BankFee:   e.bankFee.Load(),
	}
	if e.tx != nil {
		s.Transaction = e.tx.state
		s.AwaitingCapture = e.tx.awaitingCapture()
	}
	return s
}

// Subscribe registers fn for state changes and returns a function that
// removes it. fn runs on engine goroutines and must not block.
func (e *Engine) Subscribe(fn func(State)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	s := e.snapshotLocked()
	subs := make([]func(State), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}
