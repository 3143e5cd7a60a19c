package engine_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payengine/internal/attest"
	"payengine/internal/backend"
	"payengine/internal/codec"
	"payengine/internal/crypto"
	"payengine/internal/domain"
	"payengine/internal/engine"
	"payengine/internal/handshake"
	"payengine/internal/hosttest"
	"payengine/internal/transport"
)

const socketURL = "wss://host.example/socket"

// completions counts resolved futures.
type completions struct {
	mu   sync.Mutex
	errs []error
}

func (c *completions) observe(_ domain.Outcome, err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *completions) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

type fixture struct {
	eng   *engine.Engine
	host  *hosttest.Host
	pipe  *hosttest.Pipe
	done  *completions
	errMu sync.Mutex
	errs  []error
}

func (f *fixture) observedErrors() []error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return append([]error(nil), f.errs...)
}

// newFixture builds an engine over an in-memory host. hold, when non-empty,
// lists actions the host leaves unanswered.
func newFixture(t *testing.T, hold ...string) *fixture {
	t.Helper()
	host, err := hosttest.New()
	require.NoError(t, err)
	host.CardFee = 35
	host.BankFee = 150

	f := &fixture{host: host, done: &completions{}}
	f.pipe = hosttest.NewPipe(func(frame []byte) [][]byte {
		for _, a := range hold {
			if strings.Contains(string(frame), `"action":"`+a+`"`) {
				return nil
			}
		}
		return host.Handle(frame)
	})
	f.eng = engine.New(engine.Config{SocketURL: socketURL, HandshakeTimeout: 2 * time.Second},
		host, attest.NewSoftware(), f.pipe,
		engine.WithCompletionObserver(f.done.observe),
		engine.WithErrorObserver(func(err error) {
			f.errMu.Lock()
			f.errs = append(f.errs, err)
			f.errMu.Unlock()
		}))
	t.Cleanup(f.eng.Suspend)
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.eng.Connect(ctx(t)))
	require.True(t, f.eng.Snapshot().Ready)
}

func (f *fixture) waitReady(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := f.eng.Snapshot()
		return s.Ready && !s.Busy
	}, 2*time.Second, 5*time.Millisecond)
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func card() domain.Card {
	return domain.Card{
		Number:          "4242 4242 4242 4242",
		ExpirationMonth: "12",
		ExpirationYear:  "2099",
		SecurityCode:    "123",
		Name:            "Ada Lovelace",
	}
}

func TestConnect_Ready(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	require.Equal(t, []string{codec.ActionHostToken}, f.pipe.Actions())
	require.Equal(t, []string{socketURL + "?pt_token=" + f.host.PTToken}, f.pipe.URLs())
	s := f.eng.Snapshot()
	require.False(t, s.Busy)
	require.Equal(t, int64(-1), s.CardFee)
	require.Equal(t, int64(-1), s.BankFee)
}

func TestTokenize_SurchargeResolvesOnce(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.eng.SetAmount(1000)
	f.eng.SelectCard("4242 42")
	require.Eventually(t, func() bool { return f.eng.Snapshot().CardFee == 35 }, time.Second, 5*time.Millisecond)

	fut := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{
		Instrument: card(),
		Amount:     1000,
		Tags:       map[string]string{"order": "A-1"},
	})
	out, err := fut.Wait(ctx(t))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTransfer, out.Kind)
	require.Equal(t, "4242", out.Transfer.LastFour)
	require.Equal(t, "Visa", out.Transfer.Brand)
	require.Equal(t, int64(1000), out.Transfer.Amount)
	require.Equal(t, int64(35), out.Transfer.ServiceFee)
	require.Equal(t, "A-1", out.Transfer.Tags["order"])

	require.Equal(t, 1, f.pipe.Count(codec.ActionPTInstrument))
	require.Equal(t, 1, f.pipe.Count(codec.ActionIdempotency))
	require.Equal(t, 1, f.pipe.Count(codec.ActionTransfer))

	// A completed transaction starts a new session.
	f.waitReady(t)
	require.Eventually(t, func() bool { return f.host.Sessions() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, f.done.count())
}

func TestTokenize_ServiceFeeResolvesTwice(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	tok, err := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{
		Instrument: card(),
		Amount:     2500,
		FeeMode:    domain.ServiceFee,
	}).Wait(ctx(t))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeToken, tok.Kind)
	require.NotEmpty(t, tok.Token.PaymentToken)
	require.Equal(t, "424242", tok.Token.FirstSix)
	require.Equal(t, domain.ServiceFee, tok.Token.FeeMode)
	require.Zero(t, f.pipe.Count(codec.ActionTransfer))

	s := f.eng.Snapshot()
	require.True(t, s.Busy)
	require.True(t, s.AwaitingCapture)
	require.Equal(t, 1, f.done.count())

	out, err := f.eng.Capture(ctx(t)).Wait(ctx(t))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTransfer, out.Kind)
	require.Equal(t, int64(2500), out.Transfer.Amount)
	require.Equal(t, 1, f.pipe.Count(codec.ActionTransfer))
	require.Equal(t, 2, f.done.count())
	f.waitReady(t)
}

func TestCapture_WithoutTokenIsMisuse(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Capture(ctx(t)).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrMisuse)

	f.connect(t)
	_, err = f.eng.Capture(ctx(t)).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrMisuse)
	require.Equal(t, []string{codec.ActionHostToken}, f.pipe.Actions())
}

func TestCapture_SurchargeInFlightIsMisuse(t *testing.T) {
	f := newFixture(t, codec.ActionPTInstrument)
	f.connect(t)

	fut := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100})
	_, err := f.eng.Capture(ctx(t)).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrMisuse)
	require.Zero(t, f.pipe.Count(codec.ActionTransfer))

	_, ok, _ := fut.Result()
	require.False(t, ok)
}

func TestTokenize_ConcurrentCallsSendOneInstrument(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.eng.Tokenize(context.Background(), engine.TokenizeRequest{
				Instrument: card(),
				Amount:     700,
				FeeMode:    domain.ServiceFee,
			}).Wait(ctx(t))
		}(i)
	}
	wg.Wait()

	ok, misuse := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrMisuse):
			misuse++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, misuse)
	require.Equal(t, 1, f.pipe.Count(codec.ActionPTInstrument))
}

func TestFee_StaleQuoteDropped(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.host.HoldFees = true

	var mu sync.Mutex
	var seen []int64
	unsubscribe := f.eng.Subscribe(func(s engine.State) {
		mu.Lock()
		seen = append(seen, s.CardFee)
		mu.Unlock()
	})
	defer unsubscribe()

	f.eng.SetAmount(1000)
	f.host.CardFee = 111
	f.eng.SelectCard("4111 1111 1111 1111")
	f.host.CardFee = 222
	f.eng.SelectCard("5555 5555 5555 4444")
	require.Equal(t, 2, f.pipe.Count(codec.ActionCalculateFee))

	for _, frame := range f.host.ReleaseFees() {
		f.pipe.Push(frame)
	}
	require.Eventually(t, func() bool { return f.eng.Snapshot().CardFee == 222 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotContains(t, seen, int64(111))

	q, ok := f.eng.Quote(domain.Card{Number: "5555555555554444"})
	require.True(t, ok)
	require.Equal(t, int64(222), q.Fee)
	_, ok = f.eng.Quote(domain.Card{Number: "4111111111111111"})
	require.False(t, ok)
}

func TestFee_BankQuote(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.eng.SelectBank()
	require.Zero(t, f.pipe.Count(codec.ActionCalculateFee), "no amount set")

	f.eng.SetAmount(5000)
	require.Eventually(t, func() bool { return f.eng.Snapshot().BankFee == 150 }, time.Second, 5*time.Millisecond)
	q, ok := f.eng.Quote(domain.BankAccount{})
	require.True(t, ok)
	require.True(t, q.ACH)

	require.ErrorIs(t, f.eng.RequestCardFee(ctx(t), "42"), domain.ErrValidation)
	require.NoError(t, f.eng.RequestBankFee(ctx(t)))
}

func TestFee_NotReady(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.eng.RequestBankFee(ctx(t)), domain.ErrHandshake)
	require.Empty(t, f.pipe.Sent())
}

func TestTokenize_HandshakeFailureSendsNothing(t *testing.T) {
	f := newFixture(t)
	f.host.TokenErr = errors.New("backend unavailable")

	err := f.eng.Connect(ctx(t))
	require.ErrorIs(t, err, domain.ErrHandshake)
	require.False(t, f.eng.Snapshot().Ready)

	_, err = f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100}).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrHandshake)
	require.Empty(t, f.pipe.Sent())
	require.Zero(t, f.pipe.Dials())
}

type failingAttestor struct{}

func (failingAttestor) GenerateKey(context.Context) (domain.KeyID, error) { return "device-key", nil }

func (failingAttestor) Attest(context.Context, domain.KeyID, []byte) ([]byte, error) {
	return nil, errors.New("attestation service unavailable")
}

func TestTokenize_AttestationFailureSendsNothing(t *testing.T) {
	host, err := hosttest.New()
	require.NoError(t, err)
	pipe := hosttest.NewPipe(host.Handle)
	eng := engine.New(engine.Config{SocketURL: socketURL}, host, failingAttestor{}, pipe)
	t.Cleanup(eng.Suspend)

	require.ErrorIs(t, eng.Connect(ctx(t)), domain.ErrHandshake)
	s := eng.Snapshot()
	require.False(t, s.Ready)
	require.Equal(t, handshake.Unattested, s.Handshake)

	_, err = eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100}).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrHandshake)
	require.Empty(t, pipe.Sent())
}

func TestTokenize_ValidationError(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	bad := card()
	bad.Number = "4242 4242 4242 4241"
	_, err := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: bad, Amount: 100}).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrValidation)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Fields, "number")

	_, err = f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card()}).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrValidation)

	require.Zero(t, f.pipe.Count(codec.ActionPTInstrument))
	require.False(t, f.eng.Snapshot().Busy)
}

func TestTokenize_Declined(t *testing.T) {
	f := newFixture(t)
	f.host.TransferState = codec.StateFailure
	f.connect(t)

	_, err := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 900}).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrTransaction)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.NotNil(t, de.Result)
	require.Equal(t, codec.StateFailure, de.Result.State)
	f.waitReady(t)
}

func TestTokenize_ErrorFrameFailsTransaction(t *testing.T) {
	f := newFixture(t)
	f.host.Errors[codec.ActionPTInstrument] = "card rejected"
	f.connect(t)

	_, err := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 900}).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrTransaction)
	require.Contains(t, err.Error(), "card rejected")
	require.Zero(t, f.pipe.Count(codec.ActionIdempotency))
	f.waitReady(t)
}

func TestCancel_ResolvesPendingAndReconnects(t *testing.T) {
	f := newFixture(t, codec.ActionPTInstrument)
	f.connect(t)

	fut := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100})
	require.True(t, f.eng.Snapshot().Busy)

	f.eng.Cancel()
	_, err := fut.Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrCancelled)

	f.waitReady(t)
	require.Equal(t, 2, f.host.Sessions())
	require.Equal(t, 1, f.done.count())
}

func TestTokenize_CashBarcode(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	out, err := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{
		Instrument: domain.Cash{Name: "Ada Lovelace", Contact: "ada@example.com"},
		Amount:     1250,
	}).Wait(ctx(t))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeBarcode, out.Kind)
	require.NotEmpty(t, out.Barcode.BarcodeID)
	require.Equal(t, int64(1250), out.Barcode.Amount)
	require.Zero(t, f.pipe.Count(codec.ActionIdempotency))
	f.waitReady(t)
}

func TestTokenizePaymentMethod(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	out, err := f.eng.TokenizePaymentMethod(ctx(t), card(), domain.BuyerOptions{Email: "ada@example.com"}).Wait(ctx(t))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePaymentMethod, out.Kind)
	require.Equal(t, "4242", out.PaymentMethod.LastFour)
	require.Equal(t, "12/2099", out.PaymentMethod.ExpirationDate)
	require.Equal(t, 1, f.pipe.Count(codec.ActionTokenize))
	require.Zero(t, f.pipe.Count(codec.ActionPTInstrument))
}

func TestSocketError_FailsPendingAndReconnects(t *testing.T) {
	f := newFixture(t, codec.ActionPTInstrument)
	f.connect(t)

	fut := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100})
	f.pipe.Drop(errors.New("connection reset"))

	_, err := fut.Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrProtocol)
	require.Contains(t, err.Error(), "connection reset")

	f.waitReady(t)
	require.Equal(t, 2, f.pipe.Dials())
	require.Len(t, f.observedErrors(), 1)
}

func TestSuspendResume(t *testing.T) {
	f := newFixture(t, codec.ActionPTInstrument)
	f.connect(t)

	fut := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100})
	f.eng.Suspend()
	_, err := fut.Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrProtocol)
	require.False(t, f.eng.Snapshot().Ready)

	_, err = f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100}).Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrHandshake)

	require.NoError(t, f.eng.Resume(ctx(t)))
	require.True(t, f.eng.Snapshot().Ready)
	require.Equal(t, 2, f.pipe.Dials())
	require.Empty(t, f.observedErrors())
}

func TestResume_FailsPendingTransaction(t *testing.T) {
	f := newFixture(t, codec.ActionPTInstrument)
	f.connect(t)

	fut := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100})
	require.True(t, f.eng.Snapshot().Busy)

	require.NoError(t, f.eng.Resume(ctx(t)))
	_, err := fut.Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrProtocol)
	require.Contains(t, err.Error(), "session replaced")

	s := f.eng.Snapshot()
	require.True(t, s.Ready)
	require.False(t, s.Busy)
	require.Equal(t, 2, f.host.Sessions())

	next := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100})
	_, ok, _ := next.Result()
	require.False(t, ok)
	require.Equal(t, 2, f.pipe.Count(codec.ActionPTInstrument))
}

// sealedToStranger builds a sealed frame the engine's session key cannot open.
func sealedToStranger(t *testing.T, typ string) []byte {
	t.Helper()
	hostPriv, _, err := crypto.GenerateBoxKeyPair()
	require.NoError(t, err)
	_, strangerPub, err := crypto.GenerateBoxKeyPair()
	require.NoError(t, err)
	frame, err := hosttest.SealedFrame(typ, map[string]any{"pt_instrument": "pti_x"}, strangerPub, hostPriv)
	require.NoError(t, err)
	return frame
}

func TestFrame_UndecryptableWhileIdleIsDropped(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.pipe.Push(sealedToStranger(t, codec.TypePTInstrument))
	require.Eventually(t, func() bool { return len(f.observedErrors()) == 1 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, f.observedErrors()[0], domain.ErrProtocol)

	f.pipe.Push([]byte(`{not json`))
	require.Eventually(t, func() bool { return len(f.observedErrors()) == 2 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, f.observedErrors()[1], domain.ErrProtocol)

	s := f.eng.Snapshot()
	require.True(t, s.Ready)
	require.False(t, s.Busy)
	require.Equal(t, 1, f.host.Sessions())
	require.Equal(t, 1, f.pipe.Dials())
	require.Zero(t, f.done.count())
}

func TestFrame_UndecryptableWhilePendingFailsTransaction(t *testing.T) {
	f := newFixture(t, codec.ActionPTInstrument)
	f.connect(t)

	fut := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100})
	f.pipe.Push(sealedToStranger(t, codec.TypePTInstrument))

	_, err := fut.Wait(ctx(t))
	require.ErrorIs(t, err, domain.ErrProtocol)
	require.Zero(t, f.pipe.Count(codec.ActionIdempotency))
	f.waitReady(t)
}

func TestFrame_UnknownTypeLeavesTransactionPending(t *testing.T) {
	f := newFixture(t, codec.ActionPTInstrument)
	f.connect(t)

	fut := f.eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 100})
	f.pipe.Push(hosttest.ObjectFrame("loyalty_points", map[string]any{"points": 12}))
	// Frames are handled in order, so once the quote lands the unknown
	// frame has been handled too.
	f.pipe.Push(hosttest.ObjectFrame(codec.TypeCalculatedFee, map[string]any{"fee": 7, "bank_id": nil}))
	require.Eventually(t, func() bool { return f.eng.Snapshot().BankFee == 7 }, time.Second, 5*time.Millisecond)

	s := f.eng.Snapshot()
	require.True(t, s.Busy)
	require.Equal(t, engine.InstrumentSent, s.Transaction)
	_, ok, _ := fut.Result()
	require.False(t, ok)
	require.Empty(t, f.observedErrors())
}

func TestTokenize_StaleSessionHandshakesFirst(t *testing.T) {
	host, err := hosttest.New()
	require.NoError(t, err)
	pipe := hosttest.NewPipe(host.Handle)

	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	eng := engine.New(engine.Config{SocketURL: socketURL, HostTokenTTL: time.Minute},
		host, attest.NewSoftware(), pipe, engine.WithClock(clock))
	t.Cleanup(eng.Suspend)
	require.NoError(t, eng.Connect(ctx(t)))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	out, err := eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 300}).Wait(ctx(t))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTransfer, out.Kind)

	actions := pipe.Actions()
	require.Equal(t, []string{codec.ActionHostToken, codec.ActionHostToken, codec.ActionPTInstrument}, actions[:3])
}

func TestEngine_OverWebSocket(t *testing.T) {
	host, err := hosttest.New()
	require.NoError(t, err)
	host.VerifyAttestation = true
	host.CardFee = 42
	srv := httptest.NewServer(host.Handler())
	t.Cleanup(srv.Close)

	eng := engine.New(engine.Config{
		SocketURL:    "ws" + strings.TrimPrefix(srv.URL, "http") + hosttest.SocketPath,
		StrictFrames: true,
	}, backend.NewHTTP(srv.URL, "test-key"), attest.NewSoftware(), transport.NewWebSocket(zap.NewNop()))
	t.Cleanup(eng.Suspend)

	require.NoError(t, eng.Connect(ctx(t)))
	eng.SetAmount(1999)
	eng.SelectCard("4242424242424242")
	require.Eventually(t, func() bool { return eng.Snapshot().CardFee == 42 }, 2*time.Second, 10*time.Millisecond)

	out, err := eng.Tokenize(ctx(t), engine.TokenizeRequest{Instrument: card(), Amount: 1999}).Wait(ctx(t))
	require.NoError(t, err)
	require.Equal(t, int64(1999), out.Transfer.Amount)
	require.Equal(t, int64(42), out.Transfer.ServiceFee)
	require.Equal(t, 1, host.Count(codec.ActionTransfer))
}
