package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"payengine/internal/codec"
	"payengine/internal/crypto"
	"payengine/internal/domain"
	"payengine/internal/handshake"
	"payengine/internal/metrics"
	"payengine/internal/session"
	"payengine/internal/validate"
)

// Defaults for zero Config fields.
const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultHostTokenTTL     = 60 * time.Minute
	DefaultSendTimeout      = 10 * time.Second
)

// Config holds the engine settings.
type Config struct {
	SocketURL string
	// Origin is sent with the host token request. Empty uses the origin
	// returned with the pt-token.
	Origin string
	// HandshakeTimeout bounds background handshakes.
	HandshakeTimeout time.Duration
	// HostTokenTTL is how long a session is used before a new tokenize forces
	// a fresh handshake. Negative disables expiry.
	HostTokenTTL time.Duration
	// SendTimeout bounds frames sent from the read loop.
	SendTimeout time.Duration
	// StrictFrames rejects unknown body fields.
	StrictFrames bool
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.HostTokenTTL == 0 {
		c.HostTokenTTL = DefaultHostTokenTTL
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg     Config
	conn    *session.Manager
	hs      *handshake.Coordinator
	val     *validate.Validator
	decoder codec.Decoder
	log     *zap.Logger
	rec     metrics.Recorder
	now     func() time.Time

	onError    func(error)
	onComplete func(domain.Outcome, error)

	mu        sync.Mutex
	sess      *domain.Session
	suspended bool
	hsRunning bool
	hsDone    chan struct{}
	hsErr     error
	hsCancel  context.CancelFunc
	tx        *transaction
	subs      map[int]func(State)
	nextSub   int

	// Fee selection, guarded by mu.
	amount    int64
	selection selection
	cardBIN   string

	cardFee atomic.Int64
	bankFee atomic.Int64
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(r metrics.Recorder) Option { return func(e *Engine) { e.rec = r } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithValidator(v *validate.Validator) Option { return func(e *Engine) { e.val = v } }

// WithErrorObserver receives connection and host errors that are not tied
// to a pending call.
func WithErrorObserver(fn func(error)) Option { return func(e *Engine) { e.onError = fn } }

// WithCompletionObserver is called every time a future resolves.
func WithCompletionObserver(fn func(domain.Outcome, error)) Option {
	return func(e *Engine) { e.onComplete = fn }
}

// New wires an engine over the given collaborators. It does not connect.
func New(cfg Config, tokens domain.TokenSource, attestor domain.Attestor, t domain.Transport, opts ...Option) *Engine {
	e := &Engine{
		cfg:  cfg.withDefaults(),
		log:  zap.NewNop(),
		rec:  metrics.NoopRecorder{},
		now:  time.Now,
		subs: map[int]func(State){},
	}
	for _, o := range opts {
		o(e)
	}
	if e.val == nil {
		e.val = validate.New(validate.WithClock(e.now))
	}
	e.decoder = codec.Decoder{Strict: e.cfg.StrictFrames}
	e.cardFee.Store(-1)
	e.bankFee.Store(-1)

	e.conn = session.New(t, e.cfg.SocketURL,
		session.WithLogger(e.log.Named("session")),
		session.WithMetrics(e.rec))
	e.conn.SetHandlers(e.handleFrame, e.handleSocketError)
	e.hs = handshake.New(tokens, attestor, e.conn,
		handshake.WithOrigin(e.cfg.Origin),
		handshake.WithDecoder(e.decoder),
		handshake.WithLogger(e.log.Named("handshake")),
		handshake.WithMetrics(e.rec),
		handshake.WithClock(e.now),
		handshake.WithObserver(func(handshake.State) { e.notify() }))
	return e
}

// Connect runs the handshake and blocks until the engine is Ready or the
// handshake fails. A pending transaction belongs to the session being
// replaced, so it fails first.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	e.suspended = false
	tx := e.tx
	e.tx = nil
	e.mu.Unlock()

	if tx != nil {
		e.log.Warn("transaction abandoned by reconnect", zap.String("tx", tx.id))
		e.resolve(tx.future, domain.Outcome{}, domain.ProtocolError("session replaced", nil))
		e.observeTx(tx, "failed")
		e.notify()
	}
	return e.handshake(ctx)
}

// Resume is called when the app returns to the foreground. It always runs a
// full handshake on a new socket.
func (e *Engine) Resume(ctx context.Context) error { return e.Connect(ctx) }

// Suspend closes the socket when the app goes to the background. A pending
// call fails; the session is discarded.
func (e *Engine) Suspend() {
	e.mu.Lock()
	e.suspended = true
	e.dropSession()
	if e.hsCancel != nil {
		e.hsCancel()
	}
	tx := e.tx
	e.tx = nil
	e.mu.Unlock()

	_ = e.conn.Close()
	if tx != nil {
		e.resolve(tx.future, domain.Outcome{}, domain.ProtocolError("socket closed", session.ErrClosed))
	}
	e.log.Debug("engine suspended")
	e.notify()
}

// Close is Suspend for shutdown.
func (e *Engine) Close() error {
	e.Suspend()
	return nil
}

// handshake runs a handshake or joins the one already running.
func (e *Engine) handshake(ctx context.Context) error {
	e.mu.Lock()
	if e.hsRunning {
		done := e.hsDone
		e.mu.Unlock()
		select {
		case <-done:
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.hsErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	e.hsRunning = true
	e.hsDone = make(chan struct{})
	e.hsCancel = cancel
	e.dropSession()
	e.mu.Unlock()
	defer cancel()

	sess, err := e.hs.Run(ctx)

	e.mu.Lock()
	e.hsRunning = false
	e.hsCancel = nil
	if err == nil && e.suspended {
		err = domain.HandshakeError("suspended during handshake", nil)
		crypto.WipeKey(&sess.ClientPrivate)
		_ = e.conn.Close()
	}
	if err == nil {
		e.sess = sess
	}
	e.hsErr = err
	close(e.hsDone)
	e.mu.Unlock()

	e.notify()
	if err != nil {
		return err
	}
	e.refreshFee()
	return nil
}

// restart starts a background handshake unless suspended.
func (e *Engine) restart() {
	e.mu.Lock()
	skip := e.suspended
	e.dropSession()
	e.mu.Unlock()
	if skip {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.HandshakeTimeout)
		defer cancel()
		if err := e.handshake(ctx); err != nil {
			e.log.Warn("background handshake failed", zap.Error(err))
			e.reportError(err)
		}
	}()
}

// Tokenize starts a payment with req.
//
// The future fails immediately with MisuseError when a transaction is
// already pending, with HandshakeFailure when the engine is not Ready, and
// with ValidationError when the instrument fails local checks. Nothing is
// sent in those cases.
func (e *Engine) Tokenize(ctx context.Context, req TokenizeRequest) *Future[domain.Outcome] {
	return e.start(ctx, flowPayment, req)
}

// TokenizePaymentMethod stores an instrument with the host without paying.
func (e *Engine) TokenizePaymentMethod(ctx context.Context, inst domain.Instrument, buyer domain.BuyerOptions) *Future[domain.Outcome] {
	return e.start(ctx, flowTokenizeOnly, TokenizeRequest{Instrument: inst, Buyer: buyer})
}

func (e *Engine) start(ctx context.Context, f flow, req TokenizeRequest) *Future[domain.Outcome] {
	fut := NewFuture[domain.Outcome]()

	e.mu.Lock()
	if e.tx != nil {
		e.mu.Unlock()
		e.resolve(fut, domain.Outcome{}, domain.MisuseError("a transaction is already pending"))
		return fut
	}
	if e.sess == nil || e.suspended {
		e.mu.Unlock()
		e.resolve(fut, domain.Outcome{}, domain.HandshakeError("engine is not ready", nil))
		return fut
	}
	if err := e.checkRequest(f, req); err != nil {
		e.mu.Unlock()
		e.resolve(fut, domain.Outcome{}, err)
		return fut
	}
	tx := newTransaction(f, req, fut, e.now())
	e.tx = tx
	stale := e.sess.Stale(e.now(), e.cfg.HostTokenTTL)
	e.mu.Unlock()

	e.log.Info("transaction started",
		zap.String("tx", tx.id),
		zap.String("kind", string(req.Instrument.Kind())),
		zap.String("last_four", req.Instrument.LastFour()))
	e.notify()

	if !stale {
		e.sendInstrument(ctx, tx)
		return fut
	}
	go func() {
		hctx, cancel := context.WithTimeout(context.Background(), e.cfg.HandshakeTimeout)
		defer cancel()
		if err := e.handshake(hctx); err != nil {
			e.fail(tx, err)
			return
		}
		e.sendInstrument(hctx, tx)
	}()
	return fut
}

func (e *Engine) checkRequest(f flow, req TokenizeRequest) error {
	if err := e.val.Instrument(req.Instrument); err != nil {
		return err
	}
	if err := e.val.Buyer(req.Buyer); err != nil {
		return err
	}
	if f == flowPayment && req.Amount <= 0 {
		return domain.ValidationError([]string{"amount"})
	}
	switch req.FeeMode {
	case "", domain.Surcharge, domain.ServiceFee:
		return nil
	default:
		return domain.ValidationError([]string{"fee_mode"})
	}
}

func (e *Engine) sendInstrument(ctx context.Context, tx *transaction) {
	e.mu.Lock()
	if e.tx != tx {
		e.mu.Unlock()
		return
	}
	sess := e.sessionCopy()
	tx.state = InstrumentSent
	e.mu.Unlock()

	action := codec.ActionPTInstrument
	if tx.flow == flowTokenizeOnly {
		action = codec.ActionTokenize
	}
	req := codec.NewInstrumentRequest(tx.req.Instrument, tx.req.Buyer, e.now().UnixMilli())
	req.Amount = tx.req.Amount
	req.FeeMode = tx.req.FeeMode
	frame, err := codec.EncodeSealed(action, req, sess)
	if err != nil {
		e.fail(tx, domain.ProtocolError("encode instrument", err))
		return
	}
	if err := e.conn.Send(ctx, frame); err != nil {
		e.fail(tx, domain.ProtocolError("send instrument", err))
		return
	}
	e.notify()
}

// Capture sends the transfer for a service-fee payment whose token has been
// issued. Otherwise the future fails with MisuseError and nothing is sent.
func (e *Engine) Capture(ctx context.Context) *Future[domain.Outcome] {
	fut := NewFuture[domain.Outcome]()

	e.mu.Lock()
	tx := e.tx
	if tx == nil || tx.req.FeeMode != domain.ServiceFee || !tx.awaitingCapture() {
		e.mu.Unlock()
		e.resolve(fut, domain.Outcome{}, domain.MisuseError("no payment authorization to capture"))
		return fut
	}
	if e.sess == nil {
		e.mu.Unlock()
		e.resolve(fut, domain.Outcome{}, domain.HandshakeError("engine is not ready", nil))
		return fut
	}
	tx.future = fut
	tx.state = TransferSent
	sess := e.sessionCopy()
	e.mu.Unlock()

	e.notify()
	e.sendTransfer(ctx, tx, sess)
	return fut
}

func (e *Engine) sendTransfer(ctx context.Context, tx *transaction, sess *domain.Session) {
	frame, err := codec.EncodeRaw(codec.ActionTransfer, codec.TransferRequest{
		PaymentToken: tx.paymentToken,
		SessionKey:   sess.SessionKey,
		FeeMode:      tx.req.FeeMode,
		Tags:         tx.req.Tags,
		Timing:       e.now().UnixMilli(),
	})
	if err != nil {
		e.fail(tx, domain.ProtocolError("encode transfer", err))
		return
	}
	if err := e.conn.Send(ctx, frame); err != nil {
		e.fail(tx, domain.ProtocolError("send transfer", err))
	}
}

// Cancel abandons the current transaction, fails its pending future with a
// Cancelled error, and starts a fresh handshake. The host is not notified.
func (e *Engine) Cancel() {
	e.mu.Lock()
	tx := e.tx
	e.tx = nil
	e.mu.Unlock()

	if tx != nil {
		e.log.Info("transaction cancelled", zap.String("tx", tx.id))
		e.resolve(tx.future, domain.Outcome{}, &domain.Error{Kind: domain.KindCancelled, Message: "transaction cancelled"})
	}
	e.notify()
	e.restart()
}

// IsValid reports whether inst passes every field check.
func (e *Engine) IsValid(inst domain.Instrument) bool { return e.val.IsValid(inst) }

// resolve completes fut (if any) and reports to the completion observer.
func (e *Engine) resolve(fut *Future[domain.Outcome], out domain.Outcome, err error) {
	if fut == nil || !fut.resolve(out, err) {
		return
	}
	if e.onComplete != nil {
		e.onComplete(out, err)
	}
}

// succeed resolves the current step of tx. When done the transaction is
// cleared and a new session is started.
func (e *Engine) succeed(tx *transaction, out domain.Outcome, done bool) {
	e.mu.Lock()
	if e.tx != tx {
		e.mu.Unlock()
		return
	}
	fut := tx.future
	tx.future = nil
	tx.state = Complete
	if done {
		e.tx = nil
	}
	e.mu.Unlock()

	e.resolve(fut, out, nil)
	if done {
		e.observeTx(tx, "ok")
		e.restart()
	}
	e.notify()
}

// fail resolves tx with err, clears it and starts a new session.
func (e *Engine) fail(tx *transaction, err error) {
	e.mu.Lock()
	if e.tx != tx {
		e.mu.Unlock()
		return
	}
	fut := tx.future
	tx.future = nil
	tx.state = Failed
	e.tx = nil
	e.mu.Unlock()

	e.log.Warn("transaction failed", zap.String("tx", tx.id), zap.Error(err))
	e.resolve(fut, domain.Outcome{}, err)
	e.observeTx(tx, "failed")
	e.restart()
	e.notify()
}

func (e *Engine) observeTx(tx *transaction, outcome string) {
	e.rec.ObserveLatency(metrics.OpTransaction, e.now().Sub(tx.started), map[string]string{metrics.LabelOutcome: outcome})
}

// sessionCopy returns a private copy of the current session, or nil. Callers
// hold e.mu.
func (e *Engine) sessionCopy() *domain.Session {
	if e.sess == nil {
		return nil
	}
	s := *e.sess
	return &s
}

// dropSession wipes the client key of the current session and forgets it.
// Callers hold e.mu.
func (e *Engine) dropSession() {
	if e.sess == nil {
		return
	}
	crypto.WipeKey(&e.sess.ClientPrivate)
	e.sess = nil
}

func (e *Engine) reportError(err error) {
	if e.onError != nil {
		e.onError(err)
	}
}

func (e *Engine) sendCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.SendTimeout)
}
