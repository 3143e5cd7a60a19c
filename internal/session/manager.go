package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"payengine/internal/domain"
	"payengine/internal/metrics"
)

var (
	ErrNotOpen       = errors.New("socket is not open")
	ErrAwaitInFlight = errors.New("an awaited request is already in flight")
	ErrClosed        = errors.New("socket closed")
)

// FrameHandler receives inbound frames on the read loop goroutine. It must
// not call SendAndAwait.
type FrameHandler func(raw []byte)

// ErrorHandler receives the error that ended a connection.
type ErrorHandler func(err error)

type awaitResult struct {
	raw []byte
	err error
}

// Manager is safe for concurrent use.
type Manager struct {
	transport domain.Transport
	socketURL string
	log       *zap.Logger
	rec       metrics.Recorder

	mu      sync.Mutex
	open    bool
	gen     uint64
	cancel  context.CancelFunc
	waiter  chan awaitResult
	onFrame FrameHandler
	onError ErrorHandler
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

func WithMetrics(r metrics.Recorder) Option { return func(m *Manager) { m.rec = r } }

// New constructs a Manager for the socket at socketURL.
func New(t domain.Transport, socketURL string, opts ...Option) *Manager {
	m := &Manager{
		transport: t,
		socketURL: socketURL,
		log:       zap.NewNop(),
		rec:       metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetHandlers installs the frame and error callbacks. Either may be nil.
func (m *Manager) SetHandlers(onFrame FrameHandler, onError ErrorHandler) {
	m.mu.Lock()
	m.onFrame = onFrame
	m.onError = onError
	m.mu.Unlock()
}

// IsOpen reports whether a connection is live.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// SocketURL returns the connection URL for ptToken.
func (m *Manager) SocketURL(ptToken string) (string, error) {
	u, err := url.Parse(m.socketURL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("pt_token", ptToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open connects with ptToken and starts the read loop. An existing
// connection is closed first.
func (m *Manager) Open(ctx context.Context, ptToken string) error {
	_ = m.Close()

	target, err := m.SocketURL(ptToken)
	if err != nil {
		return err
	}
	if err := m.transport.Connect(ctx, target); err != nil {
		return fmt.Errorf("open socket: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.open = true
	m.cancel = cancel
	m.mu.Unlock()

	m.log.Debug("socket open", zap.Uint64("conn", gen))
	go m.readLoop(loopCtx, gen)
	return nil
}

// Close ends the current connection without reporting an error. A pending
// awaited send fails with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = false
	m.gen++
	m.cancel()
	w := m.waiter
	m.waiter = nil
	m.mu.Unlock()

	if w != nil {
		w <- awaitResult{err: ErrClosed}
	}
	m.log.Debug("socket closed")
	return m.transport.Close()
}

// Send writes frame without waiting for a response.
func (m *Manager) Send(ctx context.Context, frame []byte) error {
	if !m.IsOpen() {
		return ErrNotOpen
	}
	if err := m.transport.Send(ctx, frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	m.rec.IncCounter(metrics.EventFrameOut, nil)
	return nil
}

// SendAndAwait writes frame and returns the next inbound frame.
func (m *Manager) SendAndAwait(ctx context.Context, frame []byte) ([]byte, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return nil, ErrNotOpen
	}
	if m.waiter != nil {
		m.mu.Unlock()
		return nil, ErrAwaitInFlight
	}
	w := make(chan awaitResult, 1)
	m.waiter = w
	m.mu.Unlock()

	if err := m.Send(ctx, frame); err != nil {
		m.clearWaiter(w)
		return nil, err
	}

	select {
	case r := <-w:
		return r.raw, r.err
	case <-ctx.Done():
		m.clearWaiter(w)
		return nil, ctx.Err()
	}
}

func (m *Manager) clearWaiter(w chan awaitResult) {
	m.mu.Lock()
	if m.waiter == w {
		m.waiter = nil
	}
	m.mu.Unlock()
}

func (m *Manager) readLoop(ctx context.Context, gen uint64) {
	for ctx.Err() == nil {
		raw, err := m.transport.Receive(ctx)
		if err != nil {
			m.fail(gen, err)
			return
		}
		m.rec.IncCounter(metrics.EventFrameIn, nil)

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		w := m.waiter
		m.waiter = nil
		onFrame := m.onFrame
		m.mu.Unlock()

		if w != nil {
			w <- awaitResult{raw: raw}
			continue
		}
		if onFrame != nil {
			onFrame(raw)
		}
	}
}

// fail ends connection gen after a transport error. Errors from a connection
// that was already closed on purpose are dropped.
func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || !m.open {
		m.mu.Unlock()
		return
	}
	m.open = false
	m.cancel()
	w := m.waiter
	m.waiter = nil
	onError := m.onError
	m.mu.Unlock()

	_ = m.transport.Close()
	if w != nil {
		w <- awaitResult{err: err}
	}
	m.log.Warn("socket failed", zap.Uint64("conn", gen), zap.Error(err))
	m.rec.IncCounter(metrics.EventSocketError, nil)
	if onError != nil {
		onError(err)
	}
}
