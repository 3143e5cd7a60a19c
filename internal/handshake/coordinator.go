package handshake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"payengine/internal/codec"
	"payengine/internal/crypto"
	"payengine/internal/domain"
	"payengine/internal/metrics"
)

// State is a handshake step.
type State int

const (
	Unattested State = iota
	ChallengeRequested
	KeyGenerated
	Attested
	HostTokenSent
	Ready
)

func (s State) String() string {
	switch s {
	case Unattested:
		return "unattested"
	case ChallengeRequested:
		return "challenge_requested"
	case KeyGenerated:
		return "key_generated"
	case Attested:
		return "attested"
	case HostTokenSent:
		return "host_token_sent"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is the part of the session manager the handshake drives.
type Conn interface {
	Open(ctx context.Context, ptToken string) error
	SendAndAwait(ctx context.Context, frame []byte) ([]byte, error)
	Close() error
}

// Coordinator runs handshakes. Run calls must not overlap.
type Coordinator struct {
	tokens   domain.TokenSource
	attestor domain.Attestor
	conn     Conn

	origin  string
	decoder codec.Decoder
	log     *zap.Logger
	rec     metrics.Recorder
	now     func() time.Time

	mu      sync.Mutex
	state   State
	onState func(State)
}

type Option func(*Coordinator)

// WithOrigin overrides the origin sent with the host token request.
func WithOrigin(origin string) Option { return func(c *Coordinator) { c.origin = origin } }

func WithDecoder(d codec.Decoder) Option { return func(c *Coordinator) { c.decoder = d } }

func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = l } }

func WithMetrics(r metrics.Recorder) Option { return func(c *Coordinator) { c.rec = r } }

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithObserver is called on every state change.
func WithObserver(fn func(State)) Option { return func(c *Coordinator) { c.onState = fn } }

func New(tokens domain.TokenSource, attestor domain.Attestor, conn Conn, opts ...Option) *Coordinator {
	c := &Coordinator{
		tokens:   tokens,
		attestor: attestor,
		conn:     conn,
		log:      zap.NewNop(),
		rec:      metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current step.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) set(s State) {
	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	c.log.Debug("handshake state", zap.Stringer("state", s))
	if fn != nil {
		fn(s)
	}
}

// Reset returns the coordinator to Unattested and closes the socket.
func (c *Coordinator) Reset() {
	_ = c.conn.Close()
	c.set(Unattested)
}

// Run performs a full handshake and returns the new session.
//
// Steps:
//  1. Fetch the pt-token and one-time challenge over plain HTTP.
//  2. Generate a device key and attest the SHA-256 of the challenge.
//  3. Open the socket and a fresh client box key pair.
//  4. Send the host-token request and await its answer.
//  5. Install hostToken, sessionKey and the server public key.
func (c *Coordinator) Run(ctx context.Context) (*domain.Session, error) {
	start := c.now()
	sess, err := c.run(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		c.Reset()
		c.log.Warn("handshake failed", zap.Error(err))
	}
	c.rec.ObserveLatency(metrics.OpHandshake, c.now().Sub(start), map[string]string{metrics.LabelOutcome: outcome})
	return sess, err
}

func (c *Coordinator) run(ctx context.Context) (*domain.Session, error) {
	c.set(Unattested)

	tok, err := c.tokens.FetchPTToken(ctx)
	if err != nil {
		return nil, domain.HandshakeError("fetch challenge", err)
	}
	c.set(ChallengeRequested)

	keyID, err := c.attestor.GenerateKey(ctx)
	if err != nil {
		return nil, domain.HandshakeError("generate device key", err)
	}
	c.set(KeyGenerated)

	hash := crypto.Digest([]byte(tok.Challenge))
	blob, err := c.attestor.Attest(ctx, keyID, hash[:])
	if err != nil {
		return nil, domain.HandshakeError("attest device key", err)
	}
	c.set(Attested)

	if err := c.conn.Open(ctx, tok.Token); err != nil {
		return nil, domain.HandshakeError("open socket", err)
	}
	clientPriv, clientPub, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return nil, domain.HandshakeError("generate session key pair", err)
	}
	// The session keeps its own copy of the key.
	defer crypto.WipeKey(&clientPriv)

	origin := c.origin
	if origin == "" {
		origin = tok.Origin
	}
	frame, err := codec.Encode(codec.ActionHostToken, codec.HostTokenRequest{
		PTToken:     tok.Token,
		Origin:      origin,
		Attestation: crypto.B64(blob),
		Timing:      c.now().UnixMilli(),
	})
	if err != nil {
		return nil, domain.HandshakeError("encode host token request", err)
	}
	c.set(HostTokenSent)
	raw, err := c.conn.SendAndAwait(ctx, frame)
	if err != nil {
		return nil, domain.HandshakeError("request host token", err)
	}

	issued, err := c.parseHostToken(raw)
	if err != nil {
		return nil, err
	}
	serverPub, err := crypto.ParseBoxPublic(issued.PublicKey)
	if err != nil {
		return nil, domain.HandshakeError("invalid publicKey", err)
	}

	sess := &domain.Session{
		PTToken:       tok.Token,
		Origin:        origin,
		HostToken:     issued.HostToken,
		SessionKey:    issued.SessionKey,
		PublicKey:     serverPub,
		ClientPublic:  clientPub,
		ClientPrivate: clientPriv,
		EstablishedAt: c.now(),
	}
	c.set(Ready)
	c.log.Info("session ready", zap.String("server_key", crypto.Fingerprint(serverPub.Slice())))
	return sess, nil
}

func (c *Coordinator) parseHostToken(raw []byte) (*codec.HostTokenIssued, error) {
	f, err := codec.Parse(raw, nil)
	if err != nil {
		return nil, domain.HandshakeError("parse host token response", err)
	}
	if f.IsError() {
		return nil, domain.HandshakeError(f.Message, nil)
	}
	if f.Type != codec.TypeHostToken {
		return nil, domain.HandshakeError(fmt.Sprintf("unexpected %q frame", f.Type), nil)
	}
	v, err := c.decoder.Decode(f)
	if err != nil {
		return nil, domain.HandshakeError("decode host token", err)
	}
	issued := v.(*codec.HostTokenIssued)
	switch {
	case issued.HostToken == "":
		return nil, domain.HandshakeError("missing hostToken", nil)
	case issued.SessionKey == "":
		return nil, domain.HandshakeError("missing sessionKey", nil)
	case issued.PublicKey == "":
		return nil, domain.HandshakeError("missing publicKey", nil)
	}
	return issued, nil
}
