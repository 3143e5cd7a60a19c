package hosttest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"payengine/internal/domain"
)

// ErrPipeClosed is returned by Pipe when no connection is open.
var ErrPipeClosed = errors.New("pipe closed")

type pipeConn struct {
	in   chan []byte
	fail chan error
	done chan struct{}
}

// Pipe is an in-memory domain.Transport. Every frame sent through it is
// recorded and, when Respond is set, answered synchronously.
type Pipe struct {
	// Respond produces the frames to deliver back for a sent frame.
	Respond func(frame []byte) [][]byte
	// ConnectErr, when set, fails every Connect.
	ConnectErr error

	mu    sync.Mutex
	conn  *pipeConn
	sent  [][]byte
	urls  []string
	dials int
}

var _ domain.Transport = (*Pipe)(nil)

func NewPipe(respond func([]byte) [][]byte) *Pipe {
	return &Pipe{Respond: respond}
}

func (p *Pipe) Connect(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dials++
	if p.ConnectErr != nil {
		return p.ConnectErr
	}
	if p.conn != nil {
		close(p.conn.done)
	}
	p.conn = &pipeConn{
		in:   make(chan []byte, 64),
		fail: make(chan error, 1),
		done: make(chan struct{}),
	}
	p.urls = append(p.urls, url)
	return nil
}

func (p *Pipe) Send(ctx context.Context, frame []byte) error {
	p.mu.Lock()
	if p.conn == nil {
		p.mu.Unlock()
		return ErrPipeClosed
	}
	p.sent = append(p.sent, append([]byte(nil), frame...))
	respond := p.Respond
	p.mu.Unlock()

	if respond != nil {
		for _, r := range respond(frame) {
			p.Push(r)
		}
	}
	return nil
}

func (p *Pipe) Receive(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return nil, ErrPipeClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case raw := <-c.in:
		return raw, nil
	case err := <-c.fail:
		return nil, err
	case <-c.done:
		return nil, ErrPipeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		close(p.conn.done)
		p.conn = nil
	}
	return nil
}

// Push delivers frame to the client on the current connection.
func (p *Pipe) Push(frame []byte) {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case c.in <- frame:
	case <-c.done:
	}
}

// Drop fails the current connection with err, as a network error would.
func (p *Pipe) Drop(err error) {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case c.fail <- err:
	default:
	}
}

// Sent returns a copy of every frame sent so far.
func (p *Pipe) Sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.sent))
	copy(out, p.sent)
	return out
}

// Actions returns the "action" of every sent frame in order.
func (p *Pipe) Actions() []string {
	var out []string
	for _, f := range p.Sent() {
		var env struct {
			Action string `json:"action"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Action)
	}
	return out
}

// Count returns how many frames with action were sent.
func (p *Pipe) Count(action string) int {
	n := 0
	for _, a := range p.Actions() {
		if a == action {
			n++
		}
	}
	return n
}

// Dials returns the number of Connect calls.
func (p *Pipe) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// URLs returns the URLs passed to successful Connect calls.
func (p *Pipe) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}
