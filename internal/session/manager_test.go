package session_test

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"payengine/internal/hosttest"
	"payengine/internal/session"
)

const socketURL = "wss://host.example/socket"

func echo(frame []byte) [][]byte { return [][]byte{frame} }

func openManager(t *testing.T, p *hosttest.Pipe) *session.Manager {
	t.Helper()
	m := session.New(p, socketURL)
	require.NoError(t, m.Open(context.Background(), "ptt 1"))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_OpenCarriesPTToken(t *testing.T) {
	p := hosttest.NewPipe(nil)
	m := openManager(t, p)
	require.True(t, m.IsOpen())

	urls := p.URLs()
	require.Len(t, urls, 1)
	u, err := url.Parse(urls[0])
	require.NoError(t, err)
	require.Equal(t, "ptt 1", u.Query().Get("pt_token"))
	require.Equal(t, "/socket", u.Path)
}

func TestManager_SendAndAwait(t *testing.T) {
	p := hosttest.NewPipe(echo)
	m := openManager(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := m.SendAndAwait(ctx, []byte(`{"action":"a"}`))
	require.NoError(t, err)
	require.Equal(t, `{"action":"a"}`, string(got))
}

func TestManager_UnawaitedFramesReachHandler(t *testing.T) {
	p := hosttest.NewPipe(nil)
	m := openManager(t, p)

	frames := make(chan string, 4)
	m.SetHandlers(func(raw []byte) { frames <- string(raw) }, nil)

	p.Push([]byte("one"))
	p.Push([]byte("two"))
	require.Equal(t, "one", <-frames)
	require.Equal(t, "two", <-frames)
}

func TestManager_SecondAwaitRejected(t *testing.T) {
	p := hosttest.NewPipe(nil)
	m := openManager(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first := make(chan []byte, 1)
	go func() {
		raw, _ := m.SendAndAwait(ctx, []byte(`{"action":"first"}`))
		first <- raw
	}()
	require.Eventually(t, func() bool { return len(p.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	_, err := m.SendAndAwait(ctx, []byte(`{"action":"second"}`))
	require.ErrorIs(t, err, session.ErrAwaitInFlight)
	require.Len(t, p.Sent(), 1)

	p.Push([]byte("reply"))
	require.Equal(t, "reply", string(<-first))
}

func TestManager_TransportErrorReportedOnce(t *testing.T) {
	p := hosttest.NewPipe(nil)
	m := openManager(t, p)

	var calls atomic.Int32
	m.SetHandlers(nil, func(error) { calls.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	awaited := make(chan error, 1)
	go func() {
		_, err := m.SendAndAwait(ctx, []byte(`{}`))
		awaited <- err
	}()
	require.Eventually(t, func() bool { return len(p.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	boom := errors.New("connection reset")
	p.Drop(boom)
	p.Drop(boom)

	require.ErrorIs(t, <-awaited, boom)
	require.Eventually(t, func() bool { return !m.IsOpen() }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, calls.Load())

	require.ErrorIs(t, m.Send(ctx, []byte("x")), session.ErrNotOpen)
}

func TestManager_CloseIsNotAnError(t *testing.T) {
	p := hosttest.NewPipe(nil)
	m := openManager(t, p)

	var calls atomic.Int32
	m.SetHandlers(nil, func(error) { calls.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	awaited := make(chan error, 1)
	go func() {
		_, err := m.SendAndAwait(ctx, []byte(`{}`))
		awaited <- err
	}()
	require.Eventually(t, func() bool { return len(p.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	require.ErrorIs(t, <-awaited, session.ErrClosed)
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, calls.Load())
	require.False(t, m.IsOpen())
}

func TestManager_AwaitHonoursContext(t *testing.T) {
	p := hosttest.NewPipe(nil)
	m := openManager(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.SendAndAwait(ctx, []byte(`{}`))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The slot is free again.
	p.Respond = echo
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	_, err = m.SendAndAwait(ctx2, []byte(`{"again":true}`))
	require.NoError(t, err)
}

func TestManager_ReopenAfterClose(t *testing.T) {
	p := hosttest.NewPipe(echo)
	m := openManager(t, p)
	require.NoError(t, m.Close())
	require.NoError(t, m.Open(context.Background(), "ptt 2"))
	require.Equal(t, 2, p.Dials())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := m.SendAndAwait(ctx, []byte(`{}`))
	require.NoError(t, err)
}

func TestManager_NotOpen(t *testing.T) {
	m := session.New(hosttest.NewPipe(nil), socketURL)
	ctx := context.Background()
	require.ErrorIs(t, m.Send(ctx, []byte("x")), session.ErrNotOpen)
	_, err := m.SendAndAwait(ctx, []byte("x"))
	require.ErrorIs(t, err, session.ErrNotOpen)
	require.NoError(t, m.Close())
}
