package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"payengine/internal/codec"
	"payengine/internal/domain"
	"payengine/internal/hosttest"
)

func newIdleEngine() *Engine {
	return New(Config{SocketURL: "wss://host.example/socket"}, nil, nil, hosttest.NewPipe(nil))
}

func TestApplyFee_QuoteForReplacedBINIsDropped(t *testing.T) {
	e := newIdleEngine()
	oldBIN := "411111"
	fee := int64(99)

	e.SelectCard("4111 1111 1111 1111")
	e.SelectCard("5555 5555 5555 4444")
	e.applyFee(&codec.FeeCalculated{Fee: &fee, BankID: &oldBIN})

	_, ok := e.cardQuote("555555")
	require.False(t, ok)
	require.Equal(t, int64(-1), e.Snapshot().CardFee)
}

func TestApplyFee_RacingSelectCardNeverLeaksQuote(t *testing.T) {
	e := newIdleEngine()
	oldBIN := "411111"
	fee := int64(99)

	for i := 0; i < 2000; i++ {
		e.SelectCard("4111 1111 1111 1111")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.applyFee(&codec.FeeCalculated{Fee: &fee, BankID: &oldBIN})
		}()
		go func() {
			defer wg.Done()
			e.SelectCard("5555 5555 5555 4444")
		}()
		wg.Wait()

		_, ok := e.cardQuote("555555")
		require.False(t, ok, "iteration %d", i)
		require.Equal(t, int64(-1), e.cardFee.Load(), "iteration %d", i)
	}
}

func TestFuture_Result(t *testing.T) {
	f := NewFuture[int]()
	_, ok, err := f.Result()
	require.False(t, ok)
	require.NoError(t, err)

	require.True(t, f.resolve(7, nil))
	require.False(t, f.resolve(8, nil))

	v, ok, err := f.Result()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestSuspend_WipesSessionKey(t *testing.T) {
	e := newIdleEngine()
	sess := &domain.Session{SessionKey: "sk", ClientPrivate: domain.BoxPrivate{1, 2, 3}}
	e.mu.Lock()
	e.sess = sess
	held := e.sessionCopy()
	e.mu.Unlock()

	e.Suspend()
	require.Equal(t, domain.BoxPrivate{}, sess.ClientPrivate)
	require.Equal(t, domain.BoxPrivate{1, 2, 3}, held.ClientPrivate)
	require.False(t, e.Snapshot().Ready)
}
