package sender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClient struct {
	mu         sync.Mutex
	nonce      uint64
	nonceCalls int
	sentNonces []uint64
	sendErr    error
	waitErr    error
	receipt    *types.Receipt
}

func newFakeClient() *fakeClient {
	return &fakeClient{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
}

func (f *fakeClient) PendingNonce(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	return f.nonce, nil
}

func (f *fakeClient) SendSignedTx(_ context.Context, _ common.Address, _ []byte, nonce, _ uint64, _ *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentNonces = append(f.sentNonces, nonce)
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	var h common.Hash
	h[0] = byte(len(f.sentNonces))
	return h, nil
}

func (f *fakeClient) WaitReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.receipt, nil
}

func TestSubmit_SucceedsAndAdvancesNonce(t *testing.T) {
	client := newFakeClient()
	client.nonce = 5
	s := New(client, discardLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	result, err := s.Submit(context.Background(), Request{Method: "fulfillRequest", GasLimit: 100000, GasPrice: big.NewInt(1)})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, result.TxHash)

	result2, err := s.Submit(context.Background(), Request{Method: "fulfillRequest", GasLimit: 100000, GasPrice: big.NewInt(1)})
	require.NoError(t, err)
	_ = result2

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.sentNonces, 2)
	assert.Equal(t, uint64(5), client.sentNonces[0])
	assert.Equal(t, uint64(6), client.sentNonces[1])
	assert.Equal(t, 1, client.nonceCalls) // only fetched once; second reused in-process counter
}

func TestSubmit_RevertedReceiptIsError(t *testing.T) {
	client := newFakeClient()
	client.receipt = &types.Receipt{Status: types.ReceiptStatusFailed}
	s := New(client, discardLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	result, err := s.Submit(context.Background(), Request{Method: "fulfillRequest", GasPrice: big.NewInt(1)})
	require.ErrorIs(t, err, ErrTxReverted)
	assert.NotNil(t, result.Receipt)
}

func TestSubmit_NonceErrorTriggersRefetch(t *testing.T) {
	client := newFakeClient()
	client.nonce = 10
	s := New(client, discardLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	client.sendErr = errors.New("nonce too low")
	_, err := s.Submit(context.Background(), Request{Method: "x", GasPrice: big.NewInt(1)})
	require.Error(t, err)

	client.mu.Lock()
	client.sendErr = nil
	client.nonce = 11
	client.mu.Unlock()

	_, err = s.Submit(context.Background(), Request{Method: "x", GasPrice: big.NewInt(1)})
	require.NoError(t, err)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 2, client.nonceCalls)
}

func TestSubmit_SerializesConcurrentCallers(t *testing.T) {
	client := newFakeClient()
	s := New(client, discardLogger(), 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background(), Request{Method: "x", GasPrice: big.NewInt(1)})
			if err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), successes.Load())
	client.mu.Lock()
	defer client.mu.Unlock()
	seen := make(map[uint64]bool)
	for _, n := range client.sentNonces {
		assert.False(t, seen[n], "nonce %d reused", n)
		seen[n] = true
	}
	assert.Len(t, seen, 20)
}

func TestSubmit_ContextCancelledBeforeDispatch(t *testing.T) {
	client := newFakeClient()
	s := New(client, discardLogger(), 0) // default queue depth, never started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Submit(ctx, Request{Method: "x", GasPrice: big.NewInt(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmit_WaitReceiptError(t *testing.T) {
	client := newFakeClient()
	client.waitErr = errors.New("receipt polling timed out")
	s := New(client, discardLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	_, err := s.Submit(context.Background(), Request{Method: "x", GasPrice: big.NewInt(1)})
	require.Error(t, err)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	client := newFakeClient()
	s := New(client, discardLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
