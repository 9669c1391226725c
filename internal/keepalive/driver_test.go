package keepalive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/bobbyswhip/x402c/internal/sender"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeKeepAliveChain struct {
	mu        sync.Mutex
	ids       []common.Hash
	ready     map[common.Hash]bool
	cost      *big.Int
	ethPrice  *big.Int
	gas       uint64
	countCalls int
}

func (f *fakeKeepAliveChain) SubscriptionCount(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return uint64(len(f.ids)), nil
}

func (f *fakeKeepAliveChain) SubscriptionIDAt(_ context.Context, index uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= uint64(len(f.ids)) {
		return common.Hash{}, errors.New("out of range")
	}
	return f.ids[index], nil
}

func (f *fakeKeepAliveChain) GetSubscription(_ context.Context, id common.Hash) (model.Subscription, error) {
	return model.Subscription{ID: id}, nil
}

func (f *fakeKeepAliveChain) GetSubscriptionCost(_ context.Context, _ common.Hash) (*big.Int, error) {
	return f.cost, nil
}

func (f *fakeKeepAliveChain) IsReady(_ context.Context, id common.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready[id], nil
}

func (f *fakeKeepAliveChain) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return f.gas, nil
}

func (f *fakeKeepAliveChain) GetEthPrice(_ context.Context) (*big.Int, error) { return f.ethPrice, nil }

func (f *fakeKeepAliveChain) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeKeepAliveChain) FulfillSubscriptionData(id common.Hash) ([]byte, error) {
	return []byte("fulfill:" + id.Hex()), nil
}

func (f *fakeKeepAliveChain) KeepAliveAddress() common.Address { return common.HexToAddress("0x2") }

type fakeSenderClient struct {
	mu    sync.Mutex
	sent  int
	nonce uint64
}

func (c *fakeSenderClient) PendingNonce(_ context.Context) (uint64, error) { return c.nonce, nil }

func (c *fakeSenderClient) SendSignedTx(_ context.Context, _ common.Address, _ []byte, _, _ uint64, _ *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	var h common.Hash
	h[0] = byte(c.sent)
	return h, nil
}

func (c *fakeSenderClient) WaitReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func newTestSender(t *testing.T) (*sender.Sender, *fakeSenderClient) {
	t.Helper()
	client := &fakeSenderClient{}
	s := sender.New(client, discardLogger(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s, client
}

func id(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

func TestRunCycle_FulfillsReadyProfitableSubscription(t *testing.T) {
	subID := id(1)
	chain := &fakeKeepAliveChain{
		ids:      []common.Hash{subID},
		ready:    map[common.Hash]bool{subID: true},
		cost:     big.NewInt(1_000_000),
		ethPrice: big.NewInt(3000_000000),
		gas:      21000,
	}
	snd, client := newTestSender(t)
	d := New(chain, snd, nil, discardLogger())

	d.runCycle(context.Background())

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 1, client.sent)
}

func TestRunCycle_SkipsNotReadySubscriptions(t *testing.T) {
	subID := id(1)
	chain := &fakeKeepAliveChain{
		ids:      []common.Hash{subID},
		ready:    map[common.Hash]bool{},
		cost:     big.NewInt(1_000_000),
		ethPrice: big.NewInt(3000_000000),
		gas:      21000,
	}
	snd, client := newTestSender(t)
	d := New(chain, snd, nil, discardLogger())

	d.runCycle(context.Background())

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 0, client.sent)
}

func TestRunCycle_SkipsUnprofitableSubscription(t *testing.T) {
	subID := id(1)
	chain := &fakeKeepAliveChain{
		ids:      []common.Hash{subID},
		ready:    map[common.Hash]bool{subID: true},
		cost:     big.NewInt(0),
		ethPrice: big.NewInt(3000_000000),
		gas:      21000,
	}
	snd, client := newTestSender(t)
	d := New(chain, snd, nil, discardLogger())

	d.runCycle(context.Background())

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 0, client.sent)
}

func TestSubscriptionIDs_CachesAcrossCalls(t *testing.T) {
	chain := &fakeKeepAliveChain{ids: []common.Hash{id(1), id(2)}}
	snd, _ := newTestSender(t)
	d := New(chain, snd, nil, discardLogger())

	ids1, err := d.subscriptionIDs(context.Background())
	require.NoError(t, err)
	ids2, err := d.subscriptionIDs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ids1, ids2)
	assert.Equal(t, 1, chain.countCalls)
}

func TestSubscriptionIDs_RefreshesAfterInvalidate(t *testing.T) {
	chain := &fakeKeepAliveChain{ids: []common.Hash{id(1)}}
	snd, _ := newTestSender(t)
	d := New(chain, snd, nil, discardLogger())

	_, err := d.subscriptionIDs(context.Background())
	require.NoError(t, err)
	d.invalidateCache()
	_, err = d.subscriptionIDs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, chain.countCalls)
}

func TestFulfillOne_SingleFlightDropsSecondCall(t *testing.T) {
	subID := id(1)
	chain := &fakeKeepAliveChain{
		ids:      []common.Hash{subID},
		ready:    map[common.Hash]bool{subID: true},
		cost:     big.NewInt(1_000_000),
		ethPrice: big.NewInt(3000_000000),
		gas:      21000,
	}
	snd, _ := newTestSender(t)
	d := New(chain, snd, nil, discardLogger())

	require.True(t, d.inflight.TryClaim(subID))
	d.fulfillOne(context.Background(), subID) // should no-op: already claimed
	assert.Equal(t, 1, d.inflight.Len())
	d.inflight.Release(subID)
}
