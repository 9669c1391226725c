package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/bobbyswhip/x402c/internal/sender"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChain struct {
	mu        sync.Mutex
	requests  map[common.Hash]model.Request
	endpoints map[common.Hash]model.Endpoint
	hub       common.Address
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		requests:  map[common.Hash]model.Request{},
		endpoints: map[common.Hash]model.Endpoint{},
		hub:       common.HexToAddress("0x1"),
	}
}

func (f *fakeChain) GetRequest(_ context.Context, id common.Hash) (model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return model.Request{}, errors.New("not found")
	}
	return req, nil
}

func (f *fakeChain) GetEndpoint(_ context.Context, id common.Hash) (model.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[id]
	if !ok {
		return model.Endpoint{}, errors.New("not found")
	}
	return ep, nil
}

func (f *fakeChain) CancelRequestData(id common.Hash) ([]byte, error) {
	return []byte("cancel:" + id.Hex()), nil
}

func (f *fakeChain) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) HubAddress() common.Address { return f.hub }

type fakeSenderClient struct {
	mu    sync.Mutex
	sent  []sender.Request
	nonce uint64
}

func (c *fakeSenderClient) PendingNonce(_ context.Context) (uint64, error) { return c.nonce, nil }

func (c *fakeSenderClient) SendSignedTx(_ context.Context, _ common.Address, data []byte, nonce, _ uint64, _ *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var h common.Hash
	h[0] = byte(len(c.sent) + 1)
	c.sent = append(c.sent, sender.Request{Data: data})
	return h, nil
}

func (c *fakeSenderClient) WaitReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func newTestSender(t *testing.T) *sender.Sender {
	t.Helper()
	client := &fakeSenderClient{}
	s := sender.New(client, discardLogger(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s
}

type stubHandler struct {
	called int
	err    error
}

func (h *stubHandler) Fulfill(_ context.Context, _ model.Request, _ model.Endpoint) (common.Hash, error) {
	h.called++
	return common.Hash{}, h.err
}

func id(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

func TestHandleRequestID_DelegatesToClassifiedHandler(t *testing.T) {
	chain := newFakeChain()
	reqID, epID := id(1), id(2)
	chain.requests[reqID] = model.Request{ID: reqID, EndpointID: epID, Status: model.RequestPending, CreatedAt: time.Now().Unix()}
	chain.endpoints[epID] = model.Endpoint{ID: epID, Active: true}

	handler := &stubHandler{}
	rt := New(chain, newTestSender(t), nil,
		StaticClassifier(map[common.Hash]model.HandlerClass{epID: HandlerClassAlchemy}),
		map[model.HandlerClass]Handler{HandlerClassAlchemy: handler},
		nil, discardLogger(),
	)

	rt.HandleRequestID(context.Background(), reqID)
	assert.Equal(t, 1, handler.called)
	assert.Equal(t, 0, rt.inflight.Len())
}

func TestHandleRequestID_SkipsAlreadySettledRequest(t *testing.T) {
	chain := newFakeChain()
	reqID, epID := id(1), id(2)
	chain.requests[reqID] = model.Request{ID: reqID, EndpointID: epID, Status: model.RequestFulfilled}

	handler := &stubHandler{}
	rt := New(chain, newTestSender(t), nil,
		StaticClassifier(map[common.Hash]model.HandlerClass{epID: HandlerClassAlchemy}),
		map[model.HandlerClass]Handler{HandlerClassAlchemy: handler},
		nil, discardLogger(),
	)

	rt.HandleRequestID(context.Background(), reqID)
	assert.Equal(t, 0, handler.called)
}

func TestHandleRequestID_UnknownEndpointCancels(t *testing.T) {
	chain := newFakeChain()
	reqID, epID := id(1), id(2)
	chain.requests[reqID] = model.Request{ID: reqID, EndpointID: epID, Status: model.RequestPending, CreatedAt: time.Now().Unix()}

	rt := New(chain, newTestSender(t), nil, StaticClassifier(nil), nil, nil, discardLogger())
	rt.HandleRequestID(context.Background(), reqID)
	// No assertion on chain state beyond "did not panic" — cancellation is
	// submitted through the sender, verified indirectly via no error log path.
}

func TestHandleRequestID_StaleRequestCancelsWithoutDelegating(t *testing.T) {
	chain := newFakeChain()
	reqID, epID := id(1), id(2)
	chain.requests[reqID] = model.Request{
		ID: reqID, EndpointID: epID, Status: model.RequestPending,
		CreatedAt: time.Now().Add(-10 * time.Minute).Unix(),
	}
	chain.endpoints[epID] = model.Endpoint{ID: epID, Active: true}

	handler := &stubHandler{}
	rt := New(chain, newTestSender(t), nil,
		StaticClassifier(map[common.Hash]model.HandlerClass{epID: HandlerClassAlchemy}),
		map[model.HandlerClass]Handler{HandlerClassAlchemy: handler},
		nil, discardLogger(),
	)

	rt.HandleRequestID(context.Background(), reqID)
	assert.Equal(t, 0, handler.called)
}

func TestHandleRequestID_SecondConcurrentClaimIsDropped(t *testing.T) {
	chain := newFakeChain()
	reqID, epID := id(1), id(2)
	chain.requests[reqID] = model.Request{ID: reqID, EndpointID: epID, Status: model.RequestPending, CreatedAt: time.Now().Unix()}
	chain.endpoints[epID] = model.Endpoint{ID: epID, Active: true}

	rt := New(chain, newTestSender(t), nil,
		StaticClassifier(map[common.Hash]model.HandlerClass{epID: HandlerClassAlchemy}),
		map[model.HandlerClass]Handler{HandlerClassAlchemy: &stubHandler{}},
		nil, discardLogger(),
	)

	require.True(t, rt.inflight.TryClaim(reqID))
	rt.HandleRequestID(context.Background(), reqID) // should drop immediately, claim already held
	assert.Equal(t, 1, rt.inflight.Len())
	rt.inflight.Release(reqID)
}
