package maintenance

import (
	"context"
	"sync"
	"testing"

	"github.com/bobbyswhip/x402c/internal/chainadapter"
	"github.com/bobbyswhip/x402c/internal/cursor"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type fakeSweepChain struct {
	current uint64
	logs    map[[2]uint64][]types.Log
}

func (f *fakeSweepChain) CurrentBlock(context.Context) (uint64, error) { return f.current, nil }

func (f *fakeSweepChain) FetchLogs(_ context.Context, _ common.Address, _ [][]common.Hash, from, to uint64) ([]types.Log, error) {
	return f.logs[[2]uint64{from, to}], nil
}

type recordingRouter struct {
	mu  sync.Mutex
	ids []common.Hash
}

func (r *recordingRouter) HandleRequestID(_ context.Context, id common.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func newSweepStore(t *testing.T) *cursor.Store {
	t.Helper()
	store, err := cursor.New(t.TempDir())
	require.NoError(t, err)
	return store
}

func requestCreatedLog(requestID, endpointID common.Hash) types.Log {
	topic, _ := chainadapter.HubEventTopic(chainadapter.EventRequestCreated)
	return types.Log{
		Topics: []common.Hash{topic, requestID, endpointID},
		Data:   make([]byte, 32),
	}
}

func TestSweeperLoopDispatchesDecodedRequestIDs(t *testing.T) {
	hub := common.HexToAddress("0xHub")
	reqID := common.HexToHash("0x01")
	endID := common.HexToHash("0x02")

	chain := &fakeSweepChain{
		current: 10,
		logs: map[[2]uint64][]types.Log{
			{1, 10}: {requestCreatedLog(reqID, endID)},
		},
	}
	router := &recordingRouter{}

	loop, err := NewSweeperLoop(context.Background(), chain, newSweepStore(t), hub, router, discardLogger())
	require.NoError(t, err)
	require.Equal(t, "sweeper", loop.Name)

	require.NoError(t, loop.Tick(context.Background()))

	router.mu.Lock()
	defer router.mu.Unlock()
	require.Len(t, router.ids, 1)
	require.Equal(t, reqID, router.ids[0])
}

func TestSweeperLoopNoNewBlocksSkipsRouter(t *testing.T) {
	hub := common.HexToAddress("0xHub")
	chain := &fakeSweepChain{current: 0}
	router := &recordingRouter{}

	loop, err := NewSweeperLoop(context.Background(), chain, newSweepStore(t), hub, router, discardLogger())
	require.NoError(t, err)

	require.NoError(t, loop.Tick(context.Background()))
	require.Empty(t, router.ids)
}
