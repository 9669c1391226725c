package statecache

import (
	"context"
	"testing"

	"github.com/bobbyswhip/x402c/internal/chainadapter"
	"github.com/bobbyswhip/x402c/internal/identity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createdLog(requestID, endpointID common.Hash) types.Log {
	topic, _ := chainadapter.HubEventTopic(chainadapter.EventRequestCreated)
	return types.Log{Topics: []common.Hash{topic, requestID, endpointID}, Data: make([]byte, 32)}
}

func fulfilledLog(requestID common.Hash) types.Log {
	topic, _ := chainadapter.HubEventTopic(chainadapter.EventRequestFulfilled)
	// RequestFulfilled indexes both requestId and agent, so the log carries
	// three topics; the agent topic is left zero here.
	return types.Log{Topics: []common.Hash{topic, requestID, {}}, Data: make([]byte, 32)}
}

func TestScanHistoricalFulfillmentsCountsPerEndpoint(t *testing.T) {
	chain := newFakeChain()
	chain.current = 1500

	reqA := common.HexToHash("0xa")
	reqB := common.HexToHash("0xb")
	epX := common.HexToHash("0x10")
	epY := common.HexToHash("0x20")

	chain.logsByRange[[2]uint64{0, 999}] = []types.Log{
		createdLog(reqA, epX),
		createdLog(reqB, epY),
	}
	chain.logsByRange[[2]uint64{1000, 1500}] = []types.Log{
		fulfilledLog(reqA),
		fulfilledLog(reqB),
		fulfilledLog(reqA),
	}

	c := New(chain, identity.NewStaticResolver(nil), nil, discardLogger())
	counts, err := c.scanHistoricalFulfillments(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), counts[epX])
	assert.Equal(t, uint64(1), counts[epY])
}

func TestScanHistoricalFulfillmentsIgnoresOrphanFulfillment(t *testing.T) {
	chain := newFakeChain()
	chain.current = 500

	reqUnknown := common.HexToHash("0xdead")
	chain.logsByRange[[2]uint64{0, 500}] = []types.Log{fulfilledLog(reqUnknown)}

	c := New(chain, identity.NewStaticResolver(nil), nil, discardLogger())
	counts, err := c.scanHistoricalFulfillments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestFetchLogsChunkedSplitsAcrossChunkBoundaries(t *testing.T) {
	chain := newFakeChain()
	reqA := common.HexToHash("0x1")
	epA := common.HexToHash("0x2")

	chain.logsByRange[[2]uint64{0, 999}] = []types.Log{createdLog(reqA, epA)}
	chain.logsByRange[[2]uint64{1000, 1999}] = []types.Log{fulfilledLog(reqA)}

	c := New(chain, identity.NewStaticResolver(nil), nil, discardLogger())
	logs, err := c.fetchLogsChunked(context.Background(), 0, 1999, nil)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
