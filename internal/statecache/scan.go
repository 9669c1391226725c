package statecache

import (
	"context"
	"sync"

	"github.com/bobbyswhip/x402c/internal/chainadapter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

const (
	historyWindowBlocks = 50_000
	historyChunkSize     = 1_000
	historyConcurrency   = 5
)

// scanHistoricalFulfillments walks the last historyWindowBlocks of hub
// events and returns, per endpoint, how many requests against it have ever
// been fulfilled. RequestFulfilled carries only the request id, not the
// endpoint id, so this makes two passes: build requestID -> endpointID from
// RequestCreated, then attribute each RequestFulfilled to its endpoint.
func (c *Cache) scanHistoricalFulfillments(ctx context.Context) (map[common.Hash]uint64, error) {
	createdTopic, err := chainadapter.HubEventTopic(chainadapter.EventRequestCreated)
	if err != nil {
		return nil, err
	}
	fulfilledTopic, err := chainadapter.HubEventTopic(chainadapter.EventRequestFulfilled)
	if err != nil {
		return nil, err
	}

	current, err := c.chain.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	from := uint64(0)
	if current > historyWindowBlocks {
		from = current - historyWindowBlocks
	}

	logs, err := c.fetchLogsChunked(ctx, from, current, []common.Hash{createdTopic, fulfilledTopic})
	if err != nil {
		return nil, err
	}

	endpointByRequest := make(map[common.Hash]common.Hash, len(logs))
	for _, log := range logs {
		if len(log.Topics) == 0 || log.Topics[0] != createdTopic {
			continue
		}
		decoded, err := chainadapter.DecodeRequestCreated(log)
		if err != nil {
			continue
		}
		endpointByRequest[decoded.RequestID] = decoded.EndpointID
	}

	counts := make(map[common.Hash]uint64)
	for _, log := range logs {
		if len(log.Topics) == 0 || log.Topics[0] != fulfilledTopic {
			continue
		}
		decoded, err := chainadapter.DecodeRequestFulfilled(log)
		if err != nil {
			continue
		}
		endpointID, ok := endpointByRequest[decoded.RequestID]
		if !ok {
			continue
		}
		counts[endpointID]++
	}

	return counts, nil
}

// fetchLogsChunked scans [from, to] in historyChunkSize windows, up to
// historyConcurrency chunks in flight at once.
func (c *Cache) fetchLogsChunked(ctx context.Context, from, to uint64, topics []common.Hash) ([]types.Log, error) {
	if to < from {
		return nil, nil
	}

	var (
		mu  sync.Mutex
		all []types.Log
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyConcurrency)

	for start := from; start <= to; start += historyChunkSize {
		end := start + historyChunkSize - 1
		if end > to {
			end = to
		}
		rangeStart, rangeEnd := start, end
		g.Go(func() error {
			logs, err := c.chain.FetchLogs(gctx, c.chain.HubAddress(), [][]common.Hash{topics}, rangeStart, rangeEnd)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, logs...)
			mu.Unlock()
			return nil
		})
		if end == to {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}
