// Package statecache maintains one atomically-swapped snapshot of
// aggregate protocol state, amortizing RPC cost across every read consumer
// (the admin API's GET /state, SSE subscribers, and the reconciliation
// loop's recent-requests source) instead of each one hitting the chain
// independently.
package statecache

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobbyswhip/x402c/internal/broadcast"
	"github.com/bobbyswhip/x402c/internal/cache"
	"github.com/bobbyswhip/x402c/internal/identity"
	"github.com/bobbyswhip/x402c/internal/metrics"
	"github.com/bobbyswhip/x402c/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

const (
	deltaProbeInterval = 5 * time.Second
	maxStaleness        = 30 * time.Second
	recentRequestsCap   = 50
	endpointFetchLimit  = 5

	// endpointMetadataCacheTTL bounds how long a GetEndpoint result is
	// reused across refresh cycles. Short enough that an operator changing
	// an endpoint's pricing or gas config is reflected within a couple of
	// probe intervals, long enough that every 5s-30s refresh doesn't
	// re-fetch metadata for endpoints nobody has touched.
	endpointMetadataCacheTTL = 20 * time.Second
	endpointMetadataCacheCap = 2048
)

// ChainReader is the full slice of the chain adapter the cache needs to
// build one snapshot. It is satisfied structurally by *chainadapter.Adapter.
type ChainReader interface {
	GetHubStats(ctx context.Context) (model.HubStats, error)
	EndpointCount(ctx context.Context) (uint64, error)
	EndpointIDAt(ctx context.Context, index uint64) (common.Hash, error)
	GetEndpoint(ctx context.Context, id common.Hash) (model.Endpoint, error)
	GetEthPrice(ctx context.Context) (*big.Int, error)
	ProtocolFeesAccumulator(ctx context.Context) (*big.Int, error)
	TotalStaked(ctx context.Context) (model.StakingGlobals, error)
	GetStakeInfo(ctx context.Context, who common.Address) (model.LockerPosition, error)
	GetKeepAliveStats(ctx context.Context) (model.KeepAliveStats, error)
	FromAddress() common.Address
	HubAddress() common.Address
	CurrentBlock(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, contract common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error)
}

// Cache holds the one live snapshot plus the bookkeeping needed to decide
// when to refresh it and to feed the recent-requests ring buffer back to
// the reconciliation service.
type Cache struct {
	chain      ChainReader
	resolver   identity.Resolver
	broadcaster broadcast.Sink
	logger     *slog.Logger

	snapshot atomic.Pointer[model.AppStateSnapshot]

	mu            sync.Mutex
	lastServedSeq uint64
	lastFullAt    time.Time
	recent        []model.RecentRequest

	// endpoints caches GetEndpoint results across the endpointFetchLimit
	// concurrent gatherer goroutines in gatherEndpoints. Sharded rather than
	// a single LRU because those goroutines hit it concurrently on every
	// refresh, and a single lock would serialize exactly the fan-out this
	// package exists to parallelize.
	endpoints *cache.ShardedLRU[common.Hash, model.Endpoint]
}

// New constructs a cache with an empty snapshot; callers must call Run (or
// RefreshNow once) before Snapshot returns anything useful. broadcaster may
// be nil, in which case refreshes never publish an app_state event.
func New(chain ChainReader, resolver identity.Resolver, broadcaster broadcast.Sink, logger *slog.Logger) *Cache {
	return &Cache{
		chain:       chain,
		resolver:    resolver,
		broadcaster: broadcaster,
		logger:      logger.With("component", "statecache"),
		endpoints: cache.NewShardedLRU[common.Hash, model.Endpoint](
			endpointMetadataCacheCap, endpointMetadataCacheTTL, common.Hash.Hex,
		),
	}
}

// Snapshot returns the currently published snapshot, or nil if no refresh
// has completed yet.
func (c *Cache) Snapshot() *model.AppStateSnapshot {
	snap := c.snapshot.Load()
	if snap == nil {
		metrics.CacheMissesTotal.WithLabelValues("snapshot").Inc()
		return nil
	}
	metrics.CacheHitsTotal.WithLabelValues("snapshot").Inc()
	return snap
}

// RecentRequests returns a copy of the ring buffer, safe for the
// reconciliation service to read concurrently with RecordRequestEvent.
func (c *Cache) RecentRequests() []model.RecentRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.RecentRequest, len(c.recent))
	copy(out, c.recent)
	return out
}

// RecordRequestEvent pushes r onto the ring buffer, evicting the oldest
// entry once recentRequestsCap is exceeded. The router and keep-alive driver
// do not call it, and no refresh fills the buffer, so in the running agent
// RecentRequests returns only what callers of this method have recorded.
func (c *Cache) RecordRequestEvent(r model.RecentRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, r)
	if len(c.recent) > recentRequestsCap {
		c.recent = c.recent[len(c.recent)-recentRequestsCap:]
	}
}

// Run drives the refresh cadence: a cheap delta probe every 5s that only
// triggers a full refresh when the hub's served-request counter has moved,
// plus an unconditional full refresh every 30s to bound worst-case
// staleness even if the probe itself is wedged on a quiet contract.
func (c *Cache) Run(ctx context.Context) error {
	c.logger.Info("state cache started", "probe_interval", deltaProbeInterval, "max_staleness", maxStaleness)

	if err := c.RefreshNow(ctx); err != nil {
		c.logger.Warn("initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(deltaProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("state cache stopping")
			return ctx.Err()
		case <-ticker.C:
			c.probe(ctx)
		}
	}
}

func (c *Cache) probe(ctx context.Context) {
	c.mu.Lock()
	stale := time.Since(c.lastFullAt) >= maxStaleness
	c.mu.Unlock()

	if stale {
		if err := c.RefreshNow(ctx); err != nil {
			c.logger.Warn("staleness-forced refresh failed", "error", err)
		}
		return
	}

	stats, err := c.chain.GetHubStats(ctx)
	if err != nil {
		c.logger.Warn("delta probe failed", "error", err)
		return
	}

	c.mu.Lock()
	changed := stats.ServedRequestSeq != c.lastServedSeq
	c.mu.Unlock()

	if !changed {
		return
	}
	if err := c.RefreshNow(ctx); err != nil {
		c.logger.Warn("delta-triggered refresh failed", "error", err)
	}
}

// RefreshNow gathers every data source in parallel and swaps in a new
// snapshot. Each gatherer degrades to its zero value on error rather than
// failing the whole refresh: a governance RPC hiccup should never blank out
// the pricing data a fulfillment decision depends on.
func (c *Cache) RefreshNow(ctx context.Context) error {
	start := time.Now()

	var (
		hubStats     model.HubStats
		endpoints    []model.EndpointSummary
		staking      model.StakingGlobals
		lockerSelf   model.LockerPosition
		ethPrice     *big.Int
		keepAlive    model.KeepAliveStats
		buyback      model.BuybackStats
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := c.chain.GetHubStats(gctx)
		if err != nil {
			c.logger.Warn("refresh: hub stats failed", "error", err)
			return nil
		}
		hubStats = stats
		return nil
	})

	g.Go(func() error {
		eps, err := c.gatherEndpoints(gctx)
		if err != nil {
			c.logger.Warn("refresh: endpoints failed", "error", err)
			return nil
		}
		endpoints = eps
		return nil
	})

	g.Go(func() error {
		s, err := c.chain.TotalStaked(gctx)
		if err != nil {
			c.logger.Warn("refresh: staking globals failed", "error", err)
			return nil
		}
		staking = s
		return nil
	})

	g.Go(func() error {
		pos, err := c.chain.GetStakeInfo(gctx, c.chain.FromAddress())
		if err != nil {
			c.logger.Warn("refresh: self locker position failed", "error", err)
			return nil
		}
		lockerSelf = pos
		return nil
	})

	g.Go(func() error {
		price, err := c.chain.GetEthPrice(gctx)
		if err != nil {
			c.logger.Warn("refresh: eth price failed", "error", err)
			return nil
		}
		ethPrice = price
		return nil
	})

	g.Go(func() error {
		stats, err := c.chain.GetKeepAliveStats(gctx)
		if err != nil {
			c.logger.Warn("refresh: keep-alive stats failed", "error", err)
			return nil
		}
		keepAlive = stats
		return nil
	})

	g.Go(func() error {
		fees, err := c.chain.ProtocolFeesAccumulator(gctx)
		if err != nil {
			c.logger.Warn("refresh: protocol fees failed", "error", err)
			return nil
		}
		buyback.PendingFees = fees
		return nil
	})

	_ = g.Wait() // every gatherer already swallows its own error

	snap := &model.AppStateSnapshot{
		GeneratedAt:    time.Now(),
		Hub:            hubStats,
		Endpoints:      endpoints,
		Staking:        staking,
		LockerSelf:     lockerSelf,
		EthPriceUSDC:   ethPrice,
		KeepAlive:      keepAlive,
		Buyback:        buyback,
		RecentRequests: c.RecentRequests(),
	}
	c.snapshot.Store(snap)

	c.mu.Lock()
	c.lastServedSeq = hubStats.ServedRequestSeq
	c.lastFullAt = time.Now()
	c.mu.Unlock()

	metrics.CacheRefreshDuration.Observe(time.Since(start).Seconds())
	metrics.CacheAgeMillis.Set(0)
	c.logger.Info("snapshot refreshed", "duration", time.Since(start), "endpoints", len(endpoints))

	if c.broadcaster != nil {
		event := model.NewBroadcastEvent(model.EventAppState, snap.GeneratedAt)
		event.Data["endpointCount"] = len(endpoints)
		event.Data["totalRequests"] = hubStats.TotalRequests
		if err := c.broadcaster.Publish(ctx, event); err != nil {
			c.logger.Warn("failed to publish app_state event", "error", err)
		}
	}
	return nil
}

func (c *Cache) gatherEndpoints(ctx context.Context) ([]model.EndpointSummary, error) {
	count, err := c.chain.EndpointCount(ctx)
	if err != nil {
		return nil, err
	}

	historical, err := c.scanHistoricalFulfillments(ctx)
	if err != nil {
		c.logger.Warn("historical fulfillment scan failed, counts will read zero", "error", err)
		historical = map[common.Hash]uint64{}
	}

	var mu sync.Mutex
	out := make([]model.EndpointSummary, 0, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(endpointFetchLimit)

	for i := uint64(0); i < count; i++ {
		index := i
		g.Go(func() error {
			id, err := c.chain.EndpointIDAt(gctx, index)
			if err != nil {
				return nil
			}
			ep, ok := c.endpoints.Get(id)
			if !ok {
				fetched, err := c.chain.GetEndpoint(gctx, id)
				if err != nil {
					return nil
				}
				ep = fetched
				c.endpoints.Put(id, ep)
			}
			if name, ok := c.resolver.Resolve(gctx, ep.Owner); ok {
				ep.OwnerName = &name
			}

			mu.Lock()
			out = append(out, model.EndpointSummary{
				Endpoint:               ep,
				HistoricalFulfillments: historical[id],
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
