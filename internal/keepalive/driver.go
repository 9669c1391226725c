// Package keepalive drives the subscription-renewal loop: it enumerates
// active subscriptions, checks which are due, and fulfills each one
// through the sender after a fresh profitability check.
package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/bobbyswhip/x402c/internal/inflight"
	"github.com/bobbyswhip/x402c/internal/metrics"
	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/bobbyswhip/x402c/internal/profitability"
	"github.com/bobbyswhip/x402c/internal/sender"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultPollInterval      = 10 * time.Second
	subscriptionListTTL      = 60 * time.Second
	batchSize                = 5
	defaultLossToleranceUSDC = 5_000
	gasBufferPct             = 120
)

// ChainClient is the slice of the chain adapter the driver needs.
type ChainClient interface {
	SubscriptionCount(ctx context.Context) (uint64, error)
	SubscriptionIDAt(ctx context.Context, index uint64) (common.Hash, error)
	GetSubscription(ctx context.Context, id common.Hash) (model.Subscription, error)
	GetSubscriptionCost(ctx context.Context, id common.Hash) (*big.Int, error)
	IsReady(ctx context.Context, id common.Hash) (bool, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	GetEthPrice(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	FulfillSubscriptionData(id common.Hash) ([]byte, error)
	KeepAliveAddress() common.Address
}

// Broadcaster is the narrow slice of broadcast.Sink the driver needs.
type Broadcaster interface {
	Publish(ctx context.Context, event model.BroadcastEvent) error
}

// Driver runs the poll-and-fulfill loop described by the keep-alive
// renewal design: a cached subscription-id list, batched readiness
// checks, and per-subscription fulfillment isolated so one failure never
// skips its siblings.
type Driver struct {
	chain     ChainClient
	snd       *sender.Sender
	inflight  *inflight.Set
	broadcast Broadcaster
	logger    *slog.Logger
	interval  time.Duration

	mu          sync.Mutex
	cachedIDs   []common.Hash
	cachedAt    time.Time
	now         func() time.Time
}

// New constructs a Driver with the default 10s poll interval.
func New(chain ChainClient, snd *sender.Sender, broadcaster Broadcaster, logger *slog.Logger) *Driver {
	return &Driver{
		chain:     chain,
		snd:       snd,
		inflight:  inflight.New(nil),
		broadcast: broadcaster,
		logger:    logger.With("component", "keepalive"),
		interval:  defaultPollInterval,
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled. Each cycle fully completes (or fails
// per-subscription) before the next is scheduled, so overlapping cycles
// never occur.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("keep-alive driver started", "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("keep-alive driver stopping")
			return ctx.Err()
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

func (d *Driver) runCycle(ctx context.Context) {
	ids, err := d.subscriptionIDs(ctx)
	if err != nil {
		d.logger.Warn("failed to list subscriptions", "error", err)
		return
	}

	ready := d.batchCheckReady(ctx, ids)
	for _, id := range ready {
		d.fulfillOne(ctx, id)
	}
}

// subscriptionIDs returns the cached id list, refreshing it if stale.
func (d *Driver) subscriptionIDs(ctx context.Context) ([]common.Hash, error) {
	d.mu.Lock()
	if len(d.cachedIDs) > 0 && d.now().Sub(d.cachedAt) < subscriptionListTTL {
		ids := d.cachedIDs
		d.mu.Unlock()
		return ids, nil
	}
	d.mu.Unlock()

	count, err := d.chain.SubscriptionCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription count: %w", err)
	}

	ids := make([]common.Hash, 0, count)
	for start := uint64(0); start < count; start += batchSize {
		end := start + batchSize
		if end > count {
			end = count
		}
		for i := start; i < end; i++ {
			id, err := d.chain.SubscriptionIDAt(ctx, i)
			if err != nil {
				return nil, fmt.Errorf("subscription id at %d: %w", i, err)
			}
			ids = append(ids, id)
		}
	}

	d.mu.Lock()
	d.cachedIDs = ids
	d.cachedAt = d.now()
	d.mu.Unlock()
	return ids, nil
}

// invalidateCache forces the next poll to re-enumerate subscription ids.
// Called whenever fulfill returns without error: after a submitted
// fulfillment, and also after a cycle skipped as not ready or unprofitable,
// since the subscription may have become inactive or hit its fulfillment cap.
func (d *Driver) invalidateCache() {
	d.mu.Lock()
	d.cachedAt = time.Time{}
	d.mu.Unlock()
}

func (d *Driver) batchCheckReady(ctx context.Context, ids []common.Hash) []common.Hash {
	ready := make([]common.Hash, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			ok, err := d.chain.IsReady(ctx, id)
			if err != nil {
				d.logger.Warn("isReady check failed", "subscription_id", id.Hex(), "error", err)
				continue
			}
			if ok {
				ready = append(ready, id)
			}
		}
	}
	metrics.KeepaliveDueGauge.Set(float64(len(ready)))
	return ready
}

func (d *Driver) fulfillOne(ctx context.Context, id common.Hash) {
	if !d.inflight.TryClaim(id) {
		return
	}
	defer d.inflight.Release(id)

	outcome := "fulfilled"
	if err := d.fulfill(ctx, id); err != nil {
		outcome = "error"
		d.logger.Warn("keep-alive fulfillment failed", "subscription_id", id.Hex(), "error", err)
	} else {
		d.invalidateCache()
	}
	metrics.KeepaliveCyclesTotal.WithLabelValues(outcome).Inc()
}

func (d *Driver) fulfill(ctx context.Context, id common.Hash) error {
	// Re-check readiness inline: this guards against the race between the
	// batch check above and this specific fulfillment (another agent, or
	// our own prior cycle, may have just fulfilled it).
	ready, err := d.chain.IsReady(ctx, id)
	if err != nil {
		return fmt.Errorf("re-check isReady: %w", err)
	}
	if !ready {
		metrics.KeepaliveCyclesTotal.WithLabelValues("skipped").Inc()
		d.publish(ctx, model.EventKeepaliveSkipped, id)
		return nil
	}

	cost, err := d.chain.GetSubscriptionCost(ctx, id)
	if err != nil {
		return fmt.Errorf("subscription cost: %w", err)
	}

	data, err := d.chain.FulfillSubscriptionData(id)
	if err != nil {
		return fmt.Errorf("build fulfillSubscription calldata: %w", err)
	}

	gasPrice, err := d.chain.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}

	hub := d.chain.KeepAliveAddress()
	result, err := profitability.Evaluate(ctx, gasEstimator(d.chain.EstimateGas), d.chain.GetEthPrice, profitability.Params{
		Msg:                ethereum.CallMsg{To: &hub, Data: data},
		GasPrice:           gasPrice,
		ReimbursementUSDC6: cost,
		LossToleranceUSDC6: defaultLossToleranceUSDC,
		GasBufferPct:       gasBufferPct,
	})
	if err != nil {
		return fmt.Errorf("profitability check: %w", err)
	}
	if result.Outcome != profitability.OutcomeProfitable {
		metrics.KeepaliveCyclesTotal.WithLabelValues("unprofitable").Inc()
		return nil
	}

	if _, err := d.snd.Submit(ctx, sender.Request{
		To:       hub,
		Data:     data,
		GasLimit: result.BufferedGas,
		GasPrice: gasPrice,
		Method:   "fulfillSubscription",
	}); err != nil {
		return fmt.Errorf("submit fulfillSubscription: %w", err)
	}

	d.publish(ctx, model.EventKeepaliveFulfilled, id)
	return nil
}

func (d *Driver) publish(ctx context.Context, typ model.BroadcastEventType, subscriptionID common.Hash) {
	if d.broadcast == nil {
		return
	}
	event := model.NewBroadcastEvent(typ, d.now())
	event.SubscriptionID = &subscriptionID
	if err := d.broadcast.Publish(ctx, event); err != nil {
		d.logger.Warn("broadcast publish failed", "error", err)
	}
}

type gasEstimator func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

func (f gasEstimator) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f(ctx, msg)
}
