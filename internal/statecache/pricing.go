package statecache

import (
	"context"

	"github.com/bobbyswhip/x402c/internal/broadcast"
	"github.com/bobbyswhip/x402c/internal/model"
)

// endpointPricing is the small, JSON-friendly projection of an endpoint's
// cost fields published on a pricing_update event — never the full
// snapshot, which would defeat the point of a lightweight broadcast.
type endpointPricing struct {
	EstimatedGasWei string `json:"estimatedGasWei"`
	BaseCostUnits   string `json:"baseCostUnits"`
}

// RunPricingListener enriches the cheap pricing_update notifications the
// config watcher emits (txHash/blockNumber only) with the actual price
// data operators want, then republishes. The ethPriceUsdc check stops the
// republished event from being enriched a second time when this same
// listener observes its own publish.
func (c *Cache) RunPricingListener(ctx context.Context, sink broadcast.Sink) error {
	ch, unsubscribe := sink.Subscribe(ctx)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if event.Type != model.EventPricingUpdate {
				continue
			}
			if _, already := event.Data["ethPriceUsdc"]; already {
				continue
			}

			enriched, err := c.enrichPricingEvent(ctx, event)
			if err != nil {
				c.logger.Warn("pricing enrichment failed", "error", err)
				continue
			}
			if err := sink.Publish(ctx, enriched); err != nil {
				c.logger.Warn("failed to publish enriched pricing event", "error", err)
			}
		}
	}
}

func (c *Cache) enrichPricingEvent(ctx context.Context, event model.BroadcastEvent) (model.BroadcastEvent, error) {
	ethPrice, err := c.chain.GetEthPrice(ctx)
	if err != nil {
		return event, err
	}

	count, err := c.chain.EndpointCount(ctx)
	if err != nil {
		return event, err
	}

	pricing := make(map[string]endpointPricing, count)
	for i := uint64(0); i < count; i++ {
		id, err := c.chain.EndpointIDAt(ctx, i)
		if err != nil {
			continue
		}
		ep, err := c.chain.GetEndpoint(ctx, id)
		if err != nil {
			continue
		}
		pricing[id.Hex()] = endpointPricing{
			EstimatedGasWei: ep.EstimatedGasWei.String(),
			BaseCostUnits:   ep.BaseCost.String(),
		}
	}

	event.Data["ethPriceUsdc"] = ethPrice.String()
	event.Data["endpoints"] = pricing
	return event, nil
}
