package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/bobbyswhip/x402c/internal/broadcast"
	"github.com/bobbyswhip/x402c/internal/chainadapter"
	"github.com/bobbyswhip/x402c/internal/cursor"
	"github.com/bobbyswhip/x402c/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// configEventNames are the hub events that change pricing or endpoint
// configuration, rather than request/subscription lifecycle.
var configEventNames = []string{
	chainadapter.EventPriceOracleUpdated,
	chainadapter.EventEndpointUpdated,
	chainadapter.EventEndpointGasConfigUpdated,
}

// NewConfigWatcher builds the smaller watcher dedicated to pricing and
// endpoint configuration changes. On any matching log it publishes a
// lightweight pricing_update broadcast rather than forcing a full state
// refresh.
func NewConfigWatcher(ctx context.Context, chain ChainReader, store *cursor.Store, hubAddress common.Address, sink broadcast.Sink, logger *slog.Logger) (*Watcher, error) {
	topics := make([]common.Hash, 0, len(configEventNames))
	for _, name := range configEventNames {
		topic, err := chainadapter.HubEventTopic(name)
		if err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}

	dispatch := func(ctx context.Context, log types.Log) {
		event := model.NewBroadcastEvent(model.EventPricingUpdate, time.Now())
		event.Data["txHash"] = log.TxHash.Hex()
		event.Data["blockNumber"] = log.BlockNumber
		if err := sink.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish config-change broadcast", "error", err)
		}
	}

	return New(ctx, cursor.LabelConfigWatcher, chain, store, Source{Contract: hubAddress, Topics: topics}, dispatch, logger)
}
