package keepalive

import (
	"context"
	"log/slog"
	"time"

	"github.com/bobbyswhip/x402c/internal/chainadapter"
	"github.com/bobbyswhip/x402c/internal/cursor"
	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/bobbyswhip/x402c/internal/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NewEventWatcher builds the watcher dedicated to keep-alive lifecycle
// events (subscription created/fulfilled/cancelled), re-publishing each as
// a broadcast event for operators rather than feeding the poll-and-fulfill
// loop, which works off on-chain readiness directly.
func NewEventWatcher(ctx context.Context, chain watcher.ChainReader, store *cursor.Store, keepAliveAddress common.Address, sink Broadcaster, logger *slog.Logger) (*watcher.Watcher, error) {
	names := []string{
		chainadapter.EventSubscriptionCreated,
		chainadapter.EventSubscriptionFulfilled,
		chainadapter.EventSubscriptionCancelled,
	}
	topics := make([]common.Hash, 0, len(names))
	for _, name := range names {
		topic, err := chainadapter.KeepAliveEventTopic(name)
		if err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}

	topicToEvent := map[common.Hash]model.BroadcastEventType{
		topics[0]: model.EventKeepaliveSubCreated,
		topics[1]: model.EventKeepaliveFulfilled,
		topics[2]: model.EventKeepaliveSubCancelled,
	}

	dispatch := func(ctx context.Context, log types.Log) {
		eventType, subscriptionID, ok := decodeKeepAliveEvent(log, topicToEvent)
		if !ok {
			return
		}
		event := model.NewBroadcastEvent(eventType, time.Now())
		event.SubscriptionID = &subscriptionID
		if err := sink.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish keep-alive broadcast", "error", err)
		}
	}

	return watcher.New(ctx, cursor.LabelKeepAliveWatcher, chain, store, watcher.Source{Contract: keepAliveAddress, Topics: topics}, dispatch, logger)
}

func decodeKeepAliveEvent(log types.Log, topicToEvent map[common.Hash]model.BroadcastEventType) (model.BroadcastEventType, common.Hash, bool) {
	if len(log.Topics) == 0 {
		return "", common.Hash{}, false
	}
	eventType, ok := topicToEvent[log.Topics[0]]
	if !ok {
		return "", common.Hash{}, false
	}

	switch eventType {
	case model.EventKeepaliveSubCreated:
		decoded, err := chainadapter.DecodeSubscriptionCreated(log)
		return eventType, decoded.ID, err == nil
	case model.EventKeepaliveFulfilled:
		decoded, err := chainadapter.DecodeSubscriptionFulfilled(log)
		return eventType, decoded.ID, err == nil
	case model.EventKeepaliveSubCancelled:
		decoded, err := chainadapter.DecodeSubscriptionCancelled(log)
		return eventType, decoded.ID, err == nil
	default:
		return "", common.Hash{}, false
	}
}
