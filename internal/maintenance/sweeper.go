package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/bobbyswhip/x402c/internal/chainadapter"
	"github.com/bobbyswhip/x402c/internal/cursor"
	"github.com/bobbyswhip/x402c/internal/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// sweeperInterval is the stale-request sweep cadence: wide enough that it
// rarely does real work (the router and its 30s fallback poll handle the
// common case), tight enough to self-heal within a few minutes if both of
// those somehow miss a request.
const sweeperInterval = 5 * time.Minute

// RequestRouter is the narrow slice of router.Router the sweeper needs: it
// re-runs exactly the same single-flight-guarded staleness check the
// router applies to freshly-created requests, just on a slower, wider
// sweep cursor so a request whose creation event the primary watcher
// somehow missed still eventually gets cancelled.
type RequestRouter interface {
	HandleRequestID(ctx context.Context, id common.Hash)
}

// NewSweeperLoop builds the 5-minute stale-request sweeper. It reuses the
// chunked-scan-and-persist-cursor machinery of the watcher package, just
// driven by this package's own ticker rather than the watcher's
// backoff-aware Run loop, and under its own cursor label so a restart or a
// dropped push on the primary watcher still self-heals within one sweep.
func NewSweeperLoop(ctx context.Context, chain watcher.ChainReader, store *cursor.Store, hubAddress common.Address, router RequestRouter, logger *slog.Logger) (Loop, error) {
	topic, err := chainadapter.HubEventTopic(chainadapter.EventRequestCreated)
	if err != nil {
		return Loop{}, err
	}

	dispatch := func(ctx context.Context, log types.Log) {
		event, err := chainadapter.DecodeRequestCreated(log)
		if err != nil {
			return
		}
		router.HandleRequestID(ctx, event.RequestID)
	}

	w, err := watcher.New(ctx, cursor.LabelHubSweeper, chain, store, watcher.Source{
		Contract: hubAddress,
		Topics:   []common.Hash{topic},
	}, dispatch, logger)
	if err != nil {
		return Loop{}, err
	}

	return Loop{
		Name:     "sweeper",
		Interval: sweeperInterval,
		Tick:     w.PollOnce,
	}, nil
}
