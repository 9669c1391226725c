package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobbyswhip/x402c/internal/admin"
	"github.com/bobbyswhip/x402c/internal/alert"
	"github.com/bobbyswhip/x402c/internal/broadcast"
	"github.com/bobbyswhip/x402c/internal/chainadapter"
	"github.com/bobbyswhip/x402c/internal/config"
	"github.com/bobbyswhip/x402c/internal/cursor"
	"github.com/bobbyswhip/x402c/internal/identity"
	"github.com/bobbyswhip/x402c/internal/inflight"
	"github.com/bobbyswhip/x402c/internal/keepalive"
	"github.com/bobbyswhip/x402c/internal/maintenance"
	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/bobbyswhip/x402c/internal/reconciliation"
	"github.com/bobbyswhip/x402c/internal/router"
	"github.com/bobbyswhip/x402c/internal/sender"
	"github.com/bobbyswhip/x402c/internal/statecache"
	"github.com/bobbyswhip/x402c/internal/tracing"
	"github.com/bobbyswhip/x402c/internal/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting x402c agent",
		"chain_id", cfg.Chain.ChainID,
		"rpc_url", cfg.Chain.RPCURL,
		"hub", cfg.Contracts.Hub,
		"writes_enabled", cfg.WritesEnabled,
	)

	shutdownTracing, err := tracing.Init(context.Background(), "x402c-agent", cfg.OTLPEndpoint, true)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("agent shut down gracefully")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	chain, err := chainadapter.New(ctx, *cfg, logger)
	if err != nil {
		return fmt.Errorf("connect chain adapter: %w", err)
	}

	cursorStore, err := cursor.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open cursor store: %w", err)
	}

	sink, err := broadcast.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("build broadcast sink: %w", err)
	}
	defer sink.Close()

	snd := sender.New(chain, logger, cfg.SenderQueueDepth)

	resolver := identity.NewStaticResolver(cfg.ParseIdentityMap())
	cache := statecache.New(chain, resolver, sink, logger)

	sharedInflight := inflight.NewRouterSet()

	handlers := buildHandlers(cfg, chain, snd)
	classify := router.StaticClassifier(cfg.ParseEndpointClassMap())
	rt := router.New(chain, snd, sharedInflight, classify, handlers, sink, logger)

	hubWatcher, err := newHubWatcher(ctx, chain, cursorStore, cfg.Contracts.Hub, cfg.DefaultLookbackBlocks, rt, sink, logger)
	if err != nil {
		return fmt.Errorf("build hub watcher: %w", err)
	}

	fallbackWatcher, err := newHubFallbackWatcher(ctx, chain, cursorStore, cfg.Contracts.Hub, cfg.DefaultLookbackBlocks, rt, logger)
	if err != nil {
		return fmt.Errorf("build hub fallback watcher: %w", err)
	}

	sweeperLoop, err := maintenance.NewSweeperLoop(ctx, chain, cursorStore, cfg.Contracts.Hub, rt, logger)
	if err != nil {
		return fmt.Errorf("build sweeper loop: %w", err)
	}

	keepAliveDriver := keepalive.New(chain, snd, sink, logger)
	keepAliveEventWatcher, err := keepalive.NewEventWatcher(ctx, chain, cursorStore, cfg.Contracts.KeepAlive, sink, logger)
	if err != nil {
		return fmt.Errorf("build keep-alive event watcher: %w", err)
	}

	configWatcher, err := watcher.NewConfigWatcher(ctx, chain, cursorStore, cfg.Contracts.Hub, sink, logger)
	if err != nil {
		return fmt.Errorf("build config watcher: %w", err)
	}

	alerter := buildAlerter(cfg, logger)
	reconciler := reconciliation.NewService(chain, alerter, logger)

	adminServer := admin.NewServer(cache, sink, logger, admin.WithRateLimit(admin.NewRateLimitMiddleware(logger)))
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler: adminServer.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hubWatcher.Run(gctx) })
	g.Go(func() error { return fallbackWatcher.Run(gctx) })
	g.Go(func() error { return keepAliveEventWatcher.Run(gctx) })
	g.Go(func() error { return configWatcher.Run(gctx) })
	g.Go(func() error { return snd.Run(gctx) })
	g.Go(func() error { return keepAliveDriver.Run(gctx) })
	g.Go(func() error { return cache.Run(gctx) })
	g.Go(func() error { return cache.RunPricingListener(gctx, sink) })

	g.Go(func() error {
		return maintenance.NewBuybackLoop(chain, snd).Run(gctx, logger)
	})
	g.Go(func() error {
		return maintenance.NewRewardsLoop(chain, snd).Run(gctx, logger)
	})
	g.Go(func() error {
		return maintenance.NewHooksLoop(chain, cfg.Contracts.Token, snd).Run(gctx, logger)
	})
	g.Go(func() error {
		return sweeperLoop.Run(gctx, logger)
	})

	g.Go(func() error {
		interval := time.Duration(cfg.ReconcileIntervalSeconds) * time.Second
		return reconciler.RunPeriodic(gctx, interval, cache.RecentRequests)
	})

	g.Go(func() error {
		logger.Info("admin server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// buildHandlers wires the two built-in HTTP fulfillment handlers to their
// configured upstream base URLs. A handler class with no base URL
// configured is simply omitted from the registry; the router treats
// endpoints classified to a missing handler as an unregistered-handler
// rejection rather than failing at startup.
func buildHandlers(cfg *config.Config, chain *chainadapter.Adapter, snd *sender.Sender) map[model.HandlerClass]router.Handler {
	handlers := make(map[model.HandlerClass]router.Handler)
	if cfg.Handlers.AlchemyBaseURL != "" {
		base := cfg.Handlers.AlchemyBaseURL
		handlers[router.HandlerClassAlchemy] = router.NewHTTPHandler(
			router.HandlerClassAlchemy,
			func(model.Endpoint) string { return base },
			chain, snd,
		)
	}
	if cfg.Handlers.OpenSeaBaseURL != "" {
		base := cfg.Handlers.OpenSeaBaseURL
		handlers[router.HandlerClassOpenSea] = router.NewHTTPHandler(
			router.HandlerClassOpenSea,
			func(model.Endpoint) string { return base },
			chain, snd,
		)
	}
	return handlers
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var alerters []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		alerters = append(alerters, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.GenericWebhookURL != "" {
		alerters = append(alerters, alert.NewWebhookAlerter(cfg.Alert.GenericWebhookURL))
	}
	if len(alerters) == 0 {
		return &alert.NoopAlerter{}
	}
	cooldown := time.Duration(cfg.Alert.CooldownSeconds) * time.Second
	return alert.NewMultiAlerter(cooldown, logger, alerters...)
}

// hubEventNames are the four request-lifecycle events the primary hub
// watcher dispatches on. Fulfillment routing only cares about
// RequestCreated; RequestFulfilled and RequestCancelled are re-published as
// broadcast events for dashboard consumers, and CallbackExecuted is not
// broadcast.
var hubEventNames = []string{
	chainadapter.EventRequestCreated,
	chainadapter.EventRequestFulfilled,
	chainadapter.EventRequestCancelled,
	chainadapter.EventCallbackExecuted,
}

// requestIDHandler is the narrow slice of *router.Router the primary hub
// watcher's dispatch needs.
type requestIDHandler interface {
	HandleRequestID(ctx context.Context, id common.Hash)
}

// hubBroadcaster is the narrow slice of broadcast.Sink the primary hub
// watcher's dispatch needs.
type hubBroadcaster interface {
	Publish(ctx context.Context, event model.BroadcastEvent) error
}

// newHubWatcher builds the primary event-driven watcher over the hub
// contract: RequestCreated feeds the router directly, RequestFulfilled and
// RequestCancelled are republished as broadcast events only, and
// CallbackExecuted is watched but not republished.
func newHubWatcher(ctx context.Context, chain watcher.ChainReader, store *cursor.Store, hub common.Address, lookback uint64, rt requestIDHandler, sink hubBroadcaster, logger *slog.Logger) (*watcher.Watcher, error) {
	topics := make([]common.Hash, 0, len(hubEventNames))
	topicToName := make(map[common.Hash]string, len(hubEventNames))
	for _, name := range hubEventNames {
		topic, err := chainadapter.HubEventTopic(name)
		if err != nil {
			return nil, fmt.Errorf("resolve topic for %s: %w", name, err)
		}
		topics = append(topics, topic)
		topicToName[topic] = name
	}

	dispatch := func(ctx context.Context, log types.Log) {
		if len(log.Topics) == 0 {
			return
		}
		name, ok := topicToName[log.Topics[0]]
		if !ok {
			return
		}

		switch name {
		case chainadapter.EventRequestCreated:
			decoded, err := chainadapter.DecodeRequestCreated(log)
			if err != nil {
				logger.Warn("failed to decode RequestCreated", "error", err)
				return
			}
			rt.HandleRequestID(ctx, decoded.RequestID)

		case chainadapter.EventRequestFulfilled:
			decoded, err := chainadapter.DecodeRequestFulfilled(log)
			if err != nil {
				return
			}
			publishHubEvent(ctx, sink, model.EventRequestFulfilled, decoded.RequestID, logger)

		case chainadapter.EventRequestCancelled:
			decoded, err := chainadapter.DecodeRequestCancelled(log)
			if err != nil {
				return
			}
			publishHubEvent(ctx, sink, model.EventRequestCancelled, decoded.RequestID, logger)

		case chainadapter.EventCallbackExecuted:
			// Callback execution has no dedicated broadcast type; it is
			// surfaced to operators only via the app_state refresh.
		}
	}

	return watcher.New(ctx, cursor.LabelHubWatcher, chain, store, watcher.Source{Contract: hub, Topics: topics}, dispatch, logger, watcher.WithLookback(lookback))
}

func publishHubEvent(ctx context.Context, sink hubBroadcaster, typ model.BroadcastEventType, requestID common.Hash, logger *slog.Logger) {
	event := model.NewBroadcastEvent(typ, time.Now())
	event.RequestID = &requestID
	if err := sink.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish hub broadcast event", "error", err, "event", typ)
	}
}

// fallbackInterval is the fixed safety-net poll cadence: independent of the
// primary hub watcher's own error-driven backoff, so a dropped subscription
// or missed push on the primary watcher still surfaces within 30s.
const fallbackInterval = 30 * time.Second

// newHubFallbackWatcher builds the 30s-interval safety-net poller: any
// RequestCreated the primary event watcher missed (a dropped subscription,
// a reorg) still reaches the router within one fallback interval.
func newHubFallbackWatcher(ctx context.Context, chain watcher.ChainReader, store *cursor.Store, hub common.Address, lookback uint64, rt requestIDHandler, logger *slog.Logger) (*watcher.Watcher, error) {
	topic, err := chainadapter.HubEventTopic(chainadapter.EventRequestCreated)
	if err != nil {
		return nil, err
	}

	dispatch := func(ctx context.Context, log types.Log) {
		decoded, err := chainadapter.DecodeRequestCreated(log)
		if err != nil {
			return
		}
		rt.HandleRequestID(ctx, decoded.RequestID)
	}

	return watcher.New(ctx, cursor.LabelHubFallback, chain, store, watcher.Source{Contract: hub, Topics: []common.Hash{topic}}, dispatch, logger,
		watcher.WithInterval(fallbackInterval), watcher.WithLookback(lookback))
}
