// Package router dispatches newly-created requests to the handler
// responsible for their endpoint, enforcing a staleness deadline and a
// single-flight guard so the event watcher and the fallback poller never
// process the same request twice concurrently.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/bobbyswhip/x402c/internal/cache"
	"github.com/bobbyswhip/x402c/internal/chainadapter"
	"github.com/bobbyswhip/x402c/internal/inflight"
	"github.com/bobbyswhip/x402c/internal/metrics"
	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/bobbyswhip/x402c/internal/sender"

	"github.com/ethereum/go-ethereum/common"
)

// staleAfter is how long a request may sit PENDING before the router gives
// up on it and cancels it outright rather than racing an upstream call
// that will outlive the requester's patience.
const staleAfter = 5 * time.Minute

// endpointCacheTTL bounds how long a resolved endpoint stays cached.
// Endpoint config changes (URL, handler assignment) are rare relative to
// request volume on a busy endpoint, so a short TTL trades a little
// staleness for far fewer redundant GetEndpoint calls.
const endpointCacheTTL = 30 * time.Second

const endpointCacheCapacity = 512

// ChainReader is the read surface the router needs to inspect a request
// and its endpoint before deciding what to do with it.
type ChainReader interface {
	GetRequest(ctx context.Context, id common.Hash) (model.Request, error)
	GetEndpoint(ctx context.Context, id common.Hash) (model.Endpoint, error)
	CancelRequestData(id common.Hash) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HubAddress() common.Address
}

// Handler fulfills one request: it calls whatever upstream API the
// endpoint represents, builds the response bytes, and submits
// fulfillRequest through the sender itself (so it can run its own
// profitability check against the specific calldata it builds). It returns
// the transaction hash of the submitted fulfillRequest call, or a zero
// hash if nothing was submitted (e.g. the request was already settled).
type Handler interface {
	Fulfill(ctx context.Context, req model.Request, endpoint model.Endpoint) (common.Hash, error)
}

// Classifier maps an endpoint id to the handler class responsible for it.
// Returns false if no handler is registered for the endpoint.
type Classifier func(endpointID common.Hash) (model.HandlerClass, bool)

// Broadcaster is the narrow slice of broadcast.Sink the router needs.
type Broadcaster interface {
	Publish(ctx context.Context, event model.BroadcastEvent) error
}

// Router owns the in-flight set and dispatch table for request fulfillment.
type Router struct {
	chain     ChainReader
	snd       *sender.Sender
	inflight  *inflight.Set
	classify  Classifier
	handlers  map[model.HandlerClass]Handler
	broadcast Broadcaster
	logger    *slog.Logger
	now       func() time.Time

	endpoints *cache.LRU[common.Hash, model.Endpoint]
}

// New constructs a Router sharing inFlight with any other component (such
// as the maintenance sweeper) that must never race the router on the same
// request id. classify and handlers together form the static registry
// described by the fulfillment-routing design: classify resolves an
// endpoint id to a class name, handlers maps that class to the code that
// actually talks to the upstream API.
func New(chain ChainReader, snd *sender.Sender, inFlight *inflight.Set, classify Classifier, handlers map[model.HandlerClass]Handler, broadcaster Broadcaster, logger *slog.Logger) *Router {
	if inFlight == nil {
		inFlight = inflight.NewRouterSet()
	}
	return &Router{
		chain:     chain,
		snd:       snd,
		inflight:  inFlight,
		classify:  classify,
		handlers:  handlers,
		broadcast: broadcaster,
		logger:    logger.With("component", "router"),
		now:       time.Now,
		endpoints: cache.NewLRU[common.Hash, model.Endpoint](endpointCacheCapacity, endpointCacheTTL),
	}
}

func (r *Router) resolveEndpoint(ctx context.Context, id common.Hash) (model.Endpoint, error) {
	if endpoint, ok := r.endpoints.Get(id); ok {
		return endpoint, nil
	}
	endpoint, err := r.chain.GetEndpoint(ctx, id)
	if err != nil {
		return model.Endpoint{}, err
	}
	r.endpoints.Put(id, endpoint)
	return endpoint, nil
}

// InFlight exposes the router's single-flight set so cooperating
// components (the stale-request sweeper) can guard against racing it.
func (r *Router) InFlight() *inflight.Set { return r.inflight }

// HandleRequestCreated is the dispatch entry point for a decoded
// RequestCreated log, wired to both the primary event watcher and the
// fallback poller.
func (r *Router) HandleRequestCreated(ctx context.Context, event chainadapter.RequestCreatedEvent) {
	r.HandleRequestID(ctx, event.RequestID)
}

// HandleRequestID runs one request through the single-flight guard,
// staleness check, classification, and handler delegation.
func (r *Router) HandleRequestID(ctx context.Context, id common.Hash) {
	if !r.inflight.TryClaim(id) {
		return
	}
	defer r.inflight.Release(id)

	if err := r.process(ctx, id); err != nil {
		r.logger.Warn("request processing failed", "request_id", id.Hex(), "error", err)
	}
}

func (r *Router) process(ctx context.Context, id common.Hash) error {
	req, err := r.chain.GetRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch request: %w", err)
	}
	if req.Status != model.RequestPending {
		return nil // already settled, most likely seen via the fallback poll
	}

	if req.IsStale(r.now(), staleAfter) {
		return r.timeoutAndCancel(ctx, req, "deadline_exceeded")
	}

	endpoint, err := r.resolveEndpoint(ctx, req.EndpointID)
	if err != nil {
		return fmt.Errorf("fetch endpoint: %w", err)
	}

	class, ok := r.classify(req.EndpointID)
	if !ok {
		metrics.RouterRequestsRejectedTotal.WithLabelValues("unknown_endpoint").Inc()
		return r.timeoutAndCancel(ctx, req, "unknown_endpoint")
	}
	handler, ok := r.handlers[class]
	if !ok {
		metrics.RouterRequestsRejectedTotal.WithLabelValues("unregistered_handler").Inc()
		return r.timeoutAndCancel(ctx, req, "unregistered_handler")
	}

	r.publish(ctx, model.EventRequestRouting, &req.ID, &req.EndpointID, nil, map[string]any{"handlerClass": string(class)})

	start := time.Now()
	txHash, err := handler.Fulfill(ctx, req, endpoint)
	metrics.RouterHandlerLatency.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RouterRequestsRejectedTotal.WithLabelValues("handler_error").Inc()
		return fmt.Errorf("handler %s: %w", class, err)
	}

	metrics.RouterRequestsRoutedTotal.WithLabelValues(string(class)).Inc()
	r.publish(ctx, model.EventRequestFulfilled, &req.ID, &req.EndpointID, nil, map[string]any{"txHash": txHash.Hex()})
	return nil
}

func (r *Router) timeoutAndCancel(ctx context.Context, req model.Request, reason string) error {
	data, err := r.chain.CancelRequestData(req.ID)
	if err != nil {
		return fmt.Errorf("build cancelRequest calldata: %w", err)
	}
	gasPrice, err := r.chain.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}

	_, sendErr := r.snd.Submit(ctx, sender.Request{
		To:       r.chain.HubAddress(),
		Data:     data,
		GasLimit: 200_000,
		GasPrice: gasPrice,
		Method:   "cancelRequest",
	})

	r.publish(ctx, model.EventRequestTimeout, &req.ID, &req.EndpointID, nil, map[string]any{"reason": reason})

	if sendErr != nil && !errors.Is(sendErr, context.Canceled) {
		return fmt.Errorf("cancel stale request: %w", sendErr)
	}
	return nil
}

func (r *Router) publish(ctx context.Context, typ model.BroadcastEventType, requestID, endpointID *common.Hash, subscriptionID *common.Hash, data map[string]any) {
	if r.broadcast == nil {
		return
	}
	event := model.NewBroadcastEvent(typ, r.now())
	event.RequestID = requestID
	event.EndpointID = endpointID
	event.SubscriptionID = subscriptionID
	if data != nil {
		event.Data = data
	}
	if err := r.broadcast.Publish(ctx, event); err != nil {
		r.logger.Warn("broadcast publish failed", "error", err)
	}
}
