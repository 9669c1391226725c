// Package watcher polls the chain for new blocks and replays any logs in
// the newly-seen range through per-event dispatch callbacks, persisting its
// progress to a cursor after each successful range so a restart resumes
// roughly where it left off instead of rescanning from genesis.
package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/bobbyswhip/x402c/internal/cursor"
	"github.com/bobbyswhip/x402c/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	baseInterval          = 2 * time.Second
	maxIntervalMultiplier = 15
	backoffAfter          = 3
	resetAfter            = 10
	heartbeatEvery        = 100
	chunkSize             = 1000

	// defaultLookbackBlocks seeds lastBlock on a fresh install (no saved
	// cursor) when the caller didn't supply WithLookback. Callers that care
	// about the exact value should wire config.Config.DefaultLookbackBlocks
	// through WithLookback instead of relying on this fallback.
	defaultLookbackBlocks = 5000
)

// ChainReader is the slice of the chain adapter a watcher needs: the
// current head and a bounded log fetch.
type ChainReader interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, contract common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error)
}

// Source describes one contract's worth of topics to watch. Topics is a
// single filter-query topic list (topic0 values); the watcher does not
// attempt per-event chunking, it relies on the adapter returning every log
// matching any of the given topic0s in one FilterLogs call.
type Source struct {
	Contract common.Address
	Topics   []common.Hash
}

// Dispatch is invoked once per raw log returned within a successfully
// scanned range. Handlers decode the log themselves; the watcher is
// event-shape agnostic.
type Dispatch func(ctx context.Context, log types.Log)

// Option configures a Watcher at construction time.
type Option func(*Watcher)

// WithInterval overrides the watcher's base poll interval. Error-driven
// backoff still doubles from this base up to maxIntervalMultiplier times
// it, and a successful poll resets back to it.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.baseInterval = d }
}

// WithLookback overrides how many blocks behind the current head a fresh
// install (or a post-reset reseed) starts scanning from.
func WithLookback(n uint64) Option {
	return func(w *Watcher) { w.lookback = n }
}

// Watcher polls ChainReader for new blocks since its cursor and replays
// matching logs through Dispatch.
type Watcher struct {
	label    string
	chain    ChainReader
	store    *cursor.Store
	source   Source
	dispatch Dispatch
	logger   *slog.Logger

	lastBlock    uint64
	errCount     int
	baseInterval time.Duration
	interval     time.Duration
	lookback     uint64
	successCount uint64
}

// New constructs a watcher for label, loading its starting cursor from
// store. On a fresh install (store has no saved cursor for label), it
// seeds lastBlock at the current head minus the configured lookback rather
// than scanning from genesis. Call Run to begin polling; Run blocks until
// ctx is cancelled.
func New(ctx context.Context, label string, chain ChainReader, store *cursor.Store, source Source, dispatch Dispatch, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		label:        label,
		chain:        chain,
		store:        store,
		source:       source,
		dispatch:     dispatch,
		logger:       logger.With("component", "watcher", "label", label),
		baseInterval: baseInterval,
		lookback:     defaultLookbackBlocks,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.interval = w.baseInterval

	start, err := store.Load(label)
	if err != nil {
		return nil, err
	}
	if start == 0 {
		seeded, err := w.seedFromLookback(ctx)
		if err != nil {
			return nil, err
		}
		start = seeded
	}
	w.lastBlock = start
	return w, nil
}

// seedFromLookback returns the current head minus the watcher's configured
// lookback, floored at 0 if the chain hasn't produced that many blocks yet.
func (w *Watcher) seedFromLookback(ctx context.Context) (uint64, error) {
	current, err := w.chain.CurrentBlock(ctx)
	if err != nil {
		return 0, err
	}
	if w.lookback >= current {
		return 0, nil
	}
	return current - w.lookback, nil
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher started", "start_block", w.lastBlock)
	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return ctx.Err()
		case <-timer.C:
			w.poll(ctx)
			timer.Reset(w.interval)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	start := time.Now()
	metrics.WatcherPollsTotal.WithLabelValues(w.label).Inc()

	err := w.pollOnce(ctx)
	metrics.WatcherPollDuration.WithLabelValues(w.label).Observe(time.Since(start).Seconds())

	if err != nil {
		w.onError(ctx, err)
		return
	}
	w.onSuccess()
}

// PollOnce runs a single scan-and-dispatch cycle immediately, bypassing
// the Run loop's own ticker. Used by callers (the maintenance sweeper)
// that want this watcher's chunked-scan-and-persist-cursor behavior on
// their own schedule rather than Run's backoff cadence.
func (w *Watcher) PollOnce(ctx context.Context) error {
	return w.pollOnce(ctx)
}

func (w *Watcher) pollOnce(ctx context.Context) error {
	current, err := w.chain.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	if current <= w.lastBlock {
		return nil
	}

	from := w.lastBlock + 1
	for from <= current {
		to := from + chunkSize - 1
		if to > current {
			to = current
		}

		logs, err := w.chain.FetchLogs(ctx, w.source.Contract, [][]common.Hash{w.source.Topics}, from, to)
		if err != nil {
			return err
		}
		for _, log := range logs {
			w.dispatch(ctx, log)
		}

		from = to + 1
	}

	if err := w.store.Save(w.label, current); err != nil {
		return err
	}
	w.lastBlock = current
	return nil
}

func (w *Watcher) onError(ctx context.Context, err error) {
	w.errCount++
	metrics.WatcherErrorsTotal.WithLabelValues(w.label, "poll").Inc()
	w.logger.Warn("poll failed", "error", err, "consecutive_errors", w.errCount)

	maxInterval := w.baseInterval * maxIntervalMultiplier
	if w.errCount == backoffAfter || (w.errCount > backoffAfter && w.errCount%backoffAfter == 0) {
		next := w.interval * 2
		if next > maxInterval {
			next = maxInterval
		}
		if next != w.interval {
			w.logger.Warn("backing off poll interval", "interval", next)
		}
		w.interval = next
	}

	if w.errCount >= resetAfter {
		seeded, seedErr := w.seedFromLookback(ctx)
		if seedErr != nil {
			w.logger.Error("too many consecutive errors, but lookback reseed also failed; leaving cursor in place",
				"consecutive_errors", w.errCount, "error", seedErr)
			return
		}
		w.logger.Error("too many consecutive errors, rescanning from configured lookback",
			"consecutive_errors", w.errCount, "previous_block", w.lastBlock, "reseeded_block", seeded)
		w.lastBlock = seeded
		w.errCount = 0
	}
}

func (w *Watcher) onSuccess() {
	if w.errCount > 0 || w.interval != w.baseInterval {
		w.logger.Info("watcher recovered", "last_block", w.lastBlock)
	}
	w.errCount = 0
	w.interval = w.baseInterval

	w.successCount++
	metrics.WatcherLagBlocks.WithLabelValues(w.label).Set(0)
	if w.successCount%heartbeatEvery == 0 {
		w.logger.Info("heartbeat", "last_block", w.lastBlock, "successful_polls", w.successCount)
	}
}
