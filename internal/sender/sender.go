// Package sender owns the single signing identity's nonce and serializes
// every outbound transaction through one FIFO queue, so two goroutines can
// never race to claim the same nonce.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/bobbyswhip/x402c/internal/metrics"
	"github.com/bobbyswhip/x402c/internal/retry"
	"github.com/bobbyswhip/x402c/internal/tracing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrTxReverted is returned when a transaction was mined but its receipt
// reports failure. Callers must treat this as a failure, not a success.
var ErrTxReverted = errors.New("sender: transaction reverted")

// ChainClient is the slice of the chain adapter the sender needs: nonce
// tracking, raw signed submission, and receipt polling.
type ChainClient interface {
	PendingNonce(ctx context.Context) (uint64, error)
	SendSignedTx(ctx context.Context, to common.Address, data []byte, nonce, gasLimit uint64, gasPrice *big.Int) (common.Hash, error)
	WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Request describes one transaction the caller wants sent. The caller is
// responsible for having already estimated gas, applied its safety
// multiplier, and consulted the profitability gate (or explicitly decided
// to skip it) before submitting.
type Request struct {
	To       common.Address
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
	Method   string // metrics/tracing label, e.g. "fulfillRequest"
}

// Result is what Submit returns once the transaction is mined.
type Result struct {
	TxHash  common.Hash
	Receipt *types.Receipt
}

type sendJob struct {
	ctx     context.Context
	req     Request
	resultC chan sendOutcome
}

type sendOutcome struct {
	result Result
	err    error
}

// Sender is the FIFO dispatcher. Construct with New, then call Run in its
// own goroutine before any Submit calls; Run blocks until ctx is cancelled.
type Sender struct {
	client ChainClient
	logger *slog.Logger
	jobs   chan sendJob
	nonce  uint64
	haveNonce bool
}

// New creates a sender with the given queue depth. queueDepth should be
// generous enough to absorb bursts (the router and keep-alive driver both
// submit through the same sender) without callers blocking on Submit.
func New(client ChainClient, logger *slog.Logger, queueDepth int) *Sender {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Sender{
		client: client,
		logger: logger.With("component", "sender"),
		jobs:   make(chan sendJob, queueDepth),
	}
}

// Submit enqueues req and blocks until it is dispatched and confirmed (or
// fails). Safe to call concurrently; the queue behind it guarantees strict
// sequential dispatch regardless of caller concurrency.
func (s *Sender) Submit(ctx context.Context, req Request) (Result, error) {
	job := sendJob{ctx: ctx, req: req, resultC: make(chan sendOutcome, 1)}

	metrics.SenderQueueDepth.Set(float64(len(s.jobs) + 1))
	select {
	case s.jobs <- job:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case out := <-job.resultC:
		return out.result, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Run drains the queue strictly sequentially until ctx is cancelled. There
// must be exactly one Run goroutine per Sender.
func (s *Sender) Run(ctx context.Context) error {
	s.logger.Info("sender started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sender stopping")
			return ctx.Err()
		case job := <-s.jobs:
			metrics.SenderQueueDepth.Set(float64(len(s.jobs)))
			result, err := s.dispatch(job.ctx, job.req)
			job.resultC <- sendOutcome{result: result, err: err}
		}
	}
}

func (s *Sender) dispatch(ctx context.Context, req Request) (Result, error) {
	tracer := tracing.Tracer("sender")
	ctx, span := tracer.Start(ctx, "sender.dispatch",
		trace.WithAttributes(attribute.String("method", req.Method)),
	)
	defer span.End()

	start := time.Now()
	result, err := s.dispatchOnce(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.SenderTxFailedTotal.WithLabelValues(req.Method).Inc()
	} else {
		metrics.SenderTxSubmittedTotal.WithLabelValues(req.Method).Inc()
	}
	metrics.SenderConfirmLatency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	s.logger.Info("transaction dispatched",
		"method", req.Method, "outcome", outcome, "tx_hash", result.TxHash.Hex(),
	)
	return result, err
}

// maxReceiptAttempts bounds how many times WaitReceipt is retried when the
// underlying RPC call itself fails transiently (node timeout, connection
// reset). A reverted receipt is never retried; it is a final answer.
const maxReceiptAttempts = 3

func (s *Sender) dispatchOnce(ctx context.Context, req Request) (Result, error) {
	nonce, err := s.nextNonce(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("sender: resolve nonce: %w", err)
	}

	txHash, err := s.client.SendSignedTx(ctx, req.To, req.Data, nonce, req.GasLimit, req.GasPrice)
	if err != nil {
		if isNonceError(err) {
			s.haveNonce = false
		} else {
			decision := retry.Classify(err)
			s.logger.Warn("send tx failed", "method", req.Method, "retry_class", decision.Class, "reason", decision.Reason)
		}
		return Result{}, fmt.Errorf("sender: send tx: %w", err)
	}
	s.nonce = nonce + 1

	var receipt *types.Receipt
	for attempt := 1; ; attempt++ {
		receipt, err = s.client.WaitReceipt(ctx, txHash)
		if err == nil {
			break
		}
		decision := retry.Classify(err)
		if !decision.IsTransient() || attempt >= maxReceiptAttempts {
			return Result{TxHash: txHash}, fmt.Errorf("sender: wait for receipt: %w", err)
		}
		s.logger.Warn("receipt poll failed, retrying", "tx_hash", txHash.Hex(), "attempt", attempt, "reason", decision.Reason)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return Result{TxHash: txHash, Receipt: receipt}, ErrTxReverted
	}

	return Result{TxHash: txHash, Receipt: receipt}, nil
}

func (s *Sender) nextNonce(ctx context.Context) (uint64, error) {
	if s.haveNonce {
		return s.nonce, nil
	}
	nonce, err := s.client.PendingNonce(ctx)
	if err != nil {
		return 0, err
	}
	s.nonce = nonce
	s.haveNonce = true
	return nonce, nil
}

func isNonceError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce")
}
