// Package reconciliation periodically compares the agent's in-memory view
// of recent requests against their authoritative on-chain status, so a
// missed or mis-decoded event never leaves a stale status cached forever.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bobbyswhip/x402c/internal/alert"
	"github.com/bobbyswhip/x402c/internal/metrics"
	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// StatusReader resolves the authoritative on-chain status of a request.
// Implemented by the chain adapter.
type StatusReader interface {
	RequestStatus(ctx context.Context, id common.Hash) (model.RequestStatus, error)
}

// SnapshotResult holds the comparison for a single request.
type SnapshotResult struct {
	RequestID     common.Hash        `json:"requestId"`
	LocalStatus   model.RequestStatus `json:"localStatus"`
	OnChainStatus model.RequestStatus `json:"onChainStatus"`
	IsMatch       bool                `json:"isMatch"`
	CheckedAt     time.Time           `json:"checkedAt"`
}

// RunResult aggregates a full reconciliation pass.
type RunResult struct {
	Total      int              `json:"total"`
	Matched    int              `json:"matched"`
	Mismatched int              `json:"mismatched"`
	Errors     int              `json:"errors"`
	Snapshots  []SnapshotResult `json:"snapshots"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// Service compares the cache's recent-requests ring buffer against on-chain
// status.
type Service struct {
	reader  StatusReader
	alerter alert.Alerter
	logger  *slog.Logger
}

// NewService constructs a reconciliation service. alerter may be nil.
func NewService(reader StatusReader, alerter alert.Alerter, logger *slog.Logger) *Service {
	return &Service{
		reader:  reader,
		alerter: alerter,
		logger:  logger.With("component", "reconciliation"),
	}
}

// Reconcile checks every entry in recent against its current on-chain
// status. A request already in a terminal local status is skipped: it
// cannot regress.
func (s *Service) Reconcile(ctx context.Context, recent []model.RecentRequest) (*RunResult, error) {
	result := &RunResult{StartedAt: time.Now()}

	for _, r := range recent {
		if isTerminal(r.Status) {
			continue
		}

		onChain, err := s.reader.RequestStatus(ctx, r.ID)
		if err != nil {
			s.logger.Warn("on-chain status lookup failed", "request_id", r.ID, "error", err)
			result.Errors++
			continue
		}

		snap := SnapshotResult{
			RequestID:     r.ID,
			LocalStatus:   r.Status,
			OnChainStatus: onChain,
			IsMatch:       r.Status == onChain,
			CheckedAt:     time.Now(),
		}
		result.Snapshots = append(result.Snapshots, snap)
		result.Total++
		if snap.IsMatch {
			result.Matched++
		} else {
			result.Mismatched++
		}
	}

	result.FinishedAt = time.Now()

	outcome := "ok"
	if result.Mismatched > 0 {
		outcome = "mismatch"
	} else if result.Errors > 0 {
		outcome = "error"
	}
	metrics.ReconciliationRunsTotal.WithLabelValues(outcome).Inc()

	if result.Mismatched > 0 {
		metrics.ReconciliationMismatchesTotal.Add(float64(result.Mismatched))
		if s.alerter != nil {
			_ = s.alerter.Send(ctx, alert.Alert{
				Type:    alert.AlertTypeReconcileMismatch,
				Title:   "Status reconciliation mismatch detected",
				Message: fmt.Sprintf("%d/%d recent requests disagree with on-chain status", result.Mismatched, result.Total),
				Fields: map[string]string{
					"matched":    fmt.Sprintf("%d", result.Matched),
					"mismatched": fmt.Sprintf("%d", result.Mismatched),
					"errors":     fmt.Sprintf("%d", result.Errors),
				},
			})
		}
	}

	s.logger.Info("reconciliation completed",
		"total", result.Total, "matched", result.Matched,
		"mismatched", result.Mismatched, "errors", result.Errors,
	)

	return result, nil
}

// RunPeriodic runs Reconcile at the given interval against whatever recent
// list source returns. It blocks until ctx is cancelled.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration, source func() []model.RecentRequest) error {
	if interval <= 0 {
		interval = time.Hour
	}

	s.logger.Info("periodic reconciliation started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic reconciliation stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Reconcile(ctx, source()); err != nil {
				s.logger.Warn("periodic reconciliation failed", "error", err)
			}
		}
	}
}

func isTerminal(status model.RequestStatus) bool {
	switch status {
	case model.RequestFulfilled, model.RequestCancelled:
		return true
	default:
		return false
	}
}
