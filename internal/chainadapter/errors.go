package chainadapter

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/grpc/status"
)

// Typed failure modes surfaced by the adapter. Callers (sender, watcher,
// router, keepalive) branch on these rather than parsing RPC error text.
var (
	ErrRPCUnavailable    = errors.New("chainadapter: rpc endpoint unavailable")
	ErrInvalidArgs       = errors.New("chainadapter: invalid call arguments")
	ErrRevertedSimulation = errors.New("chainadapter: call would revert")
	ErrRateLimited       = errors.New("chainadapter: rate limited")
	ErrTimeout           = errors.New("chainadapter: call timed out")
	ErrCircuitOpen       = errors.New("chainadapter: circuit breaker open")
)

var revertTokens = []string{
	"execution reverted",
	"always failing transaction",
	"insufficient funds",
	"gas required exceeds allowance",
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
}

var invalidArgTokens = []string{
	"invalid argument",
	"invalid address",
	"invalid sender",
	"unmarshal",
}

// classify maps a raw transport/RPC error onto one of the typed sentinels
// above. The adapter never retries internally; it only tells the caller what
// kind of failure happened so retry/circuit-breaker policy can live at the
// call site.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	if st, ok := status.FromError(err); ok && st.Err() != nil {
		return ErrRPCUnavailable
	}

	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, revertTokens):
		return ErrRevertedSimulation
	case containsAny(lower, invalidArgTokens):
		return ErrInvalidArgs
	case strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "rate limit"):
		return ErrRateLimited
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "eof") || strings.Contains(lower, "connection reset"):
		return ErrRPCUnavailable
	default:
		return err
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
