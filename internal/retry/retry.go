// Package retry classifies errors as transient or terminal so callers know
// whether a failed operation is worth retrying.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Class distinguishes retryable failures from ones that will never succeed
// on their own.
type Class int

const (
	ClassTerminal Class = iota
	ClassTransient
)

// Decision is the outcome of classifying an error.
type Decision struct {
	Class  Class
	Reason string
}

// IsTransient reports whether the decision recommends a retry.
func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (c *classifiedError) Error() string { return c.err.Error() }
func (c *classifiedError) Unwrap() error { return c.err }

// Transient wraps err so Classify always reports it as retryable,
// regardless of message content.
func Transient(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient, reason: reason}
}

// Terminal wraps err so Classify always reports it as non-retryable.
func Terminal(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal, reason: reason}
}

// RPCError is the shape returned by JSON-RPC-speaking chain clients
// (go-ethereum's ethclient wraps these as rpc.Error).
type RPCError interface {
	Error() string
	ErrorCode() int
}

var (
	transientMessageTokens = []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"broken pipe",
		"eof",
		"too many requests",
		"rate limit",
		"temporarily unavailable",
		"service unavailable",
		"nonce too low", // resolved by re-reading the pending nonce and retrying
	}
	terminalMessageTokens = []string{
		"invalid argument",
		"execution reverted",
		"insufficient funds",
		"unauthorized",
		"forbidden",
		"not found",
		"already known",
		"replacement transaction underpriced",
	}
)

// Classify determines whether err is worth retrying. Explicitly wrapped
// errors (Transient/Terminal) take precedence, then well-known Go/gRPC
// error types, then a substring match against known JSON-RPC and node
// error text.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil error"}
	}

	var ce *classifiedError
	if errors.As(err, &ce) {
		return Decision{Class: ce.class, Reason: ce.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context deadline exceeded"}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
			return Decision{Class: ClassTransient, Reason: "grpc code " + st.Code().String()}
		case codes.OK:
		default:
			return Decision{Class: ClassTerminal, Reason: "grpc code " + st.Code().String()}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "network timeout"}
	}

	var rpcErr RPCError
	if errors.As(err, &rpcErr) {
		return classifyJSONRPCCode(rpcErr.ErrorCode())
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, terminalMessageTokens) {
		return Decision{Class: ClassTerminal, Reason: "matched terminal message token"}
	}
	if containsAny(msg, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "matched transient message token"}
	}

	// Unknown errors default to transient: an RPC endpoint returning an
	// unrecognized error is more often a hiccup than a permanent failure.
	return Decision{Class: ClassTransient, Reason: "unclassified, defaulting to transient"}
}

// classifyJSONRPCCode maps standard JSON-RPC 2.0 and Ethereum node error
// codes to a retry class.
func classifyJSONRPCCode(code int) Decision {
	switch code {
	case -32700, -32600, -32601, -32602: // parse/invalid request/method/params
		return Decision{Class: ClassTerminal, Reason: "jsonrpc malformed request"}
	case -32603: // internal error
		return Decision{Class: ClassTransient, Reason: "jsonrpc internal error"}
	case -32000, -32005: // generic server error / limit exceeded (varies by node)
		return Decision{Class: ClassTransient, Reason: "jsonrpc server error"}
	case 3: // execution reverted (EIP-1474)
		return Decision{Class: ClassTerminal, Reason: "execution reverted"}
	default:
		return Decision{Class: ClassTransient, Reason: "unrecognized jsonrpc code, defaulting to transient"}
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
