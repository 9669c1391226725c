// Package chainadapter exposes a minimal, strongly-typed surface over the
// EVM chain the agent operates against. Every exported method maps to one
// of the read/write/estimate operations named in the external interfaces:
// nothing upstream of this package touches *ethclient.Client directly.
package chainadapter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/bobbyswhip/x402c/internal/circuitbreaker"
	"github.com/bobbyswhip/x402c/internal/config"
	"github.com/bobbyswhip/x402c/internal/metrics"
	"github.com/bobbyswhip/x402c/internal/ratelimit"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const maxLogRange = 1000

// breaker classes. Reads and estimates use the breaker package's defaults;
// writes get a lower failure threshold and a longer cool-down, since a
// fulfillment tx stuck behind a misbehaving signer or a stale nonce is
// worse than a stuck poller and should stop retrying sooner.
const (
	classRead     = "read"
	classWrite    = "write"
	classEstimate = "estimate"

	writeFailureThreshold = 3
	writeOpenTimeout       = 2 * time.Minute

	// writeRPSFraction caps the write class to a slice of the configured RPC
	// budget. fulfillRequest submissions are already serialized through the
	// sender's FIFO queue, so they never need the full read budget, and
	// keeping them on a separate bucket means a burst of log polling can
	// never starve the tokens a pending transaction is waiting on.
	writeRPSFraction = 0.2
	minWriteRPS      = 1
)

// newObservedBreaker builds a named circuit breaker that mirrors its state
// transitions onto the circuitbreaker_state gauge, labeled by name, so an
// operator watching Grafana can tell which chain-call class is currently
// tripped without grepping logs. A zero threshold/timeout defers to the
// circuitbreaker package's own defaults.
func newObservedBreaker(name string, failureThreshold int, openTimeout time.Duration) *circuitbreaker.Breaker {
	gauge := metrics.CircuitBreakerState.WithLabelValues(name)
	gauge.Set(float64(circuitbreaker.StateClosed))
	return circuitbreaker.New(circuitbreaker.Config{
		Name:             name,
		FailureThreshold: failureThreshold,
		OpenTimeout:      openTimeout,
		OnStateChange: func(_, to circuitbreaker.State) {
			gauge.Set(float64(to))
		},
	})
}

// Adapter wraps *ethclient.Client with rate limiting, per-call-class circuit
// breaking, and typed helpers for the hub/keep-alive/staking/swap-router
// contract surfaces.
type Adapter struct {
	client   *ethclient.Client
	limiters map[string]*ratelimit.Limiter
	logger   *slog.Logger

	breakers map[string]*circuitbreaker.Breaker

	contracts config.ContractsConfig
	chainID   *big.Int

	privateKey *ecdsa.PrivateKey
	fromAddr   common.Address
}

// New dials the configured RPC endpoint and returns a ready adapter.
// cfg.AdminPrivateKey may be empty; in that case write operations that
// require signing return an error rather than panicking.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	readRPS := float64(cfg.Chain.RPCRateLimitPerSec)
	writeRPS := readRPS * writeRPSFraction
	if writeRPS < minWriteRPS {
		writeRPS = minWriteRPS
	}

	a := &Adapter{
		client: client,
		limiters: map[string]*ratelimit.Limiter{
			classRead:     ratelimit.NewLimiter(readRPS, cfg.Chain.RPCRateLimitPerSec, "chain-read"),
			classWrite:    ratelimit.NewLimiter(writeRPS, 1, "chain-write"),
			classEstimate: ratelimit.NewLimiter(readRPS, cfg.Chain.RPCRateLimitPerSec, "chain-estimate"),
		},
		logger:    logger.With("component", "chainadapter"),
		contracts: cfg.Contracts,
		chainID:   big.NewInt(cfg.Chain.ChainID),
		breakers: map[string]*circuitbreaker.Breaker{
			classRead:     newObservedBreaker("chain-read", 0, 0),
			classWrite:    newObservedBreaker("chain-write", writeFailureThreshold, writeOpenTimeout),
			classEstimate: newObservedBreaker("chain-estimate", 0, 0),
		},
	}

	if cfg.AdminPrivateKey != "" {
		key, err := crypto.HexToECDSA(trimHexPrefix(cfg.AdminPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse admin private key: %w", err)
		}
		a.privateKey = key
		a.fromAddr = crypto.PubkeyToAddress(key.PublicKey)
	}

	return a, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// FromAddress returns the signer address, or the zero address if no admin
// key was configured.
func (a *Adapter) FromAddress() common.Address {
	return a.fromAddr
}

// guard runs fn under the class's rate limit and circuit breaker,
// classifying any returned error into the package's typed sentinels.
func (a *Adapter) guard(ctx context.Context, class string, method string, fn func() error) error {
	breaker := a.breakers[class]
	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			return ErrCircuitOpen
		}
	}
	if limiter := a.limiters[class]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	err := fn()
	ratelimit.RecordRPCCall(class, method, err)
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		return classify(err)
	}
	if breaker != nil {
		breaker.RecordSuccess()
	}
	return nil
}

// CurrentBlock returns the chain head.
func (a *Adapter) CurrentBlock(ctx context.Context) (uint64, error) {
	var head uint64
	err := a.guard(ctx, classRead, "eth_blockNumber", func() error {
		var err error
		head, err = a.client.BlockNumber(ctx)
		return err
	})
	return head, err
}

// ReadCall invokes a view function and returns the unpacked outputs.
func (a *Adapter) ReadCall(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %v", ErrInvalidArgs, method, err)
	}

	var raw []byte
	err = a.guard(ctx, classRead, "eth_call:"+method, func() error {
		var err error
		raw, err = a.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// EstimateGas simulates a call message and returns the gas it would use. A
// revert during simulation classifies as ErrRevertedSimulation.
func (a *Adapter) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := a.guard(ctx, classEstimate, "eth_estimateGas", func() error {
		var err error
		gas, err = a.client.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// PendingNonce returns the next nonce to use for the signer address,
// accounting for pending transactions.
func (a *Adapter) PendingNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	err := a.guard(ctx, classRead, "eth_getTransactionCount", func() error {
		var err error
		nonce, err = a.client.PendingNonceAt(ctx, a.fromAddr)
		return err
	})
	return nonce, err
}

// SuggestGasPrice returns the network's suggested gas price.
func (a *Adapter) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := a.guard(ctx, classRead, "eth_gasPrice", func() error {
		var err error
		price, err = a.client.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// SendSignedTx builds, signs, and broadcasts a legacy transaction with an
// explicit nonce and gas limit, leaving nonce/gas policy to the caller (the
// sender package owns FIFO ordering and the profitability gate owns the gas
// buffer).
func (a *Adapter) SendSignedTx(ctx context.Context, to common.Address, data []byte, nonce, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	if a.privateKey == nil {
		return common.Hash{}, fmt.Errorf("%w: no admin private key configured", ErrInvalidArgs)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signer := types.LatestSignerForChainID(a.chainID)
	signedTx, err := types.SignTx(tx, signer, a.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	err = a.guard(ctx, classWrite, "eth_sendRawTransaction", func() error {
		return a.client.SendTransaction(ctx, signedTx)
	})
	if err != nil {
		return common.Hash{}, err
	}

	return signedTx.Hash(), nil
}

// WaitReceipt blocks until the transaction is mined or ctx is cancelled. A
// reverted receipt (status 0) is returned without error; callers decide how
// to treat it.
func (a *Adapter) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for {
		var receipt *types.Receipt
		err := a.guard(ctx, classRead, "eth_getTransactionReceipt", func() error {
			var err error
			receipt, err = a.client.TransactionReceipt(ctx, txHash)
			if errors.Is(err, ethereum.NotFound) {
				return nil
			}
			return err
		})
		if err != nil || receipt != nil {
			return receipt, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// FetchLogs fetches logs for a single contract address and topic filter
// within [from, to]. Callers are responsible for keeping to-from within the
// chunk ceiling; FetchLogs itself just enforces it defensively.
func (a *Adapter) FetchLogs(ctx context.Context, contract common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error) {
	if to < from {
		return nil, fmt.Errorf("%w: to (%d) < from (%d)", ErrInvalidArgs, to, from)
	}
	if to-from > uint64(maxLogRange) {
		return nil, fmt.Errorf("%w: range %d exceeds max %d", ErrInvalidArgs, to-from, maxLogRange)
	}

	var logs []types.Log
	err := a.guard(ctx, classRead, "eth_getLogs", func() error {
		var err error
		logs, err = a.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{contract},
			Topics:    topics,
		})
		return err
	})
	return logs, err
}

// recordLag sets the watcher lag gauge for label to head - lastProcessed. It
// leaves the gauge unchanged when head is behind lastProcessed. Nothing in
// the repository calls it.
func (a *Adapter) recordLag(label string, head, lastProcessed uint64) {
	if head < lastProcessed {
		return
	}
	metrics.WatcherLagBlocks.WithLabelValues(label).Set(float64(head - lastProcessed))
}
