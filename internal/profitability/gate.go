// Package profitability decides whether submitting a write call to the
// chain is worth its gas cost, in USDC terms, before the sender spends a
// nonce on it.
package profitability

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// weiPerEth is 1e18, the divisor converting a wei*usdc-per-eth product back
// down to USDC's 6-decimal unit scale.
var weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// defaultLossToleranceUSDC6 is $0.005 at 6 decimals: a write is still
// considered worth submitting if it loses no more than this much.
const defaultLossToleranceUSDC6 = 5_000

// defaultGasBufferPct inflates the raw gas estimate by 20% before pricing
// it, so a noisy estimate doesn't leave the agent underfunded mid-flight.
const defaultGasBufferPct = 120

// Outcome classifies the gate's verdict.
type Outcome int

const (
	OutcomeProfitable Outcome = iota
	OutcomeUnprofitable
	OutcomeUndecidableWouldRevert
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProfitable:
		return "profitable"
	case OutcomeUnprofitable:
		return "unprofitable"
	case OutcomeUndecidableWouldRevert:
		return "undecidable_would_revert"
	default:
		return "unknown"
	}
}

// GasEstimator estimates gas for a call, returning an error if the call
// would revert.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// EthPriceSource returns the current ETH price in USDC's 6-decimal unit
// scale (i.e. how many USDC-6 units one whole ETH is worth).
type EthPriceSource func(ctx context.Context) (*big.Int, error)

// Params configures a single gate evaluation. LossToleranceUSDC6 and
// GasBufferPct default to the package constants when zero.
type Params struct {
	Msg                ethereum.CallMsg
	GasPrice           *big.Int
	ReimbursementUSDC6 *big.Int
	LossToleranceUSDC6 int64
	GasBufferPct       int64
}

// Result carries the verdict plus every intermediate value, so callers can
// log a full trail without recomputing anything.
type Result struct {
	Outcome        Outcome
	RawGasEstimate uint64
	BufferedGas    uint64
	WeiCost        *big.Int
	EthPriceUSDC6  *big.Int
	USDCCost       *big.Int
	Profit         *big.Int // may be negative
	OraclePriceErr error    // non-nil if the price lookup failed and the gate fail-opened
}

// Evaluate runs the pure profitability algorithm: estimate gas, price it in
// USDC, and compare against the declared reimbursement. A failed gas
// estimate (simulated revert) short-circuits to OutcomeUndecidableWouldRevert.
// A failed oracle price lookup fails open: the gate reports Profitable so a
// pricing outage never stalls the fulfillment pipeline.
func Evaluate(ctx context.Context, estimator GasEstimator, priceSource EthPriceSource, p Params) (Result, error) {
	lossTolerance := p.LossToleranceUSDC6
	if lossTolerance == 0 {
		lossTolerance = defaultLossToleranceUSDC6
	}
	bufferPct := p.GasBufferPct
	if bufferPct == 0 {
		bufferPct = defaultGasBufferPct
	}
	if p.GasPrice == nil {
		return Result{}, fmt.Errorf("profitability: gas price is required")
	}
	if p.ReimbursementUSDC6 == nil {
		return Result{}, fmt.Errorf("profitability: reimbursement is required")
	}

	rawGas, err := estimator.EstimateGas(ctx, p.Msg)
	if err != nil {
		return Result{Outcome: OutcomeUndecidableWouldRevert}, nil
	}

	bufferedGas := rawGas * uint64(bufferPct) / 100

	weiCost := new(big.Int).Mul(new(big.Int).SetUint64(bufferedGas), p.GasPrice)

	result := Result{
		Outcome:        OutcomeProfitable,
		RawGasEstimate: rawGas,
		BufferedGas:    bufferedGas,
		WeiCost:        weiCost,
	}

	ethPrice, priceErr := priceSource(ctx)
	if priceErr != nil || ethPrice == nil || ethPrice.Sign() == 0 {
		// Fail open: an oracle outage is not a safety property, it's an
		// optimization. Proceed as if profitable rather than stall.
		result.OraclePriceErr = priceErr
		return result, nil
	}
	result.EthPriceUSDC6 = ethPrice

	usdcCost := new(big.Int).Mul(weiCost, ethPrice)
	usdcCost.Div(usdcCost, weiPerEth)
	result.USDCCost = usdcCost

	profit := new(big.Int).Sub(p.ReimbursementUSDC6, usdcCost)
	result.Profit = profit

	tolerance := big.NewInt(lossTolerance)
	negTolerance := new(big.Int).Neg(tolerance)
	if profit.Cmp(negTolerance) < 0 {
		result.Outcome = OutcomeUnprofitable
	}

	return result, nil
}
