package profitability

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEstimator struct {
	gas uint64
	err error
}

func (f fakeEstimator) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return f.gas, f.err
}

func fixedPrice(p *big.Int) EthPriceSource {
	return func(_ context.Context) (*big.Int, error) { return p, nil }
}

func failingPrice(err error) EthPriceSource {
	return func(_ context.Context) (*big.Int, error) { return nil, err }
}

func TestEvaluate_RevertIsUndecidable(t *testing.T) {
	estimator := fakeEstimator{err: errors.New("execution reverted")}
	result, err := Evaluate(context.Background(), estimator, fixedPrice(big.NewInt(3000_000000)), Params{
		GasPrice:           big.NewInt(1),
		ReimbursementUSDC6: big.NewInt(10000),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUndecidableWouldRevert, result.Outcome)
}

func TestEvaluate_AppliesGasBuffer(t *testing.T) {
	estimator := fakeEstimator{gas: 100000}
	result, err := Evaluate(context.Background(), estimator, fixedPrice(big.NewInt(0)), Params{
		GasPrice:           big.NewInt(1),
		ReimbursementUSDC6: big.NewInt(1_000_000),
		GasBufferPct:       150,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(150000), result.BufferedGas)
}

func TestEvaluate_DefaultBufferIs120Percent(t *testing.T) {
	estimator := fakeEstimator{gas: 100000}
	result, err := Evaluate(context.Background(), estimator, fixedPrice(big.NewInt(0)), Params{
		GasPrice:           big.NewInt(1),
		ReimbursementUSDC6: big.NewInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(120000), result.BufferedGas)
}

func TestEvaluate_ZeroPriceFailsOpen(t *testing.T) {
	estimator := fakeEstimator{gas: 100000}
	result, err := Evaluate(context.Background(), estimator, fixedPrice(big.NewInt(0)), Params{
		GasPrice:           big.NewInt(1_000_000_000),
		ReimbursementUSDC6: big.NewInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProfitable, result.Outcome)
	assert.Nil(t, result.USDCCost)
}

func TestEvaluate_OracleErrorFailsOpen(t *testing.T) {
	estimator := fakeEstimator{gas: 100000}
	oracleErr := errors.New("oracle unavailable")
	result, err := Evaluate(context.Background(), estimator, failingPrice(oracleErr), Params{
		GasPrice:           big.NewInt(1_000_000_000),
		ReimbursementUSDC6: big.NewInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProfitable, result.Outcome)
	assert.ErrorIs(t, result.OraclePriceErr, oracleErr)
}

func TestEvaluate_ProfitableWhenReimbursementCoversCost(t *testing.T) {
	// gas 21000 * buffer 120% = 25200; gasPrice 1 gwei => weiCost = 25200e9
	// ethPrice = 3000 USDC6-per-eth-equivalent (i.e. $3000 * 1e6), so
	// usdcCost = weiCost * ethPrice / 1e18 ~= 0.0756 USDC (75600 units)
	estimator := fakeEstimator{gas: 21000}
	ethPrice := big.NewInt(3000_000000)
	result, err := Evaluate(context.Background(), estimator, fixedPrice(ethPrice), Params{
		GasPrice:           big.NewInt(1_000_000_000),
		ReimbursementUSDC6: big.NewInt(1_000_000), // $1, comfortably covers gas
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProfitable, result.Outcome)
	assert.True(t, result.Profit.Sign() > 0)
}

func TestEvaluate_UnprofitableBeyondTolerance(t *testing.T) {
	estimator := fakeEstimator{gas: 21000}
	ethPrice := big.NewInt(3000_000000)
	result, err := Evaluate(context.Background(), estimator, fixedPrice(ethPrice), Params{
		GasPrice:           big.NewInt(1_000_000_000),
		ReimbursementUSDC6: big.NewInt(0), // reimbursement doesn't cover gas at all
		LossToleranceUSDC6: 1,             // near-zero tolerance
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnprofitable, result.Outcome)
}

func TestEvaluate_WithinLossToleranceStaysProfitable(t *testing.T) {
	estimator := fakeEstimator{gas: 1} // tiny gas, tiny cost
	ethPrice := big.NewInt(3000_000000)
	result, err := Evaluate(context.Background(), estimator, fixedPrice(ethPrice), Params{
		GasPrice:           big.NewInt(1),
		ReimbursementUSDC6: big.NewInt(0),
		LossToleranceUSDC6: defaultLossToleranceUSDC6,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProfitable, result.Outcome)
}

func TestEvaluate_RequiresGasPrice(t *testing.T) {
	estimator := fakeEstimator{gas: 21000}
	_, err := Evaluate(context.Background(), estimator, fixedPrice(big.NewInt(1)), Params{
		ReimbursementUSDC6: big.NewInt(1),
	})
	assert.Error(t, err)
}

func TestEvaluate_RequiresReimbursement(t *testing.T) {
	estimator := fakeEstimator{gas: 21000}
	_, err := Evaluate(context.Background(), estimator, fixedPrice(big.NewInt(1)), Params{
		GasPrice: big.NewInt(1),
	})
	assert.Error(t, err)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "profitable", OutcomeProfitable.String())
	assert.Equal(t, "unprofitable", OutcomeUnprofitable.String())
	assert.Equal(t, "undecidable_would_revert", OutcomeUndecidableWouldRevert.String())
}
