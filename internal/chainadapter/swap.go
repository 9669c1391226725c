package chainadapter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapData packs the calldata for swap(minMid), the buyback module's
// simple protocol-fee-to-mid-token swap path.
func (a *Adapter) SwapData(minMid *big.Int) ([]byte, error) {
	data, err := swapRouterABI.Pack("swap", minMid)
	if err != nil {
		return nil, fmt.Errorf("%w: pack swap: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// SwapToTokenData packs the calldata for swapToToken, the two-hop buyback
// path that routes through a specific pool.
func (a *Adapter) SwapToTokenData(poolKey common.Hash, minMid, minOut *big.Int, midIsToken0 bool) ([]byte, error) {
	data, err := swapRouterABI.Pack("swapToToken", poolKey, minMid, minOut, midIsToken0)
	if err != nil {
		return nil, fmt.Errorf("%w: pack swapToToken: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// SwapRouterAddress returns the configured swap router contract address.
func (a *Adapter) SwapRouterAddress() common.Address { return a.contracts.SwapRouter }
