package chainadapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Allowance returns the ERC-20 allowance owner has granted spender.
func (a *Adapter) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := a.ReadCall(ctx, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// BalanceOf returns an ERC-20 balance.
func (a *Adapter) BalanceOf(ctx context.Context, token, who common.Address) (*big.Int, error) {
	out, err := a.ReadCall(ctx, token, erc20ABI, "balanceOf", who)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// ApproveData packs the calldata for approve(spender, amount), used when
// Allowance is found insufficient before a deposit or swap.
func (a *Adapter) ApproveData(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: pack approve: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// EnsureAllowance checks the current allowance and, if it falls short of
// amount, returns the approve calldata the caller must submit first. A nil
// data slice means no approval is needed.
func (a *Adapter) EnsureAllowance(ctx context.Context, token, owner, spender common.Address, amount *big.Int) ([]byte, error) {
	current, err := a.Allowance(ctx, token, owner, spender)
	if err != nil {
		return nil, err
	}
	if current.Cmp(amount) >= 0 {
		return nil, nil
	}
	return a.ApproveData(spender, amount)
}
