package maintenance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bobbyswhip/x402c/internal/sender"

	"github.com/ethereum/go-ethereum/common"
)

const hookInterval = 60 * time.Minute

// rebalanceThreshold is the minimum mid-token balance this agent must be
// holding before a rebalance pass bothers swapping it toward buyback. Below
// this the router gas cost of the swap itself would dominate.
var rebalanceThreshold = big.NewInt(1_000_000) // 1 unit at 6 decimals

// HookChain is the slice of the chain adapter the rebalance hook needs:
// read the agent's idle mid-token balance and, if worth moving, swap it.
type HookChain interface {
	BalanceOf(ctx context.Context, token, who common.Address) (*big.Int, error)
	SwapData(minMid *big.Int) ([]byte, error)
	SwapRouterAddress() common.Address
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	FromAddress() common.Address
}

// NewHooksLoop builds the 60-minute domain-rebalance hook: this agent
// accumulates the router's mid token from staking compounds and reward
// claims; rather than let it sit idle, sweep any balance above
// rebalanceThreshold through the swap router toward the buyback path. Runs
// once at startup so a freshly-started agent doesn't wait a full interval
// before its first pass.
func NewHooksLoop(chain HookChain, midToken common.Address, snd *sender.Sender) Loop {
	return Loop{
		Name:       "hooks",
		Interval:   hookInterval,
		RunAtStart: true,
		Tick: func(ctx context.Context) error {
			balance, err := chain.BalanceOf(ctx, midToken, chain.FromAddress())
			if err != nil {
				return fmt.Errorf("read mid-token balance: %w", err)
			}
			if balance == nil || balance.Cmp(rebalanceThreshold) < 0 {
				return nil
			}

			data, err := chain.SwapData(big.NewInt(0))
			if err != nil {
				return fmt.Errorf("build swap calldata: %w", err)
			}
			gasPrice, err := chain.SuggestGasPrice(ctx)
			if err != nil {
				return fmt.Errorf("suggest gas price: %w", err)
			}

			_, err = snd.Submit(ctx, sender.Request{
				To:       chain.SwapRouterAddress(),
				Data:     data,
				GasLimit: 250_000,
				GasPrice: gasPrice,
				Method:   "swap",
			})
			if err != nil {
				return fmt.Errorf("submit rebalance swap: %w", err)
			}
			return nil
		},
	}
}
