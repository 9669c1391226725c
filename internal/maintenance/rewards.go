package maintenance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bobbyswhip/x402c/internal/sender"

	"github.com/ethereum/go-ethereum/common"
)

const rewardInterval = 5 * time.Minute

// RewardsChain is the slice of the chain adapter the reward-compounding
// loop needs.
type RewardsChain interface {
	PendingRewards(ctx context.Context, who common.Address) (*big.Int, error)
	CompoundData() ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	StakingAddress() common.Address
	FromAddress() common.Address
}

// NewRewardsLoop builds the 5-minute reward-compounding loop: if this
// agent's staking position has pending rewards, compound them back into
// the stake rather than letting them sit idle.
func NewRewardsLoop(chain RewardsChain, snd *sender.Sender) Loop {
	return Loop{
		Name:     "rewards",
		Interval: rewardInterval,
		Tick: func(ctx context.Context) error {
			pending, err := chain.PendingRewards(ctx, chain.FromAddress())
			if err != nil {
				return fmt.Errorf("read pending rewards: %w", err)
			}
			if pending == nil || pending.Sign() <= 0 {
				return nil
			}

			data, err := chain.CompoundData()
			if err != nil {
				return fmt.Errorf("build compound calldata: %w", err)
			}
			gasPrice, err := chain.SuggestGasPrice(ctx)
			if err != nil {
				return fmt.Errorf("suggest gas price: %w", err)
			}

			_, err = snd.Submit(ctx, sender.Request{
				To:       chain.StakingAddress(),
				Data:     data,
				GasLimit: 200_000,
				GasPrice: gasPrice,
				Method:   "compound",
			})
			if err != nil {
				return fmt.Errorf("submit compound: %w", err)
			}
			return nil
		},
	}
}
