package maintenance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bobbyswhip/x402c/internal/sender"

	"github.com/ethereum/go-ethereum/common"
)

const buybackInterval = 60 * time.Minute

// BuybackChain is the slice of the chain adapter the buyback-flush loop
// needs.
type BuybackChain interface {
	ProtocolFeesAccumulator(ctx context.Context) (*big.Int, error)
	FlushProtocolFeesData() ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HubAddress() common.Address
}

// NewBuybackLoop builds the 60-minute protocol-fee flush loop: if the hub
// has accumulated any undistributed fees, flush them to buyback; a zero
// balance is a no-op, not an error.
func NewBuybackLoop(chain BuybackChain, snd *sender.Sender) Loop {
	return Loop{
		Name:     "buyback",
		Interval: buybackInterval,
		Tick: func(ctx context.Context) error {
			fees, err := chain.ProtocolFeesAccumulator(ctx)
			if err != nil {
				return fmt.Errorf("read protocol fees: %w", err)
			}
			if fees == nil || fees.Sign() <= 0 {
				return nil
			}

			data, err := chain.FlushProtocolFeesData()
			if err != nil {
				return fmt.Errorf("build flush calldata: %w", err)
			}
			gasPrice, err := chain.SuggestGasPrice(ctx)
			if err != nil {
				return fmt.Errorf("suggest gas price: %w", err)
			}

			_, err = snd.Submit(ctx, sender.Request{
				To:       chain.HubAddress(),
				Data:     data,
				GasLimit: 200_000,
				GasPrice: gasPrice,
				Method:   "flushProtocolFeesToBuyback",
			})
			if err != nil {
				return fmt.Errorf("submit flush: %w", err)
			}
			return nil
		},
	}
}
