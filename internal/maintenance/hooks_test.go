package maintenance

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHookChain struct {
	balance    *big.Int
	balanceErr error
	swapData   []byte
	gasPrice   *big.Int
	router     common.Address
	from       common.Address
}

func (f *fakeHookChain) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return f.balance, f.balanceErr
}

func (f *fakeHookChain) SwapData(*big.Int) ([]byte, error) { return f.swapData, nil }

func (f *fakeHookChain) SwapRouterAddress() common.Address { return f.router }

func (f *fakeHookChain) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeHookChain) FromAddress() common.Address { return f.from }

func TestHooksLoopRunsAtStart(t *testing.T) {
	router := common.HexToAddress("0xRouter")
	chain := &fakeHookChain{
		balance:  big.NewInt(2_000_000),
		swapData: []byte{0xcc},
		gasPrice: big.NewInt(1),
		router:   router,
	}
	midToken := common.HexToAddress("0xMid")
	snd, client := newMaintTestSender(t)

	loop := NewHooksLoop(chain, midToken, snd)
	require.Equal(t, "hooks", loop.Name)
	require.True(t, loop.RunAtStart)

	require.NoError(t, loop.Tick(context.Background()))

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.sent, 1)
	assert.Equal(t, router, client.sent[0].To)
	assert.Equal(t, []byte{0xcc}, client.sent[0].Data)
}

func TestHooksLoopSkipsBelowThreshold(t *testing.T) {
	chain := &fakeHookChain{balance: big.NewInt(1)}
	snd, client := newMaintTestSender(t)

	loop := NewHooksLoop(chain, common.HexToAddress("0xMid"), snd)
	require.NoError(t, loop.Tick(context.Background()))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.sent)
}

func TestHooksLoopPropagatesBalanceError(t *testing.T) {
	chain := &fakeHookChain{balanceErr: errBoom}
	snd, _ := newMaintTestSender(t)

	loop := NewHooksLoop(chain, common.HexToAddress("0xMid"), snd)
	require.Error(t, loop.Tick(context.Background()))
}
