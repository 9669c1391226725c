package chainadapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// SubscriptionCount returns the number of registered subscriptions.
func (a *Adapter) SubscriptionCount(ctx context.Context) (uint64, error) {
	out, err := a.ReadCall(ctx, a.contracts.KeepAlive, keepAliveABI, "getSubscriptionCount")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// SubscriptionIDAt returns the subscription id registered at the given
// index.
func (a *Adapter) SubscriptionIDAt(ctx context.Context, index uint64) (common.Hash, error) {
	out, err := a.ReadCall(ctx, a.contracts.KeepAlive, keepAliveABI, "subscriptionIds", new(big.Int).SetUint64(index))
	if err != nil {
		return common.Hash{}, err
	}
	return out[0].([32]byte), nil
}

// GetSubscription reads a single subscription's full on-chain record.
func (a *Adapter) GetSubscription(ctx context.Context, id common.Hash) (model.Subscription, error) {
	out, err := a.ReadCall(ctx, a.contracts.KeepAlive, keepAliveABI, "getSubscription", id)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{
		ID:               id,
		Consumer:         out[0].(common.Address),
		CallbackTarget:   out[1].(common.Address),
		CallbackGasLimit: out[2].(*big.Int).Uint64(),
		IntervalSeconds:  out[3].(*big.Int).Int64(),
		FeePerCycle:      out[4].(*big.Int),
		EstimatedGasWei:  out[5].(*big.Int),
		MaxFulfillments:  out[6].(*big.Int).Uint64(),
		FulfillmentCount: out[7].(*big.Int).Uint64(),
		LastFulfilledAt:  out[8].(*big.Int).Int64(),
		Active:           out[9].(bool),
	}, nil
}

// GetSubscriptionCost returns the USDC fee plus gas reimbursement owed for
// the next fulfillment cycle.
func (a *Adapter) GetSubscriptionCost(ctx context.Context, id common.Hash) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.KeepAlive, keepAliveABI, "getSubscriptionCost", id)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// IsReady reports whether the subscription contract considers itself due
// for fulfillment right now.
func (a *Adapter) IsReady(ctx context.Context, id common.Hash) (bool, error) {
	out, err := a.ReadCall(ctx, a.contracts.KeepAlive, keepAliveABI, "isReady", id)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// GetKeepAliveBalance returns the deposited USDC balance for an address
// against the keep-alive contract.
func (a *Adapter) GetKeepAliveBalance(ctx context.Context, who common.Address) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.KeepAlive, keepAliveABI, "getBalance", who)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetKeepAliveStats returns the keep-alive contract's aggregate counters.
func (a *Adapter) GetKeepAliveStats(ctx context.Context) (model.KeepAliveStats, error) {
	out, err := a.ReadCall(ctx, a.contracts.KeepAlive, keepAliveABI, "getStats")
	if err != nil {
		return model.KeepAliveStats{}, err
	}
	return model.KeepAliveStats{
		ActiveSubscriptions: out[0].(uint64),
		TotalFulfillments:   out[1].(uint64),
	}, nil
}

// FulfillSubscriptionData packs the calldata for fulfill(id).
func (a *Adapter) FulfillSubscriptionData(id common.Hash) ([]byte, error) {
	data, err := keepAliveABI.Pack("fulfill", id)
	if err != nil {
		return nil, fmt.Errorf("%w: pack fulfill: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// CreateSubscriptionData packs the calldata for createSubscription.
func (a *Adapter) CreateSubscriptionData(callbackTarget common.Address, callbackGasLimit uint64, intervalSeconds int64, feePerCycle *big.Int, maxFulfillments uint64) ([]byte, error) {
	data, err := keepAliveABI.Pack("createSubscription",
		callbackTarget,
		new(big.Int).SetUint64(callbackGasLimit),
		big.NewInt(intervalSeconds),
		feePerCycle,
		new(big.Int).SetUint64(maxFulfillments),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: pack createSubscription: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// UpdateSubscriptionData packs the calldata for updateSubscription.
func (a *Adapter) UpdateSubscriptionData(id common.Hash, callbackGasLimit uint64, intervalSeconds int64, feePerCycle *big.Int) ([]byte, error) {
	data, err := keepAliveABI.Pack("updateSubscription",
		id,
		new(big.Int).SetUint64(callbackGasLimit),
		big.NewInt(intervalSeconds),
		feePerCycle,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: pack updateSubscription: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// CancelSubscriptionData packs the calldata for cancelSubscription.
func (a *Adapter) CancelSubscriptionData(id common.Hash) ([]byte, error) {
	data, err := keepAliveABI.Pack("cancelSubscription", id)
	if err != nil {
		return nil, fmt.Errorf("%w: pack cancelSubscription: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// KeepAliveAddress returns the configured keep-alive contract address.
func (a *Adapter) KeepAliveAddress() common.Address { return a.contracts.KeepAlive }
