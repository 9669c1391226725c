package chainadapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// GetStakeInfo returns an address's staked and pending-reward balances.
func (a *Adapter) GetStakeInfo(ctx context.Context, who common.Address) (model.LockerPosition, error) {
	out, err := a.ReadCall(ctx, a.contracts.Staking, stakingABI, "getStakeInfo", who)
	if err != nil {
		return model.LockerPosition{}, err
	}
	return model.LockerPosition{Staked: out[0].(*big.Int), Pending: out[1].(*big.Int)}, nil
}

// PendingRewards returns an address's unclaimed staking rewards.
func (a *Adapter) PendingRewards(ctx context.Context, who common.Address) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.Staking, stakingABI, "pendingRewards", who)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TotalStaked returns the protocol-wide staked total.
func (a *Adapter) TotalStaked(ctx context.Context) (model.StakingGlobals, error) {
	out, err := a.ReadCall(ctx, a.contracts.Staking, stakingABI, "totalStaked")
	if err != nil {
		return model.StakingGlobals{}, err
	}
	return model.StakingGlobals{TotalStaked: out[0].(*big.Int)}, nil
}

// GetReputation returns an address's reputation score used for the
// leaderboard and agent-eligibility checks.
func (a *Adapter) GetReputation(ctx context.Context, who common.Address) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.Staking, stakingABI, "getReputation", who)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// IsEligibleAgent reports whether an address meets the staking threshold
// required to act as a fulfillment agent.
func (a *Adapter) IsEligibleAgent(ctx context.Context, who common.Address) (bool, error) {
	out, err := a.ReadCall(ctx, a.contracts.Staking, stakingABI, "isEligibleAgent", who)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// ClaimRewardsData packs the calldata for claimRewards.
func (a *Adapter) ClaimRewardsData() ([]byte, error) {
	data, err := stakingABI.Pack("claimRewards")
	if err != nil {
		return nil, fmt.Errorf("%w: pack claimRewards: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// CompoundData packs the calldata for compound.
func (a *Adapter) CompoundData() ([]byte, error) {
	data, err := stakingABI.Pack("compound")
	if err != nil {
		return nil, fmt.Errorf("%w: pack compound: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// StakeData packs the calldata for stake(amount).
func (a *Adapter) StakeData(amount *big.Int) ([]byte, error) {
	data, err := stakingABI.Pack("stake", amount)
	if err != nil {
		return nil, fmt.Errorf("%w: pack stake: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// RequestUnstakeData packs the calldata for requestUnstake(amount).
func (a *Adapter) RequestUnstakeData(amount *big.Int) ([]byte, error) {
	data, err := stakingABI.Pack("requestUnstake", amount)
	if err != nil {
		return nil, fmt.Errorf("%w: pack requestUnstake: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// WithdrawData packs the calldata for withdraw.
func (a *Adapter) WithdrawData() ([]byte, error) {
	data, err := stakingABI.Pack("withdraw")
	if err != nil {
		return nil, fmt.Errorf("%w: pack withdraw: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// StakingAddress returns the configured staking contract address.
func (a *Adapter) StakingAddress() common.Address { return a.contracts.Staking }
