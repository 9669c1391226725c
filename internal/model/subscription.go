package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ReadyPredicate is an optional consumer-supplied external check consulted
// in addition to the on-chain readiness fields. A nil predicate always
// passes.
type ReadyPredicate func(sub Subscription) bool

// Subscription is a recurring keep-alive work item.
type Subscription struct {
	ID               common.Hash
	Consumer         common.Address
	CallbackTarget   common.Address
	CallbackGasLimit uint64
	IntervalSeconds  int64
	FeePerCycle      *big.Int // 6-decimal stablecoin units
	EstimatedGasWei  *big.Int
	MaxFulfillments  uint64 // 0 = unbounded
	FulfillmentCount uint64
	LastFulfilledAt  int64 // unix seconds
	Active           bool
}

// IsReady reports whether the subscription is due for another fulfillment
// cycle, per SPEC_FULL §3: active AND below-max AND interval-elapsed AND
// (optional) external predicate passes.
func (s Subscription) IsReady(now time.Time, pred ReadyPredicate) bool {
	if !s.Active {
		return false
	}
	if s.MaxFulfillments > 0 && s.FulfillmentCount >= s.MaxFulfillments {
		return false
	}
	elapsed := now.Unix() - s.LastFulfilledAt
	if elapsed < s.IntervalSeconds {
		return false
	}
	if pred != nil && !pred(s) {
		return false
	}
	return true
}
