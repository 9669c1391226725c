package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HubStats mirrors the hub contract's getHubStats() tuple.
type HubStats struct {
	TotalRequests     uint64
	TotalFulfilled    uint64
	TotalCancelled    uint64
	ProtocolFees      *big.Int
	ServedRequestSeq  uint64 // monotonic counter used by the cheap delta probe
}

// StakingGlobals mirrors the staking contract's aggregate parameters.
type StakingGlobals struct {
	TotalStaked *big.Int
}

// LockerStats mirrors the reward-locker contract's aggregate state.
type LockerStats struct {
	PendingRewards *big.Int
}

// LockerPosition is this agent's locker position.
type LockerPosition struct {
	Staked  *big.Int
	Pending *big.Int
}

// GovernorInfo, TimelockInfo, Proposal, DisputeStats, Dispute, and
// BazaarResource are intentionally slim: the hub's governance/dispute/bazaar
// modules are read-only passthroughs for the dashboard and carry no
// fulfillment-path semantics, so only the fields the snapshot actually
// surfaces are modeled.
type GovernorInfo struct {
	ProposalCount uint64
	QuorumBps     uint64
}

type TimelockInfo struct {
	DelaySeconds int64
}

type Proposal struct {
	ID          uint64
	Description string
	Executed    bool
}

type DisputeStats struct {
	Open   uint64
	Closed uint64
}

type Dispute struct {
	ID        common.Hash
	RequestID common.Hash
	Reason    string
	CreatedAt int64
}

type BazaarResource struct {
	ID       common.Hash
	Owner    common.Address
	Quantity *big.Int
}

type BuybackStats struct {
	PendingFees  *big.Int
	TotalBoughtBack *big.Int
}

type KeepAliveStats struct {
	ActiveSubscriptions uint64
	TotalFulfillments   uint64
}

// LeaderboardEntry ranks an agent by a cheap reputation proxy.
type LeaderboardEntry struct {
	Agent      common.Address
	Reputation *big.Int
}

// EndpointSummary is the derived, dashboard-ready view of an Endpoint: the
// raw Endpoint plus historical fulfillment counts scanned from the event
// log window described in SPEC_FULL §4.9 step 3.
type EndpointSummary struct {
	Endpoint              Endpoint
	HistoricalFulfillments uint64
}

// RecentRequest is a compact, ring-buffer-friendly projection of a Request
// used to seed late SSE subscribers.
type RecentRequest struct {
	ID         common.Hash
	EndpointID common.Hash
	Status     RequestStatus
	CreatedAt  int64
}

// AppStateSnapshot is the aggregate published to downstream consumers
// (SPEC_FULL §3, §4.9). It is replaced atomically; never observed partially
// built.
type AppStateSnapshot struct {
	GeneratedAt time.Time

	Hub           HubStats
	Endpoints     []EndpointSummary
	Staking       StakingGlobals
	Locker        LockerStats
	LockerSelf    LockerPosition
	Governor      GovernorInfo
	Timelock      TimelockInfo
	Leaderboard   []LeaderboardEntry
	Proposals     []Proposal
	Disputes      DisputeStats
	RecentDisputes []Dispute
	Bazaar        []BazaarResource
	Buyback       BuybackStats
	EthPriceUSDC  *big.Int
	KeepAlive     KeepAliveStats
	RecentRequests []RecentRequest
}

// CacheAgeMs returns the non-negative staleness of the snapshot relative to
// now, per the P4 testable property.
func (s *AppStateSnapshot) CacheAgeMs(now time.Time) int64 {
	if s == nil {
		return 0
	}
	age := now.Sub(s.GeneratedAt).Milliseconds()
	if age < 0 {
		return 0
	}
	return age
}
