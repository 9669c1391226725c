package model

import "math/big"

// EndpointPricing is the cheap-to-refresh slice of an Endpoint needed to
// re-derive request cost locally without a full RPC round trip.
type EndpointPricing struct {
	EstimatedGasWei *big.Int
	BaseCost        *big.Int // 6-decimal stablecoin units
}

// PricingSnapshot is the payload of a lightweight "pricing-only" broadcast
// (SPEC_FULL §4.9): ETH price plus per-endpoint gas/cost figures, small
// enough to push on every config-change event without a full cache refresh.
type PricingSnapshot struct {
	EthPriceUSDC *big.Int // 6-decimal stablecoin units per 1 ETH
	Endpoints    map[[32]byte]EndpointPricing
}
