package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Endpoint is a registered upstream API definition.
type Endpoint struct {
	ID                 common.Hash
	URL                string
	InputFormat        string
	OutputFormat       string
	BaseCost           *big.Int // 6-decimal stablecoin units
	MaxResponseBytes   uint64
	CallbackGasLimit   uint64
	EstimatedGasWei    *big.Int
	Owner              common.Address
	Active             bool
	RegisteredAt       int64

	// OwnerName is resolved out-of-band by an identity.Resolver; nil when
	// resolution failed or was never attempted. Degrading to nil rather
	// than omitting the endpoint is required by SPEC_FULL §4.9.
	OwnerName *string
}

// HandlerClass names the static registry key an endpoint is routed to
// (e.g. "alchemy", "opensea"). It is derived by the caller, typically
// from Endpoint.URL or a side-channel mapping, not stored on-chain.
type HandlerClass string
