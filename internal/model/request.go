package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RequestStatus is the on-chain lifecycle state of a Request.
type RequestStatus int

const (
	RequestPending RequestStatus = iota
	RequestFulfilled
	RequestCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "PENDING"
	case RequestFulfilled:
		return "FULFILLED"
	case RequestCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// RequestID is the opaque 32-byte identifier a requester receives from the hub.
type RequestID = common.Hash

// Request is a single paid API call work item.
type Request struct {
	ID         RequestID
	EndpointID common.Hash
	Requester  common.Address
	Agent      common.Address // zero until fulfilled

	TotalCost       *big.Int // 6-decimal stablecoin units
	BaseCost        *big.Int
	Markup          *big.Int
	GasReimburse    *big.Int
	CreatedAt       int64 // unix seconds
	Status          RequestStatus
	Params          []byte
	Response        []byte
	WantsCallback   bool
}

// Age returns how long ago the request was created relative to now.
func (r Request) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(r.CreatedAt, 0))
}

// IsStale reports whether the request has sat PENDING past the given staleness window.
func (r Request) IsStale(now time.Time, window time.Duration) bool {
	return r.Status == RequestPending && r.Age(now) > window
}
