package chainadapter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Hub event names, exported so watchers can build topic filters without
// reaching into the ABI directly.
const (
	EventRequestCreated           = "RequestCreated"
	EventRequestFulfilled         = "RequestFulfilled"
	EventRequestCancelled         = "RequestCancelled"
	EventCallbackExecuted         = "CallbackExecuted"
	EventPriceOracleUpdated       = "PriceOracleUpdated"
	EventEndpointUpdated          = "EndpointUpdated"
	EventEndpointGasConfigUpdated = "EndpointGasConfigUpdated"
)

// Keep-alive event names.
const (
	EventSubscriptionCreated   = "SubscriptionCreated"
	EventSubscriptionFulfilled = "SubscriptionFulfilled"
	EventSubscriptionCancelled = "SubscriptionCancelled"
)

// HubEventTopic returns the topic0 hash for a hub event by name, for use in
// an ethereum.FilterQuery.
func HubEventTopic(name string) (common.Hash, error) { return eventTopic(hubABI, name) }

// KeepAliveEventTopic returns the topic0 hash for a keep-alive event by
// name.
func KeepAliveEventTopic(name string) (common.Hash, error) { return eventTopic(keepAliveABI, name) }

func eventTopic(contractABI abi.ABI, name string) (common.Hash, error) {
	ev, ok := contractABI.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("chainadapter: unknown event %q", name)
	}
	return ev.ID, nil
}

// RequestCreatedEvent mirrors the hub's RequestCreated log.
type RequestCreatedEvent struct {
	RequestID  common.Hash
	EndpointID common.Hash
	Requester  common.Address
}

// DecodeRequestCreated decodes a RequestCreated log.
func DecodeRequestCreated(log types.Log) (RequestCreatedEvent, error) {
	if len(log.Topics) < 3 {
		return RequestCreatedEvent{}, fmt.Errorf("chainadapter: RequestCreated log missing topics")
	}
	args := make(map[string]interface{})
	if err := hubABI.UnpackIntoMap(args, EventRequestCreated, log.Data); err != nil {
		return RequestCreatedEvent{}, fmt.Errorf("unpack RequestCreated: %w", err)
	}
	requester, _ := args["requester"].(common.Address)
	return RequestCreatedEvent{
		RequestID:  log.Topics[1],
		EndpointID: log.Topics[2],
		Requester:  requester,
	}, nil
}

// RequestFulfilledEvent mirrors the hub's RequestFulfilled log.
type RequestFulfilledEvent struct {
	RequestID common.Hash
	Agent     common.Address
}

// DecodeRequestFulfilled decodes a RequestFulfilled log.
func DecodeRequestFulfilled(log types.Log) (RequestFulfilledEvent, error) {
	if len(log.Topics) < 3 {
		return RequestFulfilledEvent{}, fmt.Errorf("chainadapter: RequestFulfilled log missing topics")
	}
	return RequestFulfilledEvent{
		RequestID: log.Topics[1],
		Agent:     common.BytesToAddress(log.Topics[2].Bytes()),
	}, nil
}

// RequestCancelledEvent mirrors the hub's RequestCancelled log.
type RequestCancelledEvent struct {
	RequestID common.Hash
}

// DecodeRequestCancelled decodes a RequestCancelled log.
func DecodeRequestCancelled(log types.Log) (RequestCancelledEvent, error) {
	if len(log.Topics) < 2 {
		return RequestCancelledEvent{}, fmt.Errorf("chainadapter: RequestCancelled log missing topics")
	}
	return RequestCancelledEvent{RequestID: log.Topics[1]}, nil
}

// PriceOracleUpdatedEvent mirrors the hub's PriceOracleUpdated log.
type PriceOracleUpdatedEvent struct {
	NewEthPriceUSDC *big.Int
}

// DecodePriceOracleUpdated decodes a PriceOracleUpdated log.
func DecodePriceOracleUpdated(log types.Log) (PriceOracleUpdatedEvent, error) {
	args := make(map[string]interface{})
	if err := hubABI.UnpackIntoMap(args, EventPriceOracleUpdated, log.Data); err != nil {
		return PriceOracleUpdatedEvent{}, fmt.Errorf("unpack PriceOracleUpdated: %w", err)
	}
	price, _ := args["newEthPriceUSDC"].(*big.Int)
	return PriceOracleUpdatedEvent{NewEthPriceUSDC: price}, nil
}

// EndpointUpdatedEvent mirrors the hub's EndpointUpdated log.
type EndpointUpdatedEvent struct {
	EndpointID common.Hash
}

// DecodeEndpointUpdated decodes an EndpointUpdated log.
func DecodeEndpointUpdated(log types.Log) (EndpointUpdatedEvent, error) {
	if len(log.Topics) < 2 {
		return EndpointUpdatedEvent{}, fmt.Errorf("chainadapter: EndpointUpdated log missing topics")
	}
	return EndpointUpdatedEvent{EndpointID: log.Topics[1]}, nil
}

// SubscriptionCreatedEvent mirrors the keep-alive contract's
// SubscriptionCreated log.
type SubscriptionCreatedEvent struct {
	ID       common.Hash
	Consumer common.Address
}

// DecodeSubscriptionCreated decodes a SubscriptionCreated log.
func DecodeSubscriptionCreated(log types.Log) (SubscriptionCreatedEvent, error) {
	if len(log.Topics) < 3 {
		return SubscriptionCreatedEvent{}, fmt.Errorf("chainadapter: SubscriptionCreated log missing topics")
	}
	return SubscriptionCreatedEvent{
		ID:       log.Topics[1],
		Consumer: common.BytesToAddress(log.Topics[2].Bytes()),
	}, nil
}

// SubscriptionFulfilledEvent mirrors the keep-alive contract's
// SubscriptionFulfilled log.
type SubscriptionFulfilledEvent struct {
	ID common.Hash
}

// DecodeSubscriptionFulfilled decodes a SubscriptionFulfilled log.
func DecodeSubscriptionFulfilled(log types.Log) (SubscriptionFulfilledEvent, error) {
	if len(log.Topics) < 2 {
		return SubscriptionFulfilledEvent{}, fmt.Errorf("chainadapter: SubscriptionFulfilled log missing topics")
	}
	return SubscriptionFulfilledEvent{ID: log.Topics[1]}, nil
}

// SubscriptionCancelledEvent mirrors the keep-alive contract's
// SubscriptionCancelled log.
type SubscriptionCancelledEvent struct {
	ID common.Hash
}

// DecodeSubscriptionCancelled decodes a SubscriptionCancelled log.
func DecodeSubscriptionCancelled(log types.Log) (SubscriptionCancelledEvent, error) {
	if len(log.Topics) < 2 {
		return SubscriptionCancelledEvent{}, fmt.Errorf("chainadapter: SubscriptionCancelled log missing topics")
	}
	return SubscriptionCancelledEvent{ID: log.Topics[1]}, nil
}
