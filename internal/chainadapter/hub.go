package chainadapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// EndpointCount returns the number of registered endpoints.
func (a *Adapter) EndpointCount(ctx context.Context) (uint64, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getEndpointCount")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// EndpointIDAt returns the endpoint id registered at the given index.
func (a *Adapter) EndpointIDAt(ctx context.Context, index uint64) (common.Hash, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "endpointIds", new(big.Int).SetUint64(index))
	if err != nil {
		return common.Hash{}, err
	}
	return out[0].([32]byte), nil
}

// GetEndpoint reads the full endpoint record.
func (a *Adapter) GetEndpoint(ctx context.Context, id common.Hash) (model.Endpoint, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getEndpoint", id)
	if err != nil {
		return model.Endpoint{}, err
	}
	return model.Endpoint{
		ID:               id,
		URL:              out[0].(string),
		InputFormat:      out[1].(string),
		OutputFormat:     out[2].(string),
		BaseCost:         out[3].(*big.Int),
		MaxResponseBytes: out[4].(*big.Int).Uint64(),
		CallbackGasLimit: out[5].(*big.Int).Uint64(),
		EstimatedGasWei:  out[6].(*big.Int),
		Owner:            out[7].(common.Address),
		Active:           out[8].(bool),
		RegisteredAt:     out[9].(*big.Int).Int64(),
	}, nil
}

// GetEthPrice returns the oracle's current ETH price in USDC units.
func (a *Adapter) GetEthPrice(ctx context.Context) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getEthPrice")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// EstimateGasReimbursement converts a wei gas cost into the USDC
// reimbursement the hub would pay for it.
func (a *Adapter) EstimateGasReimbursement(ctx context.Context, weiCost *big.Int) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "estimateGasReimbursement", weiCost)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetEndpointPrice returns the total cost (base + markup) a requester pays
// for the given endpoint.
func (a *Adapter) GetEndpointPrice(ctx context.Context, id common.Hash) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getEndpointPrice", id)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetHubBalance returns the deposited USDC balance for an address.
func (a *Adapter) GetHubBalance(ctx context.Context, who common.Address) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getBalance", who)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// ProtocolFeesAccumulator returns the hub's undistributed protocol fees.
func (a *Adapter) ProtocolFeesAccumulator(ctx context.Context) (*big.Int, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "protocolFeesAccumulator")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetRequest reads a single request's full on-chain record.
func (a *Adapter) GetRequest(ctx context.Context, id common.Hash) (model.Request, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getRequest", id)
	if err != nil {
		return model.Request{}, err
	}
	return model.Request{
		ID:            id,
		EndpointID:    out[0].([32]byte),
		Requester:     out[1].(common.Address),
		Agent:         out[2].(common.Address),
		TotalCost:     out[3].(*big.Int),
		BaseCost:      out[4].(*big.Int),
		Markup:        out[5].(*big.Int),
		GasReimburse:  out[6].(*big.Int),
		CreatedAt:     out[7].(*big.Int).Int64(),
		Status:        model.RequestStatus(out[8].(uint8)),
		Params:        out[9].([]byte),
		WantsCallback: out[10].(bool),
	}, nil
}

// RequestStatus satisfies reconciliation.StatusReader: the authoritative
// on-chain status for a single request id.
func (a *Adapter) RequestStatus(ctx context.Context, id common.Hash) (model.RequestStatus, error) {
	req, err := a.GetRequest(ctx, id)
	if err != nil {
		return 0, err
	}
	return req.Status, nil
}

// GetCallback returns the raw callback payload recorded for a request, if
// any.
func (a *Adapter) GetCallback(ctx context.Context, id common.Hash) ([]byte, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getCallback", id)
	if err != nil {
		return nil, err
	}
	return out[0].([]byte), nil
}

// AgentStats is this agent's lifetime fulfillment count and earnings.
type AgentStats struct {
	Fulfilled *big.Int
	Earned    *big.Int
}

// GetAgentStats returns this agent's aggregate performance.
func (a *Adapter) GetAgentStats(ctx context.Context, agent common.Address) (AgentStats, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getAgentStats", agent)
	if err != nil {
		return AgentStats{}, err
	}
	return AgentStats{Fulfilled: out[0].(*big.Int), Earned: out[1].(*big.Int)}, nil
}

// GetHubStats returns the hub-wide aggregate counters.
func (a *Adapter) GetHubStats(ctx context.Context) (model.HubStats, error) {
	out, err := a.ReadCall(ctx, a.contracts.Hub, hubABI, "getHubStats")
	if err != nil {
		return model.HubStats{}, err
	}
	return model.HubStats{
		TotalRequests:    out[0].(uint64),
		TotalFulfilled:   out[1].(uint64),
		TotalCancelled:   out[2].(uint64),
		ProtocolFees:     out[3].(*big.Int),
		ServedRequestSeq: out[4].(uint64),
	}, nil
}

// FulfillRequestData packs the calldata for fulfillRequest. The sender
// package is responsible for wrapping this in a signed, nonce-assigned
// transaction.
func (a *Adapter) FulfillRequestData(id common.Hash, response []byte, sessionID common.Hash) ([]byte, error) {
	data, err := hubABI.Pack("fulfillRequest", id, response, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: pack fulfillRequest: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// CancelRequestData packs the calldata for cancelRequest.
func (a *Adapter) CancelRequestData(id common.Hash) ([]byte, error) {
	data, err := hubABI.Pack("cancelRequest", id)
	if err != nil {
		return nil, fmt.Errorf("%w: pack cancelRequest: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// CreateRequestData packs the calldata for createRequest.
func (a *Adapter) CreateRequestData(endpointID common.Hash, params []byte) ([]byte, error) {
	data, err := hubABI.Pack("createRequest", endpointID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: pack createRequest: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// CreateRequestWithCallbackData packs the calldata for
// createRequestWithCallback.
func (a *Adapter) CreateRequestWithCallbackData(endpointID common.Hash, params []byte) ([]byte, error) {
	data, err := hubABI.Pack("createRequestWithCallback", endpointID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: pack createRequestWithCallback: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// FlushProtocolFeesData packs the calldata for flushProtocolFeesToBuyback.
func (a *Adapter) FlushProtocolFeesData() ([]byte, error) {
	data, err := hubABI.Pack("flushProtocolFeesToBuyback")
	if err != nil {
		return nil, fmt.Errorf("%w: pack flushProtocolFeesToBuyback: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// DepositUSDCData packs the calldata for depositUSDC against the hub.
func (a *Adapter) DepositUSDCData(amount *big.Int) ([]byte, error) {
	data, err := hubABI.Pack("depositUSDC", amount)
	if err != nil {
		return nil, fmt.Errorf("%w: pack depositUSDC: %v", ErrInvalidArgs, err)
	}
	return data, nil
}

// HubAddress returns the configured hub contract address.
func (a *Adapter) HubAddress() common.Address { return a.contracts.Hub }
