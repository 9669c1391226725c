package router

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/bobbyswhip/x402c/internal/profitability"
	"github.com/bobbyswhip/x402c/internal/sender"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// HandlerClassAlchemy and HandlerClassOpenSea are the two handler classes
// named in the routing design as the canonical example registry.
const (
	HandlerClassAlchemy model.HandlerClass = "alchemy"
	HandlerClassOpenSea model.HandlerClass = "opensea"
)

// UpstreamClient is the read surface an HTTPHandler needs from the chain
// adapter to price and submit its fulfillment.
type UpstreamClient interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	GetEthPrice(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	FulfillRequestData(id common.Hash, response []byte, sessionID common.Hash) ([]byte, error)
	RequestStatus(ctx context.Context, id common.Hash) (model.RequestStatus, error)
	HubAddress() common.Address
}

// HTTPHandler fulfills a request by POSTing its params as the request body
// to a configured upstream base URL, then submitting the upstream response
// bytes on-chain. This is the shape shared by both the Alchemy and OpenSea
// handler classes; they differ only in base URL and request construction.
type HTTPHandler struct {
	Class          model.HandlerClass
	BaseURLFunc    func(endpoint model.Endpoint) string
	Chain          UpstreamClient
	Sender         *sender.Sender
	HTTPClient     *http.Client
	MaxReimburse   int64 // loss tolerance applied to this class's profitability check, USDC-6
}

// NewHTTPHandler constructs a handler with a default 10s HTTP client when
// none is supplied.
func NewHTTPHandler(class model.HandlerClass, baseURLFunc func(model.Endpoint) string, chain UpstreamClient, snd *sender.Sender) *HTTPHandler {
	return &HTTPHandler{
		Class:       class,
		BaseURLFunc: baseURLFunc,
		Chain:       chain,
		Sender:      snd,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Fulfill calls the upstream API, then submits the response on-chain after
// confirming profitability and that the request is still PENDING. It
// returns a zero hash, nil if the request was found already settled and
// nothing was submitted.
func (h *HTTPHandler) Fulfill(ctx context.Context, req model.Request, endpoint model.Endpoint) (common.Hash, error) {
	response, err := h.callUpstream(ctx, endpoint, req.Params)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: upstream call: %w", h.Class, err)
	}
	if uint64(len(response)) > endpoint.MaxResponseBytes {
		return common.Hash{}, fmt.Errorf("%s: upstream response of %d bytes exceeds endpoint limit %d", h.Class, len(response), endpoint.MaxResponseBytes)
	}

	var sessionID common.Hash
	if _, err := rand.Read(sessionID[:]); err != nil {
		return common.Hash{}, fmt.Errorf("%s: generate session id: %w", h.Class, err)
	}

	calldata, err := h.Chain.FulfillRequestData(req.ID, response, sessionID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: build fulfillRequest calldata: %w", h.Class, err)
	}

	gasPrice, err := h.Chain.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: suggest gas price: %w", h.Class, err)
	}

	hub := h.Chain.HubAddress()
	result, err := profitability.Evaluate(ctx, gasEstimatorFunc(h.Chain.EstimateGas), h.Chain.GetEthPrice, profitability.Params{
		Msg:                ethereum.CallMsg{To: &hub, Data: calldata},
		GasPrice:           gasPrice,
		ReimbursementUSDC6: req.GasReimburse,
		LossToleranceUSDC6: h.MaxReimburse,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: profitability check: %w", h.Class, err)
	}
	if result.Outcome != profitability.OutcomeProfitable {
		return common.Hash{}, fmt.Errorf("%s: fulfillment rejected by profitability gate: %s", h.Class, result.Outcome)
	}

	// Re-check PENDING status immediately before submission: another agent
	// may have raced us between the initial dispatch decision and now.
	status, err := h.Chain.RequestStatus(ctx, req.ID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: re-check request status: %w", h.Class, err)
	}
	if status != model.RequestPending {
		return common.Hash{}, nil
	}

	sent, err := h.Sender.Submit(ctx, sender.Request{
		To:       h.Chain.HubAddress(),
		Data:     calldata,
		GasLimit: result.BufferedGas,
		GasPrice: gasPrice,
		Method:   "fulfillRequest",
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: submit fulfillRequest: %w", h.Class, err)
	}
	return sent.TxHash, nil
}

func (h *HTTPHandler) callUpstream(ctx context.Context, endpoint model.Endpoint, params []byte) ([]byte, error) {
	url := h.BaseURLFunc(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(params))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(body))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream returned non-JSON body")
	}
	return body, nil
}

type gasEstimatorFunc func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

func (f gasEstimatorFunc) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f(ctx, msg)
}

// StaticClassifier builds a Classifier from a fixed endpoint-id-to-class
// map, the simplest form of the static handler registry.
func StaticClassifier(assignments map[common.Hash]model.HandlerClass) Classifier {
	return func(endpointID common.Hash) (model.HandlerClass, bool) {
		class, ok := assignments[endpointID]
		return class, ok
	}
}
