package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// BroadcastEventType enumerates the push-event types named in SPEC_FULL §6.
type BroadcastEventType string

const (
	EventRequestCreated            BroadcastEventType = "request_created"
	EventRequestRouting             BroadcastEventType = "request_routing"
	EventRequestTimeout              BroadcastEventType = "request_timeout"
	EventRequestFulfilled            BroadcastEventType = "request_fulfilled"
	EventRequestCancelled            BroadcastEventType = "request_cancelled"
	EventKeepaliveFulfilled          BroadcastEventType = "keepalive_fulfilled"
	EventKeepaliveSkipped            BroadcastEventType = "keepalive_skipped"
	EventKeepaliveSubCreated         BroadcastEventType = "keepalive_subscription_created"
	EventKeepaliveSubCancelled       BroadcastEventType = "keepalive_subscription_cancelled"
	EventAppState                    BroadcastEventType = "app_state"
	EventPricingUpdate               BroadcastEventType = "pricing_update"
)

// BroadcastEvent is the typed push event delivered to the broadcast sink and
// re-exposed as Server-Sent-Events, per SPEC_FULL §6.
type BroadcastEvent struct {
	ID             string             `json:"id"`
	Type           BroadcastEventType `json:"type"`
	RequestID      *common.Hash       `json:"requestId,omitempty"`
	EndpointID     *common.Hash       `json:"endpointId,omitempty"`
	SubscriptionID *common.Hash       `json:"subscriptionId,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	Data           map[string]any     `json:"data,omitempty"`
}

// NewBroadcastEvent stamps a fresh id and timestamp. now is injected so
// callers remain deterministic in tests.
func NewBroadcastEvent(typ BroadcastEventType, now time.Time) BroadcastEvent {
	return BroadcastEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: now,
		Data:      map[string]any{},
	}
}
