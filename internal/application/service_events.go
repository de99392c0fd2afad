package application

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/ports"
)

// Event types consumed by the chat/notification collaborator. They inform,
// never decide; no consumer response feeds back into this core.
const (
	EventBalanceCredited       = "balance.credited"
	EventEscrowCreated         = "escrow.created"
	EventEscrowConfirmed       = "escrow.confirmed"
	EventEscrowShipped         = "escrow.shipped"
	EventEscrowCompleted       = "escrow.completed"
	EventEscrowCancelled       = "escrow.cancelled"
	EventEscrowExpired         = "escrow.expired"
	EventStoreCreated          = "store_transaction.created"
	EventStoreConfirmed        = "store_transaction.confirmed"
	EventStoreCompleted        = "store_transaction.completed"
	EventStoreCancelled        = "store_transaction.cancelled"
	EventDisputeOpened         = "dispute.opened"
	EventDisputeAssigned       = "dispute.assigned"
	EventDisputeResolved       = "dispute.resolved"
	EventDisputeCancelled      = "dispute.cancelled"
	EventPointsTransferred     = "points.transferred"
	EventReferralRegistered    = "referral.registered"
)

func newOutboxEvent(eventType, partitionKey string, payload map[string]any, at time.Time) ports.OutboxEvent {
	raw, _ := json.Marshal(payload)
	return ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      raw,
		OccurredAt:   at,
	}
}
