package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventPublisher defines the interface for domain event publishing
type EventPublisher interface {
	// Publish publishes an event under the given routing key
	Publish(ctx context.Context, routingKey string, event Envelope) error

	// Close releases the underlying connection
	Close() error
}

// Event types, also used as routing keys
const (
	EventTypeBatchCompleted     = "assignment.batch.completed"
	EventTypeCustomerAssigned   = "assignment.customer.assigned"
	EventTypeCustomerReassigned = "assignment.customer.reassigned"
	EventTypeAuditCompleted     = "assignment.audit.completed"
)

// EventProducer is stamped on every envelope
const EventProducer = "collectdesk"

// EventMeta carries event identity and correlation
type EventMeta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Envelope is the wire shape of a published event
type Envelope struct {
	Meta EventMeta   `json:"meta"`
	Data interface{} `json:"data"`
}

// NewEnvelope creates an envelope for eventType
func NewEnvelope(eventType, correlationID string, data interface{}) Envelope {
	meta := EventMeta{
		ID:         uuid.NewString(),
		Type:       eventType,
		Producer:   EventProducer,
		OccurredAt: time.Now().UTC(),
	}
	if correlationID != "" {
		meta.CorrelationID = &correlationID
	}
	return Envelope{Meta: meta, Data: data}
}

// CustomerAssignedEvent is published for every persisted assignment
type CustomerAssignedEvent struct {
	CustomerID        string    `json:"customer_id"`
	OfficerID         string    `json:"officer_id"`
	PreviousOfficerID *string   `json:"previous_officer_id,omitempty"`
	ProductType       string    `json:"product_type"`
	AssignedBy        string    `json:"assigned_by"`
	Reason            string    `json:"reason"`
	AssignedAt        time.Time `json:"assigned_at"`
}

// BatchCompletedEvent summarises a distribution batch
type BatchCompletedEvent struct {
	RequestedBy   string `json:"requested_by"`
	PlannedCount  int    `json:"planned_count"`
	Succeeded     int    `json:"succeeded"`
	Failed        int    `json:"failed"`
	SkippedGroups int    `json:"skipped_groups"`
	DurationMs    int64  `json:"duration_ms"`
}

// AuditCompletedEvent summarises a consistency audit
type AuditCompletedEvent struct {
	MultiOwnerDefects  int `json:"multi_owner_defects"`
	RosterDriftDefects int `json:"roster_drift_defects"`
	CapacityOverruns   int `json:"capacity_overruns"`
}
