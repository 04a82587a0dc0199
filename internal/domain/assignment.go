package domain

import (
	"time"
)

// SkipReason explains why a product-type group received no assignments
type SkipReason string

const (
	SkipReasonNoOfficers SkipReason = "no officers available"
	SkipReasonNoCapacity SkipReason = "no capacity"
)

// SystemAssignmentReason is recorded in the history for batch assignments
const SystemAssignmentReason = "automatic distribution"

// SystemReassignmentReason is recorded when a batch moves an owned customer
// to a different officer
const SystemReassignmentReason = "automatic redistribution"

// PlannedAssignment is an in-memory pairing produced by the distributor.
// It is never persisted; only its effects are.
type PlannedAssignment struct {
	CustomerID  string      `json:"customer_id"`
	OfficerID   string      `json:"officer_id"`
	ProductType ProductType `json:"product_type"`
	RequestedBy string      `json:"requested_by"`
	PlannedAt   time.Time   `json:"planned_at"`
	// OfficerVersion is the officer version observed when the plan was made
	OfficerVersion int64 `json:"officer_version"`
}

// SkippedGroup reports a product type left (partly) unassigned
type SkippedGroup struct {
	ProductType ProductType `json:"type"`
	Reason      SkipReason  `json:"reason"`
	Unassigned  int         `json:"unassigned"`
}

// AssignmentPlan is the distributor's output
type AssignmentPlan struct {
	Assignments []PlannedAssignment `json:"assignments"`
	Skipped     []SkippedGroup      `json:"skipped_groups"`
}

// AssignmentOutcome is the per-record result of persisting an assignment
type AssignmentOutcome struct {
	CustomerID string    `json:"customer_id"`
	OfficerID  string    `json:"officer_id"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	Code       ErrorCode `json:"code,omitempty"`
}

// Succeeded builds a successful outcome
func Succeeded(customerID, officerID string) AssignmentOutcome {
	return AssignmentOutcome{CustomerID: customerID, OfficerID: officerID, Success: true}
}

// Failed builds a failed outcome from err
func Failed(customerID, officerID string, err error) AssignmentOutcome {
	return AssignmentOutcome{
		CustomerID: customerID,
		OfficerID:  officerID,
		Reason:     ReasonOf(err),
		Code:       CodeOf(err),
	}
}

// PersistResult aggregates the persister's outcomes
type PersistResult struct {
	Outcomes  []AssignmentOutcome `json:"outcomes"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// Record appends an outcome and updates the counters
func (r *PersistResult) Record(outcome AssignmentOutcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	if outcome.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// BatchRequest represents a request to distribute the backlog
type BatchRequest struct {
	Specialization *ProductType `json:"specialization,omitempty"`
	Limit          int          `json:"limit"`
	ExcludeOwned   bool         `json:"exclude_owned"`
	RequestedBy    string       `json:"requested_by"`
}

// BatchResult is returned to the caller of a distribution batch
type BatchResult struct {
	PlannedCount  int                 `json:"planned_count"`
	Outcomes      []AssignmentOutcome `json:"outcomes"`
	SkippedGroups []SkippedGroup      `json:"skipped_groups"`
	Succeeded     int                 `json:"succeeded"`
	Failed        int                 `json:"failed"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
}

// ReassignRequest represents a request to move one customer to a new officer
type ReassignRequest struct {
	CustomerID  string `json:"customer_id"`
	OfficerID   string `json:"officer_id"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}
