package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentHistoryEntry records one ownership change. Entries are
// append-only and never mutated.
type AssignmentHistoryEntry struct {
	ID                string    `json:"id"`
	OfficerID         string    `json:"officer_id"`
	PreviousOfficerID *string   `json:"previous_officer_id,omitempty"`
	AssignedAt        time.Time `json:"assigned_at"`
	AssignedBy        string    `json:"assigned_by"`
	Reason            string    `json:"reason"`
}

// NewAssignmentHistoryEntry creates a history entry for a move to officerID
func NewAssignmentHistoryEntry(officerID string, previous *string, assignedBy, reason string, at time.Time) AssignmentHistoryEntry {
	return AssignmentHistoryEntry{
		ID:                uuid.New().String(),
		OfficerID:         officerID,
		PreviousOfficerID: previous,
		AssignedAt:        at.UTC(),
		AssignedBy:        assignedBy,
		Reason:            reason,
	}
}

// Customer represents a delinquent loan account
type Customer struct {
	ID                 string                   `json:"id"`
	Name               string                   `json:"name"`
	ProductType        ProductType              `json:"product_type"`
	Active             bool                     `json:"active"`
	OutstandingBalance float64                  `json:"outstanding_balance"`
	OverdueAmount      float64                  `json:"overdue_amount"`
	OwnerID            *string                  `json:"owner_id,omitempty"`
	History            []AssignmentHistoryEntry `json:"history,omitempty"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// IsOwned reports whether the customer currently has an owner
func (c *Customer) IsOwned() bool {
	return c.OwnerID != nil
}

// IsOwnedBy reports whether officerID is the current owner
func (c *Customer) IsOwnedBy(officerID string) bool {
	return c.OwnerID != nil && *c.OwnerID == officerID
}

// Eligible reports whether the account belongs in the backlog for filter
func (c *Customer) Eligible(filter BacklogFilter) bool {
	if !c.Active || c.OutstandingBalance <= 0 {
		return false
	}
	if filter.ProductType != nil && c.ProductType != *filter.ProductType {
		return false
	}
	if filter.ExcludeOwned && c.IsOwned() {
		return false
	}
	return true
}

// Assign sets the owner and appends entry to the history
func (c *Customer) Assign(entry AssignmentHistoryEntry) {
	owner := entry.OfficerID
	c.OwnerID = &owner
	c.History = append(c.History, entry)
	c.UpdatedAt = entry.AssignedAt
}

// Clone returns a deep copy of the customer
func (c *Customer) Clone() *Customer {
	cp := *c
	if c.OwnerID != nil {
		owner := *c.OwnerID
		cp.OwnerID = &owner
	}
	cp.History = append([]AssignmentHistoryEntry(nil), c.History...)
	return &cp
}

// HigherPriority reports whether a should be served before b: larger overdue
// amount first, then larger outstanding balance, then customer id.
func HigherPriority(a, b *Customer) bool {
	if a.OverdueAmount != b.OverdueAmount {
		return a.OverdueAmount > b.OverdueAmount
	}
	if a.OutstandingBalance != b.OutstandingBalance {
		return a.OutstandingBalance > b.OutstandingBalance
	}
	return a.ID < b.ID
}

// BacklogFilter represents filters for reading the assignment backlog
type BacklogFilter struct {
	ProductType  *ProductType `json:"product_type,omitempty"`
	Limit        int          `json:"limit"`
	ExcludeOwned bool         `json:"exclude_owned"`
}

// OwnershipPointer is the customer side of the ownership relation
type OwnershipPointer struct {
	CustomerID string  `json:"customer_id"`
	OwnerID    *string `json:"owner_id,omitempty"`
}
