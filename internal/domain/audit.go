package domain

import "time"

// MultiOwnerDefect is a customer that appears in more than one roster
type MultiOwnerDefect struct {
	CustomerID string   `json:"customer_id"`
	OwnerID    *string  `json:"owner_id,omitempty"`
	OfficerIDs []string `json:"officer_ids"`
}

// RosterDriftKind says which side of the ownership relation is out of step
type RosterDriftKind string

const (
	// DriftStaleRosterEntry: the roster lists a customer the officer does not own
	DriftStaleRosterEntry RosterDriftKind = "stale_roster_entry"
	// DriftMissingRosterEntry: the customer's owner does not list the customer
	DriftMissingRosterEntry RosterDriftKind = "missing_roster_entry"
)

// RosterDriftDefect is a disagreement between a customer's owner pointer and a roster
type RosterDriftDefect struct {
	CustomerID string          `json:"customer_id"`
	OfficerID  string          `json:"officer_id"`
	OwnerID    *string         `json:"owner_id,omitempty"`
	Kind       RosterDriftKind `json:"kind"`
}

// CapacityOverrun is an officer whose load exceeds MaxCaseload
type CapacityOverrun struct {
	OfficerID   string `json:"officer_id"`
	Load        int    `json:"load"`
	MaxCaseload int    `json:"max_caseload"`
}

// AuditReport is the consistency auditor's output
type AuditReport struct {
	MultiOwnerDefects  []MultiOwnerDefect  `json:"multi_owner_defects"`
	RosterDriftDefects []RosterDriftDefect `json:"roster_drift_defects"`
	CapacityOverruns   []CapacityOverrun   `json:"capacity_overruns"`
	ScannedOfficers    int                 `json:"scanned_officers"`
	ScannedCustomers   int                 `json:"scanned_customers"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

// Clean reports whether the audit found no defect of any kind
func (r *AuditReport) Clean() bool {
	return len(r.MultiOwnerDefects) == 0 && len(r.RosterDriftDefects) == 0 && len(r.CapacityOverruns) == 0
}
