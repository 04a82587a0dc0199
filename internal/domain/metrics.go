package domain

import (
	"time"
)

// ProductTypeCoverage represents assignment coverage for one product type
type ProductTypeCoverage struct {
	ProductType    ProductType `json:"product_type"`
	Total          int         `json:"total"`
	Assigned       int         `json:"assigned"`
	AssignmentRate float64     `json:"assignment_rate"`
}

// OfficerLoad represents one officer's current load
type OfficerLoad struct {
	OfficerID      string      `json:"officer_id"`
	Name           string      `json:"name"`
	Specialization ProductType `json:"specialization"`
	RosterSize     int         `json:"roster_size"`
	ExternalLoad   int         `json:"external_load"`
	Load           int         `json:"load"`
	MaxCaseload    int         `json:"max_caseload"`
	Utilization    float64     `json:"utilization"`
}

// AssignmentStats represents assignment coverage and load for reporting
type AssignmentStats struct {
	Total          int                   `json:"total"`
	Assigned       int                   `json:"assigned"`
	AssignmentRate float64               `json:"assignment_rate"`
	ByProductType  []ProductTypeCoverage `json:"by_product_type"`
	ByOfficer      []OfficerLoad         `json:"by_officer"`
	GeneratedAt    time.Time             `json:"generated_at"`
}

// NewOfficerLoad summarises an officer's load
func NewOfficerLoad(o *Officer) OfficerLoad {
	return OfficerLoad{
		OfficerID:      o.ID,
		Name:           o.Name,
		Specialization: o.Specialization,
		RosterSize:     len(o.Roster),
		ExternalLoad:   o.Capacity.ExternalLoad,
		Load:           o.Load(),
		MaxCaseload:    o.Capacity.MaxCaseload,
		Utilization:    Rate(o.Load(), o.Capacity.MaxCaseload),
	}
}

// Rate returns part/whole, or 0 when whole is zero
func Rate(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
