package domain

import (
	"time"
)

// ProductType represents a loan product category. An officer's
// specialization is a ProductType.
type ProductType string

const (
	ProductTypeSME      ProductType = "SME"
	ProductTypeAuto     ProductType = "AUTO"
	ProductTypeMortgage ProductType = "MORTGAGE"
	ProductTypePersonal ProductType = "PERSONAL"
)

// Capacity describes how much work an officer may carry
type Capacity struct {
	MaxCaseload    int     `json:"max_caseload"`
	PriorityWeight float64 `json:"priority_weight"`
	// ExternalLoad tracks caseload from sources outside the roster
	ExternalLoad int `json:"external_load"`
}

// Officer represents a collections officer
type Officer struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Specialization ProductType `json:"specialization"`
	Active         bool        `json:"active"`
	Capacity       Capacity    `json:"capacity"`
	Roster         []string    `json:"roster"`
	Version        int64       `json:"version"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Load returns the officer's current caseload: external load plus roster size
func (o *Officer) Load() int {
	return o.Capacity.ExternalLoad + len(o.Roster)
}

// HasRoom reports whether one more account fits under MaxCaseload
func (o *Officer) HasRoom() bool {
	return o.Load() < o.Capacity.MaxCaseload
}

// Score is the priority-weighted load used to order officers; lower is served first
func (o *Officer) Score() float64 {
	return float64(o.Load()) * o.Capacity.PriorityWeight
}

// Serves reports whether the officer can take accounts of the given product type
func (o *Officer) Serves(productType ProductType) bool {
	return o.Specialization == productType
}

// HasCustomer reports whether the roster contains customerID
func (o *Officer) HasCustomer(customerID string) bool {
	for _, id := range o.Roster {
		if id == customerID {
			return true
		}
	}
	return false
}

// AddToRoster adds customerID to the roster. Adding an id that is already
// present is a no-op; the return value reports whether the roster changed.
func (o *Officer) AddToRoster(customerID string) bool {
	if o.HasCustomer(customerID) {
		return false
	}
	o.Roster = append(o.Roster, customerID)
	return true
}

// RemoveFromRoster removes customerID and reports whether it was present
func (o *Officer) RemoveFromRoster(customerID string) bool {
	for i, id := range o.Roster {
		if id == customerID {
			o.Roster = append(o.Roster[:i:i], o.Roster[i+1:]...)
			return true
		}
	}
	return false
}

// AdjustExternalLoad applies delta to the external load, never going below zero
func (o *Officer) AdjustExternalLoad(delta int) {
	o.Capacity.ExternalLoad += delta
	if o.Capacity.ExternalLoad < 0 {
		o.Capacity.ExternalLoad = 0
	}
}

// Clone returns a deep copy of the officer
func (o *Officer) Clone() *Officer {
	c := *o
	c.Roster = append([]string(nil), o.Roster...)
	return &c
}

// OfficerFilter represents filters for listing officers
type OfficerFilter struct {
	Specialization *ProductType `json:"specialization,omitempty"`
	ActiveOnly     bool         `json:"active_only"`
}

// OfficerPool is the result of reading the officer directory: officers with
// remaining capacity ordered by score, and per-specialization counts of
// active officers that were excluded because they are full.
type OfficerPool struct {
	Officers  []*Officer          `json:"officers"`
	Saturated map[ProductType]int `json:"saturated"`
}

// For returns the pool's officers that serve productType, preserving order
func (p *OfficerPool) For(productType ProductType) []*Officer {
	var out []*Officer
	for _, o := range p.Officers {
		if o.Serves(productType) {
			out = append(out, o)
		}
	}
	return out
}
