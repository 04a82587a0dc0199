package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// ConsistencyAuditor compares the customer-side owner pointers with the
// officer-side rosters. It only reads.
type ConsistencyAuditor struct {
	officers  ports.OfficerRepository
	customers ports.CustomerRepository
	now       func() time.Time
}

// NewConsistencyAuditor creates a new consistency auditor
func NewConsistencyAuditor(officers ports.OfficerRepository, customers ports.CustomerRepository) *ConsistencyAuditor {
	return &ConsistencyAuditor{
		officers:  officers,
		customers: customers,
		now:       time.Now,
	}
}

// Audit scans every officer and every customer and reports three
// independent defect lists: customers held by more than one roster, roster
// entries that disagree with the owner pointer (either direction), and
// officers whose load exceeds their maximum caseload.
func (a *ConsistencyAuditor) Audit(ctx context.Context) (*domain.AuditReport, error) {
	officers, err := a.officers.List(ctx, domain.OfficerFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list officers: %w", err)
	}
	pointers, err := a.customers.ListOwnership(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ownership: %w", err)
	}

	report := &domain.AuditReport{
		MultiOwnerDefects:  []domain.MultiOwnerDefect{},
		RosterDriftDefects: []domain.RosterDriftDefect{},
		CapacityOverruns:   []domain.CapacityOverrun{},
		ScannedOfficers:    len(officers),
		ScannedCustomers:   len(pointers),
		GeneratedAt:        a.now().UTC(),
	}

	owners := make(map[string]*string, len(pointers))
	for _, p := range pointers {
		owners[p.CustomerID] = p.OwnerID
	}

	sort.Slice(officers, func(i, j int) bool { return officers[i].ID < officers[j].ID })
	officerByID := make(map[string]*domain.Officer, len(officers))
	holders := make(map[string][]string)

	for _, o := range officers {
		officerByID[o.ID] = o

		if o.Load() > o.Capacity.MaxCaseload {
			report.CapacityOverruns = append(report.CapacityOverruns, domain.CapacityOverrun{
				OfficerID:   o.ID,
				Load:        o.Load(),
				MaxCaseload: o.Capacity.MaxCaseload,
			})
		}

		seen := make(map[string]bool, len(o.Roster))
		for _, customerID := range o.Roster {
			if seen[customerID] {
				continue
			}
			seen[customerID] = true
			holders[customerID] = append(holders[customerID], o.ID)

			owner, known := owners[customerID]
			if !known || owner == nil || *owner != o.ID {
				report.RosterDriftDefects = append(report.RosterDriftDefects, domain.RosterDriftDefect{
					CustomerID: customerID,
					OfficerID:  o.ID,
					OwnerID:    owner,
					Kind:       domain.DriftStaleRosterEntry,
				})
			}
		}
	}

	for _, p := range pointers {
		if p.OwnerID == nil {
			continue
		}
		o, ok := officerByID[*p.OwnerID]
		if !ok || !o.HasCustomer(p.CustomerID) {
			report.RosterDriftDefects = append(report.RosterDriftDefects, domain.RosterDriftDefect{
				CustomerID: p.CustomerID,
				OfficerID:  *p.OwnerID,
				OwnerID:    p.OwnerID,
				Kind:       domain.DriftMissingRosterEntry,
			})
		}
	}

	customerIDs := make([]string, 0, len(holders))
	for customerID, officerIDs := range holders {
		if len(officerIDs) > 1 {
			customerIDs = append(customerIDs, customerID)
		}
	}
	sort.Strings(customerIDs)
	for _, customerID := range customerIDs {
		report.MultiOwnerDefects = append(report.MultiOwnerDefects, domain.MultiOwnerDefect{
			CustomerID: customerID,
			OwnerID:    owners[customerID],
			OfficerIDs: holders[customerID],
		})
	}

	return report, nil
}
