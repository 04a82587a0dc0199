package usecase

import (
	"time"

	"github.com/collectdesk/collectdesk/internal/domain"
)

// PlanRequest is the distributor's input
type PlanRequest struct {
	Backlog []*domain.Customer
	Pool    *domain.OfficerPool
	// Specialization is the batch filter, if any. A requested specialization
	// with no officers is reported even when the backlog is empty.
	Specialization *domain.ProductType
	RequestedBy    string
}

// Distributor turns a backlog and an officer pool into an assignment plan.
// It never touches storage.
type Distributor struct {
	now func() time.Time
}

// NewDistributor creates a new distributor
func NewDistributor() *Distributor {
	return &Distributor{now: time.Now}
}

// Plan groups the backlog by product type and round-robins each group across
// the officers of that specialization, in pool order, without letting any
// officer's running load exceed its maximum caseload. Groups are processed
// in order of first appearance in the backlog.
func (d *Distributor) Plan(req PlanRequest) *domain.AssignmentPlan {
	plan := &domain.AssignmentPlan{
		Assignments: []domain.PlannedAssignment{},
		Skipped:     []domain.SkippedGroup{},
	}
	pool := req.Pool
	if pool == nil {
		pool = &domain.OfficerPool{}
	}
	plannedAt := d.now().UTC()

	groups, order := groupByProductType(req.Backlog)

	if req.Specialization != nil && len(groups[*req.Specialization]) == 0 && len(pool.For(*req.Specialization)) == 0 {
		plan.Skipped = append(plan.Skipped, domain.SkippedGroup{
			ProductType: *req.Specialization,
			Reason:      gapReason(pool, *req.Specialization),
		})
	}

	for _, productType := range order {
		accounts := groups[productType]
		officers := pool.For(productType)

		if len(officers) == 0 {
			plan.Skipped = append(plan.Skipped, domain.SkippedGroup{
				ProductType: productType,
				Reason:      gapReason(pool, productType),
				Unassigned:  len(accounts),
			})
			continue
		}

		assigned := roundRobin(accounts, officers, func(c *domain.Customer, o *domain.Officer) {
			plan.Assignments = append(plan.Assignments, domain.PlannedAssignment{
				CustomerID:     c.ID,
				OfficerID:      o.ID,
				ProductType:    productType,
				RequestedBy:    req.RequestedBy,
				PlannedAt:      plannedAt,
				OfficerVersion: o.Version,
			})
		})

		if assigned < len(accounts) {
			plan.Skipped = append(plan.Skipped, domain.SkippedGroup{
				ProductType: productType,
				Reason:      domain.SkipReasonNoCapacity,
				Unassigned:  len(accounts) - assigned,
			})
		}
	}

	return plan
}

// roundRobin cycles accounts across officers, skipping any officer that
// would exceed its maximum caseload. It stops when every officer is full
// and returns how many accounts were placed.
func roundRobin(accounts []*domain.Customer, officers []*domain.Officer, place func(*domain.Customer, *domain.Officer)) int {
	// Accounts in this group that already sit on an officer's roster are
	// about to be re-placed, so they do not count towards that officer's load.
	load := make([]int, len(officers))
	for i, o := range officers {
		load[i] = o.Load()
		for _, account := range accounts {
			if o.HasCustomer(account.ID) {
				load[i]--
			}
		}
	}

	cursor := 0
	for placed, account := range accounts {
		chosen := -1
		for step := 0; step < len(officers); step++ {
			idx := (cursor + step) % len(officers)
			if load[idx]+1 <= officers[idx].Capacity.MaxCaseload {
				chosen = idx
				break
			}
		}
		if chosen < 0 {
			return placed
		}

		load[chosen]++
		place(account, officers[chosen])
		cursor = (chosen + 1) % len(officers)
	}
	return len(accounts)
}

func groupByProductType(backlog []*domain.Customer) (map[domain.ProductType][]*domain.Customer, []domain.ProductType) {
	groups := make(map[domain.ProductType][]*domain.Customer)
	var order []domain.ProductType
	for _, c := range backlog {
		if _, seen := groups[c.ProductType]; !seen {
			order = append(order, c.ProductType)
		}
		groups[c.ProductType] = append(groups[c.ProductType], c)
	}
	return groups, order
}

func gapReason(pool *domain.OfficerPool, productType domain.ProductType) domain.SkipReason {
	if pool.Saturated[productType] > 0 {
		return domain.SkipReasonNoCapacity
	}
	return domain.SkipReasonNoOfficers
}
