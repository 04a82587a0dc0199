package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// BacklogReader reads the accounts waiting for an officer
type BacklogReader struct {
	customers    ports.CustomerRepository
	defaultLimit int
	maxLimit     int
}

// NewBacklogReader creates a new backlog reader
func NewBacklogReader(customers ports.CustomerRepository, defaultLimit, maxLimit int) *BacklogReader {
	return &BacklogReader{
		customers:    customers,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Backlog returns eligible accounts, highest risk first: overdue amount
// descending, then outstanding balance descending. Under capacity pressure
// the low-risk tail is what stays unassigned.
func (r *BacklogReader) Backlog(ctx context.Context, filter domain.BacklogFilter) ([]*domain.Customer, error) {
	filter.Limit = r.limit(filter.Limit)

	customers, err := r.customers.ListBacklog(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlog: %w", err)
	}

	sort.SliceStable(customers, func(i, j int) bool {
		return domain.HigherPriority(customers[i], customers[j])
	})
	if len(customers) > filter.Limit {
		customers = customers[:filter.Limit]
	}
	return customers, nil
}

func (r *BacklogReader) limit(requested int) int {
	if requested <= 0 {
		return r.defaultLimit
	}
	if r.maxLimit > 0 && requested > r.maxLimit {
		return r.maxLimit
	}
	return requested
}
