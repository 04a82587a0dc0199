package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// StatsAggregator computes assignment coverage and officer load
type StatsAggregator struct {
	officers  ports.OfficerRepository
	customers ports.CustomerRepository
	now       func() time.Time
}

// NewStatsAggregator creates a new statistics aggregator
func NewStatsAggregator(officers ports.OfficerRepository, customers ports.CustomerRepository) *StatsAggregator {
	return &StatsAggregator{officers: officers, customers: customers, now: time.Now}
}

// Stats returns totals, assignment rates per product type, and the current
// load of every active officer.
func (s *StatsAggregator) Stats(ctx context.Context) (*domain.AssignmentStats, error) {
	coverage, err := s.customers.Coverage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute coverage: %w", err)
	}
	officers, err := s.officers.List(ctx, domain.OfficerFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list officers: %w", err)
	}

	stats := &domain.AssignmentStats{
		ByProductType: make([]domain.ProductTypeCoverage, 0, len(coverage)),
		ByOfficer:     make([]domain.OfficerLoad, 0, len(officers)),
		GeneratedAt:   s.now().UTC(),
	}

	for _, c := range coverage {
		c.AssignmentRate = domain.Rate(c.Assigned, c.Total)
		stats.Total += c.Total
		stats.Assigned += c.Assigned
		stats.ByProductType = append(stats.ByProductType, c)
	}
	stats.AssignmentRate = domain.Rate(stats.Assigned, stats.Total)

	for _, o := range officers {
		stats.ByOfficer = append(stats.ByOfficer, domain.NewOfficerLoad(o))
	}
	sort.SliceStable(stats.ByOfficer, func(i, j int) bool {
		a, b := stats.ByOfficer[i], stats.ByOfficer[j]
		if a.Specialization != b.Specialization {
			return a.Specialization < b.Specialization
		}
		return a.OfficerID < b.OfficerID
	})

	return stats, nil
}
