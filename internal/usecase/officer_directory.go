package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// OfficerDirectory reads the officers that can take new accounts
type OfficerDirectory struct {
	officers ports.OfficerRepository
}

// NewOfficerDirectory creates a new officer directory reader
func NewOfficerDirectory(officers ports.OfficerRepository) *OfficerDirectory {
	return &OfficerDirectory{officers: officers}
}

// Available returns active officers matching specialization (all
// specializations when nil) that are below their maximum caseload, ordered
// by priority-weighted load ascending and then by id. Full officers are
// counted per specialization in the pool's Saturated map. An empty pool is
// not an error.
func (d *OfficerDirectory) Available(ctx context.Context, specialization *domain.ProductType) (*domain.OfficerPool, error) {
	officers, err := d.officers.List(ctx, domain.OfficerFilter{
		Specialization: specialization,
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list officers: %w", err)
	}

	pool := &domain.OfficerPool{
		Officers:  make([]*domain.Officer, 0, len(officers)),
		Saturated: make(map[domain.ProductType]int),
	}
	for _, o := range officers {
		if o.HasRoom() {
			pool.Officers = append(pool.Officers, o)
		} else {
			pool.Saturated[o.Specialization]++
		}
	}

	sort.SliceStable(pool.Officers, func(i, j int) bool {
		a, b := pool.Officers[i], pool.Officers[j]
		if a.Score() != b.Score() {
			return a.Score() < b.Score()
		}
		return a.ID < b.ID
	})

	return pool, nil
}
