// Package memory provides an in-process implementation of the officer and
// customer repositories. It backs the usecase tests and the CLI's memory
// mode, and mirrors the PostgreSQL adapter's semantics: clones in and out,
// version checks on roster writes, compare-and-set on customer owners.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// Store holds officers and customers in memory
type Store struct {
	mu        sync.RWMutex
	officers  map[string]*domain.Officer
	customers map[string]*domain.Customer
}

var (
	_ ports.OfficerRepository  = (*OfficerRepository)(nil)
	_ ports.CustomerRepository = (*CustomerRepository)(nil)
)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		officers:  make(map[string]*domain.Officer),
		customers: make(map[string]*domain.Customer),
	}
}

// PutOfficer inserts or replaces an officer. Version 0 is stored as 1.
func (s *Store) PutOfficer(o *domain.Officer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := o.Clone()
	if c.Version == 0 {
		c.Version = 1
	}
	s.officers[c.ID] = c
}

// PutCustomer inserts or replaces a customer
func (s *Store) PutCustomer(c *domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c.Clone()
}

// Officer returns a copy of the stored officer, or nil
func (s *Store) Officer(id string) *domain.Officer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.officers[id]; ok {
		return o.Clone()
	}
	return nil
}

// Customer returns a copy of the stored customer, or nil
func (s *Store) Customer(id string) *domain.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.customers[id]; ok {
		return c.Clone()
	}
	return nil
}

// Officers returns the officer repository view of the store
func (s *Store) Officers() *OfficerRepository {
	return &OfficerRepository{store: s}
}

// Customers returns the customer repository view of the store
func (s *Store) Customers() *CustomerRepository {
	return &CustomerRepository{store: s}
}

// OfficerRepository implements ports.OfficerRepository over a Store
type OfficerRepository struct {
	store *Store
}

func (r *OfficerRepository) List(ctx context.Context, filter domain.OfficerFilter) ([]*domain.Officer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Officer
	for _, o := range r.store.officers {
		if filter.ActiveOnly && !o.Active {
			continue
		}
		if filter.Specialization != nil && o.Specialization != *filter.Specialization {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *OfficerRepository) FindByID(ctx context.Context, id string) (*domain.Officer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	o, ok := r.store.officers[id]
	if !ok {
		return nil, domain.ErrOfficerNotFound
	}
	return o.Clone(), nil
}

func (r *OfficerRepository) AddToRoster(ctx context.Context, change ports.RosterChange) (*domain.Officer, bool, error) {
	return r.mutate(change, func(o *domain.Officer) bool {
		return o.AddToRoster(change.CustomerID)
	})
}

func (r *OfficerRepository) RemoveFromRoster(ctx context.Context, change ports.RosterChange) (*domain.Officer, bool, error) {
	return r.mutate(change, func(o *domain.Officer) bool {
		return o.RemoveFromRoster(change.CustomerID)
	})
}

func (r *OfficerRepository) mutate(change ports.RosterChange, apply func(*domain.Officer) bool) (*domain.Officer, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	o, ok := r.store.officers[change.OfficerID]
	if !ok {
		return nil, false, domain.ErrOfficerNotFound
	}
	if change.ExpectedVersion != 0 && o.Version != change.ExpectedVersion {
		return nil, false, domain.ErrVersionConflict
	}

	if !apply(o) {
		return o.Clone(), false, nil
	}
	o.AdjustExternalLoad(change.LoadDelta)
	o.Version++
	return o.Clone(), true, nil
}

// CustomerRepository implements ports.CustomerRepository over a Store
type CustomerRepository struct {
	store *Store
}

func (r *CustomerRepository) ListBacklog(ctx context.Context, filter domain.BacklogFilter) ([]*domain.Customer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Customer
	for _, c := range r.store.customers {
		if c.Eligible(filter) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return domain.HigherPriority(out[i], out[j]) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*domain.Customer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	c, ok := r.store.customers[id]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return c.Clone(), nil
}

func (r *CustomerRepository) Assign(ctx context.Context, customerID string, expectedOwner *string, entry domain.AssignmentHistoryEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	c, ok := r.store.customers[customerID]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	if !sameOwner(c.OwnerID, expectedOwner) {
		return domain.ErrVersionConflict.WithMessage("customer owner changed concurrently")
	}
	c.Assign(entry)
	return nil
}

func (r *CustomerRepository) ListOwnership(ctx context.Context) ([]domain.OwnershipPointer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]domain.OwnershipPointer, 0, len(r.store.customers))
	for _, c := range r.store.customers {
		p := domain.OwnershipPointer{CustomerID: c.ID}
		if c.OwnerID != nil {
			owner := *c.OwnerID
			p.OwnerID = &owner
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out, nil
}

func (r *CustomerRepository) Coverage(ctx context.Context) ([]domain.ProductTypeCoverage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	byType := make(map[domain.ProductType]*domain.ProductTypeCoverage)
	for _, c := range r.store.customers {
		if !c.Active {
			continue
		}
		cov, ok := byType[c.ProductType]
		if !ok {
			cov = &domain.ProductTypeCoverage{ProductType: c.ProductType}
			byType[c.ProductType] = cov
		}
		cov.Total++
		if c.IsOwned() {
			cov.Assigned++
		}
	}

	out := make([]domain.ProductTypeCoverage, 0, len(byType))
	for _, cov := range byType {
		out = append(out, *cov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductType < out[j].ProductType })
	return out, nil
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Save inserts or replaces an officer
func (r *OfficerRepository) Save(ctx context.Context, o *domain.Officer) error {
	r.store.PutOfficer(o)
	return nil
}

// Save inserts or replaces a customer
func (r *CustomerRepository) Save(ctx context.Context, c *domain.Customer) error {
	r.store.PutCustomer(c)
	return nil
}
