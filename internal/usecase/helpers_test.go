package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/collectdesk/collectdesk/internal/adapter/memory"
	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
)

func officer(id string, spec domain.ProductType, maxCaseload int, roster ...string) *domain.Officer {
	return &domain.Officer{
		ID:             id,
		Name:           "Officer " + id,
		Specialization: spec,
		Active:         true,
		Capacity:       domain.Capacity{MaxCaseload: maxCaseload, PriorityWeight: 1},
		Roster:         roster,
	}
}

func customer(id string, pt domain.ProductType, overdue float64) *domain.Customer {
	return &domain.Customer{
		ID:                 id,
		Name:               "Customer " + id,
		ProductType:        pt,
		Active:             true,
		OutstandingBalance: 1000,
		OverdueAmount:      overdue,
	}
}

func owned(c *domain.Customer, officerID string) *domain.Customer {
	c.OwnerID = &officerID
	c.History = append(c.History, domain.NewAssignmentHistoryEntry(officerID, nil, "seed", "seed", time.Now()))
	return c
}

func smeOfficerStore() *memory.Store {
	s := memory.NewStore()
	s.PutOfficer(officer("A", domain.ProductTypeSME, 2))
	s.PutOfficer(officer("B", domain.ProductTypeSME, 1))
	s.PutCustomer(customer("X", domain.ProductTypeSME, 300))
	s.PutCustomer(customer("Y", domain.ProductTypeSME, 200))
	s.PutCustomer(customer("Z", domain.ProductTypeSME, 100))
	return s
}

func newUseCase(s *memory.Store, events ports.EventPublisher, opts Options) *AssignmentUseCase {
	return NewAssignmentUseCase(s.Officers(), s.Customers(), nil, events, logger.NewNopLogger(), opts)
}

func defaultOptions() Options {
	return Options{
		DefaultBatchLimit: 500,
		MaxBatchLimit:     5000,
		OptimisticLocking: true,
		SystemActor:       "system",
	}
}

// faultyOfficers fails selected roster writes
type faultyOfficers struct {
	ports.OfficerRepository
	failAdd    func(ports.RosterChange) error
	failRemove func(ports.RosterChange) error
}

func (f *faultyOfficers) AddToRoster(ctx context.Context, change ports.RosterChange) (*domain.Officer, bool, error) {
	if f.failAdd != nil {
		if err := f.failAdd(change); err != nil {
			return nil, false, err
		}
	}
	return f.OfficerRepository.AddToRoster(ctx, change)
}

func (f *faultyOfficers) RemoveFromRoster(ctx context.Context, change ports.RosterChange) (*domain.Officer, bool, error) {
	if f.failRemove != nil {
		if err := f.failRemove(change); err != nil {
			return nil, false, err
		}
	}
	return f.OfficerRepository.RemoveFromRoster(ctx, change)
}

// faultyCustomers fails owner writes for selected customers
type faultyCustomers struct {
	ports.CustomerRepository
	failAssign func(customerID string) error
}

func (f *faultyCustomers) Assign(ctx context.Context, customerID string, expectedOwner *string, entry domain.AssignmentHistoryEntry) error {
	if f.failAssign != nil {
		if err := f.failAssign(customerID); err != nil {
			return err
		}
	}
	return f.CustomerRepository.Assign(ctx, customerID, expectedOwner, entry)
}

// MockEventPublisher is a mock implementation of ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, routingKey string, event ports.Envelope) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *MockEventPublisher) Close() error {
	return m.Called().Error(0)
}

// fakeLocker grants each key to one holder at a time
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	extended int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, ports.ErrLockHeld
	}
	l.held[key] = true
	return &fakeLock{locker: l, key: key}, nil
}

func (l *fakeLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

func (l *fakeLocker) extensions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extended
}

type fakeLock struct {
	locker *fakeLocker
	key    string
}

func (k *fakeLock) Extend(ctx context.Context, ttl time.Duration) error {
	k.locker.mu.Lock()
	defer k.locker.mu.Unlock()
	if !k.locker.held[k.key] {
		return errors.New("lock lost")
	}
	k.locker.extended++
	return nil
}

func (k *fakeLock) Release(ctx context.Context) error {
	k.locker.mu.Lock()
	defer k.locker.mu.Unlock()
	delete(k.locker.held, k.key)
	return nil
}
