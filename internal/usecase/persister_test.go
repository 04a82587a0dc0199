package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/collectdesk/collectdesk/internal/adapter/memory"
	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
)

func planned(customerID, officerID string, pt domain.ProductType, version int64) domain.PlannedAssignment {
	return domain.PlannedAssignment{
		CustomerID:     customerID,
		OfficerID:      officerID,
		ProductType:    pt,
		RequestedBy:    "tester",
		PlannedAt:      time.Now(),
		OfficerVersion: version,
	}
}

func newPersister(s *memory.Store, opts PersisterOptions) *AssignmentPersister {
	return NewAssignmentPersister(s.Officers(), s.Customers(), nil, logger.NewNopLogger(), opts)
}

func TestAssignmentPersister_WritesBothSides(t *testing.T) {
	s := smeOfficerStore()
	p := newPersister(s, PersisterOptions{MirrorExternalLoad: true, OptimisticLocking: true})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{
		planned("X", "A", domain.ProductTypeSME, 1),
		planned("Z", "A", domain.ProductTypeSME, 1),
	})

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	a := s.Officer("A")
	assert.Equal(t, []string{"X", "Z"}, a.Roster)
	assert.Equal(t, 2, a.Capacity.ExternalLoad)
	assert.Equal(t, int64(3), a.Version)

	x := s.Customer("X")
	require.NotNil(t, x.OwnerID)
	assert.Equal(t, "A", *x.OwnerID)
	require.Len(t, x.History, 1)
	assert.Equal(t, "tester", x.History[0].AssignedBy)
	assert.Equal(t, domain.SystemAssignmentReason, x.History[0].Reason)
	assert.Nil(t, x.History[0].PreviousOfficerID)
}

func TestAssignmentPersister_WithoutMirroringLeavesExternalLoad(t *testing.T) {
	s := smeOfficerStore()
	p := newPersister(s, PersisterOptions{})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{planned("X", "A", domain.ProductTypeSME, 0)})

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, s.Officer("A").Capacity.ExternalLoad)
}

func TestAssignmentPersister_SamePairTwiceIsIdempotent(t *testing.T) {
	s := smeOfficerStore()
	p := newPersister(s, PersisterOptions{MirrorExternalLoad: true, OptimisticLocking: true})
	pa := planned("X", "A", domain.ProductTypeSME, 1)

	first := p.Persist(context.Background(), []domain.PlannedAssignment{pa})
	second := p.Persist(context.Background(), []domain.PlannedAssignment{pa})

	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, 1, second.Succeeded)
	a := s.Officer("A")
	assert.Equal(t, []string{"X"}, a.Roster)
	assert.Equal(t, 1, a.Capacity.ExternalLoad)
	assert.Len(t, s.Customer("X").History, 1)
}

func TestAssignmentPersister_SpecializationMismatch(t *testing.T) {
	s := smeOfficerStore()
	s.PutCustomer(customer("car", domain.ProductTypeAuto, 10))
	p := newPersister(s, PersisterOptions{})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{
		planned("car", "A", domain.ProductTypeAuto, 0),
		planned("X", "A", domain.ProductTypeSME, 0),
	})

	require.Len(t, result.Outcomes, 2)
	assert.False(t, result.Outcomes[0].Success)
	assert.Equal(t, domain.ErrCodeSpecializationMismatch, result.Outcomes[0].Code)
	assert.True(t, result.Outcomes[1].Success)
	assert.Equal(t, []string{"X"}, s.Officer("A").Roster)
}

func TestAssignmentPersister_ProductTypeChangedAfterPlanning(t *testing.T) {
	s := smeOfficerStore()
	p := newPersister(s, PersisterOptions{})
	pa := planned("X", "A", domain.ProductTypeSME, 0)

	changed := s.Customer("X")
	changed.ProductType = domain.ProductTypeMortgage
	s.PutCustomer(changed)

	result := p.Persist(context.Background(), []domain.PlannedAssignment{pa})

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, domain.ErrCodeSpecializationMismatch, result.Outcomes[0].Code)
	assert.Empty(t, s.Officer("A").Roster)
}

func TestAssignmentPersister_MovesCustomerOwnedElsewhere(t *testing.T) {
	s := smeOfficerStore()
	prev := officer("B", domain.ProductTypeSME, 1, "X")
	prev.Capacity.ExternalLoad = 1
	s.PutOfficer(prev)
	s.PutCustomer(owned(customer("X", domain.ProductTypeSME, 300), "B"))
	p := newPersister(s, PersisterOptions{MirrorExternalLoad: true, OptimisticLocking: true})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{planned("X", "A", domain.ProductTypeSME, 1)})

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, []string{"X"}, s.Officer("A").Roster)
	assert.Equal(t, 1, s.Officer("A").Capacity.ExternalLoad)
	assert.Empty(t, s.Officer("B").Roster)
	assert.Equal(t, 0, s.Officer("B").Capacity.ExternalLoad)

	x := s.Customer("X")
	require.NotNil(t, x.OwnerID)
	assert.Equal(t, "A", *x.OwnerID)
	last := x.History[len(x.History)-1]
	require.NotNil(t, last.PreviousOfficerID)
	assert.Equal(t, "B", *last.PreviousOfficerID)
	assert.Equal(t, domain.SystemReassignmentReason, last.Reason)
}

func TestAssignmentPersister_ReleaseDoesNotConflictWithLaterRecords(t *testing.T) {
	s := smeOfficerStore()
	s.PutOfficer(officer("B", domain.ProductTypeSME, 2, "X"))
	s.PutCustomer(owned(customer("X", domain.ProductTypeSME, 300), "B"))
	p := newPersister(s, PersisterOptions{OptimisticLocking: true})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{
		planned("X", "A", domain.ProductTypeSME, 1),
		planned("Z", "B", domain.ProductTypeSME, 1),
	})

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"Z"}, s.Officer("B").Roster)
	assert.Equal(t, int64(3), s.Officer("B").Version)
}

func TestAssignmentPersister_MoveRestoresPreviousOwnerOnFailure(t *testing.T) {
	s := smeOfficerStore()
	s.PutOfficer(officer("B", domain.ProductTypeSME, 1, "X"))
	s.PutCustomer(owned(customer("X", domain.ProductTypeSME, 300), "B"))
	customers := &faultyCustomers{
		CustomerRepository: s.Customers(),
		failAssign:         func(string) error { return errors.New("connection reset") },
	}
	p := NewAssignmentPersister(s.Officers(), customers, nil, logger.NewNopLogger(),
		PersisterOptions{OptimisticLocking: true})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{planned("X", "A", domain.ProductTypeSME, 1)})

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, domain.ErrCodeStoreUnavailable, result.Outcomes[0].Code)
	assert.Empty(t, s.Officer("A").Roster)
	assert.Equal(t, []string{"X"}, s.Officer("B").Roster)
	assert.Equal(t, "B", *s.Customer("X").OwnerID)
}

func TestAssignmentPersister_InactiveOfficer(t *testing.T) {
	s := smeOfficerStore()
	inactive := officer("A", domain.ProductTypeSME, 2)
	inactive.Active = false
	s.PutOfficer(inactive)
	p := newPersister(s, PersisterOptions{})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{planned("X", "A", domain.ProductTypeSME, 0)})

	assert.Equal(t, domain.ErrCodeOfficerInactive, result.Outcomes[0].Code)
}

func TestAssignmentPersister_VersionConflict(t *testing.T) {
	s := smeOfficerStore()
	p := newPersister(s, PersisterOptions{OptimisticLocking: true})
	pa := planned("X", "A", domain.ProductTypeSME, 1)

	// another writer touches A after the plan was made
	_, _, err := s.Officers().AddToRoster(context.Background(), ports.RosterChange{OfficerID: "A", CustomerID: "elsewhere"})
	require.NoError(t, err)

	result := p.Persist(context.Background(), []domain.PlannedAssignment{pa, planned("Y", "B", domain.ProductTypeSME, 1)})

	assert.Equal(t, domain.ErrCodeVersionConflict, result.Outcomes[0].Code)
	assert.True(t, result.Outcomes[1].Success)
	assert.Nil(t, s.Customer("X").OwnerID)
	assert.Equal(t, []string{"elsewhere"}, s.Officer("A").Roster)
}

func TestAssignmentPersister_CompensatesFailedCustomerWrite(t *testing.T) {
	s := smeOfficerStore()
	customers := &faultyCustomers{
		CustomerRepository: s.Customers(),
		failAssign: func(id string) error {
			if id == "X" {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	p := NewAssignmentPersister(s.Officers(), customers, nil, logger.NewNopLogger(),
		PersisterOptions{MirrorExternalLoad: true, OptimisticLocking: true})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{
		planned("X", "A", domain.ProductTypeSME, 1),
		planned("Z", "A", domain.ProductTypeSME, 1),
	})

	require.Len(t, result.Outcomes, 2)
	assert.False(t, result.Outcomes[0].Success)
	assert.Equal(t, domain.ErrCodeStoreUnavailable, result.Outcomes[0].Code)
	assert.Equal(t, domain.ErrStoreUnavailable.Message, result.Outcomes[0].Reason)
	assert.True(t, result.Outcomes[1].Success)

	a := s.Officer("A")
	assert.Equal(t, []string{"Z"}, a.Roster)
	assert.Equal(t, 1, a.Capacity.ExternalLoad)
	assert.Nil(t, s.Customer("X").OwnerID)
}

func TestAssignmentPersister_PartialWriteWhenCompensationFails(t *testing.T) {
	s := smeOfficerStore()
	customers := &faultyCustomers{
		CustomerRepository: s.Customers(),
		failAssign:         func(string) error { return errors.New("connection reset") },
	}
	officers := &faultyOfficers{
		OfficerRepository: s.Officers(),
		failRemove:        func(ports.RosterChange) error { return errors.New("connection reset") },
	}
	p := NewAssignmentPersister(officers, customers, nil, logger.NewNopLogger(), PersisterOptions{})

	result := p.Persist(context.Background(), []domain.PlannedAssignment{planned("X", "A", domain.ProductTypeSME, 0)})

	assert.Equal(t, domain.ErrCodePartialWrite, result.Outcomes[0].Code)
	assert.Equal(t, []string{"X"}, s.Officer("A").Roster)
}

func TestAssignmentPersister_PublishesAssignedEvents(t *testing.T) {
	s := smeOfficerStore()
	events := new(MockEventPublisher)
	events.On("Publish", mock.Anything, ports.EventTypeCustomerAssigned, mock.MatchedBy(func(e ports.Envelope) bool {
		data, ok := e.Data.(ports.CustomerAssignedEvent)
		return ok && data.CustomerID == "X" && data.OfficerID == "A" && e.Meta.Producer == ports.EventProducer
	})).Return(errors.New("broker down")).Once()

	p := NewAssignmentPersister(s.Officers(), s.Customers(), events, logger.NewNopLogger(), PersisterOptions{})
	result := p.Persist(context.Background(), []domain.PlannedAssignment{planned("X", "A", domain.ProductTypeSME, 0)})

	assert.Equal(t, 1, result.Succeeded)
	events.AssertExpectations(t)
}
