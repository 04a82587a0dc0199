package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/collectdesk/collectdesk/internal/adapter/memory"
	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// reassignStore has C owned by A; B serves SME, M serves mortgages
func reassignStore() *memory.Store {
	s := memory.NewStore()
	s.PutOfficer(officer("A", domain.ProductTypeSME, 5, "C"))
	s.PutOfficer(officer("B", domain.ProductTypeSME, 5))
	s.PutOfficer(officer("M", domain.ProductTypeMortgage, 5))
	s.PutCustomer(owned(customer("C", domain.ProductTypeSME, 50), "A"))
	return s
}

func newReassigner(officers ports.OfficerRepository, customers ports.CustomerRepository) *ReassignmentService {
	return NewReassignmentService(officers, customers, nil, logger.NewNopLogger(),
		PersisterOptions{MirrorExternalLoad: true, OptimisticLocking: true})
}

func TestReassignmentService_MovesCustomer(t *testing.T) {
	s := reassignStore()
	svc := newReassigner(s.Officers(), s.Customers())

	outcome, err := svc.Reassign(context.Background(), domain.ReassignRequest{
		CustomerID:  "C",
		OfficerID:   "B",
		Reason:      "workload rebalance",
		RequestedBy: "supervisor-1",
	})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Empty(t, s.Officer("A").Roster)
	assert.Equal(t, []string{"C"}, s.Officer("B").Roster)

	c := s.Customer("C")
	require.NotNil(t, c.OwnerID)
	assert.Equal(t, "B", *c.OwnerID)
	require.Len(t, c.History, 2)
	last := c.History[1]
	assert.Equal(t, "B", last.OfficerID)
	require.NotNil(t, last.PreviousOfficerID)
	assert.Equal(t, "A", *last.PreviousOfficerID)
	assert.Equal(t, "supervisor-1", last.AssignedBy)
	assert.Equal(t, "workload rebalance", last.Reason)
}

func TestReassignmentService_DefaultReason(t *testing.T) {
	s := reassignStore()
	svc := newReassigner(s.Officers(), s.Customers())

	_, err := svc.Reassign(context.Background(), domain.ReassignRequest{CustomerID: "C", OfficerID: "B", RequestedBy: "u"})

	require.NoError(t, err)
	assert.Equal(t, DefaultReassignReason, s.Customer("C").History[1].Reason)
}

func TestReassignmentService_SpecializationMismatchChangesNothing(t *testing.T) {
	s := reassignStore()
	svc := newReassigner(s.Officers(), s.Customers())

	_, err := svc.Reassign(context.Background(), domain.ReassignRequest{CustomerID: "C", OfficerID: "M", RequestedBy: "u"})

	assert.True(t, errors.Is(err, domain.ErrSpecializationMismatch))
	assert.Equal(t, []string{"C"}, s.Officer("A").Roster)
	assert.Empty(t, s.Officer("M").Roster)
	assert.Equal(t, "A", *s.Customer("C").OwnerID)
	assert.Len(t, s.Customer("C").History, 1)
}

func TestReassignmentService_Validation(t *testing.T) {
	s := reassignStore()
	inactive := officer("I", domain.ProductTypeSME, 5)
	inactive.Active = false
	s.PutOfficer(inactive)
	svc := newReassigner(s.Officers(), s.Customers())

	tests := []struct {
		name string
		req  domain.ReassignRequest
		want error
	}{
		{"missing customer id", domain.ReassignRequest{OfficerID: "B", RequestedBy: "u"}, domain.ErrInvalidRequest},
		{"missing officer id", domain.ReassignRequest{CustomerID: "C", RequestedBy: "u"}, domain.ErrInvalidRequest},
		{"unknown customer", domain.ReassignRequest{CustomerID: "nope", OfficerID: "B", RequestedBy: "u"}, domain.ErrCustomerNotFound},
		{"unknown officer", domain.ReassignRequest{CustomerID: "C", OfficerID: "nope", RequestedBy: "u"}, domain.ErrOfficerNotFound},
		{"inactive officer", domain.ReassignRequest{CustomerID: "C", OfficerID: "I", RequestedBy: "u"}, domain.ErrOfficerInactive},
		{"current owner", domain.ReassignRequest{CustomerID: "C", OfficerID: "A", RequestedBy: "u"}, domain.ErrAlreadyAssigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Reassign(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReassignmentService_UnownedCustomer(t *testing.T) {
	s := reassignStore()
	s.PutCustomer(customer("U", domain.ProductTypeSME, 10))
	svc := newReassigner(s.Officers(), s.Customers())

	_, err := svc.Reassign(context.Background(), domain.ReassignRequest{CustomerID: "U", OfficerID: "B", RequestedBy: "u"})

	require.NoError(t, err)
	assert.Equal(t, []string{"U"}, s.Officer("B").Roster)
	assert.Nil(t, s.Customer("U").History[0].PreviousOfficerID)
}

func TestReassignmentService_RollsBackWhenAddFails(t *testing.T) {
	s := reassignStore()
	officers := &faultyOfficers{
		OfficerRepository: s.Officers(),
		failAdd: func(c ports.RosterChange) error {
			if c.OfficerID == "B" {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	svc := newReassigner(officers, s.Customers())

	_, err := svc.Reassign(context.Background(), domain.ReassignRequest{CustomerID: "C", OfficerID: "B", RequestedBy: "u"})

	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Equal(t, []string{"C"}, s.Officer("A").Roster)
	assert.Empty(t, s.Officer("B").Roster)
	assert.Equal(t, "A", *s.Customer("C").OwnerID)
}

func TestReassignmentService_RollsBackWhenOwnerWriteFails(t *testing.T) {
	s := reassignStore()
	customers := &faultyCustomers{
		CustomerRepository: s.Customers(),
		failAssign:         func(string) error { return domain.ErrVersionConflict },
	}
	svc := newReassigner(s.Officers(), customers)

	_, err := svc.Reassign(context.Background(), domain.ReassignRequest{CustomerID: "C", OfficerID: "B", RequestedBy: "u"})

	assert.True(t, errors.Is(err, domain.ErrVersionConflict))
	assert.Equal(t, []string{"C"}, s.Officer("A").Roster)
	assert.Empty(t, s.Officer("B").Roster)
	assert.Equal(t, 0, s.Officer("B").Capacity.ExternalLoad)
	assert.Len(t, s.Customer("C").History, 1)
}

func TestReassignmentService_PartialWriteWhenRollbackFails(t *testing.T) {
	s := reassignStore()
	customers := &faultyCustomers{
		CustomerRepository: s.Customers(),
		failAssign:         func(string) error { return errors.New("connection reset") },
	}
	officers := &faultyOfficers{OfficerRepository: s.Officers()}
	svc := newReassigner(officers, customers)

	// the first add (to B) succeeds; restoring A fails
	officers.failAdd = func(c ports.RosterChange) error {
		if c.OfficerID == "A" {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := svc.Reassign(context.Background(), domain.ReassignRequest{CustomerID: "C", OfficerID: "B", RequestedBy: "u"})

	assert.True(t, errors.Is(err, domain.ErrPartialWrite))
	assert.Empty(t, s.Officer("A").Roster)
	assert.Empty(t, s.Officer("B").Roster)
}

func TestReassignmentService_VersionConflictOnTarget(t *testing.T) {
	s := reassignStore()
	officers := &faultyOfficers{
		OfficerRepository: s.Officers(),
		failAdd: func(c ports.RosterChange) error {
			if c.OfficerID == "B" && c.ExpectedVersion != 0 {
				// simulate a concurrent write landing between read and write
				_, _, err := s.Officers().AddToRoster(context.Background(), ports.RosterChange{OfficerID: "B", CustomerID: "other"})
				return err
			}
			return nil
		},
	}
	svc := newReassigner(officers, s.Customers())

	_, err := svc.Reassign(context.Background(), domain.ReassignRequest{CustomerID: "C", OfficerID: "B", RequestedBy: "u"})

	assert.True(t, errors.Is(err, domain.ErrVersionConflict))
	assert.Equal(t, []string{"C"}, s.Officer("A").Roster)
	assert.Equal(t, []string{"other"}, s.Officer("B").Roster)
}

func TestReassignmentService_PublishesReassignedEvent(t *testing.T) {
	s := reassignStore()
	events := new(MockEventPublisher)
	events.On("Publish", mock.Anything, ports.EventTypeCustomerReassigned, mock.MatchedBy(func(e ports.Envelope) bool {
		data, ok := e.Data.(ports.CustomerAssignedEvent)
		return ok && data.PreviousOfficerID != nil && *data.PreviousOfficerID == "A" && data.OfficerID == "B"
	})).Return(nil).Once()

	svc := NewReassignmentService(s.Officers(), s.Customers(), events, logger.NewNopLogger(), PersisterOptions{})
	_, err := svc.Reassign(context.Background(), domain.ReassignRequest{CustomerID: "C", OfficerID: "B", RequestedBy: "u"})

	require.NoError(t, err)
	events.AssertExpectations(t)
}
