package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// DefaultReassignReason is recorded when the caller gives no reason
const DefaultReassignReason = "manual reassignment"

// ReassignmentService moves a single customer between officers
type ReassignmentService struct {
	officers  ports.OfficerRepository
	customers ports.CustomerRepository
	events    ports.EventPublisher
	logger    logger.Logger
	opts      PersisterOptions
	now       func() time.Time
}

// NewReassignmentService creates a new reassignment service
func NewReassignmentService(
	officers ports.OfficerRepository,
	customers ports.CustomerRepository,
	events ports.EventPublisher,
	log logger.Logger,
	opts PersisterOptions,
) *ReassignmentService {
	return &ReassignmentService{
		officers:  officers,
		customers: customers,
		events:    events,
		logger:    log.WithFields(map[string]interface{}{"component": "reassignment"}),
		opts:      opts,
		now:       time.Now,
	}
}

// Reassign releases the customer from its current officer, adds it to the
// new officer, then moves the owner pointer and appends a history entry.
// A returned error means no change is visible: failed steps are rolled back,
// and a rollback that itself fails is reported as domain.ErrPartialWrite.
func (s *ReassignmentService) Reassign(ctx context.Context, req domain.ReassignRequest) (*domain.AssignmentOutcome, error) {
	if req.CustomerID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("customer ID is required")
	}
	if req.OfficerID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("officer ID is required")
	}
	if req.RequestedBy == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("requesting principal is required")
	}
	if req.Reason == "" {
		req.Reason = DefaultReassignReason
	}

	customer, err := s.customers.FindByID(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	officer, err := s.officers.FindByID(ctx, req.OfficerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get officer: %w", err)
	}
	if !officer.Active {
		return nil, domain.ErrOfficerInactive
	}
	if !officer.Serves(customer.ProductType) {
		return nil, domain.ErrSpecializationMismatch.WithMessage(
			"officer specialization %s does not match product type %s", officer.Specialization, customer.ProductType)
	}
	if customer.IsOwnedBy(officer.ID) {
		return nil, domain.ErrAlreadyAssigned.WithMessage("customer already assigned to officer %s", officer.ID)
	}

	var previous *string
	if customer.OwnerID != nil {
		owner := *customer.OwnerID
		previous = &owner
	}
	delta := loadDelta(s.opts.MirrorExternalLoad)

	removed := false
	if previous != nil {
		_, changed, err := s.officers.RemoveFromRoster(ctx, ports.RosterChange{
			OfficerID:  *previous,
			CustomerID: customer.ID,
			LoadDelta:  -delta,
		})
		switch {
		case errors.Is(err, domain.ErrOfficerNotFound):
			s.logger.Warn(ctx, "Previous owner no longer exists", map[string]interface{}{
				"customer_id": customer.ID,
				"officer_id":  *previous,
			})
		case err != nil:
			return nil, fmt.Errorf("failed to release customer from officer %s: %w", *previous, err)
		default:
			removed = changed
		}
	}

	addChange := ports.RosterChange{
		OfficerID:  officer.ID,
		CustomerID: customer.ID,
		LoadDelta:  delta,
	}
	if s.opts.OptimisticLocking {
		addChange.ExpectedVersion = officer.Version
	}
	_, added, err := s.officers.AddToRoster(ctx, addChange)
	if err != nil {
		return nil, s.rollback(ctx, customer.ID, previous, removed, "", err)
	}

	entry := domain.NewAssignmentHistoryEntry(officer.ID, previous, req.RequestedBy, req.Reason, s.now())
	if err := s.customers.Assign(ctx, customer.ID, previous, entry); err != nil {
		addedTo := ""
		if added {
			addedTo = officer.ID
		}
		return nil, s.rollback(ctx, customer.ID, previous, removed, addedTo, err)
	}

	s.logger.Info(ctx, "Customer reassigned", map[string]interface{}{
		"customer_id":      customer.ID,
		"officer_id":       officer.ID,
		"previous_officer": previous,
		"requested_by":     req.RequestedBy,
	})

	publish(ctx, s.events, s.logger, ports.EventTypeCustomerReassigned, ports.CustomerAssignedEvent{
		CustomerID:        customer.ID,
		OfficerID:         officer.ID,
		PreviousOfficerID: previous,
		ProductType:       string(customer.ProductType),
		AssignedBy:        entry.AssignedBy,
		Reason:            entry.Reason,
		AssignedAt:        entry.AssignedAt,
	})

	outcome := domain.Succeeded(customer.ID, officer.ID)
	return &outcome, nil
}

// rollback undoes the roster writes of a failed reassignment: the customer
// is removed from addedTo (when set) and re-added to previous (when it was
// removed from it).
func (s *ReassignmentService) rollback(ctx context.Context, customerID string, previous *string, removed bool, addedTo string, cause error) error {
	delta := loadDelta(s.opts.MirrorExternalLoad)
	var failures []error

	if addedTo != "" {
		if _, _, err := s.officers.RemoveFromRoster(ctx, ports.RosterChange{
			OfficerID:  addedTo,
			CustomerID: customerID,
			LoadDelta:  -delta,
		}); err != nil {
			failures = append(failures, fmt.Errorf("remove from officer %s: %w", addedTo, err))
		}
	}

	if removed && previous != nil {
		if _, _, err := s.officers.AddToRoster(ctx, ports.RosterChange{
			OfficerID:  *previous,
			CustomerID: customerID,
			LoadDelta:  delta,
		}); err != nil {
			failures = append(failures, fmt.Errorf("restore to officer %s: %w", *previous, err))
		}
	}

	fields := map[string]interface{}{
		"customer_id":      customerID,
		"new_officer":      addedTo,
		"previous_officer": previous,
	}

	if len(failures) > 0 {
		joined := errors.Join(append([]error{cause}, failures...)...)
		s.logger.Error(ctx, "Reassignment rollback failed; roster drift left behind", joined, fields)
		return domain.ErrPartialWrite.WithCause(joined)
	}

	s.logger.Warn(ctx, "Reassignment rolled back", fields)

	var de *domain.DomainError
	if errors.As(cause, &de) {
		return cause
	}
	return domain.ErrStoreUnavailable.WithCause(cause)
}
