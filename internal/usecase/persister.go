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

// PersisterOptions tunes how planned assignments are written
type PersisterOptions struct {
	MirrorExternalLoad bool
	OptimisticLocking  bool
}

// AssignmentPersister applies planned assignments one at a time. A failing
// record never aborts the batch; there is no cross-record transaction and no
// automatic retry.
type AssignmentPersister struct {
	officers  ports.OfficerRepository
	customers ports.CustomerRepository
	events    ports.EventPublisher
	logger    logger.Logger
	opts      PersisterOptions
	now       func() time.Time
}

// NewAssignmentPersister creates a new assignment persister
func NewAssignmentPersister(
	officers ports.OfficerRepository,
	customers ports.CustomerRepository,
	events ports.EventPublisher,
	log logger.Logger,
	opts PersisterOptions,
) *AssignmentPersister {
	return &AssignmentPersister{
		officers:  officers,
		customers: customers,
		events:    events,
		logger:    log.WithFields(map[string]interface{}{"component": "assignment_persister"}),
		opts:      opts,
		now:       time.Now,
	}
}

// Persist writes each planned assignment independently and reports a
// per-record outcome plus aggregate counts.
func (p *AssignmentPersister) Persist(ctx context.Context, planned []domain.PlannedAssignment) *domain.PersistResult {
	result := &domain.PersistResult{Outcomes: make([]domain.AssignmentOutcome, 0, len(planned))}
	bumps := make(batchVersions)

	for _, pa := range planned {
		outcome := p.persistOne(ctx, pa, bumps)
		if !outcome.Success {
			p.logger.Warn(ctx, "Assignment failed", map[string]interface{}{
				"customer_id": pa.CustomerID,
				"officer_id":  pa.OfficerID,
				"reason":      outcome.Reason,
				"code":        outcome.Code,
			})
		}
		result.Record(outcome)
	}

	return result
}

// batchVersions counts the version increments this batch itself caused on
// each officer, so that later records for the same officer expect the
// plan-time version plus our own writes.
type batchVersions map[string]int64

func (v batchVersions) expect(officerID string, planned int64) int64 {
	if planned == 0 {
		return 0
	}
	return planned + v[officerID]
}

func (v batchVersions) record(officerID string, changed bool) {
	if changed {
		v[officerID]++
	}
}

func (p *AssignmentPersister) persistOne(ctx context.Context, pa domain.PlannedAssignment, bumps batchVersions) domain.AssignmentOutcome {
	officer, err := p.officers.FindByID(ctx, pa.OfficerID)
	if err != nil {
		return p.fail(ctx, pa, err)
	}
	if !officer.Serves(pa.ProductType) {
		return domain.Failed(pa.CustomerID, pa.OfficerID, domain.ErrSpecializationMismatch.WithMessage(
			"officer specialization %s does not match product type %s", officer.Specialization, pa.ProductType))
	}
	if !officer.Active {
		return domain.Failed(pa.CustomerID, pa.OfficerID, domain.ErrOfficerInactive)
	}

	customer, err := p.customers.FindByID(ctx, pa.CustomerID)
	if err != nil {
		return p.fail(ctx, pa, err)
	}
	if customer.ProductType != pa.ProductType {
		return domain.Failed(pa.CustomerID, pa.OfficerID, domain.ErrSpecializationMismatch.WithMessage(
			"customer product type changed to %s", customer.ProductType))
	}

	// Already in place: nothing to write.
	if customer.IsOwnedBy(officer.ID) && officer.HasCustomer(customer.ID) {
		return domain.Succeeded(pa.CustomerID, pa.OfficerID)
	}

	var expectedVersion int64
	if p.opts.OptimisticLocking {
		expectedVersion = bumps.expect(officer.ID, pa.OfficerVersion)
		if expectedVersion != 0 && officer.Version != expectedVersion {
			return domain.Failed(pa.CustomerID, pa.OfficerID, domain.ErrVersionConflict)
		}
	}

	delta := loadDelta(p.opts.MirrorExternalLoad)
	updated, added, err := p.officers.AddToRoster(ctx, ports.RosterChange{
		OfficerID:       officer.ID,
		CustomerID:      customer.ID,
		LoadDelta:       delta,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return p.fail(ctx, pa, err)
	}
	bumps.record(officer.ID, added)

	// Owner already points at this officer; the roster was only repaired.
	if customer.IsOwnedBy(officer.ID) {
		return domain.Succeeded(pa.CustomerID, pa.OfficerID)
	}

	var previous *string
	released := false
	if customer.OwnerID != nil {
		owner := *customer.OwnerID
		previous = &owner
		released, err = p.release(ctx, owner, customer.ID, delta, bumps)
		if err != nil {
			return p.undo(ctx, pa, officer.ID, added, updated, "", false, delta, bumps, err)
		}
	}

	reason := domain.SystemAssignmentReason
	eventType := ports.EventTypeCustomerAssigned
	if previous != nil {
		reason = domain.SystemReassignmentReason
		eventType = ports.EventTypeCustomerReassigned
	}

	entry := domain.NewAssignmentHistoryEntry(officer.ID, previous, pa.RequestedBy, reason, p.now())
	if err := p.customers.Assign(ctx, customer.ID, previous, entry); err != nil {
		prev := ""
		if previous != nil {
			prev = *previous
		}
		return p.undo(ctx, pa, officer.ID, added, updated, prev, released, delta, bumps, err)
	}

	publish(ctx, p.events, p.logger, eventType, ports.CustomerAssignedEvent{
		CustomerID:        customer.ID,
		OfficerID:         officer.ID,
		PreviousOfficerID: previous,
		ProductType:       string(pa.ProductType),
		AssignedBy:        entry.AssignedBy,
		Reason:            entry.Reason,
		AssignedAt:        entry.AssignedAt,
	})

	return domain.Succeeded(pa.CustomerID, pa.OfficerID)
}

// release takes an owned customer off its previous officer's roster. A
// previous officer that no longer exists has nothing to release.
func (p *AssignmentPersister) release(ctx context.Context, officerID, customerID string, delta int, bumps batchVersions) (bool, error) {
	_, removed, err := p.officers.RemoveFromRoster(ctx, ports.RosterChange{
		OfficerID:  officerID,
		CustomerID: customerID,
		LoadDelta:  -delta,
	})
	if errors.Is(err, domain.ErrOfficerNotFound) {
		p.logger.Warn(ctx, "Previous owner no longer exists", map[string]interface{}{
			"customer_id": customerID,
			"officer_id":  officerID,
		})
		return false, nil
	}
	if err != nil {
		return false, err
	}
	bumps.record(officerID, removed)
	return removed, nil
}

// undo reverts the roster writes of a record whose later step failed: the
// customer comes off the planned officer (when it was added there) and goes
// back onto the previous owner (when it was released from it).
func (p *AssignmentPersister) undo(
	ctx context.Context,
	pa domain.PlannedAssignment,
	officerID string,
	added bool,
	updated *domain.Officer,
	previous string,
	released bool,
	delta int,
	bumps batchVersions,
	cause error,
) domain.AssignmentOutcome {
	var failures []error

	if added {
		if err := p.compensate(ctx, officerID, pa.CustomerID, delta, updated.Version, bumps); err != nil {
			failures = append(failures, fmt.Errorf("remove from officer %s: %w", officerID, err))
		}
	}
	if released {
		_, restored, err := p.officers.AddToRoster(ctx, ports.RosterChange{
			OfficerID:  previous,
			CustomerID: pa.CustomerID,
			LoadDelta:  delta,
		})
		if err != nil {
			failures = append(failures, fmt.Errorf("restore to officer %s: %w", previous, err))
		}
		bumps.record(previous, restored)
	}

	if len(failures) > 0 {
		joined := errors.Join(failures...)
		p.logger.Error(ctx, "Failed to roll back roster changes", joined, map[string]interface{}{
			"customer_id":      pa.CustomerID,
			"officer_id":       officerID,
			"previous_officer": previous,
		})
		return domain.Failed(pa.CustomerID, pa.OfficerID, domain.ErrPartialWrite.WithCause(errors.Join(cause, joined)))
	}
	return p.fail(ctx, pa, cause)
}

// compensate removes a roster entry added for a customer write that failed
func (p *AssignmentPersister) compensate(ctx context.Context, officerID, customerID string, delta int, version int64, bumps batchVersions) error {
	change := ports.RosterChange{
		OfficerID:  officerID,
		CustomerID: customerID,
		LoadDelta:  -delta,
	}
	if p.opts.OptimisticLocking {
		change.ExpectedVersion = version
	}

	_, removed, err := p.officers.RemoveFromRoster(ctx, change)
	if err != nil {
		return err
	}
	bumps.record(officerID, removed)
	return nil
}

func (p *AssignmentPersister) fail(ctx context.Context, pa domain.PlannedAssignment, err error) domain.AssignmentOutcome {
	if domain.CodeOf(err) == domain.ErrCodeStoreUnavailable {
		p.logger.Error(ctx, "Storage error while persisting assignment", err, map[string]interface{}{
			"customer_id": pa.CustomerID,
			"officer_id":  pa.OfficerID,
		})
	}
	return domain.Failed(pa.CustomerID, pa.OfficerID, err)
}
