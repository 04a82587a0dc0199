package ports

import (
	"context"

	"github.com/collectdesk/collectdesk/internal/domain"
)

// RosterChange describes one mutation of an officer's roster
type RosterChange struct {
	OfficerID  string
	CustomerID string
	// LoadDelta is applied to the external load only when the roster changes
	LoadDelta int
	// ExpectedVersion rejects the write with domain.ErrVersionConflict when
	// the stored version differs. Zero disables the check.
	ExpectedVersion int64
}

// OfficerRepository defines the interface for officer persistence
type OfficerRepository interface {
	// List retrieves officers matching the filter, ordered by id
	List(ctx context.Context, filter domain.OfficerFilter) ([]*domain.Officer, error)

	// FindByID retrieves an officer by its ID
	FindByID(ctx context.Context, id string) (*domain.Officer, error)

	// AddToRoster adds the customer to the roster. Adding a customer that is
	// already present changes nothing and reports changed=false.
	AddToRoster(ctx context.Context, change RosterChange) (officer *domain.Officer, changed bool, err error)

	// RemoveFromRoster removes the customer from the roster. Removing an
	// absent customer changes nothing and reports changed=false.
	RemoveFromRoster(ctx context.Context, change RosterChange) (officer *domain.Officer, changed bool, err error)
}

// CustomerRepository defines the interface for customer account persistence
type CustomerRepository interface {
	// ListBacklog retrieves eligible accounts ordered by overdue amount
	// descending, then outstanding balance descending, then id
	ListBacklog(ctx context.Context, filter domain.BacklogFilter) ([]*domain.Customer, error)

	// FindByID retrieves a customer, including its assignment history
	FindByID(ctx context.Context, id string) (*domain.Customer, error)

	// Assign sets the owner to entry.OfficerID and appends entry to the
	// history in one step. The write is rejected with
	// domain.ErrVersionConflict when the current owner is not expectedOwner.
	Assign(ctx context.Context, customerID string, expectedOwner *string, entry domain.AssignmentHistoryEntry) error

	// ListOwnership returns the owner pointer of every customer
	ListOwnership(ctx context.Context) ([]domain.OwnershipPointer, error)

	// Coverage returns total and assigned active accounts per product type
	Coverage(ctx context.Context) ([]domain.ProductTypeCoverage, error)
}
