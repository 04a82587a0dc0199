package ports

import (
	"context"
	"errors"
	"time"

	"github.com/collectdesk/collectdesk/internal/domain"
)

// AssignmentService is the caller contract of the assignment engine.
// Implemented by usecase.AssignmentUseCase.
type AssignmentService interface {
	RunBatch(ctx context.Context, req domain.BatchRequest) (*domain.BatchResult, error)
	Reassign(ctx context.Context, req domain.ReassignRequest) (*domain.AssignmentOutcome, error)
	Audit(ctx context.Context) (*domain.AuditReport, error)
	Stats(ctx context.Context) (*domain.AssignmentStats, error)
}

// ErrLockHeld is returned by Locker.Acquire when another holder owns the key
var ErrLockHeld = errors.New("lock is held by another process")

// Locker provides mutual exclusion across processes
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock. Extend resets its expiry to ttl from now and fails
// once the lock has been lost.
type Lock interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Principal identifies the caller of an operation
type Principal struct {
	Subject string
	Role    string
}

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	VerifyToken(token string) (*Principal, error)
}
