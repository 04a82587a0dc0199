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

// Lock keys
const (
	BatchLockKey          = "collectdesk:lock:batch"
	customerLockKeyPrefix = "collectdesk:lock:customer:"
)

// Options configures the assignment use case
type Options struct {
	DefaultBatchLimit  int
	MaxBatchLimit      int
	MirrorExternalLoad bool
	OptimisticLocking  bool
	SystemActor        string
	LockTTL            time.Duration
}

// AssignmentUseCase handles the assignment engine's operations
type AssignmentUseCase struct {
	directory   *OfficerDirectory
	backlog     *BacklogReader
	distributor *Distributor
	persister   *AssignmentPersister
	auditor     *ConsistencyAuditor
	reassigner  *ReassignmentService
	stats       *StatsAggregator

	locker ports.Locker
	events ports.EventPublisher
	logger logger.Logger
	opts   Options
}

var _ ports.AssignmentService = (*AssignmentUseCase)(nil)

// NewAssignmentUseCase creates a new assignment use case. locker and events
// may be nil.
func NewAssignmentUseCase(
	officers ports.OfficerRepository,
	customers ports.CustomerRepository,
	locker ports.Locker,
	events ports.EventPublisher,
	log logger.Logger,
	opts Options,
) *AssignmentUseCase {
	if opts.SystemActor == "" {
		opts.SystemActor = "system"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	persistOpts := PersisterOptions{
		MirrorExternalLoad: opts.MirrorExternalLoad,
		OptimisticLocking:  opts.OptimisticLocking,
	}

	return &AssignmentUseCase{
		directory:   NewOfficerDirectory(officers),
		backlog:     NewBacklogReader(customers, opts.DefaultBatchLimit, opts.MaxBatchLimit),
		distributor: NewDistributor(),
		persister:   NewAssignmentPersister(officers, customers, events, log, persistOpts),
		auditor:     NewConsistencyAuditor(officers, customers),
		reassigner:  NewReassignmentService(officers, customers, events, log, persistOpts),
		stats:       NewStatsAggregator(officers, customers),
		locker:      locker,
		events:      events,
		logger:      log,
		opts:        opts,
	}
}

// RunBatch reads the available officers and the backlog, plans a
// distribution, and persists it. Only one batch runs at a time.
func (uc *AssignmentUseCase) RunBatch(ctx context.Context, req domain.BatchRequest) (*domain.BatchResult, error) {
	if req.RequestedBy == "" {
		req.RequestedBy = uc.opts.SystemActor
	}
	if req.Limit < 0 {
		return nil, domain.ErrInvalidRequest.WithMessage("limit must not be negative")
	}

	release, err := uc.acquire(ctx, BatchLockKey, domain.ErrBatchInProgress)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()

	pool, err := uc.directory.Available(ctx, req.Specialization)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}

	backlog, err := uc.backlog.Backlog(ctx, domain.BacklogFilter{
		ProductType:  req.Specialization,
		Limit:        req.Limit,
		ExcludeOwned: req.ExcludeOwned,
	})
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}

	plan := uc.distributor.Plan(PlanRequest{
		Backlog:        backlog,
		Pool:           pool,
		Specialization: req.Specialization,
		RequestedBy:    req.RequestedBy,
	})

	persisted := uc.persister.Persist(ctx, plan.Assignments)

	result := &domain.BatchResult{
		PlannedCount:  len(plan.Assignments),
		Outcomes:      persisted.Outcomes,
		SkippedGroups: plan.Skipped,
		Succeeded:     persisted.Succeeded,
		Failed:        persisted.Failed,
		StartedAt:     start.UTC(),
		FinishedAt:    time.Now().UTC(),
	}

	fields := map[string]interface{}{
		"requested_by":   req.RequestedBy,
		"backlog_size":   len(backlog),
		"planned":        result.PlannedCount,
		"succeeded":      result.Succeeded,
		"failed":         result.Failed,
		"skipped_groups": len(result.SkippedGroups),
	}
	logger.LogPerformance(ctx, uc.logger, "assignment_batch", time.Since(start), fields)

	publish(ctx, uc.events, uc.logger, ports.EventTypeBatchCompleted, ports.BatchCompletedEvent{
		RequestedBy:   req.RequestedBy,
		PlannedCount:  result.PlannedCount,
		Succeeded:     result.Succeeded,
		Failed:        result.Failed,
		SkippedGroups: len(result.SkippedGroups),
		DurationMs:    result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	})

	return result, nil
}

// Reassign moves one customer to the given officer
func (uc *AssignmentUseCase) Reassign(ctx context.Context, req domain.ReassignRequest) (*domain.AssignmentOutcome, error) {
	if req.RequestedBy == "" {
		req.RequestedBy = uc.opts.SystemActor
	}
	if req.CustomerID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("customer ID is required")
	}

	release, err := uc.acquire(ctx, customerLockKeyPrefix+req.CustomerID,
		domain.ErrVersionConflict.WithMessage("customer %s is being reassigned", req.CustomerID))
	if err != nil {
		return nil, err
	}
	defer release()

	return uc.reassigner.Reassign(ctx, req)
}

// Audit reports ownership inconsistencies without changing anything
func (uc *AssignmentUseCase) Audit(ctx context.Context) (*domain.AuditReport, error) {
	report, err := uc.auditor.Audit(ctx)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}

	if !report.Clean() {
		uc.logger.Warn(ctx, "Ownership inconsistencies detected", map[string]interface{}{
			"multi_owner_defects":  len(report.MultiOwnerDefects),
			"roster_drift_defects": len(report.RosterDriftDefects),
			"capacity_overruns":    len(report.CapacityOverruns),
		})
	}

	publish(ctx, uc.events, uc.logger, ports.EventTypeAuditCompleted, ports.AuditCompletedEvent{
		MultiOwnerDefects:  len(report.MultiOwnerDefects),
		RosterDriftDefects: len(report.RosterDriftDefects),
		CapacityOverruns:   len(report.CapacityOverruns),
	})

	return report, nil
}

// Stats returns assignment coverage and officer load
func (uc *AssignmentUseCase) Stats(ctx context.Context) (*domain.AssignmentStats, error) {
	stats, err := uc.stats.Stats(ctx)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}
	return stats, nil
}

// acquire takes the lock for key, translating contention into busy. The
// returned release func never fails the caller.
func (uc *AssignmentUseCase) acquire(ctx context.Context, key string, busy error) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}

	lock, err := uc.locker.Acquire(ctx, key, uc.opts.LockTTL)
	if errors.Is(err, ports.ErrLockHeld) {
		return nil, busy
	}
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(fmt.Errorf("failed to acquire lock %s: %w", key, err))
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go uc.keepAlive(ctx, key, lock, stop, done)

	return func() {
		close(stop)
		<-done
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			uc.logger.Warn(ctx, "Failed to release lock", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}, nil
}

// keepAlive extends a held lock every third of its TTL until stop is closed,
// so a batch that outlives LockTTL keeps the lock. It gives up after the
// first failed extension.
func (uc *AssignmentUseCase) keepAlive(ctx context.Context, key string, lock ports.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := uc.opts.LockTTL / 3
	if interval <= 0 {
		interval = uc.opts.LockTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := lock.Extend(context.WithoutCancel(ctx), uc.opts.LockTTL); err != nil {
				uc.logger.Error(ctx, "Failed to extend lock", err, map[string]interface{}{"key": key})
				return
			}
		}
	}
}
