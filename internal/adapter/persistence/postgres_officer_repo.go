package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// maxRosterRetries bounds how often an unversioned roster write is retried
// after losing a race with another writer
const maxRosterRetries = 3

const officerColumns = `id, name, specialization, active, max_caseload, priority_weight, external_load, roster, version, updated_at`

// PostgresOfficerRepository implements OfficerRepository using PostgreSQL
type PostgresOfficerRepository struct {
	db *sql.DB
}

var _ ports.OfficerRepository = (*PostgresOfficerRepository)(nil)

// NewPostgresOfficerRepository creates a new PostgreSQL officer repository
func NewPostgresOfficerRepository(db *sql.DB) *PostgresOfficerRepository {
	return &PostgresOfficerRepository{db: db}
}

// List retrieves officers matching the filter, ordered by id
func (r *PostgresOfficerRepository) List(ctx context.Context, filter domain.OfficerFilter) ([]*domain.Officer, error) {
	query := `SELECT ` + officerColumns + ` FROM officers`

	var conditions []string
	var args []interface{}
	if filter.Specialization != nil {
		args = append(args, string(*filter.Specialization))
		conditions = append(conditions, fmt.Sprintf("specialization = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "active = TRUE")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list officers: %w", err)
	}
	defer rows.Close()

	var officers []*domain.Officer
	for rows.Next() {
		o, err := scanOfficer(rows)
		if err != nil {
			return nil, err
		}
		officers = append(officers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate officers: %w", err)
	}

	return officers, nil
}

// FindByID retrieves an officer by its ID
func (r *PostgresOfficerRepository) FindByID(ctx context.Context, id string) (*domain.Officer, error) {
	query := `SELECT ` + officerColumns + ` FROM officers WHERE id = $1`

	o, err := scanOfficer(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrOfficerNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// AddToRoster appends the customer to the roster unless already present
func (r *PostgresOfficerRepository) AddToRoster(ctx context.Context, change ports.RosterChange) (*domain.Officer, bool, error) {
	return r.mutateRoster(ctx, change, func(o *domain.Officer) bool {
		return o.AddToRoster(change.CustomerID)
	})
}

// RemoveFromRoster removes the customer from the roster if present
func (r *PostgresOfficerRepository) RemoveFromRoster(ctx context.Context, change ports.RosterChange) (*domain.Officer, bool, error) {
	return r.mutateRoster(ctx, change, func(o *domain.Officer) bool {
		return o.RemoveFromRoster(change.CustomerID)
	})
}

// mutateRoster reads the officer, applies the change in memory and writes it
// back guarded by the version it read. With an expected version a lost race
// is a conflict; without one the write is retried on a fresh read.
func (r *PostgresOfficerRepository) mutateRoster(ctx context.Context, change ports.RosterChange, apply func(*domain.Officer) bool) (*domain.Officer, bool, error) {
	for attempt := 0; attempt < maxRosterRetries; attempt++ {
		o, err := r.FindByID(ctx, change.OfficerID)
		if err != nil {
			return nil, false, err
		}
		if change.ExpectedVersion != 0 && o.Version != change.ExpectedVersion {
			return nil, false, domain.ErrVersionConflict
		}
		if !apply(o) {
			return o, false, nil
		}
		o.AdjustExternalLoad(change.LoadDelta)

		query := `
			UPDATE officers
			SET roster = $3, external_load = $4, version = version + 1, updated_at = $5
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at
		`
		now := time.Now().UTC()
		err = r.db.QueryRowContext(ctx, query,
			o.ID,
			o.Version,
			pq.Array(o.Roster),
			o.Capacity.ExternalLoad,
			now,
		).Scan(&o.Version, &o.UpdatedAt)

		if err == sql.ErrNoRows {
			if change.ExpectedVersion != 0 {
				return nil, false, domain.ErrVersionConflict
			}
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to update roster: %w", err)
		}
		return o, true, nil
	}

	return nil, false, domain.ErrVersionConflict.WithMessage("officer %s kept changing during roster update", change.OfficerID)
}

// Save inserts or replaces an officer
func (r *PostgresOfficerRepository) Save(ctx context.Context, o *domain.Officer) error {
	query := `
		INSERT INTO officers (` + officerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			specialization = EXCLUDED.specialization,
			active = EXCLUDED.active,
			max_caseload = EXCLUDED.max_caseload,
			priority_weight = EXCLUDED.priority_weight,
			external_load = EXCLUDED.external_load,
			roster = EXCLUDED.roster,
			version = officers.version + 1,
			updated_at = EXCLUDED.updated_at
	`

	version := o.Version
	if version == 0 {
		version = 1
	}
	roster := o.Roster
	if roster == nil {
		roster = []string{}
	}

	_, err := r.db.ExecContext(ctx, query,
		o.ID,
		o.Name,
		string(o.Specialization),
		o.Active,
		o.Capacity.MaxCaseload,
		o.Capacity.PriorityWeight,
		o.Capacity.ExternalLoad,
		pq.Array(roster),
		version,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save officer: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOfficer(row rowScanner) (*domain.Officer, error) {
	var o domain.Officer
	var roster pq.StringArray

	err := row.Scan(
		&o.ID,
		&o.Name,
		&o.Specialization,
		&o.Active,
		&o.Capacity.MaxCaseload,
		&o.Capacity.PriorityWeight,
		&o.Capacity.ExternalLoad,
		&roster,
		&o.Version,
		&o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan officer: %w", err)
	}

	o.Roster = []string(roster)
	return &o, nil
}
