package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
)

const customerColumns = `id, name, product_type, active, outstanding_balance, overdue_amount, owner_id, updated_at`

// PostgresCustomerRepository implements CustomerRepository using PostgreSQL
type PostgresCustomerRepository struct {
	db *sql.DB
}

var _ ports.CustomerRepository = (*PostgresCustomerRepository)(nil)

// NewPostgresCustomerRepository creates a new PostgreSQL customer repository
func NewPostgresCustomerRepository(db *sql.DB) *PostgresCustomerRepository {
	return &PostgresCustomerRepository{db: db}
}

// ListBacklog retrieves eligible accounts in priority order. History is not
// loaded for backlog rows.
func (r *PostgresCustomerRepository) ListBacklog(ctx context.Context, filter domain.BacklogFilter) ([]*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`

	conditions := []string{"active = TRUE", "outstanding_balance > 0"}
	var args []interface{}
	if filter.ProductType != nil {
		args = append(args, string(*filter.ProductType))
		conditions = append(conditions, fmt.Sprintf("product_type = $%d", len(args)))
	}
	if filter.ExcludeOwned {
		conditions = append(conditions, "owner_id IS NULL")
	}
	query += " WHERE " + strings.Join(conditions, " AND ")
	query += " ORDER BY overdue_amount DESC, outstanding_balance DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlog: %w", err)
	}
	defer rows.Close()

	var customers []*domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backlog: %w", err)
	}

	return customers, nil
}

// FindByID retrieves a customer with its assignment history
func (r *PostgresCustomerRepository) FindByID(ctx context.Context, id string) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	c, err := scanCustomer(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}

	history, err := r.history(ctx, id)
	if err != nil {
		return nil, err
	}
	c.History = history

	return c, nil
}

func (r *PostgresCustomerRepository) history(ctx context.Context, customerID string) ([]domain.AssignmentHistoryEntry, error) {
	query := `
		SELECT id, officer_id, previous_officer_id, assigned_at, assigned_by, reason
		FROM customer_assignment_history
		WHERE customer_id = $1
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment history: %w", err)
	}
	defer rows.Close()

	var entries []domain.AssignmentHistoryEntry
	for rows.Next() {
		var e domain.AssignmentHistoryEntry
		var previous sql.NullString
		if err := rows.Scan(&e.ID, &e.OfficerID, &previous, &e.AssignedAt, &e.AssignedBy, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan assignment history: %w", err)
		}
		if previous.Valid {
			e.PreviousOfficerID = &previous.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignment history: %w", err)
	}

	return entries, nil
}

// Assign moves the owner pointer and appends the history entry in one
// transaction, guarded by the expected current owner
func (r *PostgresCustomerRepository) Assign(ctx context.Context, customerID string, expectedOwner *string, entry domain.AssignmentHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET owner_id = $2, updated_at = $3
		WHERE id = $1 AND owner_id IS NOT DISTINCT FROM $4::text
	`, customerID, entry.OfficerID, time.Now().UTC(), expectedOwner)
	if err != nil {
		return fmt.Errorf("failed to update customer owner: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`, customerID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check customer: %w", err)
		}
		if !exists {
			return domain.ErrCustomerNotFound
		}
		return domain.ErrVersionConflict.WithMessage("customer owner changed concurrently")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO customer_assignment_history (id, customer_id, officer_id, previous_officer_id, assigned_at, assigned_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, customerID, entry.OfficerID, entry.PreviousOfficerID, entry.AssignedAt, entry.AssignedBy, entry.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert assignment history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignment: %w", err)
	}
	return nil
}

// ListOwnership returns the owner pointer of every customer, ordered by id
func (r *PostgresCustomerRepository) ListOwnership(ctx context.Context) ([]domain.OwnershipPointer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, owner_id FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ownership: %w", err)
	}
	defer rows.Close()

	pointers := []domain.OwnershipPointer{}
	for rows.Next() {
		var p domain.OwnershipPointer
		var owner sql.NullString
		if err := rows.Scan(&p.CustomerID, &owner); err != nil {
			return nil, fmt.Errorf("failed to scan ownership: %w", err)
		}
		if owner.Valid {
			p.OwnerID = &owner.String
		}
		pointers = append(pointers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ownership: %w", err)
	}

	return pointers, nil
}

// Coverage counts active and assigned accounts per product type
func (r *PostgresCustomerRepository) Coverage(ctx context.Context) ([]domain.ProductTypeCoverage, error) {
	query := `
		SELECT product_type, COUNT(*), COUNT(owner_id)
		FROM customers
		WHERE active = TRUE
		GROUP BY product_type
		ORDER BY product_type
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to compute coverage: %w", err)
	}
	defer rows.Close()

	coverage := []domain.ProductTypeCoverage{}
	for rows.Next() {
		var c domain.ProductTypeCoverage
		if err := rows.Scan(&c.ProductType, &c.Total, &c.Assigned); err != nil {
			return nil, fmt.Errorf("failed to scan coverage: %w", err)
		}
		coverage = append(coverage, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coverage: %w", err)
	}

	return coverage, nil
}

// Save inserts or replaces a customer and records any history entries not
// yet stored
func (r *PostgresCustomerRepository) Save(ctx context.Context, c *domain.Customer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			product_type = EXCLUDED.product_type,
			active = EXCLUDED.active,
			outstanding_balance = EXCLUDED.outstanding_balance,
			overdue_amount = EXCLUDED.overdue_amount,
			owner_id = EXCLUDED.owner_id,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.Name, string(c.ProductType), c.Active, c.OutstandingBalance, c.OverdueAmount, c.OwnerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}

	for _, e := range c.History {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO customer_assignment_history (id, customer_id, officer_id, previous_officer_id, assigned_at, assigned_by, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, c.ID, e.OfficerID, e.PreviousOfficerID, e.AssignedAt, e.AssignedBy, e.Reason)
		if err != nil {
			return fmt.Errorf("failed to save assignment history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit customer: %w", err)
	}
	return nil
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var owner sql.NullString

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.ProductType,
		&c.Active,
		&c.OutstandingBalance,
		&c.OverdueAmount,
		&owner,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}

	if owner.Valid {
		c.OwnerID = &owner.String
	}
	return &c, nil
}
