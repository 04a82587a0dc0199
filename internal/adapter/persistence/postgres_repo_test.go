package persistence

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectdesk/collectdesk/internal/config"
	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// openTestDB connects to TEST_DATABASE_URL, applies the migrations and
// empties the tables. Tests are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := Open(context.Background(), config.StoreConfig{
		DatabaseURL:    dsn,
		MaxConnections: 4,
		MaxIdleTime:    time.Minute,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files, err := filepath.Glob(filepath.Join("..", "..", "..", "migrations", "*.up.sql"))
	require.NoError(t, err)
	sort.Strings(files)
	for _, f := range files {
		body, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = db.Exec(string(body))
		require.NoError(t, err, f)
	}

	_, err = db.Exec(`TRUNCATE customer_assignment_history, customers, officers`)
	require.NoError(t, err)

	return db
}

func seed(t *testing.T, db *sql.DB) (*PostgresOfficerRepository, *PostgresCustomerRepository) {
	t.Helper()
	ctx := context.Background()
	officers := NewPostgresOfficerRepository(db)
	customers := NewPostgresCustomerRepository(db)

	for _, o := range []*domain.Officer{
		{ID: "A", Name: "Ana", Specialization: domain.ProductTypeSME, Active: true, Capacity: domain.Capacity{MaxCaseload: 2, PriorityWeight: 1}},
		{ID: "B", Name: "Budi", Specialization: domain.ProductTypeSME, Active: true, Capacity: domain.Capacity{MaxCaseload: 1, PriorityWeight: 1}},
		{ID: "Z", Name: "Zed", Specialization: domain.ProductTypeAuto, Active: false, Capacity: domain.Capacity{MaxCaseload: 5, PriorityWeight: 1}},
	} {
		require.NoError(t, officers.Save(ctx, o))
	}
	for _, c := range []*domain.Customer{
		{ID: "X", Name: "X Ltd", ProductType: domain.ProductTypeSME, Active: true, OutstandingBalance: 5000, OverdueAmount: 300},
		{ID: "Y", Name: "Y Ltd", ProductType: domain.ProductTypeSME, Active: true, OutstandingBalance: 5000, OverdueAmount: 200},
		{ID: "W", Name: "W Ltd", ProductType: domain.ProductTypeSME, Active: true, OutstandingBalance: 9000, OverdueAmount: 200},
		{ID: "P", Name: "Paid", ProductType: domain.ProductTypeSME, Active: true, OutstandingBalance: 0, OverdueAmount: 0},
	} {
		require.NoError(t, customers.Save(ctx, c))
	}
	return officers, customers
}

func TestPostgresOfficerRepository_ListAndRoster(t *testing.T) {
	db := openTestDB(t)
	officers, _ := seed(t, db)
	ctx := context.Background()

	active, err := officers.List(ctx, domain.OfficerFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "A", active[0].ID)
	assert.Empty(t, active[0].Roster)

	o, changed, err := officers.AddToRoster(ctx, ports.RosterChange{OfficerID: "A", CustomerID: "X", LoadDelta: 1, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"X"}, o.Roster)
	assert.Equal(t, 1, o.Capacity.ExternalLoad)
	assert.Equal(t, int64(2), o.Version)

	_, changed, err = officers.AddToRoster(ctx, ports.RosterChange{OfficerID: "A", CustomerID: "X", LoadDelta: 1})
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = officers.AddToRoster(ctx, ports.RosterChange{OfficerID: "A", CustomerID: "Y", ExpectedVersion: 1})
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))

	o, changed, err = officers.RemoveFromRoster(ctx, ports.RosterChange{OfficerID: "A", CustomerID: "X", LoadDelta: -1})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, o.Roster)
	assert.Equal(t, 0, o.Capacity.ExternalLoad)

	_, err = officers.FindByID(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrOfficerNotFound))
}

func TestPostgresCustomerRepository_BacklogOrder(t *testing.T) {
	db := openTestDB(t)
	_, customers := seed(t, db)

	backlog, err := customers.ListBacklog(context.Background(), domain.BacklogFilter{})
	require.NoError(t, err)

	ids := make([]string, 0, len(backlog))
	for _, c := range backlog {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"X", "W", "Y"}, ids)

	limited, err := customers.ListBacklog(context.Background(), domain.BacklogFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPostgresCustomerRepository_AssignIsCompareAndSet(t *testing.T) {
	db := openTestDB(t)
	_, customers := seed(t, db)
	ctx := context.Background()

	first := domain.NewAssignmentHistoryEntry("A", nil, "tester", domain.SystemAssignmentReason, time.Now())
	require.NoError(t, customers.Assign(ctx, "X", nil, first))

	err := customers.Assign(ctx, "X", nil, domain.NewAssignmentHistoryEntry("B", nil, "tester", "race", time.Now()))
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))

	previous := "A"
	second := domain.NewAssignmentHistoryEntry("B", &previous, "supervisor", "rebalance", time.Now())
	require.NoError(t, customers.Assign(ctx, "X", &previous, second))

	x, err := customers.FindByID(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, x.OwnerID)
	assert.Equal(t, "B", *x.OwnerID)
	require.Len(t, x.History, 2)
	assert.Equal(t, "A", x.History[0].OfficerID)
	require.NotNil(t, x.History[1].PreviousOfficerID)
	assert.Equal(t, "A", *x.History[1].PreviousOfficerID)

	err = customers.Assign(ctx, "missing", nil, first)
	assert.True(t, errors.Is(err, domain.ErrCustomerNotFound))

	owned, err := customers.ListBacklog(ctx, domain.BacklogFilter{ExcludeOwned: true})
	require.NoError(t, err)
	for _, c := range owned {
		assert.NotEqual(t, "X", c.ID)
	}
}

func TestPostgresCustomerRepository_OwnershipAndCoverage(t *testing.T) {
	db := openTestDB(t)
	_, customers := seed(t, db)
	ctx := context.Background()

	require.NoError(t, customers.Assign(ctx, "Y", nil, domain.NewAssignmentHistoryEntry("B", nil, "tester", "seed", time.Now())))

	pointers, err := customers.ListOwnership(ctx)
	require.NoError(t, err)
	require.Len(t, pointers, 4)
	assert.Equal(t, "P", pointers[0].CustomerID)
	assert.Nil(t, pointers[0].OwnerID)

	coverage, err := customers.Coverage(ctx)
	require.NoError(t, err)
	require.Len(t, coverage, 1)
	assert.Equal(t, domain.ProductTypeSME, coverage[0].ProductType)
	assert.Equal(t, 4, coverage[0].Total)
	assert.Equal(t, 1, coverage[0].Assigned)
}
