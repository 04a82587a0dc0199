package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectdesk/collectdesk/internal/adapter/memory"
	"github.com/collectdesk/collectdesk/internal/domain"
)

func TestConsistencyAuditor_CleanStore(t *testing.T) {
	s := reassignStore()

	report, err := NewConsistencyAuditor(s.Officers(), s.Customers()).Audit(context.Background())

	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 3, report.ScannedOfficers)
	assert.Equal(t, 1, report.ScannedCustomers)
	assert.NotNil(t, report.MultiOwnerDefects)
	assert.NotNil(t, report.RosterDriftDefects)
	assert.NotNil(t, report.CapacityOverruns)
}

func TestConsistencyAuditor_RosterHeldByNonOwner(t *testing.T) {
	s := memory.NewStore()
	s.PutOfficer(officer("A", domain.ProductTypeSME, 5, "C"))
	s.PutOfficer(officer("B", domain.ProductTypeSME, 5, "C"))
	s.PutCustomer(owned(customer("C", domain.ProductTypeSME, 50), "A"))

	report, err := NewConsistencyAuditor(s.Officers(), s.Customers()).Audit(context.Background())

	require.NoError(t, err)
	require.Len(t, report.RosterDriftDefects, 1)
	drift := report.RosterDriftDefects[0]
	assert.Equal(t, "C", drift.CustomerID)
	assert.Equal(t, "B", drift.OfficerID)
	assert.Equal(t, domain.DriftStaleRosterEntry, drift.Kind)
	require.NotNil(t, drift.OwnerID)
	assert.Equal(t, "A", *drift.OwnerID)

	require.Len(t, report.MultiOwnerDefects, 1)
	assert.Equal(t, []string{"A", "B"}, report.MultiOwnerDefects[0].OfficerIDs)
	assert.Empty(t, report.CapacityOverruns)
}

func TestConsistencyAuditor_OwnerMissingFromRoster(t *testing.T) {
	s := memory.NewStore()
	s.PutOfficer(officer("A", domain.ProductTypeSME, 5))
	s.PutCustomer(owned(customer("C", domain.ProductTypeSME, 50), "A"))
	s.PutCustomer(owned(customer("D", domain.ProductTypeSME, 50), "gone"))

	report, err := NewConsistencyAuditor(s.Officers(), s.Customers()).Audit(context.Background())

	require.NoError(t, err)
	require.Len(t, report.RosterDriftDefects, 2)
	for _, d := range report.RosterDriftDefects {
		assert.Equal(t, domain.DriftMissingRosterEntry, d.Kind)
	}
	assert.Equal(t, "A", report.RosterDriftDefects[0].OfficerID)
	assert.Equal(t, "gone", report.RosterDriftDefects[1].OfficerID)
	assert.Empty(t, report.MultiOwnerDefects)
}

func TestConsistencyAuditor_UnownedCustomerInRoster(t *testing.T) {
	s := memory.NewStore()
	s.PutOfficer(officer("A", domain.ProductTypeSME, 5, "C", "C"))
	s.PutCustomer(customer("C", domain.ProductTypeSME, 50))

	report, err := NewConsistencyAuditor(s.Officers(), s.Customers()).Audit(context.Background())

	require.NoError(t, err)
	require.Len(t, report.RosterDriftDefects, 1)
	assert.Nil(t, report.RosterDriftDefects[0].OwnerID)
	assert.Equal(t, domain.DriftStaleRosterEntry, report.RosterDriftDefects[0].Kind)
}

func TestConsistencyAuditor_CapacityOverrun(t *testing.T) {
	s := memory.NewStore()
	o := officer("A", domain.ProductTypeSME, 1, "C")
	o.Capacity.ExternalLoad = 1
	s.PutOfficer(o)
	s.PutCustomer(owned(customer("C", domain.ProductTypeSME, 50), "A"))

	report, err := NewConsistencyAuditor(s.Officers(), s.Customers()).Audit(context.Background())

	require.NoError(t, err)
	require.Len(t, report.CapacityOverruns, 1)
	assert.Equal(t, domain.CapacityOverrun{OfficerID: "A", Load: 2, MaxCaseload: 1}, report.CapacityOverruns[0])
	assert.False(t, report.Clean())
}
