package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	db, err := OpenSQLite(ctx, "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(log) })
	require.NoError(t, db.Migrate(ctx, log))
	return db
}

func TestSQLiteBillLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	orgs := NewOrganizationRepository(db, log)
	users := NewUserRepository(db, log)
	bills := NewBillRepository(db, log)
	jobs := NewAnalysisJobRepository(db, log)
	items := NewLineItemRepository(db, log)
	findings := NewFindingRepository(db, log)

	org, err := orgs.GetOrCreateByName(ctx, "Mercy Clinic")
	require.NoError(t, err)
	again, err := orgs.GetOrCreateByName(ctx, "Mercy Clinic")
	require.NoError(t, err)
	assert.Equal(t, org.ID, again.ID)

	patient, err := users.Create(ctx, &entity.User{
		Email: "pat@example.com", FullName: "Pat", Role: constants.RolePatient,
		OrganizationID: &org.ID, IsActive: true,
	})
	require.NoError(t, err)

	got, err := users.GetByEmail(ctx, "pat@example.com")
	require.NoError(t, err)
	assert.Equal(t, patient.ID, got.ID)
	require.NotNil(t, got.OrganizationID)
	assert.True(t, got.IsActive)

	var bill *entity.Bill
	err = db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		bill, err = bills.Create(ctx, &entity.Bill{
			PatientID: patient.ID, OrganizationID: &org.ID,
			FilePath: "uploads/a.pdf", FileName: "a.pdf", FileType: "pdf",
		})
		if err != nil {
			return err
		}
		_, err = jobs.Create(ctx, bill.ID)
		return err
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	ok, err := jobs.Claim(ctx, bill.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = jobs.Claim(ctx, bill.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	job, err := jobs.GetByBillID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)

	code := "99213"
	created, err := items.CreateBulk(ctx, bill.ID, []entity.LineItem{
		{Description: "Office visit", Code: &code, UnitPrice: 150, TotalPrice: 150},
		{Description: "Lab panel", Quantity: 2, UnitPrice: 40, TotalPrice: 80},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, 1.0, created[0].Quantity)

	_, err = findings.CreateBulk(ctx, bill.ID, []entity.Finding{
		{LineItemID: &created[0].ID, Type: constants.FindingOvercharge, Severity: constants.SeverityHigh, Confidence: 0.9, EstimatedSavings: 30},
		{Type: constants.FindingOther, Severity: constants.SeverityLow, Confidence: 0.8},
	})
	require.NoError(t, err)

	require.NoError(t, bills.MarkCompleted(ctx, bill.ID, 230, now))
	require.NoError(t, jobs.MarkCompleted(ctx, bill.ID, now))

	stored, err := bills.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.BillStatusCompleted, stored.Status)
	require.NotNil(t, stored.TotalAmount)
	require.NotNil(t, stored.AnalyzedAt)

	list, err := findings.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	f, err := findings.GetByID(ctx, bill.ID, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, constants.FindingOvercharge, f.Type)
	_, err = findings.GetByID(ctx, bill.ID+1, list[0].ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	byOrg, err := bills.List(ctx, BillFilter{OrganizationID: &org.ID})
	require.NoError(t, err)
	assert.Len(t, byOrg, 1)

	other := org.ID + 100
	none, err := bills.List(ctx, BillFilter{OrganizationID: &other})
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, bills.Delete(ctx, bill.ID))
	left, err := items.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Empty(t, left, "line items cascade with the bill")
}

func TestSQLiteResetStaleJob(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db, nil)
	bills := NewBillRepository(db, nil)
	jobs := NewAnalysisJobRepository(db, nil)

	u, err := users.Create(ctx, &entity.User{Email: "a@b.c", Role: constants.RolePatient, IsActive: true})
	require.NoError(t, err)
	b, err := bills.Create(ctx, &entity.Bill{PatientID: u.ID, FilePath: "p", FileName: "x.png", FileType: "png"})
	require.NoError(t, err)
	_, err = jobs.Create(ctx, b.ID)
	require.NoError(t, err)

	start := time.Now().UTC().Add(-time.Hour)
	ok, err := jobs.Claim(ctx, b.ID, start)
	require.NoError(t, err)
	require.True(t, ok)

	stale, err := jobs.ListByStatus(ctx, constants.JobStatusProcessing, time.Now().UTC().Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	reset, err := jobs.Reset(ctx, b.ID, []constants.JobStatus{constants.JobStatusProcessing}, &cutoff, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, reset)

	j, err := jobs.GetByBillID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, j.Status)
	assert.Nil(t, j.StartedAt)

	reset, err = jobs.Reset(ctx, b.ID, []constants.JobStatus{constants.JobStatusFailed}, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, reset)
}
