package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "a", truncate("abc", 1))
	assert.Equal(t, "abc", truncate("abc", 0))
}

func TestInWindow(t *testing.T) {
	day := func(d int) *time.Time {
		v := time.Date(2025, 5, d, 15, 0, 0, 0, time.UTC)
		return &v
	}
	bills := []entity.Bill{{ID: 1, AnalyzedAt: day(1)}, {ID: 2, AnalyzedAt: day(10)}, {ID: 3, AnalyzedAt: day(20)}, {ID: 4}}

	ids := func(bs []entity.Bill) []int64 {
		var out []int64
		for _, b := range bs {
			out = append(out, b.ID)
		}
		return out
	}
	assert.Len(t, inWindow(bills, nil, nil), 4)
	assert.Equal(t, []int64{2, 3}, ids(inWindow(bills, day(10), nil)))
	assert.Equal(t, []int64{1, 2}, ids(inWindow(bills, nil, day(10))))
	assert.Equal(t, []int64{2}, ids(inWindow(bills, day(2), day(19))))
}

func TestFindingsXLSX(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(log) })
	require.NoError(t, db.Migrate(ctx, log))

	orgs := repository.NewOrganizationRepository(db, log)
	users := repository.NewUserRepository(db, log)
	bills := repository.NewBillRepository(db, log)
	items := repository.NewLineItemRepository(db, log)
	findings := repository.NewFindingRepository(db, log)

	org, err := orgs.GetOrCreateByName(ctx, "Mercy Clinic")
	require.NoError(t, err)
	patient, err := users.Create(ctx, &entity.User{Email: "p@example.com", FullName: "P", Role: constants.RolePatient, IsActive: true})
	require.NoError(t, err)

	done, err := bills.Create(ctx, &entity.Bill{PatientID: patient.ID, OrganizationID: &org.ID, FilePath: "a", FileName: "march.pdf", FileType: "pdf"})
	require.NoError(t, err)
	code := "99213"
	li, err := items.CreateBulk(ctx, done.ID, []entity.LineItem{{Description: "Office visit", Code: &code, Quantity: 1, UnitPrice: 200, TotalPrice: 200}})
	require.NoError(t, err)
	_, err = findings.CreateBulk(ctx, done.ID, []entity.Finding{
		{LineItemID: &li[0].ID, Type: constants.FindingOvercharge, Severity: constants.SeverityHigh, Confidence: 0.9,
			EstimatedSavings: 40, Explanation: strings.Repeat("x", 300), RecommendedAction: "Ask for an itemized bill"},
		{Type: constants.FindingOther, Severity: constants.SeverityLow, Confidence: 0.5, Explanation: "General review"},
	})
	require.NoError(t, err)
	require.NoError(t, bills.MarkCompleted(ctx, done.ID, 200, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)))

	pending, err := bills.Create(ctx, &entity.Bill{PatientID: patient.ID, OrganizationID: &org.ID, FilePath: "b", FileName: "april.pdf", FileType: "pdf"})
	require.NoError(t, err)
	_, err = findings.CreateBulk(ctx, pending.ID, []entity.Finding{{Type: constants.FindingOvercharge, Severity: constants.SeverityLow, Confidence: 0.5}})
	require.NoError(t, err)

	svc := NewService(orgs, bills, items, findings, log)
	raw, err := svc.FindingsXLSX(ctx, org.ID, nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{findingsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(findingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, findingHeaders, rows[0])
	assert.Equal(t, "march.pdf", rows[1][1])
	assert.Equal(t, "2025-03-04", rows[1][2])
	assert.Equal(t, "Office visit", rows[1][3])
	assert.Equal(t, "99213", rows[1][4])
	assert.Equal(t, "OVERCHARGE", rows[1][5])
	assert.Equal(t, "40", rows[1][8])
	assert.Len(t, []rune(rows[1][9]), 240)
	assert.Equal(t, "", rows[2][3])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Organization", "Mercy Clinic"}, summary[0])
	assert.Equal(t, []string{"Claims Reviewed", "1"}, summary[1])
	assert.Equal(t, []string{"Errors Caught", "2"}, summary[2])
	assert.Equal(t, []string{"Estimated Savings", "40"}, summary[3])

	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	raw, err = svc.FindingsXLSX(ctx, org.ID, &from, nil)
	require.NoError(t, err)
	f2, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer func() { _ = f2.Close() }()
	rows, err = f2.GetRows(findingsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = svc.FindingsXLSX(ctx, 4242, nil, nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
