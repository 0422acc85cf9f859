package bills

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/analysis"
	"github.com/joseph-ayodele/acuvera/internal/async"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
	"github.com/joseph-ayodele/acuvera/internal/storage"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n")

type recordingQueue struct {
	mu  sync.Mutex
	ids []int64
}

func (q *recordingQueue) Enqueue(_ context.Context, j async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, j.BillID)
	return nil
}

type env struct {
	svc      *Service
	dir      string
	users    repository.UserRepository
	orgs     repository.OrganizationRepository
	queue    *recordingQueue
	patient  *entity.User
	other    *entity.User
	provider *entity.User
	admin    *entity.User
}

func newEnv(t *testing.T, inline bool) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(log) })
	require.NoError(t, db.Migrate(ctx, log))

	dir := t.TempDir()
	store, err := storage.NewLocal(dir, log)
	require.NoError(t, err)

	repos := analysis.Repositories{
		Bills:     repository.NewBillRepository(db, log),
		Jobs:      repository.NewAnalysisJobRepository(db, log),
		LineItems: repository.NewLineItemRepository(db, log),
		Findings:  repository.NewFindingRepository(db, log),
		Tx:        db,
	}
	orch := analysis.NewOrchestrator(analysis.Config{}, repos, nil, nil, nil, log)

	e := &env{
		dir:   dir,
		users: repository.NewUserRepository(db, log),
		orgs:  repository.NewOrganizationRepository(db, log),
		queue: &recordingQueue{},
	}
	e.svc = NewService(Config{MaxUploadBytes: 1024, SyncAnalysis: inline}, Deps{
		Store:     store,
		Bills:     repos.Bills,
		Jobs:      repos.Jobs,
		LineItems: repos.LineItems,
		Findings:  repos.Findings,
		Tx:        db,
		Pipeline:  orch,
		Queue:     e.queue,
	}, log)

	org, err := e.orgs.GetOrCreateByName(ctx, "Mercy Clinic")
	require.NoError(t, err)
	mk := func(email string, role constants.Role, org *int64) *entity.User {
		u, err := e.users.Create(ctx, &entity.User{Email: email, FullName: email, Role: role, OrganizationID: org, IsActive: true})
		require.NoError(t, err)
		return u
	}
	e.patient = mk("a@example.com", constants.RolePatient, &org.ID)
	e.other = mk("c@example.com", constants.RolePatient, nil)
	e.provider = mk("p@example.com", constants.RoleProvider, &org.ID)
	e.admin = mk("admin@example.com", constants.RoleAdmin, nil)
	return e
}

func (e *env) storedFiles(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	return len(entries)
}

func TestUploadValidationRejectsBeforeBillExists(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	cases := []struct {
		name string
		in   UploadInput
	}{
		{"extension", UploadInput{FileName: "bill.docx", ContentType: "application/pdf", Body: bytes.NewReader(pdfBytes)}},
		{"mime", UploadInput{FileName: "bill.pdf", ContentType: "text/html", Body: bytes.NewReader(pdfBytes)}},
		{"declared size", UploadInput{FileName: "bill.pdf", Size: 4096, Body: bytes.NewReader(pdfBytes)}},
		{"actual size", UploadInput{FileName: "bill.pdf", Body: bytes.NewReader(append(pdfBytes, make([]byte, 2048)...))}},
		{"magic", UploadInput{FileName: "bill.png", ContentType: "image/png", Body: bytes.NewReader(pdfBytes)}},
		{"empty", UploadInput{FileName: "bill.pdf", Body: strings.NewReader("")}},
		{"no body", UploadInput{FileName: "bill.pdf"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Upload(ctx, e.patient, tc.in)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}

	all, err := e.svc.List(ctx, e.admin)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, e.storedFiles(t))
}

func TestUploadSyncRunsAnalysis(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	res, err := e.svc.Upload(ctx, e.patient, UploadInput{
		FileName: "mercy.pdf", ContentType: "application/pdf; charset=binary", Body: bytes.NewReader(pdfBytes),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.Equal(t, constants.BillStatusCompleted, res.Bill.Status)
	assert.Equal(t, constants.JobStatusCompleted, res.Job.Status)
	assert.Equal(t, constants.FileKindPDF, res.Bill.FileType)
	require.NotNil(t, res.Bill.OrganizationID)
	assert.Equal(t, *e.patient.OrganizationID, *res.Bill.OrganizationID)
	assert.Equal(t, 1, e.storedFiles(t))
	assert.Empty(t, e.queue.ids)

	d, err := e.svc.Get(ctx, e.patient, res.Bill.ID)
	require.NoError(t, err)
	assert.Len(t, d.LineItems, res.Summary.LineItemsCount)
	assert.Len(t, d.Findings, res.Summary.FindingsCount)
	assert.InDelta(t, res.Summary.TotalEstimatedSavings, d.TotalSavings(), 0.001)
}

func TestUploadAsyncEnqueues(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	res, err := e.svc.Upload(ctx, e.patient, UploadInput{FileName: "scan.JPG", Body: bytes.NewReader([]byte("\xff\xd8\xff\xe0rest"))})
	require.NoError(t, err)
	assert.Nil(t, res.Summary)
	assert.Equal(t, constants.BillStatusPending, res.Bill.Status)
	assert.Equal(t, constants.FileKindJPG, res.Bill.FileType)
	assert.Equal(t, []int64{res.Bill.ID}, e.queue.ids)

	st, err := e.svc.Status(ctx, e.patient, res.Bill.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.BillStatusPending, st.Status)
	require.NotNil(t, st.Job)
	assert.Equal(t, constants.JobStatusPending, st.Job.Status)
}

func TestReadAccessAndListing(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	res, err := e.svc.Upload(ctx, e.patient, UploadInput{FileName: "a.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)
	id := res.Bill.ID

	_, err = e.svc.Get(ctx, e.other, id)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	_, err = e.svc.Findings(ctx, e.other, id)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	_, err = e.svc.Get(ctx, e.patient, id+1000)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.svc.LineItems(ctx, e.provider, id)
	assert.NoError(t, err)
	_, err = e.svc.Get(ctx, e.admin, id)
	assert.NoError(t, err)

	for _, u := range []*entity.User{e.patient, e.provider, e.admin} {
		list, err := e.svc.List(ctx, u)
		require.NoError(t, err)
		assert.Len(t, list, 1, u.Email)
	}
	list, err := e.svc.List(ctx, e.other)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReanalyzePermissions(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	res, err := e.svc.Upload(ctx, e.patient, UploadInput{FileName: "a.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)
	id := res.Bill.ID

	_, err = e.svc.Reanalyze(ctx, e.provider, id, true)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	_, err = e.svc.Reanalyze(ctx, e.patient, id, false)
	assert.ErrorIs(t, err, common.ErrConflict)

	st, err := e.svc.Reanalyze(ctx, e.patient, id, true)
	require.NoError(t, err)
	assert.Equal(t, constants.BillStatusCompleted, st.Status)
	assert.Equal(t, 2, st.Job.Attempts)

	d, err := e.svc.Get(ctx, e.admin, id)
	require.NoError(t, err)
	assert.Equal(t, res.Summary.FindingsCount, len(d.Findings))
}
