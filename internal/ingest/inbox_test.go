package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/bills"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

type fakeUsers struct{ user *entity.User }

func (f fakeUsers) GetByID(_ context.Context, id int64) (*entity.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, common.NotFoundf("user %d not found", id)
	}
	return f.user, nil
}

type fakeUploader struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, user *entity.User, in bills.UploadInput) (*bills.UploadResult, error) {
	if _, err := io.ReadAll(in.Body); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.names = append(f.names, in.FileName)
	return &bills.UploadResult{Bill: &entity.Bill{
		ID: int64(len(f.names)), PatientID: user.ID, FileName: in.FileName, UploadedAt: time.Now().UTC(),
	}}, nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func newInbox(t *testing.T, dir string, up *fakeUploader) *Inbox {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	patient := &entity.User{ID: 7, Role: constants.RolePatient, IsActive: true}
	return NewInbox(InboxConfig{Dir: dir, PatientID: 7, Debounce: 20 * time.Millisecond}, fakeUsers{user: patient}, up, log)
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestIngestPathDeduplicatesByContent(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	in := newInbox(t, dir, up)

	write(t, filepath.Join(dir, "a.pdf"), "%PDF-1.4 same")
	write(t, filepath.Join(dir, "b.pdf"), "%PDF-1.4 same")

	first, err := in.IngestPath(context.Background(), filepath.Join(dir, "a.pdf"))
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)
	assert.Equal(t, int64(1), first.BillID)
	assert.Equal(t, "pdf", first.FileExt)
	assert.Len(t, first.HashHex, 64)

	second, err := in.IngestPath(context.Background(), filepath.Join(dir, "b.pdf"))
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.BillID, second.BillID)
	assert.Equal(t, []string{"a.pdf"}, up.uploaded())
}

func TestIngestPathRejectsUnsupported(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	in := newInbox(t, dir, up)
	write(t, filepath.Join(dir, "notes.txt"), "hello")

	_, err := in.IngestPath(context.Background(), filepath.Join(dir, "notes.txt"))
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, up.uploaded())
}

func TestIngestPathUploadFailureIsRetried(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{err: errors.New("store down")}
	in := newInbox(t, dir, up)
	path := filepath.Join(dir, "scan.png")
	write(t, path, "\x89PNG\r\n\x1a\nbody")

	_, err := in.IngestPath(context.Background(), path)
	require.Error(t, err)

	up.mu.Lock()
	up.err = nil
	up.mu.Unlock()
	r, err := in.IngestPath(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, r.Deduplicated)
	assert.Equal(t, []string{"scan.png"}, up.uploaded())
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	in := newInbox(t, dir, up)

	write(t, filepath.Join(dir, "one.pdf"), "%PDF-1")
	write(t, filepath.Join(dir, "nested", "two.jpg"), "\xff\xd8\xff two")
	write(t, filepath.Join(dir, "nested", "copy.pdf"), "%PDF-1")
	write(t, filepath.Join(dir, ".hidden", "three.pdf"), "%PDF-3")
	write(t, filepath.Join(dir, "readme.md"), "skip")

	results, stats, err := in.IngestDirectory(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Zero(t, stats.Failed)
	assert.Len(t, up.uploaded(), 2)

	_, _, err = in.IngestDirectory(context.Background(), " ", true)
	assert.Error(t, err)
}

func TestInboxRunPicksUpExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	in := newInbox(t, dir, up)
	write(t, filepath.Join(dir, "existing.pdf"), "%PDF-existing")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(up.uploaded()) == 1 }, 5*time.Second, 10*time.Millisecond)

	write(t, filepath.Join(dir, "dropped.pdf"), "%PDF-dropped")
	assert.Eventually(t, func() bool { return len(up.uploaded()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"existing.pdf", "dropped.pdf"}, up.uploaded())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("inbox did not stop")
	}
}

func TestStartWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
