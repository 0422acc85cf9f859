package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/acuvera/internal/common"
)

type dirLocator struct{ dir string }

func (d dirLocator) LocalPath(_ context.Context, ref string) (string, func(), error) {
	return filepath.Join(d.dir, ref), func() {}, nil
}

type stubRunner struct {
	calls [][]string
	run   func(name string, args []string) ([]byte, []byte, error)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	return s.run(name, args)
}

func TestExtractTextNormalizesPdftotextOutput(t *testing.T) {
	r := &stubRunner{run: func(string, []string) ([]byte, []byte, error) {
		return []byte("Office visit\t\t99213   $150.00\r\n\n\n\n-----\nLab panel  $80.00\f"), nil, nil
	}}
	e := NewExtractorWithRunner(Config{}, dirLocator{t.TempDir()}, r, nil)

	text, err := e.ExtractText(context.Background(), "bill.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Office visit 99213 $150.00\n\nLab panel $80.00", text)
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"pdftotext", "-layout", "-enc", "UTF-8", "-eol", "unix"}, r.calls[0][:6])
}

func TestExtractTextSkipsImages(t *testing.T) {
	r := &stubRunner{run: func(string, []string) ([]byte, []byte, error) {
		t.Fatal("no command expected for images")
		return nil, nil, nil
	}}
	e := NewExtractorWithRunner(Config{}, dirLocator{t.TempDir()}, r, nil)
	text, err := e.ExtractText(context.Background(), "scan.jpg")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractTextFailure(t *testing.T) {
	r := &stubRunner{run: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Syntax Error: broken xref"), errors.New("exit status 1")
	}}
	e := NewExtractorWithRunner(Config{}, dirLocator{t.TempDir()}, r, nil)
	_, err := e.ExtractText(context.Background(), "bill.pdf")
	assert.ErrorIs(t, err, common.ErrExtraction)
}

func TestRenderPagesCapsPageCount(t *testing.T) {
	r := &stubRunner{run: func(_ string, args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		for _, n := range []string{"1", "2", "3", "4"} {
			if err := os.WriteFile(prefix+"-"+n+".png", []byte("page"+n), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}}
	e := NewExtractorWithRunner(Config{DPI: 200}, dirLocator{t.TempDir()}, r, nil)

	pages, err := e.RenderPages(context.Background(), "bill.pdf", 3)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for _, p := range pages {
		assert.True(t, strings.HasPrefix(p, "data:image/png;base64,"))
	}
	assert.Contains(t, r.calls[0], "200")
	assert.Contains(t, r.calls[0], "-l")
}

func TestRenderPagesImageIsSinglePage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.jpg"), []byte{0xFF, 0xD8, 0xFF}, 0o644))
	e := NewExtractorWithRunner(Config{}, dirLocator{dir}, &stubRunner{}, nil)

	pages, err := e.RenderPages(context.Background(), "scan.jpg", 3)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.True(t, strings.HasPrefix(pages[0], "data:image/jpeg;base64,"))
}

type missingLocator struct{}

func (missingLocator) LocalPath(context.Context, string) (string, func(), error) {
	return "", nil, errors.New("no such object")
}

func TestLocateFailureIsExtractionError(t *testing.T) {
	e := NewExtractorWithRunner(Config{}, missingLocator{}, &stubRunner{}, nil)

	_, err := e.ExtractText(context.Background(), "gone.pdf")
	assert.ErrorIs(t, err, common.ErrExtraction)

	_, err = e.RenderPages(context.Background(), "gone.png", 1)
	assert.ErrorIs(t, err, common.ErrExtraction)
}
