package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	DPI       int    // rasterization DPI, default 150
	MaxPages  int    // default 3
}

// Locator resolves a stored document reference to a readable local file.
// cleanup is non-nil whenever err is nil; on error it is not called.
type Locator interface {
	LocalPath(ctx context.Context, ref string) (path string, cleanup func(), err error)
}

// Extractor turns stored bills into text or page images for the analyzer.
type Extractor struct {
	cfg    Config
	store  Locator
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, store Locator, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return NewExtractorWithRunner(cfg, store, execRunner{logger: logger}, logger)
}

func NewExtractorWithRunner(cfg Config, store Locator, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	return &Extractor{cfg: cfg, store: store, runner: runner, logger: logger}
}

func ConfigFrom(c common.ExtractorConfig) Config {
	return Config{Pdftotext: c.Pdftotext, Pdftoppm: c.Pdftoppm, DPI: c.DPI, MaxPages: c.MaxPages}
}

// ExtractText returns the normalized text layer of a PDF. Images have no
// text layer and yield "".
func (e *Extractor) ExtractText(ctx context.Context, ref string) (string, error) {
	if constants.FileKindForExt(filepath.Ext(ref)) != constants.FileKindPDF {
		return "", nil
	}
	path, cleanup, err := e.store.LocalPath(ctx, ref)
	if err != nil {
		return "", common.ExtractionError("locate document", err)
	}
	defer cleanup()

	start := time.Now()
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", common.ExtractionError("pdftotext: "+truncate(string(errb), 512), err)
	}
	text := Normalize(string(out))
	e.logger.Info("extract.text.ok", "ref", ref, "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

// RenderPages returns up to maxPages data URIs. PDFs are rasterized with
// pdftoppm; an image file is returned as a single page.
func (e *Extractor) RenderPages(ctx context.Context, ref string, maxPages int) ([]string, error) {
	if maxPages <= 0 {
		maxPages = e.cfg.MaxPages
	}
	kind := constants.FileKindForExt(filepath.Ext(ref))
	if kind == "" {
		return nil, nil
	}
	path, cleanup, err := e.store.LocalPath(ctx, ref)
	if err != nil {
		return nil, common.ExtractionError("locate document", err)
	}
	defer cleanup()

	if kind != constants.FileKindPDF {
		uri, err := readAsDataURI(path, constants.MIMEForKind(kind))
		if err != nil {
			return nil, common.ExtractionError("read image", err)
		}
		return []string{uri}, nil
	}

	tmpDir, err := os.MkdirTemp("", "acuvera-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png -l <max> <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", strconv.Itoa(e.cfg.DPI), "-png", "-l", strconv.Itoa(maxPages), path, prefix)
	if err != nil {
		return nil, common.ExtractionError("pdftoppm: "+truncate(string(errb), 512), err)
	}

	// prefix-1.png, prefix-2.png, ... (zero padded for long documents)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) > maxPages {
		matches = matches[:maxPages]
	}

	pages := make([]string, 0, len(matches))
	for _, m := range matches {
		uri, err := readAsDataURI(m, "image/png")
		if err != nil {
			return nil, common.ExtractionError(fmt.Sprintf("read page %s", filepath.Base(m)), err)
		}
		pages = append(pages, uri)
	}
	e.logger.Info("extract.render.ok", "ref", ref, "pages", len(pages))
	return pages, nil
}

func readAsDataURI(path, mimeType string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
