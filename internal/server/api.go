// Package server exposes the bill services over HTTP and a gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/joseph-ayodele/acuvera/internal/access"
	"github.com/joseph-ayodele/acuvera/internal/analysis"
	"github.com/joseph-ayodele/acuvera/internal/bills"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/dashboard"
	"github.com/joseph-ayodele/acuvera/internal/export"
	"github.com/joseph-ayodele/acuvera/internal/mobile"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TextAnalyzer reviews pasted bill text without storing anything.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, text string) (*analysis.TextAnalysis, error)
}

type Deps struct {
	Auth      Authenticator
	Bills     *bills.Service
	Dashboard *dashboard.Service
	Mobile    *mobile.Service
	Export    *export.Service
	Analysis  TextAnalyzer
	// Seed loads the demo organization, users and bills; may be nil.
	Seed func(ctx context.Context) (any, error)
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error
	// MaxUploadBytes bounds multipart bodies; the bills service enforces the file limit.
	MaxUploadBytes int64
}

type API struct {
	deps Deps
	log  *slog.Logger
}

func NewAPI(deps Deps, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 * 1024 * 1024
	}
	return &API{deps: deps, log: logger}
}

// Routes builds the router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(a.requestID, a.logRequests, middleware.Recoverer)
	r.Get("/healthz", a.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON), a.authenticate)

		r.Route("/bills", func(r chi.Router) {
			r.Post("/", a.uploadBill)
			r.Get("/", a.listBills)
			r.Get("/{id}", a.getBill)
			r.Get("/{id}/status", a.billStatus)
			r.Get("/{id}/findings", a.billFindings)
			r.Get("/{id}/line-items", a.billLineItems)
			r.Post("/{id}/reanalyze", a.reanalyzeBill)
		})

		r.Post("/ai/analyze", a.analyzeText)
		r.Post("/admin/seed-demo", a.seedDemo)

		r.Get("/provider/dashboard", a.providerDashboard)
		r.Get("/provider/stats", a.providerStats)
		r.Get("/provider/export.xlsx", a.providerExport)

		r.Route("/mobile", func(r chi.Router) {
			r.Get("/bills", a.mobileBills)
			r.Post("/bills/upload", a.mobileUpload)
			r.Get("/bills/{id}", a.mobileBill)
			r.Get("/bills/{id}/analysis-status", a.mobileStatus)
			r.Get("/bills/{id}/flagged-items/{fid}", a.mobileFlaggedItem)
			r.Get("/bills/{id}/flagged-items/{fid}/actions", a.mobileActions)
			r.Get("/stats", a.mobileStats)
		})
	})
	return r
}

// LogRoutes lists the mounted routes at debug level.
func (a *API) LogRoutes(r chi.Routes) {
	_ = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		a.log.Debug("http.route", "method", method, "route", route)
		return nil
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	code := common.CodeInternal
	var ae *common.AppError
	if errors.As(err, &ae) && status < http.StatusInternalServerError {
		code = ae.Code
	}
	reqID := common.RequestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		a.log.Error("http.error", "path", r.URL.Path, "request_id", reqID, "error", err)
	} else {
		a.log.Debug("http.rejected", "path", r.URL.Path, "status", status, "request_id", reqID, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: common.PublicMessage(err), Code: code, RequestID: reqID})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	m := map[string]string{"status": "ok", "database": "ok"}
	if a.deps.Health != nil {
		if err := a.deps.Health(r.Context()); err != nil {
			m["status"], m["database"] = "degraded", "error"
			render.Status(r, http.StatusServiceUnavailable)
		}
	}
	render.JSON(w, r, m)
}

// receiveUpload reads the "file" part of a multipart body and hands it to
// the bills service. On false the error response is already written.
func (a *API) receiveUpload(w http.ResponseWriter, r *http.Request) (*bills.UploadResult, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, a.deps.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		a.writeError(w, r, common.Validationf("invalid multipart upload: %v", err))
		return nil, false
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, r, common.Validationf("form field %q is required", "file"))
		return nil, false
	}
	defer func() { _ = file.Close() }()

	res, err := a.deps.Bills.Upload(r.Context(), common.UserFromContext(r.Context()), bills.UploadInput{
		FileName:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        file,
	})
	if err != nil {
		a.writeError(w, r, err)
		return nil, false
	}
	return res, true
}

func (a *API) uploadBill(w http.ResponseWriter, r *http.Request) {
	res, ok := a.receiveUpload(w, r)
	if !ok {
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}

type mobileUploadResponse struct {
	Success bool   `json:"success"`
	BillID  int64  `json:"bill_id"`
	Message string `json:"message"`
}

func (a *API) mobileUpload(w http.ResponseWriter, r *http.Request) {
	res, ok := a.receiveUpload(w, r)
	if !ok {
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mobileUploadResponse{
		Success: true,
		BillID:  res.Bill.ID,
		Message: "Bill uploaded successfully. Analysis will begin shortly.",
	})
}

func (a *API) listBills(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Bills.List(r.Context(), common.UserFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) getBill(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := a.deps.Bills.Get(r.Context(), common.UserFromContext(r.Context()), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) billStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := a.deps.Bills.Status(r.Context(), common.UserFromContext(r.Context()), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) billFindings(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := a.deps.Bills.Findings(r.Context(), common.UserFromContext(r.Context()), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) billLineItems(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := a.deps.Bills.LineItems(r.Context(), common.UserFromContext(r.Context()), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) reanalyzeBill(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	out, err := a.deps.Bills.Reanalyze(r.Context(), common.UserFromContext(r.Context()), id, force)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, out)
}

func (a *API) providerDashboard(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Dashboard.ForUser(r.Context(), common.UserFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) providerStats(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Dashboard.ForUser(r.Context(), common.UserFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out.Stats)
}

type analyzeTextRequest struct {
	Text string `json:"text"`
}

func (a *API) analyzeText(w http.ResponseWriter, r *http.Request) {
	var req analyzeTextRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, 1<<20), &req); err != nil {
		a.writeError(w, r, common.Validationf("invalid JSON body: %v", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		a.writeError(w, r, common.Validationf("text is required"))
		return
	}
	if a.deps.Analysis == nil {
		a.writeError(w, r, common.Validationf("the analyzer is not configured"))
		return
	}
	out, err := a.deps.Analysis.AnalyzeText(r.Context(), req.Text)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"result": out})
}

func (a *API) seedDemo(w http.ResponseWriter, r *http.Request) {
	if err := access.RequireAdmin(common.UserFromContext(r.Context())); err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.deps.Seed == nil {
		a.writeError(w, r, common.NewAppError(common.CodeConfig, "demo seeding is not available", common.ErrInternal))
		return
	}
	out, err := a.deps.Seed(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log.Info("admin.seed_demo", "request_id", common.RequestIDFromContext(r.Context()))
	render.JSON(w, r, out)
}

// providerExport serves the findings workbook. Optional from/to (YYYY-MM-DD)
// bound the analyzed date; only from means from..today.
func (a *API) providerExport(w http.ResponseWriter, r *http.Request) {
	orgID, err := access.ProviderOrganization(common.UserFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	xlsx, err := a.deps.Export.FindingsXLSX(r.Context(), orgID, from, to)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	name := fmt.Sprintf("findings-%d-%s.xlsx", orgID, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(xlsx)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

func (a *API) mobileBills(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Mobile.Bills(r.Context(), common.UserFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) mobileBill(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := a.deps.Mobile.Bill(r.Context(), common.UserFromContext(r.Context()), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) mobileStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := a.deps.Mobile.AnalysisStatus(r.Context(), common.UserFromContext(r.Context()), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) mobileFlaggedItem(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	fid, ok := a.pathID(w, r, "fid")
	if !ok {
		return
	}
	out, err := a.deps.Mobile.FlaggedItem(r.Context(), common.UserFromContext(r.Context()), id, fid)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) mobileActions(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	fid, ok := a.pathID(w, r, "fid")
	if !ok {
		return
	}
	out, err := a.deps.Mobile.Actions(r.Context(), common.UserFromContext(r.Context()), id, fid)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) mobileStats(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Mobile.Stats(r.Context(), common.UserFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		a.writeError(w, r, common.Validationf("%s must be a positive integer", name))
		return 0, false
	}
	return id, true
}

func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, common.Validationf("%s must be YYYY-MM-DD", key)
	}
	return &t, nil
}
