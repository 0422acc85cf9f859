// Package bills is the application service for uploading and reading bills.
package bills

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/access"
	"github.com/joseph-ayodele/acuvera/internal/analysis"
	"github.com/joseph-ayodele/acuvera/internal/async"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
	"github.com/joseph-ayodele/acuvera/internal/storage"
)

type Config struct {
	MaxUploadBytes int64
	SyncAnalysis   bool
	AdminListLimit int
}

func ConfigFrom(c *common.Config) Config {
	return Config{
		MaxUploadBytes: int64(c.Upload.MaxFileSizeMB) * 1024 * 1024,
		SyncAnalysis:   c.Queue.SyncAnalysis,
		AdminListLimit: c.Analysis.AdminListLimit,
	}
}

// Pipeline is the part of the orchestrator the service triggers.
type Pipeline interface {
	Analyze(ctx context.Context, billID int64) (analysis.Summary, error)
	Reanalyze(ctx context.Context, billID int64, force bool) error
}

type Deps struct {
	Store     storage.Store
	Bills     repository.BillRepository
	Jobs      repository.AnalysisJobRepository
	LineItems repository.LineItemRepository
	Findings  repository.FindingRepository
	Tx        repository.TxRunner
	Pipeline  Pipeline
	// Queue may be nil when SyncAnalysis is set.
	Queue async.Enqueuer
}

type Service struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
}

func NewService(cfg Config, deps Deps, logger *slog.Logger) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 * 1024 * 1024
	}
	if cfg.AdminListLimit <= 0 {
		cfg.AdminListLimit = access.DefaultAdminLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, deps: deps, log: logger}
}

// UploadResult carries the created bill. Summary is set only when the
// analysis ran inline and succeeded.
type UploadResult struct {
	Bill    *entity.Bill        `json:"bill"`
	Job     *entity.AnalysisJob `json:"job"`
	Summary *analysis.Summary   `json:"summary,omitempty"`
}

// Upload validates and stores the document, creates the bill and its job in
// one transaction, then starts the analysis.
func (s *Service) Upload(ctx context.Context, user *entity.User, in UploadInput) (*UploadResult, error) {
	if user == nil || !user.IsActive {
		return nil, common.PermissionDeniedf("an active user is required to upload")
	}
	kind, data, err := readUpload(in, s.cfg.MaxUploadBytes)
	if err != nil {
		s.log.Warn("bills.upload.rejected", "user_id", user.ID, "file_name", in.FileName, "error", err)
		return nil, err
	}

	ref, err := s.deps.Store.Save(ctx, in.FileName, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	res := &UploadResult{}
	err = s.deps.Tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.deps.Bills.Create(ctx, &entity.Bill{
			PatientID:      user.ID,
			OrganizationID: user.OrganizationID,
			FilePath:       ref,
			FileName:       in.FileName,
			FileType:       kind,
		})
		if err != nil {
			return err
		}
		j, err := s.deps.Jobs.Create(ctx, b.ID)
		if err != nil {
			return err
		}
		res.Bill, res.Job = b, j
		return nil
	})
	if err != nil {
		if delErr := s.deps.Store.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			s.log.Warn("bills.upload.orphan", "ref", ref, "error", delErr)
		}
		return nil, err
	}
	s.log.Info("bills.uploaded", "bill_id", res.Bill.ID, "user_id", user.ID, "file_type", kind, "bytes", len(data))

	if sum := s.dispatch(ctx, res.Bill.ID); sum != nil {
		res.Summary = sum
		if b, err := s.deps.Bills.GetByID(ctx, res.Bill.ID); err == nil {
			res.Bill = b
		}
		if j, err := s.deps.Jobs.GetByBillID(ctx, res.Bill.ID); err == nil {
			res.Job = j
		}
	}
	return res, nil
}

// dispatch runs the analysis inline or queues it. A lost enqueue is picked
// up by the recovery poller.
func (s *Service) dispatch(ctx context.Context, billID int64) *analysis.Summary {
	if s.cfg.SyncAnalysis || s.deps.Queue == nil {
		sum, err := s.deps.Pipeline.Analyze(ctx, billID)
		if err != nil {
			s.log.Error("bills.analyze_inline_failed", "bill_id", billID, "error", err)
			return nil
		}
		return &sum
	}
	job := async.Job{BillID: billID, RequestID: common.RequestIDFromContext(ctx)}
	if err := s.deps.Queue.Enqueue(ctx, job); err != nil {
		s.log.Warn("bills.enqueue_failed", "bill_id", billID, "error", err)
	}
	return nil
}

// Get returns the bill with its job, line items and findings.
func (s *Service) Get(ctx context.Context, user *entity.User, billID int64) (*entity.BillDetail, error) {
	b, err := s.authorized(ctx, user, billID)
	if err != nil {
		return nil, err
	}
	d := &entity.BillDetail{Bill: *b, LineItems: []entity.LineItem{}, Findings: []entity.Finding{}}
	if j, err := s.deps.Jobs.GetByBillID(ctx, billID); err == nil {
		d.Job = j
	}
	items, err := s.deps.LineItems.ListByBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	findings, err := s.deps.Findings.ListByBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if items != nil {
		d.LineItems = items
	}
	if findings != nil {
		d.Findings = findings
	}
	return d, nil
}

// List returns the bills visible to user, newest first.
func (s *Service) List(ctx context.Context, user *entity.User) ([]entity.Bill, error) {
	scope := access.ListScope(user, s.cfg.AdminListLimit)
	if scope.Empty {
		return []entity.Bill{}, nil
	}
	out, err := s.deps.Bills.List(ctx, scope.Filter)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []entity.Bill{}
	}
	return out, nil
}

// StatusView is what a polling client sees; line items may still be absent.
type StatusView struct {
	BillID int64                `json:"bill_id"`
	Status constants.BillStatus `json:"status"`
	Job    *entity.AnalysisJob  `json:"job,omitempty"`
}

func (s *Service) Status(ctx context.Context, user *entity.User, billID int64) (*StatusView, error) {
	b, err := s.authorized(ctx, user, billID)
	if err != nil {
		return nil, err
	}
	v := &StatusView{BillID: b.ID, Status: b.Status}
	if j, err := s.deps.Jobs.GetByBillID(ctx, billID); err == nil {
		v.Job = j
	}
	return v, nil
}

func (s *Service) Findings(ctx context.Context, user *entity.User, billID int64) ([]entity.Finding, error) {
	if _, err := s.authorized(ctx, user, billID); err != nil {
		return nil, err
	}
	return s.deps.Findings.ListByBill(ctx, billID)
}

func (s *Service) LineItems(ctx context.Context, user *entity.User, billID int64) ([]entity.LineItem, error) {
	if _, err := s.authorized(ctx, user, billID); err != nil {
		return nil, err
	}
	return s.deps.LineItems.ListByBill(ctx, billID)
}

// Reanalyze is open to admins and to the patient who owns the bill.
func (s *Service) Reanalyze(ctx context.Context, user *entity.User, billID int64, force bool) (*StatusView, error) {
	b, err := s.authorized(ctx, user, billID)
	if err != nil {
		return nil, err
	}
	if user.Role != constants.RoleAdmin && b.PatientID != user.ID {
		return nil, common.PermissionDeniedf("only the owner or an admin may re-analyze bill %d", billID)
	}
	if err := s.deps.Pipeline.Reanalyze(ctx, billID, force); err != nil {
		return nil, err
	}
	s.log.Info("bills.reanalyze", "bill_id", billID, "user_id", user.ID, "force", force)
	s.dispatch(ctx, billID)
	return s.Status(ctx, user, billID)
}

func (s *Service) authorized(ctx context.Context, user *entity.User, billID int64) (*entity.Bill, error) {
	b, err := s.deps.Bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(b, user); err != nil {
		return nil, err
	}
	return b, nil
}
