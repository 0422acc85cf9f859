package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

const billsTable = "bills"

var billColumns = []string{
	"id", "patient_id", "organization_id", "file_path", "file_name", "file_type",
	"total_amount", "status", "uploaded_at", "analyzed_at", "created_at",
}

// BillFilter narrows a bill listing. Nil fields are not filtered.
type BillFilter struct {
	PatientID      *int64
	OrganizationID *int64
	Statuses       []constants.BillStatus
	Limit          int
}

type BillRepository interface {
	Create(ctx context.Context, b *entity.Bill) (*entity.Bill, error)
	GetByID(ctx context.Context, id int64) (*entity.Bill, error)
	List(ctx context.Context, f BillFilter) ([]entity.Bill, error)
	UpdateStatus(ctx context.Context, id int64, status constants.BillStatus) error
	MarkCompleted(ctx context.Context, id int64, total float64, analyzedAt time.Time) error
	ResetForReanalysis(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

type billRepo struct {
	db  *DB
	log *slog.Logger
}

func NewBillRepository(db *DB, log *slog.Logger) BillRepository {
	if log == nil {
		log = slog.Default()
	}
	return &billRepo{db: db, log: log}
}

func (r *billRepo) Create(ctx context.Context, b *entity.Bill) (*entity.Bill, error) {
	now := time.Now().UTC()
	out := *b
	if out.Status == "" {
		out.Status = constants.BillStatusPending
	}
	if out.UploadedAt.IsZero() {
		out.UploadedAt = now
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = out.UploadedAt
	}

	ib := r.db.builder().Insert(billsTable).
		Columns("patient_id", "organization_id", "file_path", "file_name", "file_type", "status", "uploaded_at", "created_at").
		Values(out.PatientID, nullInt64(out.OrganizationID), out.FilePath, out.FileName, out.FileType, string(out.Status), out.UploadedAt, out.CreatedAt)
	id, err := r.db.insert(ctx, ib)
	if err != nil {
		r.log.Error("bill create failed", "patient_id", out.PatientID, "err", err)
		return nil, common.PersistenceError("create bill", err)
	}
	out.ID = id
	r.log.Info("bill created", "bill_id", id, "patient_id", out.PatientID, "file_type", out.FileType)
	return &out, nil
}

func (r *billRepo) GetByID(ctx context.Context, id int64) (*entity.Bill, error) {
	sel := r.db.builder().Select(billColumns...).
		From(r.db.table(billsTable)).
		Where(entsql.EQ("id", id))
	b, err := scanBill(r.db.queryRow(ctx, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundf("bill %d not found", id)
	}
	if err != nil {
		r.log.Error("bill get failed", "bill_id", id, "err", err)
		return nil, common.PersistenceError("get bill", err)
	}
	return b, nil
}

// List returns bills newest first.
func (r *billRepo) List(ctx context.Context, f BillFilter) ([]entity.Bill, error) {
	sel := r.db.builder().Select(billColumns...).From(r.db.table(billsTable))
	var preds []*entsql.Predicate
	if f.PatientID != nil {
		preds = append(preds, entsql.EQ("patient_id", *f.PatientID))
	}
	if f.OrganizationID != nil {
		preds = append(preds, entsql.EQ("organization_id", *f.OrganizationID))
	}
	if len(f.Statuses) > 0 {
		vals := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			vals[i] = string(s)
		}
		preds = append(preds, entsql.In("status", vals...))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}

	rows, err := r.db.query(ctx, sel)
	if err != nil {
		r.log.Error("bill list failed", "err", err)
		return nil, common.PersistenceError("list bills", err)
	}
	defer rows.Close()

	var out []entity.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, common.PersistenceError("scan bill", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, common.PersistenceError("list bills", err)
	}
	return out, nil
}

func (r *billRepo) UpdateStatus(ctx context.Context, id int64, status constants.BillStatus) error {
	ub := r.db.builder().Update(billsTable).
		Set("status", string(status)).
		Where(entsql.EQ("id", id))
	return r.execOne(ctx, ub, id, "update bill status")
}

func (r *billRepo) MarkCompleted(ctx context.Context, id int64, total float64, analyzedAt time.Time) error {
	ub := r.db.builder().Update(billsTable).
		Set("status", string(constants.BillStatusCompleted)).
		Set("total_amount", total).
		Set("analyzed_at", analyzedAt.UTC()).
		Where(entsql.EQ("id", id))
	if err := r.execOne(ctx, ub, id, "complete bill"); err != nil {
		return err
	}
	r.log.Info("bill completed", "bill_id", id, "total_amount", total)
	return nil
}

func (r *billRepo) ResetForReanalysis(ctx context.Context, id int64) error {
	ub := r.db.builder().Update(billsTable).
		Set("status", string(constants.BillStatusPending)).
		SetNull("total_amount").
		SetNull("analyzed_at").
		Where(entsql.EQ("id", id))
	return r.execOne(ctx, ub, id, "reset bill")
}

func (r *billRepo) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, r.db.builder().Delete(billsTable).Where(entsql.EQ("id", id)), id, "delete bill")
}

func (r *billRepo) execOne(ctx context.Context, q entsql.Querier, id int64, op string) error {
	n, err := r.db.exec(ctx, q)
	if err != nil {
		r.log.Error(op+" failed", "bill_id", id, "err", err)
		return common.PersistenceError(op, err)
	}
	if n == 0 {
		return common.NotFoundf("bill %d not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*entity.Bill, error) {
	var (
		b          entity.Bill
		orgID      sql.NullInt64
		total      sql.NullFloat64
		status     string
		analyzedAt sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.PatientID, &orgID, &b.FilePath, &b.FileName, &b.FileType,
		&total, &status, &b.UploadedAt, &analyzedAt, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.OrganizationID = int64Ptr(orgID)
	b.TotalAmount = float64Ptr(total)
	b.Status = constants.BillStatus(status)
	b.AnalyzedAt = timePtr(analyzedAt)
	b.UploadedAt = b.UploadedAt.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}
