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

const findingsTable = "findings"

var findingColumns = []string{
	"id", "bill_id", "line_item_id", "type", "severity", "confidence",
	"estimated_savings", "explanation", "recommended_action", "created_at",
}

type FindingRepository interface {
	CreateBulk(ctx context.Context, billID int64, findings []entity.Finding) ([]entity.Finding, error)
	GetByID(ctx context.Context, billID, id int64) (*entity.Finding, error)
	ListByBill(ctx context.Context, billID int64) ([]entity.Finding, error)
	// ListByBills returns findings for all given bills, grouped by bill id.
	ListByBills(ctx context.Context, billIDs []int64) (map[int64][]entity.Finding, error)
	DeleteByBill(ctx context.Context, billID int64) error
}

type findingRepo struct {
	db  *DB
	log *slog.Logger
}

func NewFindingRepository(db *DB, log *slog.Logger) FindingRepository {
	if log == nil {
		log = slog.Default()
	}
	return &findingRepo{db: db, log: log}
}

func (r *findingRepo) CreateBulk(ctx context.Context, billID int64, findings []entity.Finding) ([]entity.Finding, error) {
	now := time.Now().UTC()
	out := make([]entity.Finding, 0, len(findings))
	for _, f := range findings {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		ib := r.db.builder().Insert(findingsTable).
			Columns("bill_id", "line_item_id", "type", "severity", "confidence",
				"estimated_savings", "explanation", "recommended_action", "created_at").
			Values(billID, nullInt64(f.LineItemID), string(f.Type), string(f.Severity), f.Confidence,
				f.EstimatedSavings, f.Explanation, f.RecommendedAction, f.CreatedAt)
		id, err := r.db.insert(ctx, ib)
		if err != nil {
			r.log.Error("finding insert failed", "bill_id", billID, "err", err)
			return nil, common.PersistenceError("insert findings", err)
		}
		f.ID = id
		f.BillID = billID
		out = append(out, f)
	}
	r.log.Debug("findings inserted", "bill_id", billID, "count", len(out))
	return out, nil
}

func (r *findingRepo) GetByID(ctx context.Context, billID, id int64) (*entity.Finding, error) {
	sel := r.db.builder().Select(findingColumns...).
		From(r.db.table(findingsTable)).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("bill_id", billID)))
	f, err := scanFinding(r.db.queryRow(ctx, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundf("finding %d not found on bill %d", id, billID)
	}
	if err != nil {
		return nil, common.PersistenceError("get finding", err)
	}
	return f, nil
}

func (r *findingRepo) ListByBill(ctx context.Context, billID int64) ([]entity.Finding, error) {
	grouped, err := r.ListByBills(ctx, []int64{billID})
	if err != nil {
		return nil, err
	}
	return grouped[billID], nil
}

func (r *findingRepo) ListByBills(ctx context.Context, billIDs []int64) (map[int64][]entity.Finding, error) {
	out := make(map[int64][]entity.Finding, len(billIDs))
	if len(billIDs) == 0 {
		return out, nil
	}
	ids := make([]any, len(billIDs))
	for i, id := range billIDs {
		ids[i] = id
	}
	sel := r.db.builder().Select(findingColumns...).
		From(r.db.table(findingsTable)).
		Where(entsql.In("bill_id", ids...)).
		OrderBy("bill_id", "id")
	rows, err := r.db.query(ctx, sel)
	if err != nil {
		r.log.Error("finding list failed", "bills", len(billIDs), "err", err)
		return nil, common.PersistenceError("list findings", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, common.PersistenceError("scan finding", err)
		}
		out[f.BillID] = append(out[f.BillID], *f)
	}
	if err := rows.Err(); err != nil {
		return nil, common.PersistenceError("list findings", err)
	}
	return out, nil
}

func (r *findingRepo) DeleteByBill(ctx context.Context, billID int64) error {
	if _, err := r.db.exec(ctx, r.db.builder().Delete(findingsTable).Where(entsql.EQ("bill_id", billID))); err != nil {
		return common.PersistenceError("delete findings", err)
	}
	return nil
}

func scanFinding(row rowScanner) (*entity.Finding, error) {
	var (
		f          entity.Finding
		lineItemID sql.NullInt64
		typ, sev   string
	)
	if err := row.Scan(&f.ID, &f.BillID, &lineItemID, &typ, &sev, &f.Confidence,
		&f.EstimatedSavings, &f.Explanation, &f.RecommendedAction, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.LineItemID = int64Ptr(lineItemID)
	f.Type = constants.FindingType(typ)
	f.Severity = constants.Severity(sev)
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}
