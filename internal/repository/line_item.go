package repository

import (
	"context"
	"database/sql"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

const lineItemsTable = "line_items"

var lineItemColumns = []string{"id", "bill_id", "description", "code", "quantity", "unit_price", "total_price"}

type LineItemRepository interface {
	// CreateBulk inserts items in order and returns them with IDs assigned.
	CreateBulk(ctx context.Context, billID int64, items []entity.LineItem) ([]entity.LineItem, error)
	ListByBill(ctx context.Context, billID int64) ([]entity.LineItem, error)
	ListByBills(ctx context.Context, billIDs []int64) (map[int64][]entity.LineItem, error)
	DeleteByBill(ctx context.Context, billID int64) error
}

type lineItemRepo struct {
	db  *DB
	log *slog.Logger
}

func NewLineItemRepository(db *DB, log *slog.Logger) LineItemRepository {
	if log == nil {
		log = slog.Default()
	}
	return &lineItemRepo{db: db, log: log}
}

func (r *lineItemRepo) CreateBulk(ctx context.Context, billID int64, items []entity.LineItem) ([]entity.LineItem, error) {
	out := make([]entity.LineItem, 0, len(items))
	for _, it := range items {
		if it.Quantity == 0 {
			it.Quantity = 1.0
		}
		ib := r.db.builder().Insert(lineItemsTable).
			Columns("bill_id", "description", "code", "quantity", "unit_price", "total_price").
			Values(billID, it.Description, nullString(it.Code), it.Quantity, it.UnitPrice, it.TotalPrice)
		id, err := r.db.insert(ctx, ib)
		if err != nil {
			r.log.Error("line_item insert failed", "bill_id", billID, "err", err)
			return nil, common.PersistenceError("insert line items", err)
		}
		it.ID = id
		it.BillID = billID
		out = append(out, it)
	}
	r.log.Debug("line_items inserted", "bill_id", billID, "count", len(out))
	return out, nil
}

func (r *lineItemRepo) ListByBill(ctx context.Context, billID int64) ([]entity.LineItem, error) {
	grouped, err := r.ListByBills(ctx, []int64{billID})
	if err != nil {
		return nil, err
	}
	return grouped[billID], nil
}

// ListByBills groups line items by bill id, each group in insertion order.
func (r *lineItemRepo) ListByBills(ctx context.Context, billIDs []int64) (map[int64][]entity.LineItem, error) {
	out := make(map[int64][]entity.LineItem, len(billIDs))
	if len(billIDs) == 0 {
		return out, nil
	}
	ids := make([]any, len(billIDs))
	for i, id := range billIDs {
		ids[i] = id
	}
	sel := r.db.builder().Select(lineItemColumns...).
		From(r.db.table(lineItemsTable)).
		Where(entsql.In("bill_id", ids...)).
		OrderBy("bill_id", "id")
	rows, err := r.db.query(ctx, sel)
	if err != nil {
		r.log.Error("line_item list failed", "bills", len(billIDs), "err", err)
		return nil, common.PersistenceError("list line items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			li   entity.LineItem
			code sql.NullString
		)
		if err := rows.Scan(&li.ID, &li.BillID, &li.Description, &code, &li.Quantity, &li.UnitPrice, &li.TotalPrice); err != nil {
			return nil, common.PersistenceError("scan line item", err)
		}
		li.Code = stringPtr(code)
		out[li.BillID] = append(out[li.BillID], li)
	}
	if err := rows.Err(); err != nil {
		return nil, common.PersistenceError("list line items", err)
	}
	return out, nil
}

func (r *lineItemRepo) DeleteByBill(ctx context.Context, billID int64) error {
	if _, err := r.db.exec(ctx, r.db.builder().Delete(lineItemsTable).Where(entsql.EQ("bill_id", billID))); err != nil {
		return common.PersistenceError("delete line items", err)
	}
	return nil
}
