package entity

// LineItem is a single billed service belonging to one bill.
// TotalPrice is stored independently and is not always Quantity*UnitPrice.
type LineItem struct {
	ID          int64   `json:"id"`
	BillID      int64   `json:"bill_id"`
	Description string  `json:"description"`
	Code        *string `json:"code,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
}
