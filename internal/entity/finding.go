package entity

import (
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
)

// Finding is one detected billing issue. Immutable after creation.
type Finding struct {
	ID                int64                 `json:"id"`
	BillID            int64                 `json:"bill_id"`
	LineItemID        *int64                `json:"line_item_id,omitempty"`
	Type              constants.FindingType `json:"type"`
	Severity          constants.Severity    `json:"severity"`
	Confidence        float64               `json:"confidence"`
	EstimatedSavings  float64               `json:"estimated_savings"`
	Explanation       string                `json:"explanation"`
	RecommendedAction string                `json:"recommended_action"`
	CreatedAt         time.Time             `json:"created_at"`
}
