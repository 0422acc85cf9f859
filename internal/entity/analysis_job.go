package entity

import (
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
)

// AnalysisJob tracks processing metadata for exactly one bill.
type AnalysisJob struct {
	ID           int64               `json:"id"`
	BillID       int64               `json:"bill_id"`
	Status       constants.JobStatus `json:"status"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	Attempts     int                 `json:"attempts"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
