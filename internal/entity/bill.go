package entity

import (
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
)

// Bill represents one uploaded billing document and its analysis state.
type Bill struct {
	ID             int64                `json:"id"`
	PatientID      int64                `json:"patient_id"`
	OrganizationID *int64               `json:"organization_id,omitempty"`
	FilePath       string               `json:"file_path"`
	FileName       string               `json:"file_name"`
	FileType       string               `json:"file_type"`
	TotalAmount    *float64             `json:"total_amount,omitempty"`
	Status         constants.BillStatus `json:"status"`
	UploadedAt     time.Time            `json:"uploaded_at"`
	AnalyzedAt     *time.Time           `json:"analyzed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// BillDetail is a bill together with its derived records.
type BillDetail struct {
	Bill      Bill         `json:"bill"`
	Job       *AnalysisJob `json:"job,omitempty"`
	LineItems []LineItem   `json:"line_items"`
	Findings  []Finding    `json:"findings"`
}

// TotalSavings sums estimated savings over the detail's findings.
func (d BillDetail) TotalSavings() float64 {
	var s float64
	for _, f := range d.Findings {
		s += f.EstimatedSavings
	}
	return s
}
