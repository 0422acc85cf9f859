package constants

// BillStatus is the lifecycle state stored on bills.status.
type BillStatus string

// Stable values (store these exact strings in DB).
const (
	BillStatusPending    BillStatus = "PENDING"
	BillStatusProcessing BillStatus = "PROCESSING"
	BillStatusCompleted  BillStatus = "COMPLETED"
	BillStatusFailed     BillStatus = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s BillStatus) Terminal() bool {
	return s == BillStatusCompleted || s == BillStatusFailed
}

// JobStatus is the canonical status for rows in analysis_jobs.
// It mirrors BillStatus and both are updated together.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
