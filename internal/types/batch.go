package types

import "time"

// BatchStatus is the lifecycle state of a BatchJob.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// Terminal reports whether the job can no longer change.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// BatchItem is one input task of a batch job. ID is the stable key used to
// match results and skip already processed items on resume.
type BatchItem struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	TargetKey string `json:"target_key,omitempty"`
}

// BatchResult is the outcome of one BatchItem.
type BatchResult struct {
	ItemID      string    `json:"item_id"`
	Success     bool      `json:"success"`
	Payload     string    `json:"payload,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// BatchJob is a durable record of asynchronous batch processing.
// CompletedItems never decreases and never exceeds TotalItems.
type BatchJob struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Status         BatchStatus    `json:"status"`
	TotalItems     int            `json:"total_items"`
	CompletedItems int            `json:"completed_items"`
	Items          []BatchItem    `json:"items"`
	Results        []BatchResult  `json:"results,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// Pending returns the items that have no recorded result yet.
func (j *BatchJob) Pending() []BatchItem {
	done := make(map[string]bool, len(j.Results))
	for _, r := range j.Results {
		done[r.ItemID] = true
	}
	var out []BatchItem
	for _, it := range j.Items {
		if !done[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// BatchProgress is the pollable view of a job.
type BatchProgress struct {
	Status         BatchStatus `json:"status"`
	TotalItems     int         `json:"total_items"`
	CompletedItems int         `json:"completed_items"`
}
