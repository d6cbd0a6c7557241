package entity

import "time"

// ReaderTest is the job a task belongs to. TotalCount is nil until a
// producer registers how many tasks the job has.
type ReaderTest struct {
	ID             string     `json:"id"`
	TotalCount     *int       `json:"total_count,omitempty"`
	ProcessedCount int        `json:"processed_count"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (r *ReaderTest) Done() bool {
	return r.TotalCount != nil && r.ProcessedCount >= *r.TotalCount
}
