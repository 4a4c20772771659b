package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job tracks one async document analysis. The API returns a job_id on
// POST /api/v1/analyze; the client polls GET /api/v1/analyze/{job_id} until
// status is completed or failed.
type Job struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	Filename     string     `db:"filename"      json:"filename"`
	Query        string     `db:"query"         json:"query"`
	Status       string     `db:"status"        json:"status"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}

// Terminal reports whether status is an end state. Messages redelivered for a
// terminal job are discarded without re-executing.
func Terminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

var validTransitions = map[string][]string{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// ValidTransition reports whether a job may move from one status to another.
// The state machine never regresses: pending -> processing -> {completed, failed}.
// pending -> failed is also allowed so submission compensation can fail a job
// whose dispatch message was never accepted by the queue.
func ValidTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
