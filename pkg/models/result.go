package models

import (
	"time"

	"github.com/google/uuid"
)

// Result holds the analysis output for a completed job. One row per job,
// written exactly once by the worker that completed the attempt; the unique
// constraint on job_id is the idempotency guard against queue redelivery.
// Filename and query are duplicated from the job row so a result can be
// served without a second lookup.
type Result struct {
	JobID          uuid.UUID `db:"job_id"          json:"job_id"`
	Filename       string    `db:"filename"        json:"filename"`
	Query          string    `db:"query"           json:"query"`
	Analysis       string    `db:"analysis"        json:"analysis"`
	ProcessingTime float64   `db:"processing_time" json:"processing_time"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}
