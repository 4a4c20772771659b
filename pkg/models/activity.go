package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityRecord is append-only telemetry, one row per job attempt.
// Not user-facing; feeds the stats endpoint.
type ActivityRecord struct {
	JobID       uuid.UUID `db:"job_id"       json:"job_id"`
	ClientIP    *string   `db:"client_ip"    json:"client_ip,omitempty"`
	FileSize    *int64    `db:"file_size"    json:"file_size,omitempty"`
	QueryLength int       `db:"query_length" json:"query_length"`
	Success     bool      `db:"success"      json:"success"`
	Timestamp   time.Time `db:"timestamp"    json:"timestamp"`
}
