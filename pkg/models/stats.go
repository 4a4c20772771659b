package models

// Stats is the aggregate view served by GET /api/v1/stats.
type Stats struct {
	JobsByStatus          map[string]int64 `json:"jobs_by_status"`
	AvgProcessingTimeSecs float64          `json:"avg_processing_time_secs"`
	SuccessRate           float64          `json:"success_rate"`
}
