package handler

import (
	"context"
	"net/http"

	"github.com/mohitagrawal/finsight/internal/api/response"
	"github.com/mohitagrawal/finsight/pkg/models"
)

// StatsReader defines the interface the stats handler depends on.
type StatsReader interface {
	GetStats(ctx context.Context) (*models.Stats, error)
}

// NewStatsHandler returns an http.HandlerFunc for GET /api/v1/stats.
func NewStatsHandler(st StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.GetStats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.JSON(w, stats)
	}
}
