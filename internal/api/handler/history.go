package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mohitagrawal/finsight/internal/api/response"
	"github.com/mohitagrawal/finsight/pkg/models"
)

// ResultLister defines the interface the history handler depends on.
type ResultLister interface {
	ListResults(ctx context.Context, limit, offset int) ([]*models.Result, int, error)
}

// NewHistoryHandler returns an http.HandlerFunc for GET /api/v1/history.
// Results are newest first; limit is clamped to [1,100] with a default of 10.
func NewHistoryHandler(st ResultLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(r, "limit", 10)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"limit must be an integer", nil)
			return
		}
		offset, ok := queryInt(r, "offset", 0)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"offset must be an integer", nil)
			return
		}

		if limit < 1 {
			limit = 1
		}
		if limit > 100 {
			limit = 100
		}
		if offset < 0 {
			offset = 0
		}

		results, total, err := st.ListResults(r.Context(), limit, offset)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		items := make([]resultResponse, 0, len(results))
		for _, res := range results {
			items = append(items, resultToResponse(res))
		}

		response.Collection(w, items, response.PaginationMeta{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		})
	}
}

// queryInt parses an integer query parameter, returning defaultVal when the
// parameter is absent and ok=false when it is present but malformed.
func queryInt(r *http.Request, name string, defaultVal int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal, true
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}
