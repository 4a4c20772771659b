package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mohitagrawal/finsight/internal/api/response"
	"github.com/mohitagrawal/finsight/internal/store"
	"github.com/mohitagrawal/finsight/pkg/models"
)

// ResultReader defines the interface the result handler depends on. The job
// row is consulted when no result exists, to tell "not done yet" from
// "failed" from "never existed".
type ResultReader interface {
	GetResult(ctx context.Context, jobID uuid.UUID) (*models.Result, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// NewResultHandler returns an http.HandlerFunc for
// GET /api/v1/analyze/{jobID}/result.
func NewResultHandler(st ResultReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"jobID must be a valid UUID", nil)
			return
		}

		res, err := st.GetResult(r.Context(), jobID)
		if err == nil {
			response.JSON(w, resultToResponse(res))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		job, err := st.GetJob(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND",
					"No job with that id", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if job.Status == models.JobStatusFailed {
			detail := "analysis failed"
			if job.ErrorMessage != nil {
				detail = *job.ErrorMessage
			}
			response.Error(w, http.StatusInternalServerError, "ANALYSIS_FAILED", detail, nil)
			return
		}

		// Non-terminal: the client should poll again later.
		response.Accepted(w, map[string]string{
			"job_id": jobID.String(),
			"status": job.Status,
		})
	}
}

type resultResponse struct {
	JobID          string  `json:"job_id"`
	Filename       string  `json:"filename"`
	Query          string  `json:"query"`
	Analysis       string  `json:"analysis"`
	ProcessingTime float64 `json:"processing_time"`
	CreatedAt      string  `json:"created_at"`
}

func resultToResponse(res *models.Result) resultResponse {
	return resultResponse{
		JobID:          res.JobID.String(),
		Filename:       res.Filename,
		Query:          res.Query,
		Analysis:       res.Analysis,
		ProcessingTime: res.ProcessingTime,
		CreatedAt:      res.CreatedAt.UTC().Format(time.RFC3339),
	}
}
