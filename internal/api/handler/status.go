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

// JobReader defines the interface the status handler depends on.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/analyze/{jobID}.
func NewStatusHandler(st JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"jobID must be a valid UUID", nil)
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

		response.JSON(w, jobToStatus(job))
	}
}

type statusResponse struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	Filename    string  `json:"filename"`
	Query       string  `json:"query"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

func jobToStatus(job *models.Job) statusResponse {
	resp := statusResponse{
		JobID:     job.ID.String(),
		Status:    job.Status,
		Filename:  job.Filename,
		Query:     job.Query,
		Error:     job.ErrorMessage,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		done := job.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &done
	}
	return resp
}
