package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	mw "github.com/mohitagrawal/finsight/internal/api/middleware"
	"github.com/mohitagrawal/finsight/internal/api/response"
	"github.com/mohitagrawal/finsight/internal/pipeline"
	"github.com/mohitagrawal/finsight/internal/queue"
	"github.com/mohitagrawal/finsight/pkg/models"
)

// Submitter defines the interface the analyze handler depends on.
type Submitter interface {
	Submit(ctx context.Context, p pipeline.SubmitParams) (*models.Job, error)
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/analyze.
// Expects a multipart form with a "file" part and an optional "query" field.
// The response carries the job id for polling; analysis runs asynchronously.
func NewAnalyzeHandler(svc Submitter, maxFileSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"A file upload named 'file' is required", nil)
			return
		}
		defer file.Close()

		job, err := svc.Submit(r.Context(), pipeline.SubmitParams{
			Filename: header.Filename,
			Query:    r.FormValue("query"),
			ClientIP: mw.ClientIP(r),
			File:     file,
		})
		if err != nil {
			switch {
			case errors.Is(err, pipeline.ErrEmptyFile):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"Uploaded file is empty", nil)
			case errors.Is(err, queue.ErrUnavailable):
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
					"Could not accept the job right now, try again shortly", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, submitResponse{
			JobID:     job.ID.String(),
			Status:    job.Status,
			Filename:  job.Filename,
			Query:     job.Query,
			CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

type submitResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	Query     string `json:"query"`
	CreatedAt string `json:"created_at"`
}
