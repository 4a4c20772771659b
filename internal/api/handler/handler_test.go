package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mohitagrawal/finsight/internal/api/handler"
	"github.com/mohitagrawal/finsight/internal/pipeline"
	"github.com/mohitagrawal/finsight/internal/queue"
	"github.com/mohitagrawal/finsight/internal/store"
	"github.com/mohitagrawal/finsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxFileSize = 10 << 20

type stubSubmitter struct {
	job    *models.Job
	err    error
	gotReq *pipeline.SubmitParams
}

func (s *stubSubmitter) Submit(_ context.Context, p pipeline.SubmitParams) (*models.Job, error) {
	// Drain the part so the multipart reader is exercised like production.
	if p.File != nil {
		_, _ = io.Copy(io.Discard, p.File)
	}
	s.gotReq = &p
	if s.err != nil {
		return nil, s.err
	}
	return s.job, nil
}

type stubJobReader struct {
	job *models.Job
	err error
}

func (s *stubJobReader) GetJob(context.Context, uuid.UUID) (*models.Job, error) {
	return s.job, s.err
}

type stubResultReader struct {
	result    *models.Result
	resultErr error
	job       *models.Job
	jobErr    error
}

func (s *stubResultReader) GetResult(context.Context, uuid.UUID) (*models.Result, error) {
	return s.result, s.resultErr
}

func (s *stubResultReader) GetJob(context.Context, uuid.UUID) (*models.Job, error) {
	return s.job, s.jobErr
}

type stubLister struct {
	results   []*models.Result
	total     int
	err       error
	gotLimit  int
	gotOffset int
}

func (s *stubLister) ListResults(_ context.Context, limit, offset int) ([]*models.Result, int, error) {
	s.gotLimit, s.gotOffset = limit, offset
	return s.results, s.total, s.err
}

type stubStats struct {
	stats *models.Stats
	err   error
}

func (s *stubStats) GetStats(context.Context) (*models.Stats, error) {
	return s.stats, s.err
}

func sampleJob(status string) *models.Job {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &models.Job{
		ID:        uuid.New(),
		Filename:  "report.pdf",
		Query:     "What is the revenue trend?",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// multipartBody builds a multipart form with a file part and optional query field.
func multipartBody(t *testing.T, filename, content, query string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	if query != "" {
		require.NoError(t, mw.WriteField("query", query))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", rec.Body.String())
	return errObj["code"].(string)
}

func TestAnalyzeHandler_Accepted(t *testing.T) {
	job := sampleJob(models.JobStatusPending)
	svc := &stubSubmitter{job: job}
	h := handler.NewAnalyzeHandler(svc, testMaxFileSize)

	buf, contentType := multipartBody(t, "report.pdf", "%PDF-1.7", "What is the revenue trend?")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, job.ID.String(), data["job_id"])
	assert.Equal(t, models.JobStatusPending, data["status"])
	assert.Equal(t, "report.pdf", data["filename"])

	require.NotNil(t, svc.gotReq)
	assert.Equal(t, "report.pdf", svc.gotReq.Filename)
	assert.Equal(t, "What is the revenue trend?", svc.gotReq.Query)
}

func TestAnalyzeHandler_MissingFile(t *testing.T) {
	h := handler.NewAnalyzeHandler(&stubSubmitter{}, testMaxFileSize)

	buf, contentType := multipartBody(t, "", "", "some query")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestAnalyzeHandler_EmptyFile(t *testing.T) {
	svc := &stubSubmitter{err: pipeline.ErrEmptyFile}
	h := handler.NewAnalyzeHandler(svc, testMaxFileSize)

	buf, contentType := multipartBody(t, "empty.pdf", "x", "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestAnalyzeHandler_QueueUnavailable(t *testing.T) {
	svc := &stubSubmitter{err: fmt.Errorf("enqueueing dispatch message: %w", queue.ErrUnavailable)}
	h := handler.NewAnalyzeHandler(svc, testMaxFileSize)

	buf, contentType := multipartBody(t, "report.pdf", "%PDF-1.7", "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "QUEUE_UNAVAILABLE", errorCode(t, rec))
}

// routeWithParam dispatches through a chi router so URL params resolve.
func routeWithParam(pattern string, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get(pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStatusHandler_Found(t *testing.T) {
	job := sampleJob(models.JobStatusProcessing)
	h := handler.NewStatusHandler(&stubJobReader{job: job})

	rec := routeWithParam("/api/v1/analyze/{jobID}", h, "/api/v1/analyze/"+job.ID.String())

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, job.ID.String(), data["job_id"])
	assert.Equal(t, models.JobStatusProcessing, data["status"])
	assert.Equal(t, "2026-08-30T12:00:00Z", data["created_at"])
	_, hasCompleted := data["completed_at"]
	assert.False(t, hasCompleted, "non-terminal job has no completed_at")
}

func TestStatusHandler_FailedJobCarriesError(t *testing.T) {
	job := sampleJob(models.JobStatusFailed)
	msg := "analysis exceeded 600s execution budget"
	job.ErrorMessage = &msg
	done := job.CreatedAt.Add(10 * time.Minute)
	job.CompletedAt = &done
	h := handler.NewStatusHandler(&stubJobReader{job: job})

	rec := routeWithParam("/api/v1/analyze/{jobID}", h, "/api/v1/analyze/"+job.ID.String())

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, msg, data["error"])
	assert.Equal(t, "2026-08-30T12:10:00Z", data["completed_at"])
}

func TestStatusHandler_NotFound(t *testing.T) {
	h := handler.NewStatusHandler(&stubJobReader{err: store.ErrNotFound})
	rec := routeWithParam("/api/v1/analyze/{jobID}", h, "/api/v1/analyze/"+uuid.NewString())

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, rec))
}

func TestStatusHandler_BadUUID(t *testing.T) {
	h := handler.NewStatusHandler(&stubJobReader{})
	rec := routeWithParam("/api/v1/analyze/{jobID}", h, "/api/v1/analyze/not-a-uuid")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestResultHandler_Ready(t *testing.T) {
	jobID := uuid.New()
	res := &models.Result{
		JobID:          jobID,
		Filename:       "report.pdf",
		Query:          "q",
		Analysis:       "Revenue grew 12% year over year.",
		ProcessingTime: 3.25,
		CreatedAt:      time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC),
	}
	h := handler.NewResultHandler(&stubResultReader{result: res})

	rec := routeWithParam("/api/v1/analyze/{jobID}/result", h,
		"/api/v1/analyze/"+jobID.String()+"/result")

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Revenue grew 12% year over year.", data["analysis"])
	assert.Equal(t, 3.25, data["processing_time"])
}

func TestResultHandler_StillProcessing(t *testing.T) {
	job := sampleJob(models.JobStatusProcessing)
	h := handler.NewResultHandler(&stubResultReader{resultErr: store.ErrNotFound, job: job})

	rec := routeWithParam("/api/v1/analyze/{jobID}/result", h,
		"/api/v1/analyze/"+job.ID.String()+"/result")

	require.Equal(t, http.StatusAccepted, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, models.JobStatusProcessing, data["status"])
}

func TestResultHandler_FailedJob(t *testing.T) {
	job := sampleJob(models.JobStatusFailed)
	msg := "document is not a financial statement"
	job.ErrorMessage = &msg
	h := handler.NewResultHandler(&stubResultReader{resultErr: store.ErrNotFound, job: job})

	rec := routeWithParam("/api/v1/analyze/{jobID}/result", h,
		"/api/v1/analyze/"+job.ID.String()+"/result")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "ANALYSIS_FAILED", body["code"])
	assert.Equal(t, msg, body["message"])
}

func TestResultHandler_UnknownJob(t *testing.T) {
	h := handler.NewResultHandler(&stubResultReader{resultErr: store.ErrNotFound, jobErr: store.ErrNotFound})
	rec := routeWithParam("/api/v1/analyze/{jobID}/result", h,
		"/api/v1/analyze/"+uuid.NewString()+"/result")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, rec))
}

func TestHistoryHandler_Defaults(t *testing.T) {
	lister := &stubLister{total: 42}
	h := handler.NewHistoryHandler(lister)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, lister.gotLimit)
	assert.Equal(t, 0, lister.gotOffset)

	meta := decodeBody(t, rec)["meta"].(map[string]any)
	assert.Equal(t, float64(42), meta["total"])
	assert.Equal(t, float64(10), meta["limit"])
}

func TestHistoryHandler_ClampsParams(t *testing.T) {
	lister := &stubLister{}
	h := handler.NewHistoryHandler(lister)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=5000&offset=-3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, lister.gotLimit)
	assert.Equal(t, 0, lister.gotOffset)
}

func TestHistoryHandler_MalformedParams(t *testing.T) {
	h := handler.NewHistoryHandler(&stubLister{})

	for _, target := range []string{
		"/api/v1/history?limit=ten",
		"/api/v1/history?offset=x",
	} {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
	}
}

func TestHistoryHandler_ReturnsResults(t *testing.T) {
	jobID := uuid.New()
	lister := &stubLister{
		results: []*models.Result{{
			JobID:     jobID,
			Filename:  "report.pdf",
			Query:     "q",
			Analysis:  "stable",
			CreatedAt: time.Now().UTC(),
		}},
		total: 1,
	}
	h := handler.NewHistoryHandler(lister)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, jobID.String(), data[0].(map[string]any)["job_id"])
}

func TestStatsHandler(t *testing.T) {
	h := handler.NewStatsHandler(&stubStats{stats: &models.Stats{
		JobsByStatus:          map[string]int64{"completed": 7, "failed": 1},
		AvgProcessingTimeSecs: 2.5,
		SuccessRate:           87.5,
	}})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, 87.5, data["success_rate"])
	byStatus := data["jobs_by_status"].(map[string]any)
	assert.Equal(t, float64(7), byStatus["completed"])
}

func TestStatsHandler_StoreError(t *testing.T) {
	h := handler.NewStatsHandler(&stubStats{err: fmt.Errorf("connection refused")})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
}
