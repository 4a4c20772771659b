package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mohitagrawal/finsight/internal/pipeline"
	"github.com/mohitagrawal/finsight/internal/queue"
	"github.com/mohitagrawal/finsight/internal/store"
	"github.com/mohitagrawal/finsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	store.Store

	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.Job
	deleted []uuid.UUID
}

func newStubStore() *stubStore {
	return &stubStore{jobs: map[uuid.UUID]*models.Job{}}
}

func (s *stubStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *stubStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.jobs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubQueue struct {
	queue.Queue

	enqueueErr error
	enqueued   []queue.Message
}

func (q *stubQueue) Enqueue(_ context.Context, msg queue.Message) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, msg)
	return nil
}

func TestSubmit_CreatesJobAndEnqueues(t *testing.T) {
	st := newStubStore()
	q := &stubQueue{}
	sub := pipeline.NewSubmitter(st, q, t.TempDir())

	job, err := sub.Submit(context.Background(), pipeline.SubmitParams{
		Filename: "q3-earnings.pdf",
		Query:    "What is the operating margin trend?",
		ClientIP: "198.51.100.4",
		File:     strings.NewReader("%PDF-1.7 fake body"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "q3-earnings.pdf", job.Filename)
	assert.Equal(t, "What is the operating margin trend?", job.Query)
	assert.Contains(t, st.jobs, job.ID)

	require.Len(t, q.enqueued, 1)
	msg := q.enqueued[0]
	assert.Equal(t, job.ID, msg.JobID)
	assert.Equal(t, job.Query, msg.Query)
	assert.Equal(t, "q3-earnings.pdf", msg.Filename)
	assert.Equal(t, "198.51.100.4", msg.ClientIP)
	assert.Equal(t, int64(len("%PDF-1.7 fake body")), msg.FileSize)

	// Upload lands on disk, namespaced by job id, keeping the extension.
	assert.Contains(t, msg.FilePath, job.ID.String())
	assert.True(t, strings.HasSuffix(msg.FilePath, ".pdf"))
	body, err := os.ReadFile(msg.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake body", string(body))
}

func TestSubmit_BlankQueryGetsDefault(t *testing.T) {
	st := newStubStore()
	q := &stubQueue{}
	sub := pipeline.NewSubmitter(st, q, t.TempDir())

	job, err := sub.Submit(context.Background(), pipeline.SubmitParams{
		Filename: "report.pdf",
		Query:    "   ",
		File:     strings.NewReader("content"),
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultQuery, job.Query)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, pipeline.DefaultQuery, q.enqueued[0].Query)
}

func TestSubmit_EmptyFileRejected(t *testing.T) {
	st := newStubStore()
	q := &stubQueue{}
	dir := t.TempDir()
	sub := pipeline.NewSubmitter(st, q, dir)

	_, err := sub.Submit(context.Background(), pipeline.SubmitParams{
		Filename: "empty.pdf",
		Query:    "q",
		File:     strings.NewReader(""),
	})
	require.ErrorIs(t, err, pipeline.ErrEmptyFile)

	assert.Empty(t, st.jobs, "no job row for a rejected upload")
	assert.Empty(t, q.enqueued)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected upload must not leave a file behind")
}

func TestSubmit_EnqueueFailureRollsBack(t *testing.T) {
	st := newStubStore()
	q := &stubQueue{enqueueErr: fmt.Errorf("pushing dispatch message: %w", queue.ErrUnavailable)}
	dir := t.TempDir()
	sub := pipeline.NewSubmitter(st, q, dir)

	_, err := sub.Submit(context.Background(), pipeline.SubmitParams{
		Filename: "report.pdf",
		Query:    "q",
		File:     strings.NewReader("content"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrUnavailable), "broker failure must surface to the caller")

	// Compensation: the job row and the stored file are both gone.
	assert.Empty(t, st.jobs)
	assert.Len(t, st.deleted, 1)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_SuspiciousExtensionNormalized(t *testing.T) {
	st := newStubStore()
	q := &stubQueue{}
	sub := pipeline.NewSubmitter(st, q, t.TempDir())

	_, err := sub.Submit(context.Background(), pipeline.SubmitParams{
		Filename: "../../etc/passwd%00.exe../",
		Query:    "q",
		File:     strings.NewReader("content"),
	})
	require.NoError(t, err)
	require.Len(t, q.enqueued, 1)
	assert.True(t, strings.HasSuffix(q.enqueued[0].FilePath, ".pdf"),
		"untrusted extension falls back to .pdf")
}
