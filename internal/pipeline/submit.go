// Package pipeline holds the submission side of the analysis pipeline:
// persist a pending job and hand its dispatch message to the queue as one
// logical operation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohitagrawal/finsight/internal/queue"
	"github.com/mohitagrawal/finsight/internal/store"
	"github.com/mohitagrawal/finsight/pkg/models"
)

// DefaultQuery is used when a submission leaves the query blank.
const DefaultQuery = "Analyze this financial document for investment insights"

// ErrEmptyFile rejects submissions whose upload carries no bytes.
var ErrEmptyFile = errors.New("uploaded file is empty")

// SubmitParams is one validated submission.
type SubmitParams struct {
	Filename string
	Query    string
	ClientIP string
	File     io.Reader
}

// Submitter creates jobs and enqueues their dispatch messages.
type Submitter struct {
	store     store.Store
	queue     queue.Queue
	uploadDir string
}

func NewSubmitter(st store.Store, q queue.Queue, uploadDir string) *Submitter {
	return &Submitter{store: st, queue: q, uploadDir: uploadDir}
}

// Submit stores the upload, creates a pending job, and enqueues its dispatch
// message. Create and enqueue are one logical operation: if the queue refuses
// the message, the job row and the stored file are rolled back and the job id
// is never handed to the client, so a returned job is always a submitted job.
func (s *Submitter) Submit(ctx context.Context, p SubmitParams) (*models.Job, error) {
	jobID := uuid.New()

	path, size, err := s.saveUpload(jobID, p.Filename, p.File)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(p.Query)
	if query == "" {
		query = DefaultQuery
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        jobID,
		Filename:  p.Filename,
		Query:     query,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		removeUpload(path)
		return nil, fmt.Errorf("creating job: %w", err)
	}

	msg := queue.Message{
		JobID:    jobID,
		FilePath: path,
		Query:    query,
		Filename: p.Filename,
		ClientIP: p.ClientIP,
		FileSize: size,
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		// Compensation: without a dispatch message the job would never
		// resolve, so take the row back out rather than strand it.
		if derr := s.store.DeleteJob(ctx, jobID); derr != nil {
			slog.Error("compensating job delete failed", "job_id", jobID, "error", derr)
		}
		removeUpload(path)
		return nil, fmt.Errorf("enqueueing dispatch message: %w", err)
	}

	return job, nil
}

// saveUpload writes the upload under the data dir, namespaced by job id so
// concurrent submissions of the same filename never collide.
func (s *Submitter) saveUpload(jobID uuid.UUID, filename string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating upload dir: %w", err)
	}

	path := filepath.Join(s.uploadDir, fmt.Sprintf("financial_document_%s%s", jobID, safeExt(filename)))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating upload file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		removeUpload(path)
		return "", 0, fmt.Errorf("writing upload: %w", err)
	}
	if size == 0 {
		removeUpload(path)
		return "", 0, ErrEmptyFile
	}
	return path, size, nil
}

// safeExt keeps the original extension when it looks like one, defaulting to
// .pdf to match the document type the analyzer expects.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 8 {
		return ".pdf"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".pdf"
		}
	}
	return ext
}

func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("remove upload failed", "path", path, "error", err)
	}
}
