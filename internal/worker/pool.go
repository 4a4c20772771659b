// Package worker runs the pool of executors that turn dispatch messages into
// results. Each executor holds at most one message at a time; backpressure is
// the queue buffering behind N busy executors.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohitagrawal/finsight/internal/analyzer"
	"github.com/mohitagrawal/finsight/internal/config"
	"github.com/mohitagrawal/finsight/internal/queue"
	"github.com/mohitagrawal/finsight/internal/store"
	"github.com/mohitagrawal/finsight/pkg/models"
)

// dequeueRetryDelay paces the executor loop when the broker is unreachable.
const dequeueRetryDelay = 2 * time.Second

// Pool is a fixed-size set of concurrent executors.
type Pool struct {
	queue    queue.Queue
	store    store.Store
	analyzer analyzer.Analyzer
	cfg      config.WorkerConfig
}

func NewPool(q queue.Queue, st store.Store, a analyzer.Analyzer, cfg config.WorkerConfig) *Pool {
	return &Pool{queue: q, store: st, analyzer: a, cfg: cfg}
}

// Run starts the executors and blocks until ctx is cancelled and all of them
// have drained their current attempt.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.executor(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) executor(ctx context.Context, id int) {
	log := slog.With("executor", id)
	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}
		p.process(ctx, log, d)
		if ctx.Err() != nil {
			return
		}
	}
}

// process runs one attempt end to end. The input file is removed on every
// exit path; the message is acked unless the store was unreachable, in which
// case the lease expires and the message is redelivered.
func (p *Pool) process(ctx context.Context, log *slog.Logger, d *queue.Delivery) {
	msg := d.Message
	log = log.With("job_id", msg.JobID)

	ack := false
	defer func() {
		removeFile(msg.FilePath)
		if !ack {
			return
		}
		if err := p.queue.Ack(ctx, d); err != nil {
			log.Error("ack failed", "error", err)
		}
	}()

	job, err := p.store.GetJob(ctx, msg.JobID)
	if errors.Is(err, store.ErrNotFound) {
		// The job row was rolled back after a failed submission; nothing to do.
		log.Warn("dispatch message for unknown job, discarding")
		ack = true
		return
	}
	if err != nil {
		log.Error("load job failed, leaving message for redelivery", "error", err)
		return
	}

	// Idempotency guard: a redelivered message racing a finished attempt is
	// discarded without re-executing.
	if models.Terminal(job.Status) {
		log.Info("job already terminal, discarding redelivered message", "status", job.Status)
		ack = true
		return
	}

	if err := p.store.ClaimJob(ctx, msg.JobID); err != nil {
		if errors.Is(err, store.ErrClaimConflict) || errors.Is(err, store.ErrNotFound) {
			log.Info("claim lost, discarding message", "error", err)
			ack = true
			return
		}
		log.Error("claim failed, leaving message for redelivery", "error", err)
		return
	}

	start := time.Now()
	analysis, runErr := p.runAnalysis(ctx, msg.FilePath, msg.Query)
	elapsed := time.Since(start)

	success := false
	recordActivity := true

	if runErr != nil {
		p.failJob(ctx, log, msg.JobID, runErr.Error())
		log.Info("attempt failed", "duration_ms", elapsed.Milliseconds(), "error", runErr)
	} else {
		res := &models.Result{
			JobID:          msg.JobID,
			Filename:       msg.Filename,
			Query:          msg.Query,
			Analysis:       analysis,
			ProcessingTime: elapsed.Seconds(),
			CreatedAt:      time.Now().UTC(),
		}
		switch err := p.store.CreateResult(ctx, res); {
		case err == nil:
			if terr := p.store.TransitionJob(ctx, msg.JobID, models.JobStatusCompleted); terr != nil {
				// The result is committed; the reconciliation sweep promotes
				// the job, so this attempt still counts as a success.
				log.Error("mark completed failed, reconciler will repair", "error", terr)
			}
			success = true
			log.Info("attempt completed", "duration_ms", elapsed.Milliseconds())
		case errors.Is(err, store.ErrResultExists):
			// A prior attempt already produced this result. Benign under
			// at-least-once delivery; do not double-count it.
			log.Info("result already recorded by a prior attempt, discarding")
			recordActivity = false
		default:
			p.failJob(ctx, log, msg.JobID, fmt.Sprintf("storing result: %v", err))
		}
	}

	if recordActivity {
		rec := &models.ActivityRecord{
			JobID:       msg.JobID,
			QueryLength: len(msg.Query),
			Success:     success,
			Timestamp:   time.Now().UTC(),
		}
		if msg.ClientIP != "" {
			rec.ClientIP = &msg.ClientIP
		}
		if msg.FileSize > 0 {
			rec.FileSize = &msg.FileSize
		}
		if err := p.store.RecordActivity(ctx, rec); err != nil {
			log.Error("record activity failed", "error", err)
		}
	}

	ack = true
}

// runAnalysis invokes the analyzer under the soft deadline and abandons the
// attempt at the hard deadline. The soft deadline lets cooperative providers
// wind down; a provider that ignores it is cut off when the hard budget
// expires, with a distinct timeout message so operators can tell budget
// exhaustion from a runtime error.
func (p *Pool) runAnalysis(ctx context.Context, filePath, query string) (string, error) {
	hardCtx, cancelHard := context.WithTimeout(ctx, p.cfg.HardTimeout)
	defer cancelHard()
	softCtx, cancelSoft := context.WithTimeout(hardCtx, p.cfg.SoftTimeout)
	defer cancelSoft()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", analyzer.ErrAnalysisFailed, r)}
			}
		}()
		text, err := p.analyzer.Analyze(softCtx, filePath, query)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if softCtx.Err() != nil {
				return "", p.timeoutError()
			}
			return "", fmt.Errorf("%w: %v", analyzer.ErrAnalysisFailed, out.err)
		}
		return out.text, nil
	case <-hardCtx.Done():
		// The goroutine is abandoned; its buffered send cannot block it.
		return "", p.timeoutError()
	}
}

func (p *Pool) timeoutError() error {
	return fmt.Errorf("analysis exceeded %.0fs execution budget", p.cfg.HardTimeout.Seconds())
}

func (p *Pool) failJob(ctx context.Context, log *slog.Logger, id uuid.UUID, msg string) {
	err := p.store.TransitionJob(ctx, id, models.JobStatusFailed, store.WithErrorMessage(msg))
	if err != nil {
		log.Error("mark failed failed", "error", err)
	}
}

// removeFile deletes the uploaded document. Idempotent: a file already gone
// (cleaned by a prior attempt) is not an error.
func removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("remove upload failed", "path", path, "error", err)
	}
}
