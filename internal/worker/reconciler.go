package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mohitagrawal/finsight/internal/queue"
	"github.com/mohitagrawal/finsight/internal/store"
	"github.com/mohitagrawal/finsight/pkg/models"
)

const reconcileBatchSize = 100

// Reconciler is the periodic repair pass. It requeues dispatch messages whose
// lease lapsed (crashed worker) and promotes jobs whose result committed but
// whose completed transition did not.
type Reconciler struct {
	queue    queue.Queue
	store    store.Store
	interval time.Duration
}

func NewReconciler(q queue.Queue, st store.Store, interval time.Duration) *Reconciler {
	return &Reconciler{queue: q, store: st, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	moved, err := r.queue.RequeueExpired(ctx)
	if err != nil {
		slog.Error("requeue expired leases failed", "error", err)
	} else if moved > 0 {
		slog.Info("requeued expired dispatch messages", "count", moved)
	}

	ids, err := r.store.FindUnreconciled(ctx, reconcileBatchSize)
	if err != nil {
		slog.Error("scan for unreconciled jobs failed", "error", err)
		return
	}
	for _, id := range ids {
		if err := r.store.TransitionJob(ctx, id, models.JobStatusCompleted); err != nil {
			slog.Error("reconcile job failed", "job_id", id, "error", err)
			continue
		}
		slog.Info("reconciled job with orphaned result", "job_id", id)
	}
}
