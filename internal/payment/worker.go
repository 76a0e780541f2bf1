package payment

import (
	"context"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/logger"
	"github.com/antonminaichev/shop-settlement/internal/types/transaction"
)

type Reconciler interface {
	Reconcile(ctx context.Context, ref string) error
}

type Poller interface {
	ListForPolling(ctx context.Context) ([]transaction.Transaction, error)
}

func workerLoop(ctx context.Context, id int, jobs <-chan string, svc Reconciler) {
	log := logger.Log.With("worker", id)
	log.Debug("reconcile worker started")
	for {
		select {
		case <-ctx.Done():
			log.Debug("reconcile worker stopped")
			return

		case ref, ok := <-jobs:
			if !ok {
				log.Debug("jobs channel closed")
				return
			}
			if err := svc.Reconcile(ctx, ref); err != nil {
				log.Warn("reconcile failed", "reference", ref, "error", err)
				continue
			}
			log.Debug("reconciled", "reference", ref)
		}
	}
}

// DispatcherLoop feeds stale pending references to a fixed pool of workers
// on every tick. References that do not fit into the job queue are picked up
// on a later tick.
func DispatcherLoop(
	ctx context.Context,
	poller Poller,
	svc Reconciler,
	workerCount int,
	interval time.Duration,
) {
	jobs := make(chan string, workerCount*3)

	for i := 1; i <= workerCount; i++ {
		go workerLoop(ctx, i, jobs, svc)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Log.Info("reconcile dispatcher started", "workers", workerCount, "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("reconcile dispatcher stopping")
			close(jobs)
			return
		case <-ticker.C:
			pending, err := poller.ListForPolling(ctx)
			if err != nil {
				logger.Log.Error("list pending transactions", "error", err)
				continue
			}
			if len(pending) == 0 {
				continue
			}
			logger.Log.Info("dispatching stale transactions", "count", len(pending))
			for _, tx := range pending {
				select {
				case jobs <- tx.Reference:
				default:
					logger.Log.Warn("jobs channel full, skipping", "reference", tx.Reference)
				}
			}
		}
	}
}
