package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// PendingReconciler re-arms settlement timers for every PENDING order.
type PendingReconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Reconciler runs the pending-order sweep on a fixed interval so orders
// placed by other instances, or left behind by a crash, are settled.
type Reconciler struct {
	target PendingReconciler
	logger *slog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(target PendingReconciler, logger *slog.Logger) *Reconciler {
	return &Reconciler{target: target, logger: logger}
}

// Run executes a single sweep.
func (r *Reconciler) Run(ctx context.Context) {
	n, err := r.target.Reconcile(ctx)
	if err != nil {
		r.logger.Error("reconcile failed", slog.String("error", err.Error()))
		return
	}
	r.logger.Debug("reconcile complete", slog.Int("pending", n))
}

// RunLoop sweeps immediately and then on every interval until ctx is
// cancelled.
func (r *Reconciler) RunLoop(ctx context.Context, interval time.Duration) error {
	r.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconcile loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Run(ctx)
		}
	}
}
