package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the background maintenance loops: the pending-order
// reconcile sweep and, when configured, the cold-storage archiver.
type Orchestrator struct {
	reconciler        *Reconciler
	archiver          *Archiver // nil disables archival
	reconcileInterval time.Duration
	archiveCron       string
	logger            *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	reconciler *Reconciler,
	archiver *Archiver,
	reconcileInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		reconciler:        reconciler,
		archiver:          archiver,
		reconcileInterval: reconcileInterval,
		archiveCron:       archiveCron,
		logger:            logger,
	}
}

// Run starts every loop in an errgroup and blocks until ctx is cancelled or
// one of them fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("reconcile_interval", o.reconcileInterval),
		slog.Bool("archive", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.reconciler.RunLoop(ctx, o.reconcileInterval)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("reconciler: %w", err)
	})

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
