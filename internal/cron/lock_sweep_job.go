package cron

import (
	"context"
	"fmt"

	"github.com/mercaline/storefront-backend/pkg/logger"
)

// LockSweeper is the slice of the cart lock service the sweep job needs.
type LockSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// LockSweepJobParams configure the expired lock sweeper.
type LockSweepJobParams struct {
	Logger *logger.Logger
	Locks  LockSweeper
}

// NewLockSweepJob builds the cron job that flips overdue cart locks to
// expired so their reservations stop counting against available stock.
func NewLockSweepJob(params LockSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock sweeper required")
	}
	return &lockSweepJob{
		logg:  params.Logger,
		locks: params.Locks,
	}, nil
}

type lockSweepJob struct {
	logg  *logger.Logger
	locks LockSweeper
}

func (j *lockSweepJob) Name() string { return "cart-lock-sweep" }

func (j *lockSweepJob) Run(ctx context.Context) error {
	flipped, err := j.locks.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired locks: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": flipped})
	j.logg.Info(logCtx, "expired lock sweep complete")
	return nil
}
