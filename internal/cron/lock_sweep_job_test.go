package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/mercaline/storefront-backend/pkg/logger"
)

type fakeSweeper struct {
	flipped int64
	err     error
	calls   int
}

func (f *fakeSweeper) Sweep(context.Context) (int64, error) {
	f.calls++
	return f.flipped, f.err
}

func TestLockSweepJobRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{flipped: 3}
	job, err := NewLockSweepJob(LockSweepJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Locks:  sweeper,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "cart-lock-sweep" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected 1 sweep call, got %d", sweeper.calls)
	}
}

func TestLockSweepJobPropagatesError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job, err := NewLockSweepJob(LockSweepJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Locks:  sweeper,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLockSweepJobRequiresDeps(t *testing.T) {
	if _, err := NewLockSweepJob(LockSweepJobParams{Locks: &fakeSweeper{}}); err == nil {
		t.Fatal("expected error for missing logger")
	}
	if _, err := NewLockSweepJob(LockSweepJobParams{Logger: logger.New(logger.Options{ServiceName: "t"})}); err == nil {
		t.Fatal("expected error for missing sweeper")
	}
}
