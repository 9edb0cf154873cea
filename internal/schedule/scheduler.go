// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package schedule repeats a PTX transfer on a cron schedule, when the
// caller opted into the -schedule flag instead of a single one-shot run.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Result captures the outcome of one scheduled transfer attempt.
type Result struct {
	Status   string // "completed", "failed", "skipped"
	Duration time.Duration
	Err      error
}

// Scheduler re-runs a single transfer function on a cron schedule, skipping
// a tick if the previous run is still in flight rather than overlapping it —
// the protocol is one-sender/one-receiver/one-direction per run, never N
// concurrent transfers.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	running bool

	LastResult *Result
}

// New builds a Scheduler that invokes runFn on every tick of cronExpr.
func New(cronExpr string, logger *slog.Logger, runFn func(ctx context.Context) error) (*Scheduler, error) {
	s := &Scheduler{logger: logger}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(cronExpr, func() { s.tick(runFn) }); err != nil {
		return nil, fmt.Errorf("schedule: adding cron job for %q: %w", cronExpr, err)
	}
	s.cron = c
	return s, nil
}

// Start begins firing ticks in the background.
func (s *Scheduler) Start() {
	s.logger.Info("transfer scheduler started")
	s.cron.Start()
}

// Stop stops the scheduler and waits for any in-flight tick to finish, or
// for ctx to expire first.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("transfer scheduler stopping")
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("transfer scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("transfer scheduler stop timed out")
	}
}

func (s *Scheduler) tick(runFn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("transfer already running, skipping scheduled tick")
		s.LastResult = &Result{Status: "skipped"}
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("scheduled transfer triggered")
	start := time.Now()
	err := runFn(context.Background())
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("scheduled transfer failed", "error", err, "duration", duration)
		s.LastResult = &Result{Status: "failed", Duration: duration, Err: err}
		return
	}
	s.logger.Info("scheduled transfer completed", "duration", duration)
	s.LastResult = &Result{Status: "completed", Duration: duration}
}
