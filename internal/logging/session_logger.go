// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler is a slog.Handler that dispatches every record to two
// handlers. Used by NewTransferLogger to write simultaneously to the global
// handler and a transfer-dedicated log file.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	// Check Enabled() on each handler individually so DEBUG records aren't
	// sent to a primary handler configured for INFO or above.
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// Write errors on the transfer log must not take down the global log.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewTransferLogger builds a logger that writes both to the base (global)
// logger and to a file dedicated to one PTX/PRX run:
//
//	{transferLogDir}/{role}/{transferID}.log
//
// Returns the enriched logger, an io.Closer for the dedicated file, and its
// path (joined onto transferLogDir, so relative if transferLogDir is). The Closer must be called (defer) when the run ends.
//
// If transferLogDir is empty, returns the base logger unmodified (no-op).
func NewTransferLogger(baseLogger *slog.Logger, transferLogDir, role, transferID string) (*slog.Logger, io.Closer, string, error) {
	if transferLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(transferLogDir, role)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating transfer log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, transferID+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening transfer log file %s: %w", logPath, err)
	}

	// The per-transfer file always uses JSON at DEBUG for maximum capture.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined), f, logPath, nil
}

// RemoveTransferLog removes the log file of a run that finished successfully.
// No-op if transferLogDir is empty or the file doesn't exist.
func RemoveTransferLog(transferLogDir, role, transferID string) {
	if transferLogDir == "" {
		return
	}
	logPath := filepath.Join(transferLogDir, role, transferID+".log")
	os.Remove(logPath)
}
