// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package diag reports local host facts relevant to a transfer, logged once
// at start-up when -print-config is set.
package diag

import (
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskHeadroom holds the free-space figures for one mount point.
type DiskHeadroom struct {
	Path        string
	TotalBytes  uint64
	FreeBytes   uint64
	UsedPercent float64
}

// ReportDiskHeadroom collects disk usage for path (the RX sink directory,
// or "/" when unknown) and logs it, so a receiver about to accept a file
// can see whether it has room before the transfer starts.
func ReportDiskHeadroom(logger *slog.Logger, path string) (DiskHeadroom, error) {
	if path == "" {
		path = "/"
	}
	u, err := disk.Usage(path)
	if err != nil {
		return DiskHeadroom{}, fmt.Errorf("diag: reading disk usage for %s: %w", path, err)
	}

	h := DiskHeadroom{
		Path:        path,
		TotalBytes:  u.Total,
		FreeBytes:   u.Free,
		UsedPercent: u.UsedPercent,
	}
	logger.Info("disk headroom",
		"path", h.Path,
		"total_bytes", h.TotalBytes,
		"free_bytes", h.FreeBytes,
		"used_percent", h.UsedPercent,
	)
	return h, nil
}
