// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lxkalv/nrf24mtp/internal/config"
	"github.com/lxkalv/nrf24mtp/internal/diag"
	"github.com/lxkalv/nrf24mtp/internal/logging"
	"github.com/lxkalv/nrf24mtp/internal/radio"
	"github.com/lxkalv/nrf24mtp/internal/schedule"
	"github.com/lxkalv/nrf24mtp/internal/transfer"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, "")
	defer logCloser.Close()

	if cfg.PrintConfig {
		logger.Info("resolved config", "config", cfg)
		if _, err := diag.ReportDiskHeadroom(logger, cfg.FilePathRX); err != nil {
			logger.Warn("disk headroom check failed", "error", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// withTransferLog runs fn with a logger enriched to also write a dedicated
// DEBUG-level file under cfg.TransferLogDir, named after a fresh transfer
// ID. The file is removed on success and kept for post-mortem on failure.
// A no-op pass-through when cfg.TransferLogDir is empty.
func withTransferLog(cfg *config.Config, base *slog.Logger, role string, fn func(*slog.Logger) error) error {
	transferID := newTransferID()
	enriched, closer, _, err := logging.NewTransferLogger(base, cfg.TransferLogDir, role, transferID)
	if err != nil {
		return fmt.Errorf("opening transfer log: %w", err)
	}
	defer closer.Close()

	runErr := fn(enriched)
	if runErr == nil {
		logging.RemoveTransferLog(cfg.TransferLogDir, role, transferID)
	}
	return runErr
}

func newTransferID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return time.Now().UTC().Format("20060102T150405") + "-" + hex.EncodeToString(buf)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Sim {
		return runSim(ctx, cfg, logger)
	}
	return runHardware(ctx, cfg, logger)
}

// runSim drives both PTX and PRX in one process over an in-process
// radio.SimPair, for development and CI without an actual nRF24L01+ pair.
func runSim(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	seed := time.Now().UnixNano()
	sendResult, recvResult, err := transfer.RunLoopback(ctx, cfg.FilePathTX, cfg.FilePathRX, cfg.LossRate, 0, seed, cfg.KeepOutputs, logger)
	if err != nil {
		return err
	}
	logger.Info("sim transfer complete", "sent_bytes", sendResult.Bytes, "received_bytes", recvResult.Bytes,
		"output_path", recvResult.OutputPath)
	return nil
}

// runHardware builds a real radio.Device and drives exactly one role, as
// -mode selects. Since no GPIO/SPI backend is wired into this build,
// NewHardwareDevice always fails bring-up here; -sim is the only way to
// exercise a transfer end to end without real hardware.
func runHardware(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	dev, err := radio.NewHardwareDevice(cfg.CEPin)
	if err != nil {
		return fmt.Errorf("radio bring-up: %w", err)
	}
	defer dev.Close()

	dataRate, err := cfg.RadioDataRate()
	if err != nil {
		return err
	}
	paLevel, err := cfg.RadioPALevel()
	if err != nil {
		return err
	}
	rcfg := radio.Config{
		Channel:        byte(cfg.Channel),
		DataRate:       dataRate,
		PALevel:        paLevel,
		CRC:            cfg.RadioCRCLength(),
		AddressWidth:   5,
		RetransmitWait: uint16(cfg.RetransmissionDelay),
		RetransmitTry:  byte(cfg.RetransmissionTries),
	}
	if err := dev.Configure(rcfg); err != nil {
		return fmt.Errorf("radio configure: %w", err)
	}

	switch cfg.Mode {
	case "TX":
		return runTX(ctx, cfg, dev, logger)
	case "RX":
		return withTransferLog(cfg, logger, "rx", func(runLogger *slog.Logger) error {
			result, err := transfer.RunPRX(ctx, dev, cfg.FilePathRX, cfg.KeepOutputs, runLogger)
			if err != nil {
				return err
			}
			runLogger.Info("receive complete", "bytes", result.Bytes, "output_path", result.OutputPath)
			return nil
		})
	default:
		return fmt.Errorf("unsupported mode %q", cfg.Mode)
	}
}

// runTX performs one transfer, or — when -schedule is set — repeats it on
// a cron schedule until ctx is canceled.
func runTX(ctx context.Context, cfg *config.Config, dev radio.Device, logger *slog.Logger) error {
	runOnce := func(ctx context.Context) error {
		return withTransferLog(cfg, logger, "tx", func(runLogger *slog.Logger) error {
			result, err := transfer.RunPTX(ctx, dev, cfg.FilePathTX, cfg.S3Credentials(), runLogger)
			if err != nil {
				return err
			}
			runLogger.Info("send complete", "source", result.Source, "bytes", result.Bytes,
				"bursts_sent", result.Stats.BurstsSent, "failed_bursts", result.Stats.FailedBursts)
			return nil
		})
	}

	if cfg.Schedule == "" {
		return runOnce(ctx)
	}

	sched, err := schedule.New(cfg.Schedule, logger, runOnce)
	if err != nil {
		return fmt.Errorf("scheduling: %w", err)
	}
	sched.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	return nil
}
