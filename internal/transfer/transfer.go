// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package transfer wires the presentation, transport, and link layers into
// the two end-to-end pipelines a run performs: PTX (read → paginate →
// compress → packetize → send) and PRX (receive → reassemble → decompress →
// persist).
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lxkalv/nrf24mtp/internal/link"
	"github.com/lxkalv/nrf24mtp/internal/presentation"
	"github.com/lxkalv/nrf24mtp/internal/radio"
	"github.com/lxkalv/nrf24mtp/internal/storage"
	"github.com/lxkalv/nrf24mtp/internal/transport"
)

// SendResult summarizes one PTX run.
type SendResult struct {
	Source string
	Bytes  int
	Stats  link.Stats
}

// RunPTX resolves the source file, runs it through
// paginate → compress → packetize, and drives dev as the sender.
//
//	Storage.ResolveInput → Paginate → CompressPages → BuildStream → Sender.Run
func RunPTX(ctx context.Context, dev radio.Device, filePathTX string, s3Creds storage.S3Credentials, logger *slog.Logger) (SendResult, error) {
	data, source, err := storage.ResolveInput(ctx, filePathTX, s3Creds)
	if err != nil {
		return SendResult{}, fmt.Errorf("transfer: resolving input: %w", err)
	}
	logger.Info("input resolved", "source", source, "bytes", len(data))

	pages, err := presentation.Paginate(data, presentation.NumberOfPages)
	if err != nil {
		return SendResult{}, fmt.Errorf("transfer: paginating: %w", err)
	}

	blobs, err := presentation.CompressPages(pages)
	if err != nil {
		return SendResult{}, fmt.Errorf("transfer: compressing pages: %w", err)
	}

	stream, err := transport.BuildStream(blobs)
	if err != nil {
		return SendResult{}, fmt.Errorf("transfer: packetizing: %w", err)
	}

	sender := link.NewSender(dev, logger)
	stats, err := sender.Run(ctx, stream)
	if err != nil {
		return SendResult{}, fmt.Errorf("transfer: sending: %w", err)
	}

	return SendResult{Source: source, Bytes: len(data), Stats: stats}, nil
}

// ReceiveResult summarizes one PRX run.
type ReceiveResult struct {
	OutputPath string
	Bytes      int
}

// RunPRX drives dev as the receiver, then reassembles, decompresses, and
// persists the result under outputDir. When keepOutputs is positive, older
// outputs beyond that count are pruned after a successful write.
//
//	Receiver.Run → Reassemble → DecompressPages → AtomicWriter.WriteFile → Rotate
func RunPRX(ctx context.Context, dev radio.Device, outputDir string, keepOutputs int, logger *slog.Logger) (ReceiveResult, error) {
	receiver := link.NewReceiver(dev, logger)
	results, err := receiver.Run(ctx)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("transfer: receiving: %w", err)
	}

	blobs := transport.Reassemble(results)

	data, err := presentation.DecompressPages(blobs)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("transfer: decompressing pages: %w", err)
	}

	writer, err := storage.NewAtomicWriter(outputDir)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("transfer: preparing output directory: %w", err)
	}
	path, err := writer.WriteFile(data)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("transfer: persisting output: %w", err)
	}
	logger.Info("output written", "path", path, "bytes", len(data))

	if keepOutputs > 0 {
		if err := storage.Rotate(outputDir, keepOutputs); err != nil {
			logger.Warn("pruning old outputs failed", "error", err)
		}
	}

	return ReceiveResult{OutputPath: path, Bytes: len(data)}, nil
}

// RunLoopback runs PTX and PRX concurrently over an in-process radio.SimPair,
// used by -sim mode and by tests exercising the full pipeline without
// separate processes on separate radios.
func RunLoopback(ctx context.Context, filePathTX, outputDir string, lossRate, corruptRate float64, seed int64, keepOutputs int, logger *slog.Logger) (SendResult, ReceiveResult, error) {
	tx, rx := radio.NewSimPair(lossRate, corruptRate, seed)
	defer tx.Close()
	defer rx.Close()

	type sendOutcome struct {
		result SendResult
		err    error
	}
	sendDone := make(chan sendOutcome, 1)
	go func() {
		result, err := RunPTX(ctx, tx, filePathTX, storage.S3Credentials{}, logger.With("role", "PTX"))
		sendDone <- sendOutcome{result, err}
	}()

	recvResult, recvErr := RunPRX(ctx, rx, outputDir, keepOutputs, logger.With("role", "PRX"))
	sent := <-sendDone

	if sent.err != nil {
		return SendResult{}, ReceiveResult{}, sent.err
	}
	if recvErr != nil {
		return SendResult{}, ReceiveResult{}, recvErr
	}
	return sent.result, recvResult, nil
}
