// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package link

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/lxkalv/nrf24mtp/internal/radio"
)

// Receiver state machine states, exported for logging and tests.
const (
	RStateWaitTransferInfo = "wait_transfer_info"
	RStateReceiveData      = "receive_data"
	RStateDone             = "done"
)

var (
	// ErrUnexpectedControlFrame is returned when TransferInfo arrives a
	// second time mid-transfer.
	ErrUnexpectedControlFrame = errors.New("link: unexpected control frame mid-transfer")
)

// acceptedTriple is the (page, burst, chunk) coordinate of the last DataFrame
// this receiver accepted, used to recognize a hardware auto-retransmit of an
// already-accepted chunk (the sender's original ACK was lost) as a duplicate
// rather than as corruption.
type acceptedTriple struct {
	page, burst, chunk uint8
	valid              bool
}

// PageResult is the receiver's reconstruction of one page: its raw
// concatenated bytes and how many bursts it assembled. The receiver cannot
// know whether the sender accepted its checksum ACK (that policy,
// advance-and-count, lives entirely on the sender side).
type PageResult struct {
	Data       []byte
	BurstsSeen int
}

// Receiver drives a radio.Device through the PRX state machine: it waits
// for TransferInfo, then accepts DataFrames in strict order, staging a
// per-burst SHA-256 into the hardware ACK payload right after the burst's
// last chunk arrives, and clearing it once the next burst begins.
type Receiver struct {
	dev    radio.Device
	logger *slog.Logger

	state    atomic.Value // string
	accepted acceptedTriple
}

// NewReceiver wraps dev (already Configure'd by the caller) into a Receiver.
func NewReceiver(dev radio.Device, logger *slog.Logger) *Receiver {
	r := &Receiver{dev: dev, logger: logger.With("component", "link.receiver")}
	r.state.Store(RStateWaitTransferInfo)
	return r
}

// State returns the receiver's current state, safe to call concurrently.
func (r *Receiver) State() string {
	return r.state.Load().(string)
}

// Run blocks until a complete transfer (TransferInfo through
// TransferFinish) has been received, returning one PageResult per page
// named in TransferInfo.
func (r *Receiver) Run(ctx context.Context) ([]PageResult, error) {
	r.setState(RStateWaitTransferInfo)
	descriptors, err := r.waitTransferInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("link: waiting for transfer info: %w", err)
	}

	results := make([]PageResult, len(descriptors))
	r.setState(RStateReceiveData)

	for pageID, pd := range descriptors {
		if pd.Empty() {
			continue
		}
		buf := make([]byte, 0, pd.BurstsInPage*BurstWidth)
		for burstID := 0; burstID < pd.BurstsInPage; burstID++ {
			chunkCount := pd.BurstCount(burstID)
			burstBuf, err := r.receiveBurst(ctx, uint8(pageID), uint8(burstID), chunkCount, pd.ChunkSize)
			if err != nil {
				return results, fmt.Errorf("link: receiving page %d burst %d: %w", pageID, burstID, err)
			}
			buf = append(buf, burstBuf...)
			results[pageID].BurstsSeen++
		}
		results[pageID].Data = buf
	}

	if err := r.waitFinish(ctx); err != nil {
		return results, fmt.Errorf("link: waiting for transfer finish: %w", err)
	}
	r.setState(RStateDone)
	r.logger.Info("transfer complete", "pages", len(results))
	return results, nil
}

func (r *Receiver) waitTransferInfo(ctx context.Context) ([]PageDescriptor, error) {
	for {
		raw, err := r.dev.Receive(ctx)
		if err != nil {
			return nil, err
		}
		kind, err := ClassifyFrame(raw)
		if err != nil {
			r.logger.Warn("dropping unrecognized frame while waiting for transfer info", "error", err)
			continue
		}
		if kind != KindTransferInfo {
			continue
		}
		info, err := DecodeTransferInfoFrame(raw)
		if err != nil {
			return nil, err
		}
		return info.Pages, nil
	}
}

// receiveBurst accepts exactly chunkCount DataFrames in order for
// (pageID, burstID), staging the burst's SHA-256 as the ACK payload right
// after the last chunk so the sender's subsequent checksum-poll frames get
// it back in their hardware ACK. Any frame whose coordinate isn't the next
// expected one is dropped rather than aborting the transfer: a hardware
// auto-retransmit of the previously-accepted chunk (the sender never saw our
// ACK) looks exactly like this, and the protocol's own recovery is to
// discard the duplicate and keep looping, not to fail.
func (r *Receiver) receiveBurst(ctx context.Context, pageID, burstID uint8, chunkCount int, chunkSize func(b, c int) int) ([]byte, error) {
	burst := make([]byte, 0, BurstWidth)
	wireBytes := make([]byte, 0, BurstWidth+dataHeaderSize*chunkCount)
	nextChunk := 0

	for nextChunk < chunkCount {
		raw, err := r.dev.Receive(ctx)
		if err != nil {
			return nil, err
		}
		kind, err := ClassifyFrame(raw)
		if err != nil {
			r.logger.Warn("dropping unrecognized frame", "error", err)
			continue
		}

		switch kind {
		case KindEmpty:
			// A checksum-poll frame; the hardware ACK already carries
			// whatever we last staged with SetAckPayload. Nothing to do.
			continue
		case KindTransferInfo:
			return nil, ErrUnexpectedControlFrame
		case KindFinish:
			return nil, fmt.Errorf("link: premature transfer finish mid-burst")
		}

		frame, err := DecodeDataFrame(raw)
		if err != nil {
			r.logger.Warn("dropping undecodable data frame", "error", err)
			continue
		}
		if frame.PageID != pageID || frame.BurstID != burstID || int(frame.ChunkID) != nextChunk {
			if r.accepted.valid && frame.PageID == r.accepted.page && frame.BurstID == r.accepted.burst && frame.ChunkID == r.accepted.chunk {
				r.logger.Debug("dropping duplicate of last-accepted chunk, hardware ACK already sent",
					"page", frame.PageID, "burst", frame.BurstID, "chunk", frame.ChunkID)
			} else {
				r.logger.Warn("dropping out of order frame", "want_page", pageID, "want_burst", burstID,
					"want_chunk", nextChunk, "got_page", frame.PageID, "got_burst", frame.BurstID, "got_chunk", frame.ChunkID)
			}
			continue
		}
		if want := chunkSize(int(burstID), nextChunk); len(frame.Data) != want {
			r.logger.Warn("dropping frame with unexpected length", "page", pageID, "burst", burstID,
				"chunk", nextChunk, "got_length", len(frame.Data), "want_length", want)
			continue
		}

		if nextChunk == 0 && r.accepted.valid {
			// A new burst's first chunk lands only once the sender has
			// moved on, so the previous burst's digest has already been
			// delivered in at least one ACK; clear it now rather than
			// leaving it staged to be misread as this burst's checksum.
			if err := r.dev.SetAckPayload(nil); err != nil {
				return nil, fmt.Errorf("clearing stale checksum ack: %w", err)
			}
		}

		burst = append(burst, frame.Data...)
		wireBytes = append(wireBytes, raw...)
		r.accepted = acceptedTriple{page: pageID, burst: burstID, chunk: uint8(nextChunk), valid: true}
		nextChunk++

		if nextChunk == chunkCount {
			sum := sha256.Sum256(wireBytes)
			if err := r.dev.SetAckPayload(sum[:]); err != nil {
				return nil, fmt.Errorf("staging checksum ack: %w", err)
			}
		}
	}

	return burst, nil
}

func (r *Receiver) waitFinish(ctx context.Context) error {
	for {
		raw, err := r.dev.Receive(ctx)
		if err != nil {
			return err
		}
		// A stray checksum poll may still be in flight after the last
		// burst's ACK was staged; clear it so it doesn't bleed into an
		// unrelated future ACK, then keep waiting for TransferFinish.
		kind, err := ClassifyFrame(raw)
		if err != nil {
			continue
		}
		switch kind {
		case KindFinish:
			return nil
		case KindEmpty:
			_ = r.dev.SetAckPayload(nil)
			continue
		default:
			continue
		}
	}
}

func (r *Receiver) setState(state string) {
	r.state.Store(state)
	r.logger.Debug("state transition", "state", state)
}
