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
	"time"

	"github.com/lxkalv/nrf24mtp/internal/radio"
)

// Sender state machine states, exported for logging and tests.
const (
	StateSendTransferInfo = "send_transfer_info"
	StateSendData         = "send_data"
	StateRequestChecksum  = "request_checksum"
	StateSendFinish       = "send_finish"
	StateDone             = "done"
)

// MaxChecksumRetries bounds how many extra EmptyFrame polls REQUEST_CHECKSUM
// sends after the first one while the ACK payload does not carry a matching
// digest. The policy is advance-and-count, not retransmit-until-success: the
// burst's data is never re-sent; once the polls are used up the sender moves
// on to the next burst and records this one as failed.
const MaxChecksumRetries = 3

// AckPollInterval is how long REQUEST_CHECKSUM waits between EmptyFrame polls
// while it hasn't yet seen the burst's checksum ACK, and how long send waits
// before retrying a frame after radio.ErrMaxRetries.
const AckPollInterval = 20 * time.Millisecond

// Stats summarizes one completed transfer for logging.
type Stats struct {
	PagesSent      int
	BurstsSent     int
	ChecksumRetries int
	FailedBursts   int
	Duration       time.Duration
}

// Sender drives a radio.Device through the PTX state machine: it pushes one
// TransferInfo frame, then for each page, each burst, each chunk's
// DataFrame, requesting a checksum ACK after the last chunk of every burst
// and advancing regardless of whether it matched (advance-and-count).
type Sender struct {
	dev    radio.Device
	logger *slog.Logger

	state atomic.Value // string
}

// NewSender wraps dev (already Configure'd by the caller) into a Sender.
func NewSender(dev radio.Device, logger *slog.Logger) *Sender {
	s := &Sender{dev: dev, logger: logger.With("component", "link.sender")}
	s.state.Store(StateSendTransferInfo)
	return s
}

// State returns the sender's current state, safe to call concurrently.
func (s *Sender) State() string {
	return s.state.Load().(string)
}

// Page is one page's compressed bytes, sliced into bursts by the transport
// layer before being handed to Sender.Run.
type Page struct {
	Descriptor PageDescriptor
	Bursts     [][]byte // Bursts[b] is the raw burst payload, already concatenated chunk-wise
}

// Run executes the full PTX transfer of pages over dev, returning summary
// Stats. The caller is responsible for building pages with the transport
// layer's packetizer so each burst's length matches its PageDescriptor.
func (s *Sender) Run(ctx context.Context, pages []Page) (Stats, error) {
	start := time.Now()
	stats := Stats{}

	descriptors := make([]PageDescriptor, len(pages))
	for i, p := range pages {
		descriptors[i] = p.Descriptor
	}

	s.setState(StateSendTransferInfo)
	if err := s.sendTransferInfo(ctx, descriptors); err != nil {
		return stats, fmt.Errorf("link: sending transfer info: %w", err)
	}

	for pageID, page := range pages {
		if page.Descriptor.Empty() {
			continue
		}
		stats.PagesSent++
		for burstID, burst := range page.Bursts {
			s.setState(StateSendData)
			chunkCount := page.Descriptor.BurstCount(burstID)
			wireBytes, err := s.sendBurst(ctx, uint8(pageID), uint8(burstID), burst, chunkCount)
			if err != nil {
				return stats, fmt.Errorf("link: sending page %d burst %d: %w", pageID, burstID, err)
			}
			stats.BurstsSent++

			s.setState(StateRequestChecksum)
			ok, retries, err := s.requestChecksum(ctx, wireBytes)
			stats.ChecksumRetries += retries
			if err != nil {
				return stats, fmt.Errorf("link: checksum round for page %d burst %d: %w", pageID, burstID, err)
			}
			if !ok {
				// Advance-and-count: log and move on rather than stall the
				// transfer on one bad burst.
				stats.FailedBursts++
				s.logger.Warn("burst checksum mismatch after retries, advancing anyway",
					"page", pageID, "burst", burstID, "retries", retries)
			}
		}
	}

	s.setState(StateSendFinish)
	if _, err := s.send(ctx, FinishFrameBytes()); err != nil {
		return stats, fmt.Errorf("link: sending transfer finish: %w", err)
	}

	s.setState(StateDone)
	stats.Duration = time.Since(start)
	s.logger.Info("transfer complete", "pages", stats.PagesSent, "bursts", stats.BurstsSent,
		"checksum_retries", stats.ChecksumRetries, "failed_bursts", stats.FailedBursts)
	return stats, nil
}

func (s *Sender) sendTransferInfo(ctx context.Context, pages []PageDescriptor) error {
	raw, err := TransferInfoFrame{Pages: pages}.Encode()
	if err != nil {
		return err
	}
	_, err = s.send(ctx, raw)
	return err
}

// send wraps dev.Send with the outer retry loop spec.md §4.4.5 calls for:
// a single radio-send failure (the hardware's own auto-retransmit already
// exhausted) is retried by the sender's outer loop rather than failing the
// whole transfer, until ctx is canceled.
func (s *Sender) send(ctx context.Context, frame []byte) ([]byte, error) {
	for {
		ack, err := s.dev.Send(ctx, frame)
		if err == nil {
			return ack, nil
		}
		if !errors.Is(err, radio.ErrMaxRetries) {
			return nil, err
		}
		s.logger.Warn("hardware retransmit exhausted, retrying in outer loop")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(AckPollInterval):
		}
	}
}

// sendBurst transmits every chunk of one burst as a DataFrame, returning the
// concatenation of their encoded wire bytes (header+data, unpadded) for use
// as the checksum's hash input.
func (s *Sender) sendBurst(ctx context.Context, pageID, burstID uint8, burst []byte, chunkCount int) ([]byte, error) {
	wireBytes := make([]byte, 0, len(burst)+dataHeaderSize*chunkCount)
	off := 0
	for c := 0; c < chunkCount; c++ {
		size := ChunkWidth
		if off+size > len(burst) {
			size = len(burst) - off
		}
		frame := DataFrame{PageID: pageID, BurstID: burstID, ChunkID: uint8(c), Data: burst[off : off+size]}
		raw, err := frame.Encode()
		if err != nil {
			return nil, err
		}
		if _, err := s.send(ctx, raw); err != nil {
			return nil, fmt.Errorf("sending chunk %d: %w", c, err)
		}
		wireBytes = append(wireBytes, raw...)
		off += size
	}
	return wireBytes, nil
}

// requestChecksum sends EmptyFrames until the receiver's ACK payload carries
// a SHA-256 digest, comparing it against the hash of the burst's own
// concatenated wire frames. It polls up to MaxChecksumRetries more times when
// the ACK is short or doesn't match, then reports failure without re-sending
// the burst's data (advance-and-count).
func (s *Sender) requestChecksum(ctx context.Context, wireBytes []byte) (ok bool, retries int, err error) {
	want := sha256.Sum256(wireBytes)

	for attempt := 0; attempt <= MaxChecksumRetries; attempt++ {
		ack, sendErr := s.send(ctx, EmptyFrameBytes())
		if sendErr != nil {
			return false, attempt, sendErr
		}
		if len(ack) == sha256.Size {
			var got [sha256.Size]byte
			copy(got[:], ack)
			if got == want {
				return true, attempt, nil
			}
		}
		if attempt < MaxChecksumRetries {
			select {
			case <-time.After(AckPollInterval):
			case <-ctx.Done():
				return false, attempt, ctx.Err()
			}
		}
	}
	return false, MaxChecksumRetries, nil
}

func (s *Sender) setState(state string) {
	s.state.Store(state)
	s.logger.Debug("state transition", "state", state)
}
