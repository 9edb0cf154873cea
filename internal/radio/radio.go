// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package radio defines the Device interface the link layer drives to move
// 32-byte frames over an nRF24L01+ style link, plus an in-process simulated
// implementation for testing without hardware.
package radio

import (
	"context"
	"errors"
	"fmt"
)

// Address is a 5-byte pipe address.
type Address [5]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4])
}

// DataRate selects the over-the-air bitrate.
type DataRate byte

const (
	DataRate250kbps DataRate = iota
	DataRate1mbps
	DataRate2mbps
)

func (d DataRate) String() string {
	switch d {
	case DataRate250kbps:
		return "250kbps"
	case DataRate1mbps:
		return "1mbps"
	case DataRate2mbps:
		return "2mbps"
	default:
		return "unknown"
	}
}

// PALevel selects the power amplifier output level.
type PALevel byte

const (
	PALevelMin PALevel = iota
	PALevelLow
	PALevelHigh
	PALevelMax
)

// CRCLength selects the hardware CRC width. The protocol relies on the
// hardware CRC to drop corrupted frames before they ever reach the link
// layer, so CRCLengthDisabled is only useful for simulated loss testing.
type CRCLength byte

const (
	CRCLengthDisabled CRCLength = iota
	CRCLength8
	CRCLength16
)

var (
	// ErrMaxRetries is returned by Send when the hardware auto-retransmit
	// counter is exhausted without an ACK.
	ErrMaxRetries = errors.New("radio: max retransmissions reached, peer did not ACK")
	// ErrTimeout is returned by Receive when no frame arrives within the
	// configured deadline.
	ErrTimeout = errors.New("radio: timeout waiting for frame")
)

// Config bundles the radio parameters the link layer negotiates once before
// a transfer starts.
type Config struct {
	Channel        byte
	DataRate       DataRate
	PALevel        PALevel
	CRC            CRCLength
	AddressWidth   byte // 3, 4, or 5
	RetransmitWait uint16
	RetransmitTry  byte
	TXAddress      Address
	RXAddress      Address
}

// Device is the contract the link layer's Sender and Receiver drive. A PTX
// role Sends frames and reads back whatever ACK payload the peer attached;
// a PRX role Receives frames and stages the next ACK payload with
// SetAckPayload before acknowledging the one that triggers it.
type Device interface {
	// Configure applies channel/rate/power/CRC/address settings. Must be
	// called before the first Send or Receive.
	Configure(cfg Config) error

	// Send transmits one frame (in PTX mode) and blocks for the hardware
	// auto-ACK, returning whatever ACK payload the peer staged. Returns
	// ErrMaxRetries if the peer never acknowledges within the configured
	// retry budget.
	Send(ctx context.Context, frame []byte) (ackPayload []byte, err error)

	// Receive blocks (in PRX mode) until one frame arrives or ctx is
	// done, returning ErrTimeout if ctx's deadline elapses first.
	Receive(ctx context.Context) (frame []byte, err error)

	// SetAckPayload stages the payload to attach to the next hardware ACK
	// this device sends. Call with nil to clear it.
	SetAckPayload(payload []byte) error

	// PacketsLost reports the hardware's cumulative lost-packet counter
	// (PLOS_CNT on the real chip), used for link-quality diagnostics.
	PacketsLost() byte

	// Close releases the device (powers it down on real hardware).
	Close() error
}
