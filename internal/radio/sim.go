// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package radio

import (
	"context"
	"math/rand"
	"sync"

	"golang.org/x/time/rate"
)

// airtimeBytesPerSecond approximates the on-air throughput of a 250kbps
// nRF24 link after protocol overhead, used to pace the simulated link so
// timing-sensitive tests see realistic latency instead of instant delivery.
const airtimeBytesPerSecond = 20000

// MaxFrameBytes mirrors link.MaxFrameBytes; duplicated here to avoid an
// import cycle (link depends on radio, not the reverse).
const MaxFrameBytes = 32

// simFrame is one frame in flight between the two halves of a SimPair.
type simFrame struct {
	data []byte
}

// simEndpoint holds the mutable state private to one end of a SimPair: the
// payload it will attach to its next hardware ACK, and the count of its own
// Send calls that the channel dropped.
type simEndpoint struct {
	mu          sync.Mutex
	ackPayload  []byte
	packetCount byte
}

// SimPair is a pair of in-process Devices connected by a lossy channel, for
// exercising the link state machines without hardware. Build one with
// NewSimPair and hand the two halves to a Sender and a Receiver.
type SimPair struct {
	rngMu    sync.Mutex
	lossRate float64
	corrupt  float64
	rng      *rand.Rand
	limiter  *rate.Limiter

	toRX chan simFrame
	toTX chan simFrame

	tx, rx *simEndpoint

	closed chan struct{}
	once   sync.Once
}

// simDevice is one end of a SimPair, implementing Device.
type simDevice struct {
	pair *SimPair
	out  chan simFrame // frames this end sends
	in   chan simFrame // frames this end receives
	self *simEndpoint  // this end's ACK-payload staging
	peer *simEndpoint  // the other end's ACK-payload staging
}

// NewSimPair builds a connected TX/RX device pair. lossRate and
// corruptRate are independent per-Send probabilities in [0,1] (1 drops or
// corrupts every frame); a corrupted frame is delivered with its first byte
// XORed with 0xFF, modeling a CRC-surviving bit error (rare, but why EmptyFrame and TransferFinish fill every byte with
// their tag).
func NewSimPair(lossRate, corruptRate float64, seed int64) (tx, rx Device) {
	txEnd := &simEndpoint{}
	rxEnd := &simEndpoint{}
	p := &SimPair{
		lossRate: lossRate,
		corrupt:  corruptRate,
		rng:      rand.New(rand.NewSource(seed)),
		limiter:  rate.NewLimiter(rate.Limit(airtimeBytesPerSecond), MaxFrameBytes*4),
		toRX:     make(chan simFrame, 8),
		toTX:     make(chan simFrame, 8),
		tx:       txEnd,
		rx:       rxEnd,
		closed:   make(chan struct{}),
	}
	txDev := &simDevice{pair: p, out: p.toRX, in: p.toTX, self: txEnd, peer: rxEnd}
	rxDev := &simDevice{pair: p, out: p.toTX, in: p.toRX, self: rxEnd, peer: txEnd}
	return txDev, rxDev
}

func (d *simDevice) Configure(Config) error { return nil }

// Send queues a frame for the peer, blocking only while the pair's 8-frame
// channel is full, and returns whatever payload the peer has staged via
// SetAckPayload at that moment. It does not wait for the peer to Receive the
// frame.
func (d *simDevice) Send(ctx context.Context, frame []byte) ([]byte, error) {
	p := d.pair
	if err := p.limiter.WaitN(ctx, len(frame)); err != nil {
		return nil, err
	}

	p.rngMu.Lock()
	drop := p.rng.Float64() < p.lossRate
	garble := !drop && p.rng.Float64() < p.corrupt
	p.rngMu.Unlock()

	if drop {
		d.self.mu.Lock()
		d.self.packetCount++
		d.self.mu.Unlock()
		return nil, ErrMaxRetries
	}

	payload := append([]byte(nil), frame...)
	if garble && len(payload) > 0 {
		payload[0] ^= 0xFF
	}

	select {
	case d.out <- simFrame{data: payload}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrTimeout
	}

	d.peer.mu.Lock()
	ack := d.peer.ackPayload
	d.peer.mu.Unlock()
	return ack, nil
}

// Receive blocks until a frame arrives from the peer.
func (d *simDevice) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-d.in:
		return f.data, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	case <-d.pair.closed:
		return nil, ErrTimeout
	}
}

// SetAckPayload stages the payload this end attaches to its next ACK. It
// persists across calls to Send by the peer until replaced or cleared with
// nil, matching the real chip's ACK-payload FIFO semantics as used here
// (one payload held until explicitly rewritten).
func (d *simDevice) SetAckPayload(payload []byte) error {
	d.self.mu.Lock()
	d.self.ackPayload = append([]byte(nil), payload...)
	d.self.mu.Unlock()
	return nil
}

// PacketsLost reports how many of this end's own Send calls were dropped
// by the simulated channel, mirroring the real chip's PLOS_CNT.
func (d *simDevice) PacketsLost() byte {
	d.self.mu.Lock()
	defer d.self.mu.Unlock()
	return d.self.packetCount
}

func (d *simDevice) Close() error {
	d.pair.once.Do(func() { close(d.pair.closed) })
	return nil
}
