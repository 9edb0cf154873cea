// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package link

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lxkalv/nrf24mtp/internal/radio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSendBurst_ChecksumMatchesWorkedExample pins the hash input to the
// one-byte worked example: a single chunk carrying "A" hashes to
// SHA256("\x00\x00\x00A"), the unpadded encoded frame (header+data), not a
// raw data hash and not a 32-byte-padded frame hash.
func TestSendBurst_ChecksumMatchesWorkedExample(t *testing.T) {
	tx, rx := radio.NewSimPair(0, 0, 20)
	defer tx.Close()
	defer rx.Close()

	sender := NewSender(tx, discardLogger())

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		raw, err := rx.Receive(ctx)
		if err != nil {
			t.Errorf("Receive: %v", err)
			return
		}
		frame, err := DecodeDataFrame(raw)
		if err != nil {
			t.Errorf("DecodeDataFrame: %v", err)
			return
		}
		sum := sha256.Sum256(raw)
		if err := rx.SetAckPayload(sum[:]); err != nil {
			t.Errorf("SetAckPayload: %v", err)
		}
		_ = frame
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wireBytes, err := sender.sendBurst(ctx, 0, 0, []byte("A"), 1)
	if err != nil {
		t.Fatalf("sendBurst: %v", err)
	}
	<-recvDone

	want := sha256.Sum256([]byte("\x00\x00\x00A"))
	got := sha256.Sum256(wireBytes)
	if got != want {
		t.Fatalf("checksum mismatch: got %x, want %x", got, want)
	}
}

// buildPages slices a set of per-page byte payloads into Page values the
// way the transport layer's packetizer would.
func buildPages(t *testing.T, payloads [][]byte) []Page {
	t.Helper()
	pages := make([]Page, len(payloads))
	for i, data := range payloads {
		pd, err := DescribePage(len(data))
		if err != nil {
			t.Fatalf("DescribePage: %v", err)
		}
		pages[i] = Page{Descriptor: pd}
		if pd.Empty() {
			continue
		}
		off := 0
		for b := 0; b < pd.BurstsInPage; b++ {
			count := pd.BurstCount(b)
			size := 0
			for c := 0; c < count; c++ {
				size += pd.ChunkSize(b, c)
			}
			pages[i].Bursts = append(pages[i].Bursts, data[off:off+size])
			off += size
		}
	}
	return pages
}

func TestSenderReceiver_RoundTrip_SinglePageSmall(t *testing.T) {
	tx, rx := radio.NewSimPair(0, 0, 10)
	defer tx.Close()
	defer rx.Close()

	sender := NewSender(tx, discardLogger())
	receiver := NewReceiver(rx, discardLogger())

	payload := []byte("hello nrf24 world")
	pages := buildPages(t, [][]byte{payload})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resultCh := make(chan []PageResult, 1)
	errCh := make(chan error, 1)
	go func() {
		results, err := receiver.Run(ctx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- results
	}()

	stats, err := sender.Run(ctx, pages)
	if err != nil {
		t.Fatalf("sender.Run: %v", err)
	}
	if stats.PagesSent != 1 || stats.FailedBursts != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	select {
	case err := <-errCh:
		t.Fatalf("receiver.Run: %v", err)
	case results := <-resultCh:
		if len(results) != 1 {
			t.Fatalf("expected 1 page result, got %d", len(results))
		}
		if !bytes.Equal(results[0].Data, payload) {
			t.Fatalf("got %q, want %q", results[0].Data, payload)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for receiver")
	}

	if sender.State() != StateDone {
		t.Errorf("expected sender state %q, got %q", StateDone, sender.State())
	}
	if receiver.State() != RStateDone {
		t.Errorf("expected receiver state %q, got %q", RStateDone, receiver.State())
	}
}

func TestSenderReceiver_RoundTrip_MultiBurstMultiPage(t *testing.T) {
	tx, rx := radio.NewSimPair(0, 0, 11)
	defer tx.Close()
	defer rx.Close()

	sender := NewSender(tx, discardLogger())
	receiver := NewReceiver(rx, discardLogger())

	page0 := bytes.Repeat([]byte{0xCD}, BurstWidth+17) // two bursts
	page1 := []byte{}                                  // empty page
	page2 := bytes.Repeat([]byte{0x42}, BurstWidth)     // exactly one full burst, full last chunk

	pages := buildPages(t, [][]byte{page0, page1, page2})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resultCh := make(chan []PageResult, 1)
	errCh := make(chan error, 1)
	go func() {
		results, err := receiver.Run(ctx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- results
	}()

	if _, err := sender.Run(ctx, pages); err != nil {
		t.Fatalf("sender.Run: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("receiver.Run: %v", err)
	case results := <-resultCh:
		if len(results) != 3 {
			t.Fatalf("expected 3 page results, got %d", len(results))
		}
		if !bytes.Equal(results[0].Data, page0) {
			t.Fatalf("page 0 mismatch: got %d bytes, want %d", len(results[0].Data), len(page0))
		}
		if len(results[1].Data) != 0 {
			t.Fatalf("page 1 should be empty, got %d bytes", len(results[1].Data))
		}
		if !bytes.Equal(results[2].Data, page2) {
			t.Fatalf("page 2 mismatch: got %d bytes, want %d", len(results[2].Data), len(page2))
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for receiver")
	}
}

func TestSenderReceiver_AllPagesEmpty(t *testing.T) {
	tx, rx := radio.NewSimPair(0, 0, 12)
	defer tx.Close()
	defer rx.Close()

	sender := NewSender(tx, discardLogger())
	receiver := NewReceiver(rx, discardLogger())

	pages := buildPages(t, [][]byte{{}, {}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resultCh := make(chan []PageResult, 1)
	go func() {
		results, err := receiver.Run(ctx)
		if err != nil {
			t.Errorf("receiver.Run: %v", err)
			return
		}
		resultCh <- results
	}()

	if _, err := sender.Run(ctx, pages); err != nil {
		t.Fatalf("sender.Run: %v", err)
	}

	select {
	case results := <-resultCh:
		if len(results) != 2 || len(results[0].Data) != 0 || len(results[1].Data) != 0 {
			t.Fatalf("expected two empty page results, got %+v", results)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for receiver")
	}
}
