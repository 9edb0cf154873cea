// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"testing"

	"github.com/lxkalv/nrf24mtp/internal/link"
)

func TestBuildStream_RoundTripsThroughDescriptor(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"one byte", []byte{0x01}},
		{"one full chunk", bytes.Repeat([]byte{0x02}, link.ChunkWidth)},
		{"one full burst", bytes.Repeat([]byte{0x03}, link.BurstWidth)},
		{"one full burst plus partial", bytes.Repeat([]byte{0x04}, link.BurstWidth+5)},
		{"two full bursts", bytes.Repeat([]byte{0x05}, 2*link.BurstWidth)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := BuildStream([][]byte{tt.data})
			if err != nil {
				t.Fatalf("BuildStream: %v", err)
			}
			if len(pages) != 1 {
				t.Fatalf("expected 1 page, got %d", len(pages))
			}
			page := pages[0]

			if len(tt.data) == 0 {
				if !page.Descriptor.Empty() {
					t.Fatalf("expected empty descriptor for nil data")
				}
				return
			}

			if page.Descriptor.BurstsInPage != len(page.Bursts) {
				t.Fatalf("descriptor says %d bursts, got %d burst slices", page.Descriptor.BurstsInPage, len(page.Bursts))
			}

			var rebuilt []byte
			for _, b := range page.Bursts {
				rebuilt = append(rebuilt, b...)
			}
			if !bytes.Equal(rebuilt, tt.data) {
				t.Fatalf("rebuilt data length %d, want %d", len(rebuilt), len(tt.data))
			}
		})
	}
}

func TestBuildStream_RejectsTooManyPages(t *testing.T) {
	pages := make([][]byte, link.MaxPages+1)
	if _, err := BuildStream(pages); err == nil {
		t.Fatal("expected error for too many pages")
	}
}

func TestReassemble_SkipsEmptyPages(t *testing.T) {
	results := []link.PageResult{
		{Data: []byte("page zero")},
		{}, // empty
		{Data: []byte("page two")},
	}

	out := Reassemble(results)
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	if string(out[0]) != "page zero" {
		t.Errorf("page 0 mismatch: %q", out[0])
	}
	if out[1] != nil {
		t.Errorf("expected nil for empty page, got %q", out[1])
	}
	if string(out[2]) != "page two" {
		t.Errorf("page 2 mismatch: %q", out[2])
	}
}
