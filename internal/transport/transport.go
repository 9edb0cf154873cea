// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package transport packetizes a set of compressed pages into the bursts the
// link layer sends, and reassembles a receiver's PageResults back into the
// flat byte streams the presentation layer expects.
package transport

import (
	"fmt"

	"github.com/lxkalv/nrf24mtp/internal/link"
)

// BuildStream slices pageBytes (one entry per page, in page-index order)
// into link.Page values ready for link.Sender.Run. A nil or empty entry
// produces an empty page (BurstsInPage == 0), matching link.DescribePage.
func BuildStream(pageBytes [][]byte) ([]link.Page, error) {
	if len(pageBytes) > link.MaxPages {
		return nil, fmt.Errorf("transport: %d pages exceeds max %d", len(pageBytes), link.MaxPages)
	}

	pages := make([]link.Page, len(pageBytes))
	for i, data := range pageBytes {
		pd, err := link.DescribePage(len(data))
		if err != nil {
			return nil, fmt.Errorf("transport: describing page %d: %w", i, err)
		}
		pages[i] = link.Page{Descriptor: pd}
		if pd.Empty() {
			continue
		}

		bursts := make([][]byte, pd.BurstsInPage)
		off := 0
		for b := 0; b < pd.BurstsInPage; b++ {
			size := pd.BurstCount(b) * link.ChunkWidth
			if b == pd.BurstsInPage-1 {
				// Last burst may be short: its size is the sum of its
				// chunk sizes, not count*ChunkWidth.
				size = 0
				for c := 0; c < pd.BurstCount(b); c++ {
					size += pd.ChunkSize(b, c)
				}
			}
			if off+size > len(data) {
				return nil, fmt.Errorf("transport: page %d burst %d overruns page data (off=%d size=%d len=%d)",
					i, b, off, size, len(data))
			}
			bursts[b] = data[off : off+size]
			off += size
		}
		pages[i].Bursts = bursts
	}
	return pages, nil
}

// Reassemble concatenates a receiver's per-page results back into the flat
// compressed-page byte slices the presentation layer decompresses. Pages
// with no data (BurstsSeen == 0) come back as a nil entry.
func Reassemble(results []link.PageResult) [][]byte {
	out := make([][]byte, len(results))
	for i, r := range results {
		if len(r.Data) == 0 {
			continue
		}
		out[i] = r.Data
	}
	return out
}
