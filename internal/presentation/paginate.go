// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package presentation implements the Presentation layer: splitting an
// input file into a fixed number of pages and compressing/decompressing
// them with a stateful, sync-flushed DEFLATE stream.
package presentation

import "fmt"

// NumberOfPages is the configuration constant that fixes how many pages the
// input file is split into. It must stay within link.MaxPages (16), since
// each page's index becomes a 4-bit PageID on the wire.
const NumberOfPages = 10

// Paginate splits data into numPages slices of ceil(len(data)/numPages)
// bytes each; the last non-empty slice may be shorter, any slices after it
// are empty (nil), and all slices are empty for a zero-byte input. Returned slices alias data; callers must
// not mutate data afterwards.
func Paginate(data []byte, numPages int) ([][]byte, error) {
	if numPages <= 0 {
		return nil, fmt.Errorf("presentation: numPages must be positive, got %d", numPages)
	}

	pageSize := (len(data) + numPages - 1) / numPages
	pages := make([][]byte, numPages)
	off := 0
	for i := 0; i < numPages; i++ {
		if pageSize == 0 || off >= len(data) {
			pages[i] = nil
			continue
		}
		end := off + pageSize
		if end > len(data) {
			end = len(data)
		}
		pages[i] = data[off:end]
		off = end
	}
	return pages, nil
}
