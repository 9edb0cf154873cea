// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package presentation

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/flate"
)

// CompressionLevel matches the spec's chosen DEFLATE level: a speed/ratio
// middle ground suitable for encoding on a resource-constrained sender.
const CompressionLevel = 6

// CompressPages opens one DEFLATE stream and feeds it each page in order,
// forcing a sync-flush after every page except the last (which gets a full
// Close instead, finalizing the stream). Every emitted blob, when
// concatenated in order, forms one valid continuous DEFLATE stream: the
// receiver's DecompressPages relies on exactly that property.
func CompressPages(pages [][]byte) ([][]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("presentation: opening deflate writer: %w", err)
	}

	blobs := make([][]byte, len(pages))
	for i, page := range pages {
		start := buf.Len()

		if len(page) > 0 {
			if _, err := w.Write(page); err != nil {
				return nil, fmt.Errorf("presentation: compressing page %d: %w", i, err)
			}
		}

		if i == len(pages)-1 {
			if err := w.Close(); err != nil {
				return nil, fmt.Errorf("presentation: closing deflate stream: %w", err)
			}
		} else {
			if err := w.Flush(); err != nil {
				return nil, fmt.Errorf("presentation: flushing page %d: %w", i, err)
			}
		}

		blobs[i] = append([]byte(nil), buf.Bytes()[start:buf.Len()]...)
	}
	return blobs, nil
}
