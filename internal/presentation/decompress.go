// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package presentation

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// DecompressPages reverses CompressPages: it reconstructs the single
// continuous DEFLATE stream the sender built (sync-flush points don't end
// the stream, so the concatenated blobs decode exactly like one stream
// feed), decompresses it once, and returns the flat original bytes. Any nil
// or zero-length entry (an empty page) contributes no data, same as on the
// sender side.
func DecompressPages(blobs [][]byte) ([]byte, error) {
	var concatenated bytes.Buffer
	for _, b := range blobs {
		concatenated.Write(b)
	}

	r := flate.NewReader(&concatenated)
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("presentation: decompressing page stream: %w", err)
	}
	return out, nil
}
