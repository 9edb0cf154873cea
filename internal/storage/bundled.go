// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package storage

import _ "embed"

//go:embed fallback.txt
var bundledFallback []byte

// BundledFallback returns the input bundled into the binary, used only when
// every other source in the PTX discovery chain fails to resolve.
func BundledFallback() []byte {
	return bundledFallback
}
