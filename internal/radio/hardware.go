// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package radio

import "errors"

// ErrHardwareUnavailable is returned by NewHardwareDevice: this build has no
// GPIO/SPI backend wired to a real nRF24L01+ chip, so every run must pass
// -sim. The spec's radio bring-up failure path (fatal, exit) covers exactly
// this case on a host with no driver available.
var ErrHardwareUnavailable = errors.New("radio: no hardware backend in this build, rerun with -sim")

// NewHardwareDevice always fails bring-up. Wiring a real nRF24L01+ driver
// means adding a GPIO/SPI dependency this module does not carry; until one
// is, the only runnable path is -sim.
func NewHardwareDevice(cePin int) (Device, error) {
	return nil, ErrHardwareUnavailable
}
