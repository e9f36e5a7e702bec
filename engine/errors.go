// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"errors"

	"github.com/ik5/padmixer/recorder"
)

var (
	// ErrDevice means a device could not be opened or started.
	ErrDevice = errors.New("audio device error")
	// ErrDecodeOpen means a clip could not be opened.
	ErrDecodeOpen = errors.New("cannot open clip")
	// ErrDecodeStream means decoding failed after a clip had opened. The
	// clip plays out what was decoded and stops.
	ErrDecodeStream = errors.New("clip decode failed")
	// ErrDeviceSelection means a device id no longer matches the hardware;
	// enumerate again and reselect.
	ErrDeviceSelection = errors.New("device selection failed")

	ErrInvalidSlot = errors.New("slot index out of range")
	ErrNotLoaded   = errors.New("slot has no clip loaded")
	ErrClosed      = errors.New("engine is closed")

	ErrNotRecording     = recorder.ErrNotRecording
	ErrAlreadyRecording = recorder.ErrAlreadyRecording
)
