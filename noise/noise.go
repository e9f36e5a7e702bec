// SPDX-License-Identifier: EPL-2.0

// Package noise holds the microphone denoisers the engine can run on the
// captured signal before it is mixed.
//
// A Suppressor is called from the device callback with one block of mono
// samples and rewrites them in place. Implementations must not block,
// allocate or take locks in Process, and they are only ever called from one
// goroutine at a time.
package noise

// Suppressor denoises mono samples in place.
type Suppressor interface {
	Process(buf []float32)
}

// Passthrough leaves the signal untouched. It stands in when no denoiser is
// configured.
type Passthrough struct{}

func (Passthrough) Process([]float32) {}
