// SPDX-License-Identifier: EPL-2.0

// Package device is the boundary between the mixing engine and the audio
// hardware.
//
// A Backend enumerates endpoints and opens Streams. A Stream drives a
// Callback from the hardware's own thread with interleaved float32 buffers:
// out holds frames*Channels samples to fill, in holds frames*CaptureChannels
// captured samples (nil for playback-only streams).
//
// Endpoints are identified by Info.ID, the endpoint's index in the backend's
// enumeration order as a decimal string. IDs never carry a platform handle;
// Catalog re-enumerates before trusting one.
package device

import "fmt"

// Direction selects playback or capture endpoints.
type Direction int

const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	switch d {
	case Playback:
		return "playback"
	case Capture:
		return "capture"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Info describes one endpoint as seen by the last enumeration.
type Info struct {
	ID        string
	Name      string
	IsDefault bool

	handle any
}

// Callback is invoked once per hardware period. It must not block or
// allocate.
type Callback func(out, in []float32, frames int)

// StreamConfig describes a stream to open. A nil endpoint selects the
// system default.
type StreamConfig struct {
	SampleRate      int
	Channels        int // playback channels
	CaptureChannels int // 0 opens a playback-only stream
	PeriodFrames    int // 0 lets the backend choose

	Playback *Info
	Capture  *Info
}

// Duplex reports whether the stream captures as well as plays.
func (c StreamConfig) Duplex() bool { return c.CaptureChannels > 0 }

func (c StreamConfig) validate() error {
	if c.SampleRate <= 0 || c.Channels <= 0 || c.CaptureChannels < 0 || c.PeriodFrames < 0 {
		return fmt.Errorf("%w: rate %d, channels %d, capture %d, period %d",
			ErrInvalidConfig, c.SampleRate, c.Channels, c.CaptureChannels, c.PeriodFrames)
	}
	return nil
}

// Backend is an audio subsystem.
type Backend interface {
	Name() string
	Devices(dir Direction) ([]Info, error)
	Open(cfg StreamConfig, cb Callback) (Stream, error)
	Close() error
}

// Stream is an opened device. Start and Stop may be repeated; Close
// releases it for good.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}
