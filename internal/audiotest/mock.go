// SPDX-License-Identifier: EPL-2.0

// Package audiotest holds fixtures shared by the package tests: synthetic
// sources and in-memory container files.
package audiotest

import (
	"errors"
	"io"
	"math"
)

// ErrInjected is returned by a MockSource configured to fail.
var ErrInjected = errors.New("audiotest: injected failure")

// MockSource generates frames from a waveform function. It satisfies
// audio.Source and audio.Seeker without importing audio.
type MockSource struct {
	sampleRate  int
	channels    int
	totalFrames int
	pos         int
	waveform    func(frame int, channel int) float32

	// FailAt makes ReadSamples return ErrInjected once pos reaches it.
	// Negative disables.
	FailAt int
	Closed bool
	Seeks  int
}

// NewMockSource creates a source of totalFrames frames.
func NewMockSource(sampleRate, channels, totalFrames int, waveform func(frame int, channel int) float32) *MockSource {
	return &MockSource{
		sampleRate:  sampleRate,
		channels:    channels,
		totalFrames: totalFrames,
		waveform:    waveform,
		FailAt:      -1,
	}
}

func NewSilentSource(sampleRate, channels, totalFrames int) *MockSource {
	return NewConstantSource(sampleRate, channels, totalFrames, 0)
}

func NewSineSource(sampleRate, channels, totalFrames int, frequency float64) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame int, _ int) float32 {
		t := float64(frame) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

func NewConstantSource(sampleRate, channels, totalFrames int, value float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(int, int) float32 {
		return value
	})
}

// NewRampSource yields frame/totalFrames on every channel, which makes
// ordering and seek errors easy to spot.
func NewRampSource(sampleRate, channels, totalFrames int) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame int, _ int) float32 {
		return float32(frame) / float32(totalFrames)
	})
}

func (m *MockSource) SampleRate() int { return m.sampleRate }
func (m *MockSource) Channels() int   { return m.channels }
func (m *MockSource) BufSize() int    { return 4096 }
func (m *MockSource) Frames() int     { return m.totalFrames }
func (m *MockSource) Position() int   { return m.pos }

func (m *MockSource) Close() error {
	m.Closed = true
	return nil
}

func (m *MockSource) SeekFrame(frame int64) error {
	m.Seeks++
	m.pos = min(int(frame), m.totalFrames)
	return nil
}

func (m *MockSource) ReadSamples(dst []float32) (int, error) {
	if m.FailAt >= 0 && m.pos >= m.FailAt {
		return 0, ErrInjected
	}
	if m.pos >= m.totalFrames {
		return 0, io.EOF
	}

	frames := min(len(dst)/m.channels, m.totalFrames-m.pos)
	if m.FailAt >= 0 {
		frames = min(frames, m.FailAt-m.pos)
	}
	for f := range frames {
		for ch := range m.channels {
			dst[f*m.channels+ch] = m.waveform(m.pos+f, ch)
		}
	}
	m.pos += frames

	if m.pos >= m.totalFrames {
		return frames * m.channels, io.EOF
	}
	return frames * m.channels, nil
}
