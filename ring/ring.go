// SPDX-License-Identifier: EPL-2.0

// Package ring implements the single-producer single-consumer frame ring
// that carries decoded PCM from a clip's decoder goroutine to a device
// callback.
//
// Exactly one goroutine may call Write and exactly one may call
// Read and Discard. Available and Free are safe from either side. Neither
// side ever blocks, allocates or takes a lock; a producer that finds the
// ring full backs off on its own.
package ring

import (
	"sync/atomic"
)

// cacheLine keeps the producer and consumer cursors on separate lines.
const cacheLine = 64

type cursor struct {
	v atomic.Uint64
	_ [cacheLine - 8]byte
}

// Ring holds interleaved float32 frames. Cursors count frames and only grow;
// their difference is the fill level, so a full ring and an empty ring are
// never confused.
type Ring struct {
	buf      []float32
	frames   uint64
	channels int

	write cursor // advanced by the producer
	read  cursor // advanced by the consumer
}

// New allocates a ring of capacity frames with the given channel count.
func New(frames, channels int) *Ring {
	if frames <= 0 {
		frames = 1
	}
	if channels <= 0 {
		channels = 1
	}
	return &Ring{
		buf:      make([]float32, frames*channels),
		frames:   uint64(frames),
		channels: channels,
	}
}

// Capacity in frames.
func (r *Ring) Capacity() int { return int(r.frames) }

func (r *Ring) Channels() int { return r.channels }

// Available reports frames ready to read.
func (r *Ring) Available() int {
	return int(r.write.v.Load() - r.read.v.Load())
}

// Free reports frames that can be written without overwriting unread data.
func (r *Ring) Free() int {
	return int(r.frames - (r.write.v.Load() - r.read.v.Load()))
}

// Write copies whole frames from src and returns the number of frames
// written, which is less than len(src)/channels when the ring fills up.
func (r *Ring) Write(src []float32) int {
	w := r.write.v.Load()
	rd := r.read.v.Load()

	n := min(uint64(len(src)/r.channels), r.frames-(w-rd))
	if n == 0 {
		return 0
	}

	start := w % r.frames
	first := min(n, r.frames-start)
	ch := uint64(r.channels)
	copy(r.buf[start*ch:(start+first)*ch], src[:first*ch])
	if first < n {
		copy(r.buf[:(n-first)*ch], src[first*ch:n*ch])
	}

	// publish after the copy
	r.write.v.Store(w + n)
	return int(n)
}

// Read copies up to len(dst)/channels frames into dst and returns the frame
// count. It returns 0 immediately when the ring is empty.
func (r *Ring) Read(dst []float32) int {
	rd := r.read.v.Load()
	w := r.write.v.Load()

	n := min(uint64(len(dst)/r.channels), w-rd)
	if n == 0 {
		return 0
	}

	start := rd % r.frames
	first := min(n, r.frames-start)
	ch := uint64(r.channels)
	copy(dst[:first*ch], r.buf[start*ch:(start+first)*ch])
	if first < n {
		copy(dst[first*ch:n*ch], r.buf[:(n-first)*ch])
	}

	r.read.v.Store(rd + n)
	return int(n)
}

// Discard drops up to frames unread frames. Consumer side only.
func (r *Ring) Discard(frames int) int {
	rd := r.read.v.Load()
	w := r.write.v.Load()

	n := min(uint64(max(frames, 0)), w-rd)
	r.read.v.Store(rd + n)
	return int(n)
}
