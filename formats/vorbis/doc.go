// SPDX-License-Identifier: EPL-2.0

// Package vorbis provides Ogg Vorbis decoding on top of
// github.com/jfreymuth/oggvorbis.
//
// The source keeps the stream's channel count and sample rate and returns
// float32 samples in [-1.0, 1.0]. When the reader passed to Decode is also
// an io.Seeker, SeekFrame maps to oggvorbis SetPosition, which seeks by
// granule position and then decodes forward to the exact frame.
//
//	file, _ := os.Open("clip.ogg")
//	source, err := vorbis.Decoder{}.Decode(file)
//	err = audio.SeekFrame(source, 0) // loop
package vorbis
