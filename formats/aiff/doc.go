// SPDX-License-Identifier: EPL-2.0

// Package aiff provides AIFF (Audio Interchange File Format) decoding on top
// of github.com/go-audio/aiff.
//
// Uncompressed AIFF at 8, 16, 24 and 32 bits is supported, with any channel
// count and sample rate. Samples are normalized to float32 in [-1.0, 1.0].
//
//	file, _ := os.Open("clip.aiff")
//	source, err := aiff.Decoder{}.Decode(file)
//
// go-audio/aiff cannot reposition inside the sound data, so SeekFrame
// reopens the decoder from the start of the file and reads forward to the
// requested frame. Looping back to frame 0 costs one header parse.
package aiff
