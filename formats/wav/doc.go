// SPDX-License-Identifier: EPL-2.0

// Package wav provides WAV audio decoding and encoding on top of
// github.com/go-audio/wav.
//
// # Supported Formats
//
//   - integer PCM (format tag 1) at 8, 16, 24 and 32 bits
//   - any channel count and sample rate
//
// Float and extensible WAVs are rejected with ErrUnsupportedWavLayout; the
// decode package hands those to its FFmpeg fallbacks.
//
// # Decoding
//
//	file, _ := os.Open("clip.wav")
//	source, err := wav.Decoder{}.Decode(file)
//
// The returned source also implements audio.Seeker. Seeking rewinds to the
// start of the data chunk and skips forward, so looping back to frame 0 is
// cheap and arbitrary seeks cost a read of the skipped region.
//
// # Writing
//
// Writer streams float32 samples into a file whose size is not known up
// front, which is how the recorder uses it:
//
//	w, err := wav.Create("take.wav", 48000, 2, 24)
//	err = w.WriteFloat32(samples)
//	err = w.Close()
//
// WritePCM16 writes a complete 16-bit file to any io.Writer in one call.
package wav
