// SPDX-License-Identifier: EPL-2.0

// Package audio provides the decode pipeline primitives shared by every clip.
//
// A clip travels through three stages before it reaches a slot's ring:
//
//	format decoder  ->  Resampler / SincResampler  ->  ChannelMapper
//	(native rate)       (engine rate)                  (engine channels)
//
// Every stage implements Source, and every stage forwards SeekFrame to the
// stage below it, so looping a clip is a seek to frame 0 on the outermost
// stage.
//
// # Source Interface
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    BufSize() int
//	    Close() error
//	}
//
// ReadSamples works on interleaved samples, not frames, and returns io.EOF
// once the stream is exhausted (possibly together with the final samples).
//
// # Seeking
//
// Sources that can reposition implement Seeker. Frame numbers are always in
// the source's own sample rate; Resampler converts between rates.
//
// # Format Registry
//
// The Registry maps format names and file extensions to decoders, and falls
// back to sniffing magic bytes when an extension is missing or misleading:
//
//	registry := audio.NewRegistry()
//	registry.Register("wav", wav.Decoder{})
//	registry.Register("mp3", mp3.Decoder{})
//	dec, format, err := registry.Lookup("clip.bin", header)
//
// # Sample Format
//
// Samples are float32 in [-1.0, 1.0]. Intermediate stages never clip; the
// engine clips once, at the output.
package audio
