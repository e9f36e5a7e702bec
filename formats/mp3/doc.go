// SPDX-License-Identifier: EPL-2.0

// Package mp3 provides MP3 decoding on top of github.com/hajimehoshi/go-mp3.
//
// # Output Format
//
//   - float32 in [-1.0, 1.0]
//   - always 2 channels; go-mp3 duplicates mono streams
//   - the file's own sample rate, typically 44.1 or 48 kHz
//
// # Decoding
//
//	file, _ := os.Open("clip.mp3")
//	source, err := mp3.Decoder{}.Decode(file)
//
// When the reader is also an io.Seeker the source implements audio.Seeker.
// go-mp3 seeks by decoded PCM byte offset, so SeekFrame lands on the exact
// frame rather than the nearest MPEG frame boundary.
//
// To bring a clip to the engine format, chain the audio package stages:
//
//	resampled := audio.NewResampler(source, 48000)
//	mono, _ := audio.NewChannelMapper(resampled, 1)
package mp3
