// SPDX-License-Identifier: EPL-2.0

// Package padmixer is a soundboard mixing engine: up to sixteen clip slots
// and a live microphone rendered in real time to a main output device, with
// an optional monitor output and recording of the main mix.
//
// The engine itself lives in the engine subpackage:
//
//	e, _ := engine.New(engine.Config{}, backend)
//	defer e.Close()
//
//	_ = e.LoadClip(0, "airhorn.mp3")
//	_ = e.StartAudioDevice()
//	_ = e.PlayClip(0)
//
// # Subpackages
//
//   - audio: decode pipeline primitives (Source, Registry, resamplers, channel mapping)
//   - formats/wav, formats/mp3, formats/vorbis, formats/aiff: in-process decoders
//   - decode: the clip adapter used by slots, with FFmpeg fallbacks (decode/libav in process, or the binary)
//   - ring: lock-free single-producer single-consumer frame ring
//   - noise: microphone noise suppression
//   - device: output and capture endpoints, malgo and virtual backends
//   - recorder: main mix capture to WAV
//   - engine: slots, mixing, gains, meters, events and device lifecycle
//   - config, history: settings file and recording index used by cmd/padmixer
//
// # Offline rendering
//
// RenderFile runs a clip through the same decode chain a slot uses and
// returns every frame in memory; ConvertFile writes the result as WAV:
//
//	r, err := padmixer.ConvertFile(ctx, "in.ogg", "out.wav", padmixer.RenderOptions{
//		SampleRate: 44100,
//		Channels:   1,
//	})
//
// Callers that already hold an audio.Source can use ResampleToInt16.
package padmixer
