// SPDX-License-Identifier: EPL-2.0

// Package libav decodes clips in process through the FFmpeg libraries:
// libavformat demuxes, libavcodec decodes and libswresample converts to
// interleaved float32 at the engine's rate and channel count.
//
// The package needs cgo and the FFmpeg shared libraries. Hand Open to
// decode.Options.Library to use it behind the native decoders.
package libav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unsafe"

	"github.com/csnewman/ffmpeg-go"

	"github.com/ik5/padmixer/decode"
)

var (
	// ErrOpen wraps every failure to open a clip, ErrNoAudioStream included.
	ErrOpen          = errors.New("libav could not open the file")
	ErrNoAudioStream = errors.New("no audio stream")
	ErrDecode        = errors.New("libav decode failed")
)

// Decoder is an open clip. It implements decode.Adapter and, like every
// adapter, is used from one goroutine at a time.
type Decoder struct {
	ctx    context.Context
	path   string
	format decode.Format
	source decode.Format
	codec  string
	logger *slog.Logger

	input   *ffmpeg.AVFormatContext
	decoder *ffmpeg.AVCodecContext
	swr     *ffmpeg.SwrContext
	packet  *ffmpeg.AVPacket
	frame   *ffmpeg.AVFrame
	out     *ffmpeg.AVFrame

	stream       int
	tbNum, tbDen int64

	pending []float32 // converted samples not yet returned
	pos     int       // read offset into pending

	seekTarget int64 // output frame asked for by the last seek
	locate     bool  // the next decoded frame fixes the position after a seek
	skip       int64 // output frames still to drop after a seek

	draining bool // the demuxer hit EOF and the decoder was told so
	done     bool // decoder and resampler are empty
	closed   bool
}

var _ decode.Adapter = (*Decoder)(nil)

// Opener adapts Open to decode.OpenFunc.
func Opener(logger *slog.Logger) decode.OpenFunc {
	return func(ctx context.Context, path string, rate, channels int) (decode.Adapter, error) {
		return Open(ctx, path, rate, channels, logger)
	}
}

// Open demuxes path, picks its best audio stream and prepares a resampler
// to rate and channels. ctx bounds every later read as well.
func Open(ctx context.Context, path string, rate, channels int, logger *slog.Logger) (*Decoder, error) {
	if rate <= 0 || channels <= 0 {
		return nil, decode.ErrInvalidTargetFormat
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Decoder{
		ctx:    ctx,
		path:   path,
		format: decode.Format{SampleRate: rate, Channels: channels},
		logger: logger.With("backend", "libav", "path", path),
	}
	if err := d.open(); err != nil {
		d.free()
		return nil, err
	}

	d.logger.Debug("opened clip", "codec", d.codec,
		"rate", d.source.SampleRate, "channels", d.source.Channels)
	return d, nil
}

func (d *Decoder) open() error {
	url := ffmpeg.ToCStr(d.path)
	defer url.Free()

	if _, err := ffmpeg.AVFormatOpenInput(&d.input, url, nil, nil); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOpen, d.path, err)
	}
	if _, err := ffmpeg.AVFormatFindStreamInfo(d.input, nil); err != nil {
		return fmt.Errorf("%w: stream info: %w", ErrOpen, err)
	}

	var codec *ffmpeg.AVCodec
	idx, err := ffmpeg.AVFindBestStream(d.input, ffmpeg.AVMediaTypeAudio, -1, -1, &codec, 0)
	if err != nil {
		return fmt.Errorf("%w: %w: %s: %w", ErrOpen, ErrNoAudioStream, d.path, err)
	}
	d.stream = idx
	st := d.input.Streams().Get(uintptr(idx))

	d.decoder = ffmpeg.AVCodecAllocContext3(codec)
	if d.decoder == nil {
		return fmt.Errorf("%w: allocate codec context", ErrOpen)
	}
	if _, err := ffmpeg.AVCodecParametersToContext(d.decoder, st.Codecpar()); err != nil {
		return fmt.Errorf("%w: codec parameters: %w", ErrOpen, err)
	}
	d.decoder.SetPktTimebase(st.TimeBase())
	if _, err := ffmpeg.AVCodecOpen2(d.decoder, codec, nil); err != nil {
		return fmt.Errorf("%w: open codec: %w", ErrOpen, err)
	}

	tb := st.TimeBase()
	d.tbNum, d.tbDen = int64(tb.Num()), int64(tb.Den())
	d.codec = codec.Name().String()
	d.source = decode.Format{
		SampleRate: d.decoder.SampleRate(),
		Channels:   d.decoder.ChLayout().NbChannels(),
	}

	d.packet = ffmpeg.AVPacketAlloc()
	d.frame = ffmpeg.AVFrameAlloc()
	d.out = ffmpeg.AVFrameAlloc()
	if d.packet == nil || d.frame == nil || d.out == nil {
		return fmt.Errorf("%w: allocate frames", ErrOpen)
	}
	return d.resetResampler()
}

// prepareOut describes the conversion target on the output frame. swresample
// allocates its buffer on each conversion.
func (d *Decoder) prepareOut() {
	ffmpeg.AVChannelLayoutDefault(d.out.ChLayout(), d.format.Channels)
	d.out.SetSampleRate(d.format.SampleRate)
	d.out.SetFormat(int(ffmpeg.AVSampleFmtFlt))
}

func (d *Decoder) resetResampler() error {
	if d.swr != nil {
		ffmpeg.SwrFree(&d.swr)
	}
	d.prepareOut()
	_, err := ffmpeg.SwrAllocSetOpts2(&d.swr,
		d.out.ChLayout(), ffmpeg.AVSampleFmtFlt, d.format.SampleRate,
		d.decoder.ChLayout(), d.decoder.SampleFmt(), d.decoder.SampleRate(),
		0, nil)
	if err != nil {
		return fmt.Errorf("%w: allocate resampler: %w", ErrOpen, err)
	}
	if _, err := ffmpeg.SwrInit(d.swr); err != nil {
		return fmt.Errorf("%w: init resampler: %w", ErrOpen, err)
	}
	ffmpeg.AVFrameUnref(d.out)
	return nil
}

// ReadFrames implements decode.Adapter.
func (d *Decoder) ReadFrames(dst []float32) (int, error) {
	if d.closed {
		return 0, decode.ErrClosed
	}

	ch := d.format.Channels
	want := len(dst) / ch * ch
	n := 0
	for n < want {
		if d.pos == len(d.pending) {
			if err := d.fill(); err != nil {
				return n / ch, err
			}
		}
		c := copy(dst[n:want], d.pending[d.pos:])
		d.pos += c
		n += c
	}
	return n / ch, nil
}

// fill decodes until pending holds samples, or returns io.EOF once the
// decoder and the resampler are both empty.
func (d *Decoder) fill() error {
	d.pending, d.pos = d.pending[:0], 0

	for len(d.pending) == 0 {
		if d.done {
			return io.EOF
		}
		if err := d.ctx.Err(); err != nil {
			return err
		}

		_, err := ffmpeg.AVCodecReceiveFrame(d.decoder, d.frame)
		switch {
		case err == nil:
			err = d.convert(d.frame)
			ffmpeg.AVFrameUnref(d.frame)
			if err != nil {
				return err
			}
			continue
		case errors.Is(err, ffmpeg.AVErrorEOF):
			// flush what the resampler still holds
			if err := d.convert(nil); err != nil {
				return err
			}
			d.done = true
			continue
		case !errors.Is(err, ffmpeg.EAgain):
			return fmt.Errorf("%w: receive frame: %w", ErrDecode, err)
		}

		if d.draining {
			d.done = true
			continue
		}
		if err := d.feed(); err != nil {
			return err
		}
	}
	return nil
}

// feed sends the next packet of the chosen stream to the decoder, or puts
// the decoder in draining mode at the end of the input.
func (d *Decoder) feed() error {
	for {
		_, err := ffmpeg.AVReadFrame(d.input, d.packet)
		if errors.Is(err, ffmpeg.AVErrorEOF) {
			d.draining = true
			if _, err := ffmpeg.AVCodecSendPacket(d.decoder, nil); err != nil && !errors.Is(err, ffmpeg.AVErrorEOF) {
				return fmt.Errorf("%w: drain decoder: %w", ErrDecode, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read packet: %w", ErrDecode, err)
		}

		if d.packet.StreamIndex() != d.stream {
			ffmpeg.AVPacketUnref(d.packet)
			continue
		}
		_, err = ffmpeg.AVCodecSendPacket(d.decoder, d.packet)
		ffmpeg.AVPacketUnref(d.packet)
		if err != nil && !errors.Is(err, ffmpeg.EAgain) {
			return fmt.Errorf("%w: send packet: %w", ErrDecode, err)
		}
		return nil
	}
}

// convert resamples in, or flushes the resampler when in is nil, and
// appends the result to pending.
func (d *Decoder) convert(in *ffmpeg.AVFrame) error {
	if in != nil && d.locate {
		d.locate = false
		if pts := in.Pts(); pts >= 0 && d.tbDen > 0 {
			at := pts * d.tbNum * int64(d.format.SampleRate) / d.tbDen
			d.skip = max(d.seekTarget-at, 0)
		}
	}

	d.prepareOut()
	defer ffmpeg.AVFrameUnref(d.out)
	if _, err := ffmpeg.SwrConvertFrame(d.swr, d.out, in); err != nil {
		return fmt.Errorf("%w: resample: %w", ErrDecode, err)
	}

	frames := int64(d.out.NbSamples())
	if frames <= 0 {
		return nil
	}
	drop := min(d.skip, frames)
	d.skip -= drop

	ch := int64(d.format.Channels)
	samples := unsafe.Slice((*float32)(unsafe.Pointer(d.out.Data().Get(0))), frames*ch)
	d.pending = append(d.pending, samples[drop*ch:]...)
	return nil
}

// SeekFrame implements decode.Adapter. The demuxer lands on the closest
// earlier point and the frames before target are decoded and dropped.
func (d *Decoder) SeekFrame(frame int64) error {
	if d.closed {
		return decode.ErrClosed
	}
	if frame < 0 {
		return fmt.Errorf("%w: negative seek %d", ErrDecode, frame)
	}

	var ts int64
	if d.tbNum > 0 {
		ts = frame * d.tbDen / (d.tbNum * int64(d.format.SampleRate))
	}
	if _, err := ffmpeg.AVSeekFrame(d.input, d.stream, ts, ffmpeg.AVSeekFlagBackward); err != nil {
		return fmt.Errorf("%w: seek to frame %d: %w", ErrDecode, frame, err)
	}
	ffmpeg.AVCodecFlushBuffers(d.decoder)
	if err := d.resetResampler(); err != nil {
		return err
	}

	d.pending, d.pos = d.pending[:0], 0
	d.draining, d.done = false, false
	d.seekTarget, d.locate, d.skip = frame, true, 0

	d.logger.Debug("seeked", "frame", frame, "timestamp", ts)
	return nil
}

func (d *Decoder) Format() decode.Format       { return d.format }
func (d *Decoder) SourceFormat() decode.Format { return d.source }
func (d *Decoder) Backend() string             { return "libav/" + d.codec }

// Close releases the FFmpeg contexts. It is safe to call more than once.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.free()
	return nil
}

func (d *Decoder) free() {
	if d.packet != nil {
		ffmpeg.AVPacketFree(&d.packet)
	}
	if d.frame != nil {
		ffmpeg.AVFrameFree(&d.frame)
	}
	if d.out != nil {
		ffmpeg.AVFrameFree(&d.out)
	}
	if d.swr != nil {
		ffmpeg.SwrFree(&d.swr)
	}
	if d.decoder != nil {
		ffmpeg.AVCodecFreeContext(&d.decoder)
	}
	if d.input != nil {
		ffmpeg.AVFormatCloseInput(&d.input)
	}
}
