// SPDX-License-Identifier: EPL-2.0

package decode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const (
	bytesPerSample = 4
	stderrLimit    = 4096
)

// BuildFFmpegArgs returns the arguments that decode path to raw
// little-endian float32 at rate and channels on stdout, starting at offset
// seconds when offset is positive.
func BuildFFmpegArgs(path string, rate, channels int, offset float64) []string {
	args := []string{"-nostdin", "-hide_banner", "-v", "error"}
	if offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offset, 'f', 6, 64))
	}
	args = append(args,
		"-i", path,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	)
	return args
}

// LookupFFmpeg resolves bin on PATH, or checks it directly when it
// contains a path separator.
func LookupFFmpeg(bin string) (string, error) {
	if strings.TrimSpace(bin) == "" {
		return "", ErrFFmpegUnavailable
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFFmpegUnavailable, err)
	}
	return path, nil
}

// limitedBuffer keeps the first stderrLimit bytes of ffmpeg's stderr.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if room := stderrLimit - l.buf.Len(); room > 0 {
		l.buf.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}

func (l *limitedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.TrimSpace(l.buf.String())
}

// FFmpeg decodes through an ffmpeg child process.
type FFmpeg struct {
	bin    string
	path   string
	format Format
	logger *slog.Logger
	parent context.Context

	cancel context.CancelFunc
	cmd    *exec.Cmd
	out    *bufio.Reader
	stderr *limitedBuffer

	raw    []byte
	carry  int
	done   bool
	closed bool
}

// OpenFFmpeg starts ffmpeg on path. The process is killed when ctx ends.
func OpenFFmpeg(ctx context.Context, bin, path string, rate, channels int, logger *slog.Logger) (*FFmpeg, error) {
	if rate <= 0 || channels <= 0 {
		return nil, ErrInvalidTargetFormat
	}
	resolved, err := LookupFFmpeg(bin)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input missing: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &FFmpeg{
		bin:    resolved,
		path:   path,
		format: Format{SampleRate: rate, Channels: channels},
		logger: logger,
		parent: ctx,
	}
	if err := f.start(0); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FFmpeg) start(frame int64) error {
	ctx, cancel := context.WithCancel(f.parent)
	offset := float64(frame) / float64(f.format.SampleRate)
	args := BuildFFmpegArgs(f.path, f.format.SampleRate, f.format.Channels, offset)

	cmd := exec.CommandContext(ctx, f.bin, args...)
	stderr := &limitedBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w", err)
	}

	f.logger.Debug("starting ffmpeg", "path", f.path, "offset", offset)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrFFmpegFailed, err)
	}

	f.cancel = cancel
	f.cmd = cmd
	f.stderr = stderr
	f.out = bufio.NewReaderSize(stdout, 64*1024)
	f.carry = 0
	f.done = false

	// an input ffmpeg cannot decode fails before the first sample
	if _, err := f.out.Peek(1); err != nil {
		if werr := f.wait(); werr != nil {
			return werr
		}
		// ran cleanly with no output: an empty clip
		f.done = true
	}
	return nil
}

// wait reaps the process and reports a non-zero exit with its stderr.
func (f *FFmpeg) wait() error {
	if f.cmd == nil {
		return nil
	}
	err := f.cmd.Wait()
	f.cancel()
	f.cmd = nil
	if err != nil {
		msg := f.stderr.String()
		if msg == "" {
			return fmt.Errorf("%w: %w", ErrFFmpegFailed, err)
		}
		return fmt.Errorf("%w: %w: %s", ErrFFmpegFailed, err, msg)
	}
	return nil
}

func (f *FFmpeg) stop() {
	if f.cmd == nil {
		return
	}
	f.cancel()
	_ = f.cmd.Wait()
	f.cmd = nil
}

func (f *FFmpeg) Format() Format       { return f.format }
func (f *FFmpeg) SourceFormat() Format { return f.format }
func (f *FFmpeg) Backend() string      { return "ffmpeg" }

func (f *FFmpeg) ReadFrames(dst []float32) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.done {
		return 0, io.EOF
	}

	frameBytes := f.format.Channels * bytesPerSample
	frames := len(dst) / f.format.Channels
	if frames == 0 {
		return 0, nil
	}

	need := frames * frameBytes
	if cap(f.raw) < need {
		grown := make([]byte, need)
		copy(grown, f.raw[:f.carry])
		f.raw = grown
	}
	f.raw = f.raw[:need]

	n, err := io.ReadAtLeast(f.out, f.raw[f.carry:], 1)
	n += f.carry
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}

	whole := n - n%frameBytes
	for i := range whole / bytesPerSample {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(f.raw[i*bytesPerSample:]))
	}
	f.carry = copy(f.raw, f.raw[whole:n])
	got := whole / frameBytes

	if err == nil {
		return got, nil
	}

	f.done = true
	f.carry = 0
	if !errors.Is(err, io.EOF) {
		f.stop()
		return got, fmt.Errorf("%w: %w", ErrFFmpegFailed, err)
	}
	// a failure mid-stream shows up as a non-zero exit after EOF
	if werr := f.wait(); werr != nil {
		return got, werr
	}
	return got, io.EOF
}

// SeekFrame restarts ffmpeg with an input offset.
func (f *FFmpeg) SeekFrame(frame int64) error {
	if f.closed {
		return ErrClosed
	}
	if frame < 0 {
		return fmt.Errorf("seek to %d: negative frame", frame)
	}
	f.stop()
	return f.start(frame)
}

func (f *FFmpeg) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.stop()
	return nil
}
