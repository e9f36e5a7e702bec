// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1].
	// Returns number of float32 values written (not frames). When n == 0 with err == io.EOF, the stream is finished.
	ReadSamples(dst []float32) (n int, err error)

	BufSize() int

	// Close releases any resources.
	Close() error
}

// Seeker is implemented by sources that can reposition to a frame index
// counted at the source's own sample rate.
type Seeker interface {
	SeekFrame(frame int64) error
}

// Decoder constructs a Source from an input reader. Decoders return a
// Seeker-capable Source when r is also an io.Seeker.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// SeekFrame seeks src if it supports seeking.
func SeekFrame(src Source, frame int64) error {
	if frame < 0 {
		return ErrNegativeSeekOffset
	}
	s, ok := src.(Seeker)
	if !ok {
		return ErrNotSeekable
	}
	return s.SeekFrame(frame)
}

// extensions maps lowercase file extensions to registry format keys.
var extensions = map[string]string{
	"wav":  "wav",
	"wave": "wav",
	"mp3":  "mp3",
	"ogg":  "ogg",
	"oga":  "ogg",
	"aif":  "aiff",
	"aiff": "aiff",
	"aifc": "aiff",
}

// SniffLen is the number of leading bytes Sniff inspects.
const SniffLen = 12

// Sniff identifies a container from its leading bytes. It returns the
// registry format key, or "" when nothing matches.
func Sniff(header []byte) string {
	switch {
	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return "wav"
	case len(header) >= 12 && bytes.Equal(header[:4], []byte("FORM")) &&
		(bytes.Equal(header[8:12], []byte("AIFF")) || bytes.Equal(header[8:12], []byte("AIFC"))):
		return "aiff"
	case len(header) >= 4 && bytes.Equal(header[:4], []byte("OggS")):
		return "ogg"
	case len(header) >= 3 && bytes.Equal(header[:3], []byte("ID3")):
		return "mp3"
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return "mp3"
	}
	return ""
}

// FormatForPath returns the registry key implied by path's extension.
func FormatForPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return extensions[ext]
}

// Registry for decoders by format key (e.g., "wav", "mp3", "ogg", "aiff").
type Registry struct {
	codecs map[string]Decoder

	mtx *sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
		mtx:    &sync.Mutex{},
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.codecs[format]
	return d, ok
}

// Formats returns the number of registered formats.
func (r *Registry) Formats() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return len(r.codecs)
}

// Lookup picks a decoder for a file. The magic bytes in header win over the
// extension when they identify a registered format; otherwise the extension
// decides. The chosen format key is returned alongside the decoder.
func (r *Registry) Lookup(path string, header []byte) (Decoder, string, error) {
	if format := Sniff(header); format != "" {
		if d, ok := r.Get(format); ok {
			return d, format, nil
		}
	}
	if format := FormatForPath(path); format != "" {
		if d, ok := r.Get(format); ok {
			return d, format, nil
		}
	}
	return nil, "", fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
}
