// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	ErrInvalidDstSize     = errors.New("dst size must be multiple of channels")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrNotSeekable        = errors.New("source does not support seeking")
	ErrInvalidChannels    = errors.New("channel count must be positive")
	ErrInvalidSampleRate  = errors.New("sample rate must be positive")
	ErrNegativeSeekOffset = errors.New("seek frame must not be negative")
)
