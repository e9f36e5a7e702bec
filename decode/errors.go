// SPDX-License-Identifier: EPL-2.0

package decode

import "errors"

var (
	ErrUnsupported         = errors.New("no decoder could open the file")
	ErrFFmpegUnavailable   = errors.New("ffmpeg binary not available")
	ErrFFmpegFailed        = errors.New("ffmpeg exited with an error")
	ErrClosed              = errors.New("decoder is closed")
	ErrInvalidTargetFormat = errors.New("target sample rate and channels must be positive")
)
