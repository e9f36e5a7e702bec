// SPDX-License-Identifier: EPL-2.0

package device

import "errors"

var (
	ErrUnknownDevice  = errors.New("no device with that id")
	ErrStaleSelection = errors.New("device list changed since it was enumerated")
	ErrNoCapture      = errors.New("no capture device available")
	ErrInvalidConfig  = errors.New("invalid stream configuration")
	ErrClosed         = errors.New("device is closed")
)
