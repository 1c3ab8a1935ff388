// SPDX-License-Identifier: EPL-2.0

package host

import "errors"

var (
	ErrRunning       = errors.New("device already running")
	ErrNotRunning    = errors.New("device not running")
	ErrClosed        = errors.New("host closed")
	ErrNoChannels    = errors.New("source has no channels")
	ErrBadSampleRate = errors.New("source sample rate must be > 0")
)
