// SPDX-License-Identifier: EPL-2.0

package align

import "errors"

var (
	ErrEmptyInput       = errors.New("align: empty input")
	ErrTooFewChannels   = errors.New("align: need at least two channels")
	ErrInvalidReference = errors.New("align: reference channel out of range")
	ErrLengthMismatch   = errors.New("align: channels differ in length")
)
