// SPDX-License-Identifier: EPL-2.0

package delay

import "errors"

var (
	ErrActive          = errors.New("engine is active")
	ErrInvalidCapacity = errors.New("delay line capacity must be > 0")
)
