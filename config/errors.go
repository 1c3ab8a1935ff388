// SPDX-License-Identifier: EPL-2.0

package config

import "errors"

var (
	ErrInvalidSlot = errors.New("preset slot out of range")
	ErrEmptyPreset = errors.New("preset slot is empty")
	ErrMalformed   = errors.New("malformed config value")
)
