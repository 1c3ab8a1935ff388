// SPDX-License-Identifier: EPL-2.0

package aiff

import "errors"

var (
	// ErrNotAiffFile indicates the input does not carry a FORM/AIFF header.
	ErrNotAiffFile = errors.New("not an AIFF file")

	ErrOnlyIntegerPCMSupported = errors.New("only 16/24/32-bit integer AIFF supported")

	ErrUnsupportedAiffLayout = errors.New("unsupported AIFF layout")
)
