// SPDX-License-Identifier: EPL-2.0

package control

import "errors"

var (
	// ErrQuit is returned by Dispatch for the quit command.
	ErrQuit = errors.New("quit")

	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrBadChannel     = errors.New("no such channel")
	ErrIncompletePair = errors.New("channel has no link partner")
	ErrNoTransport    = errors.New("no audio device")
	ErrNoStore        = errors.New("no config file")
	ErrMinChannels    = errors.New("channel count cannot go below 2")
)
