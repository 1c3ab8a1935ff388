// SPDX-License-Identifier: EPL-2.0

// Package control is the text control surface of jdelay.
//
// A Controller turns command lines into engine, transport and preset
// operations and returns the text to show. A Console feeds it from a
// terminal (with line editing) or from any reader.
//
// Channels are numbered from 1 on this surface, matching the labels the
// user sees. Delays outside the engine's range are clamped and the reply
// says so.
package control
