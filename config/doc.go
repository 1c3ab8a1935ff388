// SPDX-License-Identifier: EPL-2.0

// Package config persists the session and the preset slots in an INI file.
//
// The file layout:
//
//	[IO]
//	input = 4
//
//	[ENGINE]
//	max_delay_ms = 1000
//
//	[DELAYS]
//	values = 0.00,12.50,3.00,0.00
//
//	[NAMES]
//	1 = Kick
//	2 = Overhead L
//
//	[PRESET_1]
//	channels = 4
//	delays = 0.00,12.50,3.00,0.00
//	name_1 = Kick
//
// Channel names use 1-based keys. Delays are written with two decimals.
package config
