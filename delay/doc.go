// SPDX-License-Identifier: EPL-2.0

// Package delay implements the real-time latency compensation engine.
//
// Every channel owns a circular delay line. Once per audio callback the
// engine writes the channel's input block into its line and reads back the
// block that lies the channel's configured delay in the past:
//
//	eng := delay.NewEngine(delay.Config{Channels: 2, SampleRate: 48000})
//	if err := eng.Activate(); err != nil {
//	    return err
//	}
//	eng.SetDelay(0, 10) // 10 ms = 480 frames at 48 kHz
//
//	// inside the audio callback
//	eng.Process(in, out)
//
// # Threads
//
// Two actors use an Engine. The realtime side calls Process (or
// ProcessChannel) from the audio callback; it never allocates, never takes a
// lock and never panics out of the call. The control side calls everything
// else. Delay values are lock-free scalars, so SetDelay may run while the
// engine is active and takes effect on the next block.
//
// Structural changes (channel count, sample rate, delay ceiling) rebuild the
// delay lines and are only accepted while the engine is inactive:
//
//	err := eng.Handover(func() error {
//	    return eng.Reconfigure(4, 48000, 1000)
//	})
//
// # Links
//
// Adjacent channels (0,1), (2,3), ... can be linked. A delay change on
// either member of a linked pair is mirrored to the other member.
//
// # Faults
//
// Problems detected inside the callback (missing buffers, size mismatches)
// silence the affected output and bump the counter returned by Faults.
// Nothing is reported from the callback itself.
package delay
