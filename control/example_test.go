// SPDX-License-Identifier: EPL-2.0

package control_test

import (
	"fmt"

	"github.com/ik5/jdelay/control"
	"github.com/ik5/jdelay/delay"
)

func ExampleController_Dispatch() {
	eng := delay.NewEngine(delay.Config{Channels: 2, SampleRate: 48000, MaxDelayMs: 100})
	ctrl := control.New(eng, control.Options{})

	for _, line := range []string{"set 2 150", "link 1", "set 1 2.5", "status"} {
		reply, err := ctrl.Dispatch(line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(reply)
	}
	// Output:
	// Channel 2: 100.00 ms (4800 frames), clamped from 150
	// linked 1+2
	// Channel 1: 2.50 ms (120 frames); linked Channel 2 follows
	// Ready
}
