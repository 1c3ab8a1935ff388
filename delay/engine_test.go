// SPDX-License-Identifier: EPL-2.0

package delay

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
)

// stream feeds whole per-channel signals through eng in blocks of size
// block and returns the concatenated outputs.
func stream(eng *Engine, signals [][]float32, block int) [][]float32 {
	channels := len(signals)
	total := len(signals[0])

	outputs := make([][]float32, channels)
	for ch := range outputs {
		outputs[ch] = make([]float32, total)
	}

	in := make([][]float32, channels)
	out := make([][]float32, channels)
	for off := 0; off < total; off += block {
		end := min(off+block, total)
		for ch := range channels {
			in[ch] = signals[ch][off:end]
			out[ch] = outputs[ch][off:end]
		}
		eng.Process(in, out)
	}

	return outputs
}

func noise(seed int64, n int) []float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float32, n)
	for i := range out {
		out[i] = r.Float32()*2 - 1
	}
	return out
}

func mustActivate(t *testing.T, eng *Engine) {
	t.Helper()
	if err := eng.Activate(); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
}

func TestEngine_ImpulseScenario(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2, MaxDelayMs: 1000, SampleRate: 48000})
	mustActivate(t, eng)
	eng.SetDelay(0, 10)

	const total = 2048
	signals := [][]float32{make([]float32, total), make([]float32, total)}
	signals[0][100] = 1
	signals[1][100] = 1

	out := stream(eng, signals, 256)

	for i, v := range out[0] {
		want := float32(0)
		if i == 100+480 {
			want = 1
		}
		if v != want {
			t.Errorf("channel 0 sample %d = %v, want %v", i, v, want)
		}
	}
	for i, v := range out[1] {
		want := float32(0)
		if i == 100 {
			want = 1
		}
		if v != want {
			t.Errorf("channel 1 sample %d = %v, want %v", i, v, want)
		}
	}
}

func TestEngine_SteadyStateDelay(t *testing.T) {
	t.Parallel()

	// at 1 kHz one millisecond is one frame
	delays := []float64{0, 1, 37, 255, 256, 999, 1000}

	for _, d := range delays {
		eng := NewEngine(Config{Channels: 1, SampleRate: 1000, MaxDelayMs: 1000})
		mustActivate(t, eng)
		eng.SetDelay(0, d)

		sig := noise(int64(d)+1, 4096)
		out := stream(eng, [][]float32{sig}, 128)[0]

		frames := int(d)
		for i := frames; i < len(sig); i++ {
			if out[i] != sig[i-frames] {
				t.Fatalf("delay %v: out[%d] = %v, want %v", d, i, out[i], sig[i-frames])
			}
		}
		for i := 0; i < frames && i < len(out); i++ {
			if out[i] != 0 {
				t.Fatalf("delay %v: out[%d] = %v before signal arrives, want 0", d, i, out[i])
			}
		}
	}
}

func TestEngine_ZeroDelayRoundTrip(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 3, SampleRate: 44100})
	mustActivate(t, eng)

	signals := [][]float32{noise(1, 3000), noise(2, 3000), noise(3, 3000)}
	out := stream(eng, signals, 300)

	for ch := range signals {
		for i := range signals[ch] {
			if out[ch][i] != signals[ch][i] {
				t.Fatalf("channel %d sample %d = %v, want %v", ch, i, out[ch][i], signals[ch][i])
			}
		}
	}
}

func TestEngine_DelayChangeAppliesOnNextBlock(t *testing.T) {
	t.Parallel()

	const block = 64

	eng := NewEngine(Config{Channels: 1, SampleRate: 1000})
	mustActivate(t, eng)

	sig := noise(7, 8*block)
	out := make([]float32, len(sig))

	for b := range 8 {
		if b == 4 {
			eng.SetDelay(0, 10)
		}
		lo, hi := b*block, (b+1)*block
		eng.Process([][]float32{sig[lo:hi]}, [][]float32{out[lo:hi]})
	}

	for i := range 4 * block {
		if out[i] != sig[i] {
			t.Fatalf("before change: out[%d] = %v, want %v", i, out[i], sig[i])
		}
	}
	for i := 4 * block; i < len(sig); i++ {
		if out[i] != sig[i-10] {
			t.Fatalf("after change: out[%d] = %v, want %v", i, out[i], sig[i-10])
		}
	}
}

func TestEngine_InactiveProducesSilence(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2})
	in := [][]float32{{1, 2, 3}, {4, 5, 6}}
	out := [][]float32{{9, 9, 9}, {9, 9, 9}}

	eng.Process(in, out)

	for ch := range out {
		for i, v := range out[ch] {
			if v != 0 {
				t.Errorf("out[%d][%d] = %v, want 0", ch, i, v)
			}
		}
	}
	if eng.Blocks() != 0 {
		t.Errorf("Blocks() = %d, want 0", eng.Blocks())
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2})
	if eng.Status() != StatusInactive {
		t.Fatalf("Status() = %v, want inactive", eng.Status())
	}

	mustActivate(t, eng)
	if eng.Status() != StatusActive {
		t.Fatalf("Status() = %v, want active", eng.Status())
	}
	if err := eng.Activate(); !errors.Is(err, ErrActive) {
		t.Errorf("second Activate() error = %v, want ErrActive", err)
	}

	eng.SetDelay(0, 5)
	eng.Deactivate()
	eng.Deactivate()

	if eng.Active() {
		t.Error("Active() = true after Deactivate")
	}
	if eng.bank.Allocated() {
		t.Error("lines still allocated after Deactivate")
	}
	if eng.Delay(0) != 5 {
		t.Errorf("Delay(0) = %v after Deactivate, want 5", eng.Delay(0))
	}
}

func TestEngine_ActivationResetsLines(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 1, SampleRate: 1000})
	mustActivate(t, eng)
	eng.SetDelay(0, 3)
	eng.Process([][]float32{{1, 2, 3, 4}}, [][]float32{make([]float32, 4)})
	eng.Deactivate()
	mustActivate(t, eng)

	out := []float32{9, 9, 9, 9}
	eng.Process([][]float32{{5, 6, 7, 8}}, [][]float32{out})

	want := []float32{0, 0, 0, 5}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestEngine_ReconfigureWhileActive(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2})
	mustActivate(t, eng)

	if err := eng.Reconfigure(4, 48000, 1000); !errors.Is(err, ErrActive) {
		t.Fatalf("Reconfigure() error = %v, want ErrActive", err)
	}
	if eng.Channels() != 2 {
		t.Errorf("Channels() = %d, want 2", eng.Channels())
	}
}

func TestEngine_Handover(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2})
	eng.SetLinked(0, true)
	mustActivate(t, eng)

	err := eng.Handover(func() error {
		if eng.Active() {
			t.Error("engine active inside Handover")
		}
		return eng.Reconfigure(4, 48000, 500)
	})
	if err != nil {
		t.Fatalf("Handover() error = %v", err)
	}

	if !eng.Active() {
		t.Error("engine not reactivated after Handover")
	}
	if eng.Channels() != 4 || eng.SampleRate() != 48000 || eng.MaxDelayMs() != 500 {
		t.Errorf("got %d ch @ %d Hz max %v", eng.Channels(), eng.SampleRate(), eng.MaxDelayMs())
	}
	if !eng.IsLinked(0) {
		t.Error("link on pair 0 lost across reconfigure")
	}
}

func TestEngine_HandoverPropagatesError(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{})
	mustActivate(t, eng)
	boom := errors.New("boom")

	if err := eng.Handover(func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Handover() error = %v, want boom", err)
	}
	if !eng.Active() {
		t.Error("engine not reactivated after failing Handover")
	}
}

func TestEngine_SampleRateChanged(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2, SampleRate: 44100, MaxDelayMs: 1000})
	eng.SetDelay(0, 10)
	eng.SetDelay(1, 20)

	if err := eng.SampleRateChanged(48000); err != nil {
		t.Fatalf("SampleRateChanged() error = %v", err)
	}

	if eng.Capacity() < 48000+GuardFrames {
		t.Errorf("Capacity() = %d, want >= %d", eng.Capacity(), 48000+GuardFrames)
	}
	if eng.Delay(0) != 10 || eng.Delay(1) != 20 {
		t.Errorf("Delays() = %v, want [10 20]", eng.Delays())
	}
	if eng.DelayFrames(0) != 480 {
		t.Errorf("DelayFrames(0) = %d, want 480", eng.DelayFrames(0))
	}
	if eng.Active() {
		t.Error("inactive engine activated by SampleRateChanged")
	}
}

func TestEngine_SampleRateChangedWhileActive(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2, SampleRate: 44100})
	mustActivate(t, eng)

	if err := eng.SampleRateChanged(96000); err != nil {
		t.Fatalf("SampleRateChanged() error = %v", err)
	}
	if !eng.Active() {
		t.Error("engine not active after rate change")
	}
	if eng.SampleRate() != 96000 {
		t.Errorf("SampleRate() = %d, want 96000", eng.SampleRate())
	}
}

func TestEngine_LinkedSetDelay(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2})
	eng.SetLinked(0, true)

	eng.SetDelay(0, 250)
	if got := eng.Delay(1); got != 250 {
		t.Errorf("Delay(1) = %v, want 250", got)
	}

	eng.SetLinked(0, false)
	eng.SetDelay(0, 100)
	if got := eng.Delay(1); got != 250 {
		t.Errorf("Delay(1) = %v after unlink, want 250", got)
	}
}

func TestEngine_LinkDoesNotEqualize(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2})
	eng.SetDelay(0, 10)
	eng.SetDelay(1, 20)
	eng.SetLinked(0, true)

	if eng.Delay(0) != 10 || eng.Delay(1) != 20 {
		t.Errorf("Delays() = %v after linking, want [10 20]", eng.Delays())
	}

	eng.SetDelay(1, 30)
	if eng.Delay(0) != 30 {
		t.Errorf("Delay(0) = %v, want 30", eng.Delay(0))
	}
}

func TestEngine_LinkedSetDelayClamps(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2, MaxDelayMs: 100})
	eng.SetLinked(0, true)
	eng.SetDelay(1, 400)

	if eng.Delay(0) != 100 || eng.Delay(1) != 100 {
		t.Errorf("Delays() = %v, want [100 100]", eng.Delays())
	}
}

func TestEngine_StateRoundTrip(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2, SampleRate: 48000})
	eng.SetDelay(0, 3)
	eng.SetDelay(1, 4)
	saved := eng.State()

	if err := eng.SetState(Snapshot{Channels: 4, Delays: []float64{1, 2, 3, 4, 5}}); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	if eng.Channels() != 4 {
		t.Errorf("Channels() = %d, want 4", eng.Channels())
	}
	if got := eng.Delays(); len(got) != 4 || got[3] != 4 {
		t.Errorf("Delays() = %v, want [1 2 3 4]", got)
	}

	if err := eng.SetState(saved); err != nil {
		t.Fatalf("SetState(saved) error = %v", err)
	}
	got := eng.State()
	if got.Channels != 2 || got.SampleRate != 48000 || got.Delays[0] != 3 || got.Delays[1] != 4 {
		t.Errorf("State() = %+v, want %+v", got, saved)
	}
}

func TestEngine_SetStatePadsDelays(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2, InitialDelayMs: 1.5})
	if err := eng.SetState(Snapshot{Channels: 3, Delays: []float64{9}}); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	want := []float64{9, 1.5, 1.5}
	got := eng.Delays()
	for ch := range want {
		if got[ch] != want[ch] {
			t.Errorf("Delay(%d) = %v, want %v", ch, got[ch], want[ch])
		}
	}
}

func TestEngine_SetStateWhileActive(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2})
	mustActivate(t, eng)

	if err := eng.SetState(Snapshot{Channels: 4}); !errors.Is(err, ErrActive) {
		t.Errorf("structural SetState() error = %v, want ErrActive", err)
	}
	if err := eng.SetState(Snapshot{Delays: []float64{7, 8}}); err != nil {
		t.Errorf("delay-only SetState() error = %v", err)
	}
	if eng.Delay(1) != 8 {
		t.Errorf("Delay(1) = %v, want 8", eng.Delay(1))
	}
}

func TestEngine_FaultsSilenceOutput(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2})
	mustActivate(t, eng)

	tests := []struct {
		name string
		in   [][]float32
		out  [][]float32
	}{
		{"missing input channel", [][]float32{{1, 1}}, [][]float32{{9, 9}, {9, 9}}},
		{"nil input buffer", [][]float32{{1, 1}, nil}, [][]float32{{9, 9}, {9, 9}}},
		{"length mismatch", [][]float32{{1, 1}, {1, 1, 1}}, [][]float32{{9, 9}, {9, 9}}},
	}

	for _, tt := range tests {
		before := eng.Faults()
		eng.Process(tt.in, tt.out)

		if eng.Faults() == before {
			t.Errorf("%s: Faults() not incremented", tt.name)
		}
		for i, v := range tt.out[1] {
			if v != 0 {
				t.Errorf("%s: out[1][%d] = %v, want 0", tt.name, i, v)
			}
		}
	}
}

func TestEngine_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 1})
	mustActivate(t, eng)
	eng.bank.cur.Store(&layout{lines: []*Line{nil}, delays: make([]slot, 1), sampleRate: 1000})

	out := [][]float32{{9, 9, 9}}
	eng.Process([][]float32{{1, 2, 3}}, out)

	if eng.Faults() != 1 {
		t.Errorf("Faults() = %d, want 1", eng.Faults())
	}
	for i, v := range out[0] {
		if v != 0 {
			t.Errorf("out[0][%d] = %v, want 0", i, v)
		}
	}
}

func TestEngine_ProcessChannel(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2, SampleRate: 1000})
	mustActivate(t, eng)
	eng.SetDelay(1, 2)

	out := make([]float32, 4)
	eng.ProcessChannel(1, []float32{1, 2, 3, 4}, out)

	want := []float32{0, 0, 1, 2}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}

	before := eng.Faults()
	eng.ProcessChannel(5, []float32{1}, out[:1])
	if eng.Faults() != before+1 {
		t.Error("ProcessChannel on unknown channel did not count a fault")
	}
}

func TestEngine_ProcessDoesNotAllocate(t *testing.T) {
	eng := NewEngine(Config{Channels: 8, SampleRate: 48000})
	if err := eng.Activate(); err != nil {
		t.Fatal(err)
	}
	for ch := range 8 {
		eng.SetDelay(ch, float64(ch)*3)
	}

	in := make([][]float32, 8)
	out := make([][]float32, 8)
	for ch := range in {
		in[ch] = noise(int64(ch), 256)
		out[ch] = make([]float32, 256)
	}

	allocs := testing.AllocsPerRun(100, func() {
		eng.Process(in, out)
	})
	if allocs != 0 {
		t.Errorf("Process allocated %v times per run, want 0", allocs)
	}
}

func TestEngine_ConcurrentControl(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{Channels: 2, SampleRate: 48000})
	mustActivate(t, eng)
	eng.SetLinked(0, true)

	in := [][]float32{noise(1, 128), noise(2, 128)}
	out := [][]float32{make([]float32, 128), make([]float32, 128)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 2000 {
			eng.SetDelay(i%2, float64(i%1000))
		}
	}()

	for range 2000 {
		eng.Process(in, out)
	}
	wg.Wait()

	if eng.Faults() != 0 {
		t.Errorf("Faults() = %d, want 0", eng.Faults())
	}
}

func BenchmarkEngine_Process(b *testing.B) {
	eng := NewEngine(Config{Channels: 8, SampleRate: 48000})
	if err := eng.Activate(); err != nil {
		b.Fatal(err)
	}

	in := make([][]float32, 8)
	out := make([][]float32, 8)
	for ch := range in {
		in[ch] = noise(int64(ch), 256)
		out[ch] = make([]float32, 256)
		eng.SetDelay(ch, float64(ch)*10)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		eng.Process(in, out)
	}
}
