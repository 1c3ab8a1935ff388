// SPDX-License-Identifier: EPL-2.0

package delay

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Status is the lifecycle state of an Engine.
type Status int32

const (
	StatusInactive Status = iota
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	default:
		return "unknown"
	}
}

// Snapshot is the capturable state of an engine, used for presets and
// sessions.
type Snapshot struct {
	Channels   int
	MaxDelayMs float64
	SampleRate int
	Delays     []float64
}

// Engine is the per-callback entry point of the delay core together with
// the control-side API that feeds it.
type Engine struct {
	mtx   sync.Mutex // control side only
	bank  *Bank
	links *LinkGroup
	log   *slog.Logger

	state  atomic.Int32
	faults atomic.Uint64
	blocks atomic.Uint64
}

// NewEngine returns an inactive engine configured from cfg.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	bank := NewBank(cfg)

	return &Engine{
		bank:  bank,
		links: NewLinkGroup(bank.Channels()),
		log:   cfg.Logger,
	}
}

// Status returns the current lifecycle state.
func (e *Engine) Status() Status {
	return Status(e.state.Load())
}

// Active reports whether Process calls are accepted.
func (e *Engine) Active() bool {
	return e.Status() == StatusActive
}

// Activate reallocates every delay line for the current parameters and
// starts accepting Process calls.
func (e *Engine) Activate() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if e.Active() {
		return ErrActive
	}
	e.bank.Reset()
	e.state.Store(int32(StatusActive))

	e.log.Debug("engine activated",
		"channels", e.bank.Channels(),
		"sample_rate", e.bank.SampleRate(),
		"capacity", e.bank.Capacity())

	return nil
}

// Deactivate stops accepting Process calls and drops the delay lines.
// Configured delays are kept. Calling it on an inactive engine is a no-op.
func (e *Engine) Deactivate() {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if !e.Active() {
		return
	}
	e.state.Store(int32(StatusInactive))
	e.bank.Release()

	e.log.Debug("engine deactivated", "faults", e.faults.Load(), "blocks", e.blocks.Load())
}

// Handover runs fn with the engine inactive. An active engine is
// deactivated first and activated again afterwards, even when fn fails.
func (e *Engine) Handover(fn func() error) error {
	wasActive := e.Active()
	if wasActive {
		e.Deactivate()
	}

	err := fn()

	if wasActive {
		if aerr := e.Activate(); aerr != nil && err == nil {
			err = aerr
		}
	}

	return err
}

// Reconfigure rebuilds the delay lines for a new channel count, sample rate
// and delay ceiling. It returns ErrActive unless the engine is inactive.
func (e *Engine) Reconfigure(channels, sampleRate int, maxDelayMs float64) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if e.Active() {
		return ErrActive
	}
	e.reconfigureLocked(channels, sampleRate, maxDelayMs)

	return nil
}

func (e *Engine) reconfigureLocked(channels, sampleRate int, maxDelayMs float64) {
	e.bank.Reconfigure(channels, sampleRate, maxDelayMs)
	e.links.Resize(e.bank.Channels())

	e.log.Info("engine reconfigured",
		"channels", e.bank.Channels(),
		"sample_rate", e.bank.SampleRate(),
		"max_delay_ms", e.bank.MaxDelayMs(),
		"capacity", e.bank.Capacity())
}

// SampleRateChanged is the notifier the audio runtime calls when its rate
// changes. The lines are rebuilt for the new rate before the next block;
// millisecond delays are kept and their frame counts follow the new rate.
func (e *Engine) SampleRateChanged(rate int) error {
	if rate <= 0 || rate == e.SampleRate() {
		return nil
	}

	return e.Handover(func() error {
		return e.Reconfigure(e.Channels(), rate, e.MaxDelayMs())
	})
}

// Channels returns the channel count.
func (e *Engine) Channels() int { return e.bank.Channels() }

// SampleRate returns the current sample rate in Hz.
func (e *Engine) SampleRate() int { return e.bank.SampleRate() }

// MaxDelayMs returns the delay ceiling in milliseconds.
func (e *Engine) MaxDelayMs() float64 { return e.bank.MaxDelayMs() }

// Capacity returns the per-channel delay line capacity in frames.
func (e *Engine) Capacity() int { return e.bank.Capacity() }

// Faults returns how many realtime faults were silenced so far.
func (e *Engine) Faults() uint64 { return e.faults.Load() }

// Blocks returns how many blocks were processed while active.
func (e *Engine) Blocks() uint64 { return e.blocks.Load() }

// SetDelay sets the delay of channel ch, clamped to [0, MaxDelayMs], and
// mirrors it to ch's partner when their pair is linked.
func (e *Engine) SetDelay(ch int, ms float64) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.bank.SetDelay(ch, ms)
	e.links.Mirror(e.bank, ch, ms)
}

// Delay returns the delay of channel ch in milliseconds.
func (e *Engine) Delay(ch int) float64 { return e.bank.Delay(ch) }

// Delays returns a copy of all channel delays in milliseconds.
func (e *Engine) Delays() []float64 { return e.bank.Delays() }

// DelayFrames returns the delay of channel ch in frames.
func (e *Engine) DelayFrames(ch int) int { return e.bank.DelayFrames(ch) }

// SetLinked links or unlinks the pair starting at the even channel primary.
// It reports whether primary names a pair.
func (e *Engine) SetLinked(primary int, on bool) bool {
	return e.links.SetLinked(primary, on)
}

// IsLinked reports whether the pair starting at primary is linked.
func (e *Engine) IsLinked(primary int) bool {
	return e.links.IsLinked(primary)
}

// LinkedPairs returns the primaries of all linked pairs.
func (e *Engine) LinkedPairs() []int {
	return e.links.Linked()
}

// State captures channel count, ceiling, rate and delays.
func (e *Engine) State() Snapshot {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return Snapshot{
		Channels:   e.bank.Channels(),
		MaxDelayMs: e.bank.MaxDelayMs(),
		SampleRate: e.bank.SampleRate(),
		Delays:     e.bank.Delays(),
	}
}

// SetState applies a snapshot. Zero fields keep the current value. When the
// channel count, rate or ceiling differ the engine must be inactive,
// otherwise ErrActive is returned and nothing changes. Missing delays take
// the initial delay, extra ones are dropped. Links are not mirrored.
func (e *Engine) SetState(s Snapshot) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	channels, rate, maxMs := s.Channels, s.SampleRate, s.MaxDelayMs
	if channels <= 0 {
		channels = e.bank.Channels()
	}
	if rate <= 0 {
		rate = e.bank.SampleRate()
	}
	if maxMs <= 0 {
		maxMs = e.bank.MaxDelayMs()
	}

	if channels != e.bank.Channels() || rate != e.bank.SampleRate() || maxMs != e.bank.MaxDelayMs() {
		if e.Active() {
			return ErrActive
		}
		e.reconfigureLocked(channels, rate, maxMs)
	}

	for ch := range e.bank.Channels() {
		v := e.bank.initialMs
		if ch < len(s.Delays) {
			v = s.Delays[ch]
		}
		e.bank.SetDelay(ch, v)
	}

	return nil
}

// Process runs one callback: for every channel it writes in[ch] into the
// channel's delay line and reads the delayed block into out[ch].
//
// Outputs are silenced when the engine is inactive. A channel whose buffers
// are missing or differ in length is silenced and counted as a fault, as is
// a mismatch between the number of buffers and the channel count. Process
// does not allocate, lock or panic.
func (e *Engine) Process(in, out [][]float32) {
	defer func() {
		if r := recover(); r != nil {
			e.faults.Add(1)
			silence(out)
		}
	}()

	if !e.Active() {
		silence(out)
		return
	}

	l := e.bank.load()
	if l.lines == nil {
		e.faults.Add(1)
		silence(out)
		return
	}

	if len(in) != len(l.lines) || len(out) != len(l.lines) {
		e.faults.Add(1)
	}

	for ch := range out {
		if ch >= len(in) || ch >= len(l.lines) {
			clear(out[ch])
			continue
		}
		e.processLine(l, ch, in[ch], out[ch])
	}
	e.blocks.Add(1)
}

// ProcessChannel runs the per-channel step of Process for a single channel.
func (e *Engine) ProcessChannel(ch int, in, out []float32) {
	defer func() {
		if r := recover(); r != nil {
			e.faults.Add(1)
			clear(out)
		}
	}()

	if !e.Active() {
		clear(out)
		return
	}

	l := e.bank.load()
	if ch < 0 || ch >= len(l.lines) {
		e.faults.Add(1)
		clear(out)
		return
	}
	e.processLine(l, ch, in, out)
}

func (e *Engine) processLine(l *layout, ch int, in, out []float32) {
	if in == nil || out == nil || len(in) != len(out) {
		e.faults.Add(1)
		clear(out)
		return
	}

	line := l.lines[ch]
	line.Write(in)
	line.Read(FramesFor(l.delays[ch].load(), l.sampleRate), out)
}

func silence(out [][]float32) {
	for _, buf := range out {
		clear(buf)
	}
}
