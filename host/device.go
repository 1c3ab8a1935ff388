// SPDX-License-Identifier: EPL-2.0

package host

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// DeviceOptions configure the duplex device.
type DeviceOptions struct {
	// SampleRate requested from the backend; 0 uses the engine's rate. The
	// backend may negotiate a different one.
	SampleRate int
	// PeriodFrames is the callback size hint; 0 leaves it to the backend.
	PeriodFrames int
	// Backends restricts the backends tried, in order. Empty means default.
	Backends []malgo.Backend
	Logger   *slog.Logger
}

// Device runs an engine inside a malgo full-duplex stream: every captured
// channel is delayed and played back on the same output channel.
type Device struct {
	eng  Engine
	opts DeviceOptions
	log  *slog.Logger

	mtx    sync.Mutex
	mctx   *malgo.AllocatedContext
	dev    *malgo.Device
	runner *blockRunner
	closed bool
}

// NewDevice initializes the audio backend. Call Close to release it.
func NewDevice(eng Engine, opts DeviceOptions) (*Device, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	mctx, err := malgo.InitContext(opts.Backends, malgo.ContextConfig{}, func(msg string) {
		log.Debug("backend", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	return &Device{eng: eng, opts: opts, log: log, mctx: mctx}, nil
}

// Start opens a duplex stream with the engine's channel count, reports the
// negotiated rate to the engine, activates it and starts the stream.
func (d *Device) Start() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	switch {
	case d.closed:
		return ErrClosed
	case d.dev != nil:
		return ErrRunning
	}

	channels := d.eng.Channels()
	rate := d.opts.SampleRate
	if rate <= 0 {
		rate = d.eng.SampleRate()
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(rate)
	cfg.PeriodSizeInFrames = uint32(max(d.opts.PeriodFrames, 0))
	cfg.Alsa.NoMMap = 1

	// Sized for the worst case so the callback never grows it; larger
	// periods are processed in pieces.
	maxFrames := d.opts.PeriodFrames
	if maxFrames <= 0 {
		maxFrames = 4096
	}
	runner := newBlockRunner(d.eng, channels, maxFrames)

	dev, err := malgo.InitDevice(d.mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(output, input []byte, frames uint32) {
			d.onData(runner, output, input, frames)
		},
	})
	if err != nil {
		return fmt.Errorf("open duplex device: %w", err)
	}

	if got := int(dev.SampleRate()); got != d.eng.SampleRate() {
		if err := d.eng.SampleRateChanged(got); err != nil {
			dev.Uninit()
			return fmt.Errorf("adopt device rate %d: %w", got, err)
		}
	}

	if !d.eng.Active() {
		if err := d.eng.Activate(); err != nil {
			dev.Uninit()
			return fmt.Errorf("activate engine: %w", err)
		}
	}

	if err := dev.Start(); err != nil {
		d.eng.Deactivate()
		dev.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	d.dev = dev
	d.runner = runner

	d.log.Info("device started",
		"channels", channels,
		"sample_rate", dev.SampleRate(),
		"period_frames", d.opts.PeriodFrames)

	return nil
}

// onData runs on the backend's realtime thread.
func (d *Device) onData(runner *blockRunner, output, input []byte, frames uint32) {
	n := int(frames) * runner.channels
	out := float32s(output, n)
	in := float32s(input, n)
	if out == nil {
		return
	}
	if in == nil {
		clear(out)
		return
	}

	copy(out, in)
	runner.run(out)
}

// float32s views b as n float32 samples, or returns nil when b is short.
func float32s(b []byte, n int) []float32 {
	if n == 0 || len(b) < n*4 {
		return nil
	}

	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}

// Stop halts the stream, then deactivates the engine.
func (d *Device) Stop() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.dev == nil {
		return ErrNotRunning
	}

	err := d.dev.Stop()
	d.dev.Uninit()
	d.dev = nil
	d.runner = nil
	d.eng.Deactivate()

	d.log.Info("device stopped")

	if err != nil {
		return fmt.Errorf("stop device: %w", err)
	}

	return nil
}

// Running reports whether a stream is open.
func (d *Device) Running() bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.dev != nil
}

// Restart stops the stream if running and starts it again, picking up a
// changed channel count.
func (d *Device) Restart() error {
	if d.Running() {
		if err := d.Stop(); err != nil {
			return err
		}
	}

	return d.Start()
}

// Close stops the stream and releases the backend.
func (d *Device) Close() error {
	if d.Running() {
		_ = d.Stop()
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.mctx.Uninit(); err != nil {
		return fmt.Errorf("release audio context: %w", err)
	}
	d.mctx.Free()

	return nil
}
