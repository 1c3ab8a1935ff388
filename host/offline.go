// SPDX-License-Identifier: EPL-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ik5/jdelay/audio"
)

// DefaultBlockFrames is the render block size when none is configured.
const DefaultBlockFrames = 512

// OfflineOptions tune an Offline renderer.
type OfflineOptions struct {
	// BlockFrames is the number of frames per engine callback.
	BlockFrames int
	// Tail appends silence after the source ends so the most delayed
	// channel is rendered completely.
	Tail   bool
	Logger *slog.Logger
}

// Stats summarize one render.
type Stats struct {
	Frames     int
	Blocks     int
	TailFrames int
}

// Offline renders a Source through an engine into a Sink, block by block,
// the same way a realtime host would call it.
type Offline struct {
	eng  Engine
	opts OfflineOptions
	log  *slog.Logger
}

func NewOffline(eng Engine, opts OfflineOptions) *Offline {
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = DefaultBlockFrames
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Offline{eng: eng, opts: opts, log: log}
}

// Render processes src into dst until src is exhausted or ctx is done.
// When the source layout differs from the engine's, the engine is
// reconfigured through a handover first. An inactive engine is activated for
// the render and deactivated afterwards. dst is not closed.
func (o *Offline) Render(ctx context.Context, src audio.Source, dst audio.Sink) (Stats, error) {
	var st Stats

	channels, rate := src.Channels(), src.SampleRate()
	if channels < 1 {
		return st, ErrNoChannels
	}
	if rate < 1 {
		return st, ErrBadSampleRate
	}

	if channels != o.eng.Channels() || rate != o.eng.SampleRate() {
		o.log.Info("adopting source layout", "channels", channels, "sample_rate", rate)

		err := o.eng.Handover(func() error {
			return o.eng.Reconfigure(channels, rate, o.eng.MaxDelayMs())
		})
		if err != nil {
			return st, fmt.Errorf("reconfigure for source: %w", err)
		}
	}

	if !o.eng.Active() {
		if err := o.eng.Activate(); err != nil {
			return st, fmt.Errorf("activate: %w", err)
		}
		defer o.eng.Deactivate()
	}

	runner := newBlockRunner(o.eng, channels, o.opts.BlockFrames)
	buf := make([]float32, o.opts.BlockFrames*channels)

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		n, rerr := src.ReadSamples(buf)
		n -= n % channels
		if n > 0 {
			block := buf[:n]
			runner.run(block)
			if err := dst.WriteSamples(block); err != nil {
				return st, fmt.Errorf("write block %d: %w", st.Blocks, err)
			}
			st.Frames += n / channels
			st.Blocks++
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return st, fmt.Errorf("read block %d: %w", st.Blocks, rerr)
		}
	}

	if o.opts.Tail {
		tail, err := o.flush(ctx, runner, buf, dst)
		st.TailFrames = tail
		st.Frames += tail
		if err != nil {
			return st, err
		}
	}

	o.log.Debug("render finished", "frames", st.Frames, "blocks", st.Blocks, "tail", st.TailFrames)

	return st, nil
}

// flush feeds silence until every channel's delayed signal has come out.
func (o *Offline) flush(ctx context.Context, runner *blockRunner, buf []float32, dst audio.Sink) (int, error) {
	channels := runner.channels
	remaining := tailFrames(o.eng)
	done := 0

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		frames := min(remaining, o.opts.BlockFrames)
		block := buf[:frames*channels]
		clear(block)
		runner.run(block)

		if err := dst.WriteSamples(block); err != nil {
			return done, fmt.Errorf("write tail: %w", err)
		}
		remaining -= frames
		done += frames
	}

	return done, nil
}
