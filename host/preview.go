// SPDX-License-Identifier: EPL-2.0

package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ik5/jdelay/audio"
)

// PreviewOptions configure a Preview.
type PreviewOptions struct {
	// BlockFrames bounds the frames processed per engine call.
	BlockFrames int
	// Tail keeps playing silence through the engine after the source ends
	// so delayed material is heard.
	Tail   bool
	Logger *slog.Logger
}

// Preview plays a source through the engine on the default output device.
type Preview struct {
	eng    Engine
	opts   PreviewOptions
	log    *slog.Logger
	otoCtx *oto.Context
	player *oto.Player
	stream *previewStream

	mtx sync.Mutex
}

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoCh   int
	otoErr  error
)

func sharedContext(rate, channels int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx, otoRate, otoCh = ctx, rate, channels
	})

	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != rate || otoCh != channels {
		return nil, fmt.Errorf("%w: output opened at %d Hz x %d", audio.ErrChannelMismatch, otoRate, otoCh)
	}

	return otoCtx, nil
}

// NewPreview adopts the source layout on the engine and prepares playback.
func NewPreview(eng Engine, src audio.Source, opts PreviewOptions) (*Preview, error) {
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = DefaultBlockFrames
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	channels, rate := src.Channels(), src.SampleRate()
	if channels < 1 {
		return nil, ErrNoChannels
	}
	if rate < 1 {
		return nil, ErrBadSampleRate
	}

	if channels != eng.Channels() || rate != eng.SampleRate() {
		err := eng.Handover(func() error {
			return eng.Reconfigure(channels, rate, eng.MaxDelayMs())
		})
		if err != nil {
			return nil, fmt.Errorf("reconfigure for source: %w", err)
		}
	}

	ctx, err := sharedContext(rate, channels)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	return &Preview{
		eng:    eng,
		opts:   opts,
		log:    log,
		otoCtx: ctx,
		stream: newPreviewStream(eng, src, opts.BlockFrames, opts.Tail),
	}, nil
}

// Play activates the engine and starts playback.
func (p *Preview) Play() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.player != nil {
		return ErrRunning
	}

	if !p.eng.Active() {
		if err := p.eng.Activate(); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
	}

	p.player = p.otoCtx.NewPlayer(p.stream)
	p.player.Play()
	p.log.Info("preview started")

	return nil
}

// Playing reports whether audio is still being played.
func (p *Preview) Playing() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.player != nil && p.player.IsPlaying()
}

// Wait blocks until playback ends or ctx is done.
func (p *Preview) Wait(ctx context.Context) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for p.Playing() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}

	return p.stream.Err()
}

// Close stops playback, deactivates the engine and closes the source.
func (p *Preview) Close() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	var err error
	if p.player != nil {
		err = p.player.Close()
		p.player = nil
	}
	p.eng.Deactivate()

	return errors.Join(err, p.stream.src.Close())
}

// previewStream is the io.Reader oto pulls float32LE bytes from.
type previewStream struct {
	src    audio.Source
	runner *blockRunner
	buf    []float32
	tail   int
	ended  bool

	errMtx sync.Mutex
	err    error
}

func newPreviewStream(eng Engine, src audio.Source, blockFrames int, tail bool) *previewStream {
	s := &previewStream{
		src:    src,
		runner: newBlockRunner(eng, src.Channels(), blockFrames),
		buf:    make([]float32, blockFrames*src.Channels()),
	}
	if !tail {
		s.tail = -1
	}

	return s
}

func (s *previewStream) Err() error {
	s.errMtx.Lock()
	defer s.errMtx.Unlock()

	return s.err
}

func (s *previewStream) fail(err error) {
	s.errMtx.Lock()
	defer s.errMtx.Unlock()

	s.err = err
}

func (s *previewStream) Read(p []byte) (int, error) {
	channels := s.runner.channels
	frames := min(len(p)/(4*channels), len(s.buf)/channels)
	if frames == 0 {
		return 0, nil
	}
	block := s.buf[:frames*channels]

	n := s.fill(block)
	if n == 0 {
		if s.ended {
			return 0, io.EOF
		}
		// The source had nothing yet; oto asks again.
		return 0, nil
	}
	block = block[:n]

	s.runner.run(block)
	for i, v := range block {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}

	return 4 * n, nil
}

// fill reads from the source, then pads with silence for the tail once the
// source is exhausted. It returns the number of samples ready, which is zero
// without the stream ending when the source returns nothing and no error.
func (s *previewStream) fill(block []float32) int {
	channels := s.runner.channels
	n := 0

	for !s.ended && n < len(block) {
		m, err := s.src.ReadSamples(block[n:])
		n += m
		if err == nil {
			if m == 0 {
				break
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			s.fail(err)
		}
		s.ended = true
		if s.tail == 0 {
			s.tail = tailFrames(s.runner.eng)
		}
	}
	n -= n % channels

	if s.ended && n < len(block) && s.tail > 0 {
		pad := min(s.tail, (len(block)-n)/channels)
		clear(block[n : n+pad*channels])
		n += pad * channels
		s.tail -= pad
	}

	return n
}
