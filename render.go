// SPDX-License-Identifier: EPL-2.0

package jdelay

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ik5/jdelay/audio"
	"github.com/ik5/jdelay/formats/aiff"
	"github.com/ik5/jdelay/formats/mp3"
	"github.com/ik5/jdelay/formats/vorbis"
	"github.com/ik5/jdelay/formats/wav"
	"github.com/ik5/jdelay/host"
)

// NewRegistry returns a registry holding every bundled decoder, keyed by file
// extension.
func NewRegistry() *audio.Registry {
	reg := audio.NewRegistry()
	reg.Register("wav", wav.Decoder{})
	reg.Register("wave", wav.Decoder{})
	reg.Register("aif", aiff.Decoder{})
	reg.Register("aiff", aiff.Decoder{})
	reg.Register("mp3", mp3.Decoder{})
	reg.Register("ogg", vorbis.Decoder{})
	reg.Register("oga", vorbis.Decoder{})

	return reg
}

// OpenFile decodes path with the decoder registered for its extension. A nil
// registry selects NewRegistry. Closing the source closes the file.
func OpenFile(path string, reg *audio.Registry) (audio.Source, error) {
	if reg == nil {
		reg = NewRegistry()
	}

	dec, err := reg.ForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	src, err := dec.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return src, nil
}

// RenderOptions tune RenderFile.
type RenderOptions struct {
	// BlockFrames is the engine callback size; zero selects
	// host.DefaultBlockFrames.
	BlockFrames int
	// Tail extends the output until the most delayed channel has finished.
	Tail bool
	// BitDepth of the output file; zero selects wav.DefaultBitDepth.
	BitDepth int
	// Registry resolves the input format; nil selects NewRegistry.
	Registry *audio.Registry
	Logger   *slog.Logger
}

// RenderFile decodes inPath, runs it through eng and writes the result to
// outPath as a WAV file with the input's channel count and rate. The engine
// is reconfigured to the input layout when it differs, keeping its delays
// in milliseconds.
func RenderFile(ctx context.Context, inPath, outPath string, eng host.Engine, opts RenderOptions) (host.Stats, error) {
	var st host.Stats

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	bitDepth := opts.BitDepth
	if bitDepth == 0 {
		bitDepth = wav.DefaultBitDepth
	}

	src, err := OpenFile(inPath, opts.Registry)
	if err != nil {
		return st, err
	}
	defer src.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return st, err
	}

	enc, err := wav.NewEncoder(out, src.SampleRate(), src.Channels(), bitDepth)
	if err != nil {
		_ = out.Close()
		return st, fmt.Errorf("create %s: %w", outPath, err)
	}

	log.Info("rendering", "in", inPath, "out", outPath,
		"channels", src.Channels(), "sample_rate", src.SampleRate())

	r := host.NewOffline(eng, host.OfflineOptions{
		BlockFrames: opts.BlockFrames,
		Tail:        opts.Tail,
		Logger:      log,
	})
	st, err = r.Render(ctx, src, enc)

	if cerr := enc.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("finish %s: %w", outPath, cerr)
	}
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}

	return st, err
}
