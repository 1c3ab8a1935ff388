// SPDX-License-Identifier: EPL-2.0

// Command jdelay delays each channel of a multi-channel stream so that
// signals from sources at different distances line up.
//
//	jdelay [flags] run                 process the sound card and open the console
//	jdelay [flags] render in out.wav   process a file
//	jdelay [flags] preview in          play a file through the delays
//	jdelay [flags] measure [-apply] in estimate delays from a recording
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/ik5/jdelay"
	"github.com/ik5/jdelay/align"
	"github.com/ik5/jdelay/config"
	"github.com/ik5/jdelay/control"
	"github.com/ik5/jdelay/delay"
	"github.com/ik5/jdelay/host"
)

const usage = `Usage: jdelay [flags] <command> [args]

Commands:
  run                   delay the sound card input and open the console
  render <in> <out.wav> render a file through the delays
  preview <in>          play a file through the delays
  measure [-apply] <in> estimate per-channel delays from a recording

Flags:
`

type options struct {
	channels   int
	delayMs    float64
	maxDelayMs float64
	autostart  bool
	configPath string
	block      int
	rate       int
	verbose    bool
	tail       bool

	set map[string]bool
}

func parseFlags(args []string, out io.Writer) (*options, []string, error) {
	o := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("jdelay", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.IntVar(&o.channels, "c", delay.DefaultChannels, "number of channels")
	fs.IntVar(&o.channels, "channels", delay.DefaultChannels, "number of channels")
	fs.Float64Var(&o.delayMs, "d", 0, "initial delay for every channel in ms")
	fs.Float64Var(&o.delayMs, "delay", 0, "initial delay for every channel in ms")
	fs.Float64Var(&o.maxDelayMs, "m", delay.DefaultMaxDelayMs, "maximum delay in ms")
	fs.Float64Var(&o.maxDelayMs, "max", delay.DefaultMaxDelayMs, "maximum delay in ms")
	fs.BoolVar(&o.autostart, "a", false, "start audio immediately")
	fs.BoolVar(&o.autostart, "autostart", false, "start audio immediately")
	fs.StringVar(&o.configPath, "config", config.DefaultPath, "session and preset file")
	fs.IntVar(&o.block, "block", host.DefaultBlockFrames, "frames per processing block")
	fs.IntVar(&o.rate, "rate", 48000, "sample rate requested from the sound card")
	fs.BoolVar(&o.tail, "tail", true, "render until the longest delay has played out")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")

	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	aliases := map[string]string{"channels": "c", "delay": "d", "max": "m", "autostart": "a"}
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if short, ok := aliases[name]; ok {
			name = short
		}
		o.set[name] = true
	})

	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, flag.ErrHelp
	}

	return o, fs.Args(), nil
}

// engineConfig merges the stored session with the flags. Channel count and
// ceiling flags replace the stored values.
func engineConfig(o *options, sess config.Session, log *slog.Logger) delay.Config {
	cfg := delay.Config{
		Channels:   delay.DefaultChannels,
		SampleRate: o.rate,
		MaxDelayMs: delay.DefaultMaxDelayMs,
		Logger:     log,
	}

	if sess.Channels > 0 {
		cfg.Channels = sess.Channels
	}
	if sess.MaxDelayMs > 0 {
		cfg.MaxDelayMs = sess.MaxDelayMs
	}
	cfg.Delays = sess.Delays

	if o.set["c"] {
		cfg.Channels = o.channels
	}
	if o.set["m"] {
		cfg.MaxDelayMs = o.maxDelayMs
	}
	// Stored delays win; -d only covers channels the file has no value for.
	if o.set["d"] {
		cfg.InitialDelayMs = o.delayMs
	}
	if cfg.Channels < control.MinChannels {
		cfg.Channels = control.MinChannels
	}

	return cfg
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type app struct {
	opts  *options
	log   *slog.Logger
	store *config.Store
	sess  config.Session
	eng   *delay.Engine
	out   io.Writer
}

func newApp(o *options, out, logOut io.Writer) (*app, error) {
	log := newLogger(logOut, o.verbose)

	store, err := config.Open(o.configPath)
	if err != nil {
		return nil, err
	}

	sess, err := store.Session()
	if err != nil {
		log.Warn("ignoring stored session", "path", store.Path(), "err", err)
		sess = config.Session{}
	}

	cfg := engineConfig(o, sess, log)
	log.Debug("engine config", "channels", cfg.Channels, "sample_rate", cfg.SampleRate,
		"max_delay_ms", cfg.MaxDelayMs, "config", store.Path())

	return &app{
		opts:  o,
		log:   log,
		store: store,
		sess:  sess,
		eng:   delay.NewEngine(cfg),
		out:   out,
	}, nil
}

func (a *app) saveSession(names map[int]string) error {
	st := a.eng.State()
	a.store.SetSession(config.Session{
		Channels:   st.Channels,
		MaxDelayMs: st.MaxDelayMs,
		Delays:     st.Delays,
		Names:      names,
	})

	if err := a.store.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	a.log.Debug("session saved", "path", a.store.Path())

	return nil
}

func (a *app) run(ctx context.Context, in io.Reader) error {
	// Without a backend the console still edits delays and presets.
	var transport control.Transport
	dev, devErr := host.NewDevice(a.eng, host.DeviceOptions{
		SampleRate:   a.opts.rate,
		PeriodFrames: a.opts.block,
		Logger:       a.log,
	})
	if devErr != nil {
		a.log.Warn("audio backend unavailable", "err", devErr)
	} else {
		defer dev.Close()
		transport = dev
	}

	ctrl := control.New(a.eng, control.Options{
		Transport:    transport,
		TransportErr: devErr,
		Store:        a.store,
		Names:        a.sess.Names,
		Logger:       a.log,
	})

	if a.opts.autostart {
		if _, err := ctrl.Dispatch("start"); err != nil {
			a.log.Error("autostart failed", "err", err)
		}
	}
	fmt.Fprintf(a.out, "jdelay: %d channels, %s. Type help for commands.\n", a.eng.Channels(), ctrl.Status())

	err := control.NewConsole(ctrl, in, a.out).Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	return errors.Join(err, a.saveSession(ctrl.Names()))
}

func (a *app) render(ctx context.Context, in, out string) error {
	st, err := jdelay.RenderFile(ctx, in, out, a.eng, jdelay.RenderOptions{
		BlockFrames: a.opts.block,
		Tail:        a.opts.tail,
		Logger:      a.log,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s: %d frames (%d tail) in %d blocks\n", out, st.Frames, st.TailFrames, st.Blocks)

	return nil
}

func (a *app) preview(ctx context.Context, in string) error {
	src, err := jdelay.OpenFile(in, nil)
	if err != nil {
		return err
	}

	p, err := host.NewPreview(a.eng, src, host.PreviewOptions{
		BlockFrames: a.opts.block,
		Tail:        a.opts.tail,
		Logger:      a.log,
	})
	if err != nil {
		_ = src.Close()
		return err
	}
	defer p.Close()

	if err := p.Play(); err != nil {
		return err
	}

	err = p.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (a *app) measure(args []string) error {
	fs := flag.NewFlagSet("measure", flag.ContinueOnError)
	fs.SetOutput(a.out)
	apply := fs.Bool("apply", false, "apply the delays and save them to the session")
	ref := fs.Int("ref", 1, "reference channel (1-based)")
	maxLag := fs.Float64("maxlag", align.DefaultMaxLagMs, "largest lag searched in ms")

	// Flags may come before or after the file name.
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("measure: missing input file")
	}
	in := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}

	src, err := jdelay.OpenFile(in, nil)
	if err != nil {
		return err
	}
	defer src.Close()

	est, err := align.Measure(src, align.Options{
		Reference: *ref - 1,
		MaxLagMs:  *maxLag,
		Window:    true,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tlag ms\tconfidence\tdelay ms")
	for i, l := range est.Lags {
		note := ""
		if l.Inverted {
			note = "\tinverted"
		}
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f%s\n", l.Channel+1, l.LagMs, l.Confidence, est.Delays[i], note)
	}
	_ = tw.Flush()

	if !*apply {
		return nil
	}

	if len(est.Delays) != a.eng.Channels() {
		if err := a.eng.Reconfigure(len(est.Delays), a.eng.SampleRate(), a.eng.MaxDelayMs()); err != nil {
			return err
		}
	}
	est.Apply(a.eng)

	return a.saveSession(a.sess.Names)
}

func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	a, err := newApp(o, stdout, stderr)
	if err != nil {
		return err
	}

	switch cmd, rest := rest[0], rest[1:]; cmd {
	case "run":
		return a.run(ctx, stdin)
	case "render":
		if len(rest) != 2 {
			return errors.New("render: want <in> <out.wav>")
		}
		return a.render(ctx, rest[0], rest[1])
	case "preview":
		if len(rest) != 1 {
			return errors.New("preview: want <in>")
		}
		return a.preview(ctx, rest[0])
	case "measure":
		return a.measure(rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "jdelay:", err)
		stop()
		os.Exit(1)
	}
}
