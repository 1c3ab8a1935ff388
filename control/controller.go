// SPDX-License-Identifier: EPL-2.0

package control

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/ik5/jdelay/config"
	"github.com/ik5/jdelay/delay"
)

// MinChannels is the smallest channel count the console and the command
// line accept; smaller counts are raised to it.
const MinChannels = 2

// Engine is the part of *delay.Engine the console drives.
type Engine interface {
	Channels() int
	SampleRate() int
	MaxDelayMs() float64
	SetDelay(ch int, ms float64)
	Delay(ch int) float64
	DelayFrames(ch int) int
	SetLinked(primary int, on bool) bool
	IsLinked(primary int) bool
	State() delay.Snapshot
	SetState(s delay.Snapshot) error
	Reconfigure(channels, sampleRate int, maxDelayMs float64) error
	Active() bool
	Faults() uint64
}

// Transport starts and stops the audio stream, e.g. *host.Device.
type Transport interface {
	Start() error
	Stop() error
	Running() bool
}

// Store persists presets and the session, e.g. *config.Store.
type Store interface {
	Preset(n int) (config.Preset, error)
	SavePreset(n int, p config.Preset) error
	Presets() []int
	SetSession(s config.Session)
	Save() error
}

// Options wire a Controller to its collaborators. Transport and Store may
// be nil; the commands needing them then fail.
type Options struct {
	Transport Transport
	// TransportErr is why no Transport could be opened. It is shown by
	// status until audio runs.
	TransportErr error
	Store        Store
	// Names are channel labels keyed by 1-based channel number.
	Names  map[int]string
	Logger *slog.Logger
}

// Controller executes console commands.
type Controller struct {
	eng          Engine
	transport    Transport
	transportErr error
	store        Store
	log          *slog.Logger

	mtx     sync.Mutex
	names   map[int]string
	lastErr error
}

func New(eng Engine, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	names := maps.Clone(opts.Names)
	if names == nil {
		names = make(map[int]string)
	}

	return &Controller{
		eng:          eng,
		transport:    opts.Transport,
		transportErr: opts.TransportErr,
		store:        opts.Store,
		log:          log,
		names:        names,
	}
}

type command struct {
	usage string
	help  string
	run   func(c *Controller, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"set":    {"set <ch> <ms>", "set a channel's delay", (*Controller).cmdSet},
		"link":   {"link <ch>", "link a channel with its pair partner", (*Controller).cmdLink},
		"unlink": {"unlink <ch>", "unlink a channel pair", (*Controller).cmdUnlink},
		"show":   {"show", "list channels, delays and links", (*Controller).cmdShow},
		"add":    {"add", "add two channels", (*Controller).cmdAdd},
		"remove": {"remove", "remove the last two channels", (*Controller).cmdRemove},
		"name":   {"name <ch> <label>", "label a channel", (*Controller).cmdName},
		"save":   {"save <slot>", "store the current setup in a preset slot", (*Controller).cmdSave},
		"load":   {"load <slot>", "recall a preset slot", (*Controller).cmdLoad},
		"start":  {"start", "start audio", (*Controller).cmdStart},
		"stop":   {"stop", "stop audio", (*Controller).cmdStop},
		"status": {"status", "show the audio state", (*Controller).cmdStatus},
		"help":   {"help", "list commands", (*Controller).cmdHelp},
		"quit":   {"quit", "save the session and exit", (*Controller).cmdQuit},
	}
}

// Dispatch runs one command line and returns the reply. Blank lines and
// lines starting with # do nothing. The quit command returns ErrQuit.
func (c *Controller) Dispatch(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return "", nil
	}

	name := strings.ToLower(fields[0])
	if name == "exit" {
		name = "quit"
	}

	cmd, ok := commands[name]
	if !ok {
		return "", fmt.Errorf("%w: %q (try help)", ErrUnknownCommand, fields[0])
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	reply, err := cmd.run(c, fields[1:])
	if errors.Is(err, ErrUsage) {
		return "", fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}

	return reply, err
}

// Names returns a copy of the channel labels.
func (c *Controller) Names() map[int]string {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return maps.Clone(c.names)
}

// Session captures what is saved on exit.
func (c *Controller) Session() config.Session {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.sessionLocked()
}

func (c *Controller) sessionLocked() config.Session {
	st := c.eng.State()

	return config.Session{
		Channels:   st.Channels,
		MaxDelayMs: st.MaxDelayMs,
		Delays:     st.Delays,
		Names:      maps.Clone(c.names),
	}
}

// Status is the one-word audio state: Running, Paused, Ready or an error.
func (c *Controller) Status() string {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.statusLocked()
}

func (c *Controller) statusLocked() string {
	switch {
	case c.lastErr != nil:
		return "Error: " + c.lastErr.Error()
	case c.transport == nil && c.transportErr != nil:
		return "Error: audio backend unavailable: " + c.transportErr.Error()
	case c.transport != nil && c.transport.Running():
		return "Running"
	case c.transport != nil:
		return "Paused"
	default:
		return "Ready"
	}
}

// channelArg parses a 1-based channel number into a 0-based index.
func (c *Controller) channelArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrUsage
	}
	if n < 1 || n > c.eng.Channels() {
		return 0, fmt.Errorf("%w: %d (have 1..%d)", ErrBadChannel, n, c.eng.Channels())
	}

	return n - 1, nil
}

func (c *Controller) label(ch int) string {
	if name, ok := c.names[ch+1]; ok {
		return name
	}

	return "Channel " + strconv.Itoa(ch+1)
}

func (c *Controller) cmdSet(args []string) (string, error) {
	if len(args) != 2 {
		return "", ErrUsage
	}
	ch, err := c.channelArg(args[0])
	if err != nil {
		return "", err
	}
	ms, err := strconv.ParseFloat(args[1], 64)
	if err != nil || math.IsNaN(ms) {
		return "", ErrUsage
	}

	c.eng.SetDelay(ch, ms)
	got := c.eng.Delay(ch)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %.2f ms (%d frames)", c.label(ch), got, c.eng.DelayFrames(ch))
	if got != ms {
		fmt.Fprintf(&b, ", clamped from %g", ms)
	}
	if partner := ch ^ 1; partner < c.eng.Channels() && c.eng.IsLinked(ch&^1) {
		fmt.Fprintf(&b, "; linked %s follows", c.label(partner))
	}

	return b.String(), nil
}

func (c *Controller) pairArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, ErrUsage
	}
	ch, err := c.channelArg(args[0])
	if err != nil {
		return 0, err
	}

	primary := ch &^ 1
	if primary+1 >= c.eng.Channels() {
		return 0, fmt.Errorf("%w: %d", ErrIncompletePair, ch+1)
	}

	return primary, nil
}

func (c *Controller) cmdLink(args []string) (string, error) {
	primary, err := c.pairArg(args)
	if err != nil {
		return "", err
	}
	c.eng.SetLinked(primary, true)

	return fmt.Sprintf("linked %d+%d", primary+1, primary+2), nil
}

func (c *Controller) cmdUnlink(args []string) (string, error) {
	primary, err := c.pairArg(args)
	if err != nil {
		return "", err
	}
	c.eng.SetLinked(primary, false)

	return fmt.Sprintf("unlinked %d+%d", primary+1, primary+2), nil
}

func (c *Controller) cmdShow([]string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%d channels @ %d Hz, max %.0f ms, %s\n",
		c.eng.Channels(), c.eng.SampleRate(), c.eng.MaxDelayMs(), c.statusLocked())

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tname\tdelay ms\tframes\tlink")
	for ch := range c.eng.Channels() {
		link := ""
		if ch%2 == 0 && c.eng.IsLinked(ch) {
			link = fmt.Sprintf("=%d", ch+2)
		} else if ch%2 == 1 && c.eng.IsLinked(ch-1) {
			link = fmt.Sprintf("=%d", ch)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\t%s\n", ch+1, c.label(ch), c.eng.Delay(ch), c.eng.DelayFrames(ch), link)
	}
	_ = tw.Flush()

	if f := c.eng.Faults(); f > 0 {
		fmt.Fprintf(&b, "faults: %d\n", f)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// restructure applies a structural change with audio stopped, restarting it
// afterwards if it was running.
func (c *Controller) restructure(fn func() error) error {
	running := c.transport != nil && c.transport.Running()
	if running {
		if err := c.transport.Stop(); err != nil {
			c.lastErr = err
			return fmt.Errorf("stop audio: %w", err)
		}
	}

	if err := fn(); err != nil {
		return err
	}

	if running {
		if err := c.transport.Start(); err != nil {
			c.lastErr = err
			return fmt.Errorf("restart audio: %w", err)
		}
	}
	c.lastErr = nil

	return nil
}

func (c *Controller) resize(channels int) (string, error) {
	err := c.restructure(func() error {
		return c.eng.Reconfigure(channels, c.eng.SampleRate(), c.eng.MaxDelayMs())
	})
	if err != nil {
		return "", err
	}
	c.log.Info("channel count changed", "channels", channels)

	return fmt.Sprintf("%d channels", c.eng.Channels()), nil
}

func (c *Controller) cmdAdd([]string) (string, error) {
	return c.resize(c.eng.Channels() + 2)
}

func (c *Controller) cmdRemove([]string) (string, error) {
	n := c.eng.Channels() - 2
	if n < MinChannels {
		return "", ErrMinChannels
	}

	return c.resize(n)
}

func (c *Controller) cmdName(args []string) (string, error) {
	if len(args) < 2 {
		return "", ErrUsage
	}
	ch, err := c.channelArg(args[0])
	if err != nil {
		return "", err
	}

	c.names[ch+1] = strings.Join(args[1:], " ")

	return fmt.Sprintf("channel %d is %q", ch+1, c.names[ch+1]), nil
}

func slotArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, ErrUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, ErrUsage
	}

	return n, nil
}

func (c *Controller) cmdSave(args []string) (string, error) {
	if c.store == nil {
		return "", ErrNoStore
	}
	slot, err := slotArg(args)
	if err != nil {
		return "", err
	}

	if err := c.store.SavePreset(slot, config.PresetFrom(c.eng.State(), c.names)); err != nil {
		return "", err
	}
	if err := c.store.Save(); err != nil {
		return "", err
	}

	return fmt.Sprintf("preset %d saved", slot), nil
}

func (c *Controller) cmdLoad(args []string) (string, error) {
	if c.store == nil {
		return "", ErrNoStore
	}
	slot, err := slotArg(args)
	if err != nil {
		return "", err
	}

	p, err := c.store.Preset(slot)
	if err != nil {
		return "", err
	}

	snap := p.Snapshot()
	if snap.Channels > 0 && snap.Channels < MinChannels {
		snap.Channels = MinChannels
	}
	structural := snap.Channels > 0 && snap.Channels != c.eng.Channels()
	apply := func() error { return c.eng.SetState(snap) }
	if structural {
		err = c.restructure(apply)
	} else {
		err = apply()
	}
	if err != nil {
		return "", err
	}

	c.names = maps.Clone(p.Names)
	if c.names == nil {
		c.names = make(map[int]string)
	}
	c.log.Info("preset loaded", "slot", slot, "channels", c.eng.Channels())

	return fmt.Sprintf("preset %d loaded: %d channels", slot, c.eng.Channels()), nil
}

func (c *Controller) noTransport() error {
	if c.transportErr != nil {
		return fmt.Errorf("%w: %w", ErrNoTransport, c.transportErr)
	}

	return ErrNoTransport
}

func (c *Controller) cmdStart([]string) (string, error) {
	if c.transport == nil {
		return "", c.noTransport()
	}
	if c.transport.Running() {
		return "already running", nil
	}
	if err := c.transport.Start(); err != nil {
		c.lastErr = err
		return "", err
	}
	c.lastErr = nil

	return "Running", nil
}

func (c *Controller) cmdStop([]string) (string, error) {
	if c.transport == nil {
		return "", c.noTransport()
	}
	if !c.transport.Running() {
		return "not running", nil
	}
	if err := c.transport.Stop(); err != nil {
		c.lastErr = err
		return "", err
	}

	return "Paused", nil
}

func (c *Controller) cmdStatus([]string) (string, error) {
	return c.statusLocked(), nil
}

func (c *Controller) cmdHelp([]string) (string, error) {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, name := range []string{"set", "link", "unlink", "show", "add", "remove", "name", "save", "load", "start", "stop", "status", "help", "quit"} {
		fmt.Fprintf(tw, "%s\t%s\n", commands[name].usage, commands[name].help)
	}
	_ = tw.Flush()

	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Controller) cmdQuit([]string) (string, error) {
	if c.store != nil {
		c.store.SetSession(c.sessionLocked())
		if err := c.store.Save(); err != nil {
			return "", fmt.Errorf("save session: %w", err)
		}
	}

	return "bye", ErrQuit
}
