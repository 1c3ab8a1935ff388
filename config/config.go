// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/ini.v1"

	"github.com/ik5/jdelay/delay"
)

const (
	// DefaultPath is where the session lives unless -config says otherwise.
	DefaultPath = "~/.config/jdelay/J-Delay.ini"
	// PresetSlots is the number of preset slots, numbered from 1.
	PresetSlots = 8
)

const (
	sectionIO     = "IO"
	sectionEngine = "ENGINE"
	sectionDelays = "DELAYS"
	sectionNames  = "NAMES"
	presetPrefix  = "PRESET_"
	keyInput      = "input"
	keyMaxDelay   = "max_delay_ms"
	keyValues     = "values"
	keyChannels   = "channels"
	keyDelays     = "delays"
	presetNameKey = "name_"
)

// Session is the state restored on start and saved on exit. Zero values mean
// "not recorded".
type Session struct {
	Channels   int
	MaxDelayMs float64
	Delays     []float64
	// Names maps 1-based channel numbers to labels.
	Names map[int]string
}

// Snapshot converts the session into engine state. Unset fields stay zero,
// which SetState treats as "keep current".
func (s Session) Snapshot() delay.Snapshot {
	return delay.Snapshot{
		Channels:   s.Channels,
		MaxDelayMs: s.MaxDelayMs,
		Delays:     slices.Clone(s.Delays),
	}
}

// Preset is one saved slot.
type Preset struct {
	Channels int
	Delays   []float64
	Names    map[int]string
}

func (p Preset) Snapshot() delay.Snapshot {
	return delay.Snapshot{Channels: p.Channels, Delays: slices.Clone(p.Delays)}
}

// PresetFrom captures engine state and channel names into a preset.
func PresetFrom(s delay.Snapshot, names map[int]string) Preset {
	return Preset{
		Channels: s.Channels,
		Delays:   slices.Clone(s.Delays),
		Names:    maps.Clone(names),
	}
}

// Store is an INI file held in memory. Changes reach the disk on Save.
type Store struct {
	path string
	file *ini.File

	mtx *sync.Mutex
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}

	return p, nil
}

// Open loads path, or starts empty when the file does not exist yet.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	p, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	file := ini.Empty()
	if _, err := os.Stat(p); err == nil {
		file, err = ini.LoadSources(ini.LoadOptions{Loose: true}, p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}

	return &Store{path: p, file: file, mtx: &sync.Mutex{}}, nil
}

// Path is the expanded file location.
func (s *Store) Path() string { return s.path }

// Save writes the file, creating its directory if needed.
func (s *Store) Save() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := s.file.SaveTo(s.path); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}

	return nil
}

// Session reads the [IO], [ENGINE], [DELAYS] and [NAMES] sections. A
// malformed channel count or ceiling is an error; a malformed delay list is
// ignored.
func (s *Store) Session() (Session, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var sess Session
	var err error

	if s.file.HasSection(sectionIO) {
		if sess.Channels, err = intKey(s.file.Section(sectionIO), keyInput); err != nil {
			return Session{}, err
		}
	}

	if s.file.HasSection(sectionEngine) {
		if sess.MaxDelayMs, err = floatKey(s.file.Section(sectionEngine), keyMaxDelay); err != nil {
			return Session{}, err
		}
	}

	if s.file.HasSection(sectionDelays) {
		if delays, err := parseDelays(s.file.Section(sectionDelays).Key(keyValues).String()); err == nil {
			sess.Delays = delays
		}
	}

	if s.file.HasSection(sectionNames) {
		sess.Names = make(map[int]string)
		for _, k := range s.file.Section(sectionNames).Keys() {
			// Non-numeric keys are ignored.
			if n, err := strconv.Atoi(k.Name()); err == nil {
				sess.Names[n] = k.String()
			}
		}
	}

	return sess, nil
}

// SetSession replaces the session sections; presets are left alone.
func (s *Store) SetSession(sess Session) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if sess.Channels > 0 {
		s.file.Section(sectionIO).Key(keyInput).SetValue(strconv.Itoa(sess.Channels))
	}
	if sess.MaxDelayMs > 0 {
		s.file.Section(sectionEngine).Key(keyMaxDelay).SetValue(formatMs(sess.MaxDelayMs))
	}
	s.file.Section(sectionDelays).Key(keyValues).SetValue(formatDelays(sess.Delays))

	s.file.DeleteSection(sectionNames)
	names := s.file.Section(sectionNames)
	for _, n := range slices.Sorted(maps.Keys(sess.Names)) {
		names.Key(strconv.Itoa(n)).SetValue(sess.Names[n])
	}
}

// Preset reads slot n (1..PresetSlots).
func (s *Store) Preset(n int) (Preset, error) {
	if err := checkSlot(n); err != nil {
		return Preset{}, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	name := presetSection(n)
	if !s.file.HasSection(name) {
		return Preset{}, fmt.Errorf("preset %d: %w", n, ErrEmptyPreset)
	}
	sec := s.file.Section(name)

	var p Preset
	var err error
	if p.Channels, err = intKey(sec, keyChannels); err != nil {
		return Preset{}, fmt.Errorf("preset %d: %w", n, err)
	}
	if p.Delays, err = parseDelays(sec.Key(keyDelays).String()); err != nil {
		return Preset{}, fmt.Errorf("preset %d: %w", n, err)
	}

	// Pad short delay lists so every channel has a value.
	for len(p.Delays) < p.Channels {
		p.Delays = append(p.Delays, 0)
	}

	p.Names = make(map[int]string)
	for _, k := range sec.Keys() {
		idx, ok := strings.CutPrefix(k.Name(), presetNameKey)
		if !ok {
			continue
		}
		if i, err := strconv.Atoi(idx); err == nil {
			p.Names[i] = k.String()
		}
	}

	return p, nil
}

// SavePreset overwrites slot n.
func (s *Store) SavePreset(n int, p Preset) error {
	if err := checkSlot(n); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	name := presetSection(n)
	s.file.DeleteSection(name)
	sec := s.file.Section(name)

	sec.Key(keyChannels).SetValue(strconv.Itoa(p.Channels))
	sec.Key(keyDelays).SetValue(formatDelays(p.Delays))
	for _, i := range slices.Sorted(maps.Keys(p.Names)) {
		sec.Key(presetNameKey + strconv.Itoa(i)).SetValue(p.Names[i])
	}

	return nil
}

// Presets lists the occupied slots in ascending order.
func (s *Store) Presets() []int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []int
	for n := 1; n <= PresetSlots; n++ {
		if s.file.HasSection(presetSection(n)) {
			out = append(out, n)
		}
	}

	return out
}

func checkSlot(n int) error {
	if n < 1 || n > PresetSlots {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidSlot, n, PresetSlots)
	}

	return nil
}

func presetSection(n int) string {
	return presetPrefix + strconv.Itoa(n)
}

func intKey(sec *ini.Section, key string) (int, error) {
	if !sec.HasKey(key) {
		return 0, nil
	}

	v, err := sec.Key(key).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: [%s] %s: %w", ErrMalformed, sec.Name(), key, err)
	}

	return v, nil
}

func floatKey(sec *ini.Section, key string) (float64, error) {
	if !sec.HasKey(key) {
		return 0, nil
	}

	v, err := sec.Key(key).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: [%s] %s: %w", ErrMalformed, sec.Name(), key, err)
	}

	return v, nil
}

func parseDelays(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: delay %q", ErrMalformed, p)
		}
		out = append(out, v)
	}

	return out, nil
}

func formatDelays(delays []float64) string {
	parts := make([]string, len(delays))
	for i, d := range delays {
		parts[i] = formatMs(d)
	}

	return strings.Join(parts, ",")
}

func formatMs(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 2, 64)
}
