package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"yuzu/voicebridge/internal/types"
)

const (
	// FileName is the voice config file looked up under .opencode/ in the
	// project and directly under the global config dir.
	FileName = "voice.json"

	DefaultOutputFormat = "mp3_44100_128"
	DefaultPlayerCmd    = "mpv"
	DefaultMaxChars     = 3000
)

// DefaultPlayerArgs keep mpv quiet and windowless.
var DefaultPlayerArgs = []string{"--no-terminal", "--force-window=no", "--keep-open=no"}

// Source says where a snapshot was loaded from.
type Source string

const (
	SourceProject Source = "project"
	SourceGlobal  Source = "global"
	SourceNone    Source = "none"
)

var mp3Format = regexp.MustCompile(`^mp3_\d+_\d+$`)

// SupportedFormat reports whether the player pipeline can handle format.
func SupportedFormat(format string) bool { return mp3Format.MatchString(format) }

// Snapshot is an immutable, fully defaulted voice configuration.
type Snapshot struct {
	Enabled      bool
	Mode         types.Mode
	Language     string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Player       types.PlayerCommand
	MaxChars     int

	Source Source
	Path   string
	// RequestedFormat is the raw outputFormat when it was replaced by the
	// default, empty otherwise.
	RequestedFormat string
}

// Defaults returns the snapshot used when no config file exists.
func Defaults() *Snapshot {
	return &Snapshot{
		Enabled:      true,
		Mode:         types.ModeContinuous,
		OutputFormat: DefaultOutputFormat,
		Player:       types.PlayerCommand{Cmd: DefaultPlayerCmd, Args: append([]string(nil), DefaultPlayerArgs...)},
		MaxChars:     DefaultMaxChars,
		Source:       SourceNone,
	}
}

// Fingerprint is a stable concatenation of every semantic field.
func (s *Snapshot) Fingerprint() string {
	return strings.Join([]string{
		string(s.Source),
		s.Path,
		strconv.FormatBool(s.Enabled),
		string(s.Mode),
		s.Language,
		s.VoiceID,
		s.ModelID,
		s.OutputFormat,
		s.RequestedFormat,
		s.Player.Cmd,
		strings.Join(s.Player.Args, "\x1f"),
		strconv.Itoa(s.MaxChars),
	}, "|")
}

// Manager owns the current voice config snapshot and reloads it from disk.
type Manager struct {
	projectPath string
	globalPath  string
	notifier    types.Notifier
	log         zerolog.Logger

	// OnChange, when set, runs after a reload that changed the fingerprint.
	OnChange func(*Snapshot)

	reloadMu    sync.Mutex
	fingerprint string
	current     atomic.Pointer[Snapshot]
}

// NewManager looks for <projectDir>/.opencode/voice.json first and
// <globalDir>/voice.json second. Either dir may be empty.
func NewManager(projectDir, globalDir string, n types.Notifier, log zerolog.Logger) *Manager {
	m := &Manager{
		projectPath: candidate(projectDir, ".opencode", FileName),
		globalPath:  candidate(globalDir, FileName),
		notifier:    n,
		log:         log.With().Str("component", "config").Logger(),
	}
	m.current.Store(Defaults())
	return m
}

func candidate(dir string, elem ...string) string {
	if dir == "" {
		return ""
	}
	p := filepath.Join(append([]string{dir}, elem...)...)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}

// Current returns the snapshot in effect. Callers keep the pointer for the
// duration of an operation; later reloads do not touch it.
func (m *Manager) Current() *Snapshot { return m.current.Load() }

// Paths returns the absolute candidate config paths, project first.
func (m *Manager) Paths() []string {
	var out []string
	for _, p := range []string{m.projectPath, m.globalPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Reload re-reads the config file. changed reports whether the fingerprint
// differs from the previous load. On error the previous snapshot stays.
func (m *Manager) Reload(ctx context.Context, announce bool) (bool, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	snap, err := m.load()
	if err != nil {
		reloadTotal.WithLabelValues("error").Inc()
		m.log.Error().Err(err).Msg("voice config reload failed")
		m.notify(ctx, types.Toast{Title: "Voice", Message: "Voice config error: " + err.Error(), Variant: types.ToastError})
		return false, err
	}

	fp := snap.Fingerprint()
	changed := fp != m.fingerprint
	m.fingerprint = fp
	m.current.Store(snap)

	if snap.RequestedFormat != "" {
		m.log.Warn().Str("requested", snap.RequestedFormat).Str("using", snap.OutputFormat).Msg("unsupported output format")
		if announce {
			m.notify(ctx, types.Toast{
				Title:   "Voice",
				Message: fmt.Sprintf("Output format %q is not supported, using %s", snap.RequestedFormat, snap.OutputFormat),
				Variant: types.ToastWarning,
			})
		}
	}

	if !changed {
		reloadTotal.WithLabelValues("unchanged").Inc()
		return false, nil
	}
	reloadTotal.WithLabelValues("changed").Inc()
	m.log.Info().Str("source", string(snap.Source)).Str("path", snap.Path).Msg("voice config loaded")
	if m.OnChange != nil {
		m.OnChange(snap)
	}
	if announce {
		m.notify(ctx, types.Toast{Title: "Voice", Message: "Voice config loaded (" + string(snap.Source) + ")", Variant: types.ToastInfo})
	}
	return true, nil
}

func (m *Manager) locate() (string, Source, error) {
	for _, c := range []struct {
		path string
		src  Source
	}{{m.projectPath, SourceProject}, {m.globalPath, SourceGlobal}} {
		if c.path == "" {
			continue
		}
		fi, err := os.Stat(c.path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("stat %s: %w", c.path, err)
		}
		if fi.IsDir() {
			continue
		}
		return c.path, c.src, nil
	}
	return "", SourceNone, nil
}

func (m *Manager) load() (*Snapshot, error) {
	path, src, err := m.locate()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("enabled", true)
	v.SetDefault("mode", string(types.ModeContinuous))
	v.SetDefault("outputFormat", DefaultOutputFormat)
	v.SetDefault("player.cmd", DefaultPlayerCmd)
	v.SetDefault("player.args", DefaultPlayerArgs)
	v.SetDefault("maxChars", DefaultMaxChars)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	snap := &Snapshot{
		Enabled:  v.GetBool("enabled"),
		Language: strings.TrimSpace(v.GetString("language")),
		VoiceID:  strings.TrimSpace(v.GetString("voiceId")),
		ModelID:  strings.TrimSpace(v.GetString("modelId")),
		Player: types.PlayerCommand{
			Cmd:  strings.TrimSpace(v.GetString("player.cmd")),
			Args: v.GetStringSlice("player.args"),
		},
		MaxChars: v.GetInt("maxChars"),
		Source:   src,
		Path:     path,
	}

	mode, ok := types.ParseMode(v.GetString("mode"))
	if !ok {
		m.log.Warn().Str("mode", v.GetString("mode")).Msg("unknown mode, using continuous")
	}
	snap.Mode = mode

	format := strings.TrimSpace(v.GetString("outputFormat"))
	if format == "" {
		format = DefaultOutputFormat
	}
	if SupportedFormat(format) {
		snap.OutputFormat = format
	} else {
		snap.OutputFormat = DefaultOutputFormat
		snap.RequestedFormat = format
	}

	if snap.Player.Cmd == "" {
		snap.Player.Cmd = DefaultPlayerCmd
	}
	return snap, nil
}

func (m *Manager) notify(ctx context.Context, t types.Toast) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, t); err != nil {
		m.log.Warn().Err(err).Msg("toast failed")
	}
}
