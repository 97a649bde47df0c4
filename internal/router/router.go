// Package router maps host events and voice.* commands onto the session
// store, the speak arbiter and the config manager.
package router

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"yuzu/voicebridge/internal/arbiter"
	"yuzu/voicebridge/internal/config"
	"yuzu/voicebridge/internal/store"
	"yuzu/voicebridge/internal/types"
)

// Host event types.
const (
	EventSessionIdle    = "session.idle"
	EventMessageUpdated = "message.updated"
	EventSessionDeleted = "session.deleted"
	EventCommand        = "tui.command.execute"
	EventFileWatcher    = "file.watcher.updated"
)

// CommandPrefix is the namespace the router listens to.
const CommandPrefix = "voice."

type Speaker interface {
	RequestSpeak(ctx context.Context, sessionID string, reason types.Reason) arbiter.Outcome
}

type ConfigManager interface {
	Reload(ctx context.Context, announce bool) (bool, error)
	Current() *config.Snapshot
	Paths() []string
}

type Deps struct {
	Store    *store.Store
	Speaker  Speaker
	Config   ConfigManager
	Notifier types.Notifier
	// BaseDir resolves relative paths in file watcher events.
	BaseDir string
	Log     zerolog.Logger
}

type Router struct {
	d   Deps
	log zerolog.Logger
}

func New(d Deps) *Router {
	return &Router{d: d, log: d.Log.With().Str("component", "router").Logger()}
}

// HandleEvent routes one host event. Unknown types and payloads missing
// their required fields are ignored.
func (r *Router) HandleEvent(ctx context.Context, evt types.Event) {
	eventsTotal.WithLabelValues(eventLabel(evt.Type)).Inc()

	switch evt.Type {
	case EventSessionIdle:
		var p struct {
			SessionID string `json:"sessionID"`
		}
		if !r.decode(evt, &p) || p.SessionID == "" {
			return
		}
		r.d.Store.SetActive(p.SessionID)
		if r.d.Store.Mode() == types.ModeContinuous {
			r.d.Speaker.RequestSpeak(ctx, p.SessionID, types.ReasonIdle)
		}
	case EventMessageUpdated:
		var p struct {
			Info struct {
				SessionID string `json:"sessionID"`
			} `json:"info"`
		}
		if !r.decode(evt, &p) || p.Info.SessionID == "" {
			return
		}
		r.d.Store.SetActive(p.Info.SessionID)
	case EventSessionDeleted:
		var p struct {
			Info struct {
				ID string `json:"id"`
			} `json:"info"`
		}
		if !r.decode(evt, &p) || p.Info.ID == "" {
			return
		}
		r.d.Store.Forget(p.Info.ID)
	case EventCommand:
		var p struct {
			Command string `json:"command"`
		}
		if !r.decode(evt, &p) || p.Command == "" {
			return
		}
		r.Execute(ctx, p.Command)
	case EventFileWatcher:
		var p struct {
			File string `json:"file"`
		}
		if !r.decode(evt, &p) || p.File == "" {
			return
		}
		if r.isConfigPath(p.File) {
			r.d.Config.Reload(ctx, false)
		}
	}
}

func (r *Router) decode(evt types.Event, v any) bool {
	if len(evt.Properties) == 0 {
		return false
	}
	if err := json.Unmarshal(evt.Properties, v); err != nil {
		r.log.Debug().Err(err).Str("type", evt.Type).Msg("malformed event ignored")
		return false
	}
	return true
}

func (r *Router) isConfigPath(file string) bool {
	if !filepath.IsAbs(file) && r.d.BaseDir != "" {
		file = filepath.Join(r.d.BaseDir, file)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)
	for _, p := range r.d.Config.Paths() {
		if abs == p {
			return true
		}
	}
	return false
}

// ApplySnapshot seeds the runtime global flag and mode from a freshly
// changed config.
func (r *Router) ApplySnapshot(s *config.Snapshot) {
	r.d.Store.SetGlobalEnabled(s.Enabled)
	r.d.Store.SetMode(s.Mode)
}

// Status is the effective voice state as a user would see it.
type Status struct {
	Enabled       bool          `json:"enabled"`
	GlobalEnabled bool          `json:"global_enabled"`
	Mode          types.Mode    `json:"mode"`
	ActiveSession string        `json:"active_session,omitempty"`
	ConfigSource  config.Source `json:"config_source"`
	ConfigPath    string        `json:"config_path,omitempty"`
}

func (r *Router) Status() Status {
	st := r.d.Store
	snap := r.d.Config.Current()
	s := Status{
		GlobalEnabled: st.GlobalEnabled(),
		Mode:          st.Mode(),
		ActiveSession: st.Active(),
		ConfigSource:  snap.Source,
		ConfigPath:    snap.Path,
	}
	if s.ActiveSession != "" {
		s.Enabled = st.IsEnabledForSession(s.ActiveSession)
	} else {
		s.Enabled = s.GlobalEnabled
	}
	return s
}

func eventLabel(t string) string {
	switch t {
	case EventSessionIdle, EventMessageUpdated, EventSessionDeleted, EventCommand, EventFileWatcher:
		return t
	}
	return "other"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func isVoiceCommand(cmd string) bool { return strings.HasPrefix(cmd, CommandPrefix) }
