package router

import (
	"context"
	"fmt"

	"yuzu/voicebridge/internal/types"
)

const (
	CmdToggle     = "voice.toggle"
	CmdOn         = "voice.on"
	CmdOff        = "voice.off"
	CmdSpeak      = "voice.speak"
	CmdContinuous = "voice.mode.continuous"
	CmdPushToTalk = "voice.mode.push-to-talk"
	CmdStatus     = "voice.status"
	CmdReload     = "voice.reload"
)

// Commands lists every command the router understands.
var Commands = []string{CmdToggle, CmdOn, CmdOff, CmdSpeak, CmdContinuous, CmdPushToTalk, CmdStatus, CmdReload}

// Execute runs a voice.* command and reports whether it was recognized.
// Commands outside the namespace and unknown voice.* commands are ignored.
func (r *Router) Execute(ctx context.Context, cmd string) bool {
	if !isVoiceCommand(cmd) {
		return false
	}
	st := r.d.Store
	switch cmd {
	case CmdToggle, CmdOn, CmdOff:
		r.setEnabled(ctx, cmd)
	case CmdSpeak:
		active := st.Active()
		if active == "" {
			r.toast(ctx, "No active session to speak", types.ToastWarning)
			break
		}
		out := r.d.Speaker.RequestSpeak(ctx, active, types.ReasonManual)
		r.log.Debug().Str("session_id", active).Str("outcome", string(out)).Msg("manual speak")
	case CmdContinuous:
		st.SetMode(types.ModeContinuous)
		r.toast(ctx, "Voice mode: continuous", types.ToastInfo)
	case CmdPushToTalk:
		st.SetMode(types.ModePushToTalk)
		r.toast(ctx, "Voice mode: push-to-talk", types.ToastInfo)
	case CmdStatus:
		s := r.Status()
		r.toast(ctx, fmt.Sprintf("Voice %s · mode: %s · config: %s", onOff(s.Enabled), s.Mode, s.ConfigSource), types.ToastInfo)
	case CmdReload:
		r.d.Config.Reload(ctx, true)
	default:
		commandsTotal.WithLabelValues("unknown").Inc()
		return false
	}
	commandsTotal.WithLabelValues(cmd).Inc()
	return true
}

// setEnabled targets the active session's override when there is one and
// the global flag otherwise.
func (r *Router) setEnabled(ctx context.Context, cmd string) {
	st := r.d.Store
	active := st.Active()

	if active == "" {
		var on bool
		switch cmd {
		case CmdToggle:
			on = !st.GlobalEnabled()
		case CmdOn:
			on = true
		}
		st.SetGlobalEnabled(on)
		r.log.Info().Bool("enabled", on).Msg("global voice toggled")
		r.toast(ctx, "Voice "+onOff(on), variantFor(on))
		return
	}

	var on bool
	switch cmd {
	case CmdToggle:
		on = st.ToggleSession(active)
	case CmdOn:
		st.SetSessionEnabled(active, true)
		on = st.IsEnabledForSession(active)
	case CmdOff:
		st.SetSessionEnabled(active, false)
	}
	r.log.Info().Str("session_id", active).Bool("enabled", on).Msg("session voice toggled")
	r.toast(ctx, "Voice "+onOff(on)+" for this session", variantFor(on))
}

func variantFor(on bool) string {
	if on {
		return types.ToastSuccess
	}
	return types.ToastInfo
}

func (r *Router) toast(ctx context.Context, msg, variant string) {
	if r.d.Notifier == nil {
		return
	}
	if err := r.d.Notifier.Notify(ctx, types.Toast{Title: "Voice", Message: msg, Variant: variant}); err != nil {
		r.log.Warn().Err(err).Msg("toast failed")
	}
}
