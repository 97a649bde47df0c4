package router

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"yuzu/voicebridge/internal/arbiter"
	"yuzu/voicebridge/internal/config"
	"yuzu/voicebridge/internal/store"
	"yuzu/voicebridge/internal/types"
)

type speakCall struct {
	session string
	reason  types.Reason
}

type mockSpeaker struct {
	mu    sync.Mutex
	calls []speakCall
}

func (m *mockSpeaker) RequestSpeak(_ context.Context, sessionID string, reason types.Reason) arbiter.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, speakCall{sessionID, reason})
	return arbiter.OutcomeStarted
}

type mockConfig struct {
	snap    *config.Snapshot
	paths   []string
	reloads []bool
}

func (m *mockConfig) Reload(_ context.Context, announce bool) (bool, error) {
	m.reloads = append(m.reloads, announce)
	return true, nil
}
func (m *mockConfig) Current() *config.Snapshot { return m.snap }
func (m *mockConfig) Paths() []string           { return m.paths }

type mockNotifier struct {
	toasts []types.Toast
}

func (m *mockNotifier) Notify(_ context.Context, t types.Toast) error {
	m.toasts = append(m.toasts, t)
	return nil
}

func (m *mockNotifier) last() types.Toast {
	if len(m.toasts) == 0 {
		return types.Toast{}
	}
	return m.toasts[len(m.toasts)-1]
}

type fixture struct {
	r     *Router
	st    *store.Store
	sp    *mockSpeaker
	cfg   *mockConfig
	notes *mockNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		st:    store.New(),
		sp:    &mockSpeaker{},
		cfg:   &mockConfig{snap: config.Defaults(), paths: []string{filepath.Join(base, ".opencode", "voice.json"), "/home/u/.config/opencode/voice.json"}},
		notes: &mockNotifier{},
	}
	f.r = New(Deps{Store: f.st, Speaker: f.sp, Config: f.cfg, Notifier: f.notes, BaseDir: base, Log: zerolog.Nop()})
	return f
}

func event(t *testing.T, typ string, props any) types.Event {
	t.Helper()
	b, err := json.Marshal(props)
	if err != nil {
		t.Fatal(err)
	}
	return types.Event{Type: typ, Properties: b}
}

func TestSessionIdleSpeaksInContinuousMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.r.HandleEvent(ctx, event(t, EventSessionIdle, map[string]any{"sessionID": "s1"}))

	if f.st.Active() != "s1" {
		t.Fatalf("active = %q", f.st.Active())
	}
	if len(f.sp.calls) != 1 || f.sp.calls[0] != (speakCall{"s1", types.ReasonIdle}) {
		t.Fatalf("calls = %+v", f.sp.calls)
	}

	f.st.SetMode(types.ModePushToTalk)
	f.r.HandleEvent(ctx, event(t, EventSessionIdle, map[string]any{"sessionID": "s2"}))
	if len(f.sp.calls) != 1 {
		t.Fatal("push-to-talk must not speak on idle")
	}
	if f.st.Active() != "s2" {
		t.Fatal("idle still marks the session active")
	}
}

func TestMessageUpdatedOnlyMarksActive(t *testing.T) {
	f := newFixture(t)
	f.r.HandleEvent(context.Background(), event(t, EventMessageUpdated, map[string]any{"info": map[string]any{"sessionID": "s9", "id": "m1"}}))
	if f.st.Active() != "s9" || len(f.sp.calls) != 0 {
		t.Fatalf("active=%q calls=%d", f.st.Active(), len(f.sp.calls))
	}
}

func TestSessionDeletedForgets(t *testing.T) {
	f := newFixture(t)
	f.st.SetSessionEnabled("s1", false)
	f.st.RecordSpoken("s1", "m1")
	f.r.HandleEvent(context.Background(), event(t, EventSessionDeleted, map[string]any{"info": map[string]any{"id": "s1"}}))
	if !f.st.IsEnabledForSession("s1") || f.st.WasSpoken("s1", "m1") {
		t.Fatal("session state should be forgotten")
	}
}

func TestUnknownAndMalformedIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.r.HandleEvent(ctx, types.Event{Type: "lsp.updated", Properties: json.RawMessage(`{}`)})
	f.r.HandleEvent(ctx, types.Event{Type: EventSessionIdle})
	f.r.HandleEvent(ctx, types.Event{Type: EventSessionIdle, Properties: json.RawMessage(`{"sessionID":`)})
	f.r.HandleEvent(ctx, types.Event{Type: EventSessionIdle, Properties: json.RawMessage(`{"other":"x"}`)})
	f.r.HandleEvent(ctx, types.Event{Type: EventSessionDeleted, Properties: json.RawMessage(`{"info":{}}`)})
	if len(f.sp.calls) != 0 || f.st.Active() != "" || len(f.notes.toasts) != 0 {
		t.Fatal("ignored events must have no effect")
	}
}

func TestToggleGlobalWithoutActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := event(t, EventCommand, map[string]any{"command": CmdToggle})
	status := event(t, EventCommand, map[string]any{"command": CmdStatus})

	f.r.HandleEvent(ctx, cmd)
	f.r.HandleEvent(ctx, status)
	if f.st.GlobalEnabled() || !strings.HasPrefix(f.notes.last().Message, "Voice off") {
		t.Fatalf("expected off, toast %q", f.notes.last().Message)
	}

	f.r.HandleEvent(ctx, cmd)
	f.r.HandleEvent(ctx, status)
	if !f.st.GlobalEnabled() || !strings.HasPrefix(f.notes.last().Message, "Voice on") {
		t.Fatalf("expected on, toast %q", f.notes.last().Message)
	}
}

func TestToggleTargetsActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.st.SetActive("s1")

	f.r.Execute(ctx, CmdToggle)
	if f.st.IsEnabledForSession("s1") {
		t.Fatal("s1 should be off")
	}
	if !f.st.GlobalEnabled() || !f.st.IsEnabledForSession("s2") {
		t.Fatal("session toggle must not touch the global flag")
	}

	f.r.Execute(ctx, CmdOn)
	if !f.st.IsEnabledForSession("s1") {
		t.Fatal("voice.on should clear the override")
	}
	f.r.Execute(ctx, CmdOff)
	if f.st.IsEnabledForSession("s1") {
		t.Fatal("voice.off should disable s1")
	}
	if !strings.Contains(f.notes.last().Message, "for this session") {
		t.Fatalf("toast = %q", f.notes.last().Message)
	}
}

func TestGlobalOnOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.r.Execute(ctx, CmdOff)
	f.r.Execute(ctx, CmdOff)
	if f.st.GlobalEnabled() {
		t.Fatal("off is idempotent")
	}
	f.r.Execute(ctx, CmdOn)
	if !f.st.GlobalEnabled() {
		t.Fatal("expected on")
	}
}

func TestSpeakRequiresActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.r.Execute(ctx, CmdSpeak)
	if len(f.sp.calls) != 0 || f.notes.last().Variant != types.ToastWarning {
		t.Fatalf("expected warning and no speak, calls=%d toast=%+v", len(f.sp.calls), f.notes.last())
	}

	f.st.SetActive("s1")
	f.st.SetMode(types.ModePushToTalk)
	f.r.Execute(ctx, CmdSpeak)
	if len(f.sp.calls) != 1 || f.sp.calls[0] != (speakCall{"s1", types.ReasonManual}) {
		t.Fatalf("calls = %+v", f.sp.calls)
	}
}

func TestModeCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.r.Execute(ctx, CmdPushToTalk)
	if f.st.Mode() != types.ModePushToTalk {
		t.Fatal("expected push-to-talk")
	}
	f.r.Execute(ctx, CmdContinuous)
	if f.st.Mode() != types.ModeContinuous {
		t.Fatal("expected continuous")
	}
}

func TestUnknownCommandsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if f.r.Execute(ctx, "voice.sing") {
		t.Fatal("unknown voice command should not be handled")
	}
	if f.r.Execute(ctx, "session.new") {
		t.Fatal("foreign command should not be handled")
	}
	if len(f.notes.toasts) != 0 || !f.st.GlobalEnabled() {
		t.Fatal("ignored commands must have no effect")
	}
}

func TestReloadCommandAnnounces(t *testing.T) {
	f := newFixture(t)
	f.r.Execute(context.Background(), CmdReload)
	if len(f.cfg.reloads) != 1 || !f.cfg.reloads[0] {
		t.Fatalf("reloads = %v", f.cfg.reloads)
	}
}

func TestFileWatcherReloadsConfigPaths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.r.HandleEvent(ctx, event(t, EventFileWatcher, map[string]any{"file": "src/main.go", "event": "change"}))
	if len(f.cfg.reloads) != 0 {
		t.Fatal("unrelated file must not reload")
	}

	// relative to the project dir
	f.r.HandleEvent(ctx, event(t, EventFileWatcher, map[string]any{"file": ".opencode/voice.json", "event": "change"}))
	f.r.HandleEvent(ctx, event(t, EventFileWatcher, map[string]any{"file": "/home/u/.config/opencode/../opencode/voice.json"}))
	if len(f.cfg.reloads) != 2 {
		t.Fatalf("reloads = %v", f.cfg.reloads)
	}
	for _, announce := range f.cfg.reloads {
		if announce {
			t.Fatal("watcher reloads must not announce")
		}
	}
}

func TestStatusReportsEffectiveState(t *testing.T) {
	f := newFixture(t)
	f.st.SetActive("s1")
	f.st.SetSessionEnabled("s1", false)
	s := f.r.Status()
	if s.Enabled || !s.GlobalEnabled || s.ConfigSource != config.SourceNone {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestApplySnapshot(t *testing.T) {
	f := newFixture(t)
	snap := config.Defaults()
	snap.Enabled = false
	snap.Mode = types.ModePushToTalk
	f.r.ApplySnapshot(snap)
	if f.st.GlobalEnabled() || f.st.Mode() != types.ModePushToTalk {
		t.Fatal("snapshot should seed runtime state")
	}
}
