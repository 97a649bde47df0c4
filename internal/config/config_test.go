package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"yuzu/voicebridge/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	os.Unsetenv("PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("VOICEBRIDGE_HOST_URL")
	os.Unsetenv("ELEVENLABS_BASE_URL")
	os.Unsetenv("VOICEBRIDGE_WATCH")

	c := Load()

	if c.Server.Port != "7766" {
		t.Fatalf("expected default port 7766, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Host.URL != "http://127.0.0.1:4096" {
		t.Fatalf("unexpected host url %q", c.Host.URL)
	}
	if c.Eleven.BaseURL != "https://api.elevenlabs.io" {
		t.Fatalf("unexpected elevenlabs base url %q", c.Eleven.BaseURL)
	}
	if !c.Watch {
		t.Fatal("expected watch enabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("VOICEBRIDGE_HOST_URL", "http://host:1/")
	t.Setenv("VOICEBRIDGE_WATCH", "false")

	c := Load()
	if c.Server.Port != "9000" {
		t.Fatalf("port = %q", c.Server.Port)
	}
	if c.Host.URL != "http://host:1" {
		t.Fatalf("trailing slash should be trimmed, got %q", c.Host.URL)
	}
	if c.Watch {
		t.Fatal("expected watch disabled")
	}
}

type recNotifier struct {
	mu     sync.Mutex
	toasts []types.Toast
}

func (r *recNotifier) Notify(_ context.Context, t types.Toast) error {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
	return nil
}

func (r *recNotifier) take() []types.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.toasts
	r.toasts = nil
	return out
}

func writeProject(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, ".opencode", FileName)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestReloadWithoutFileUsesDefaults(t *testing.T) {
	n := &recNotifier{}
	m := NewManager(t.TempDir(), t.TempDir(), n, zerolog.Nop())
	if _, err := m.Reload(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	s := m.Current()
	if s.Source != SourceNone || !s.Enabled || s.Mode != types.ModeContinuous {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if s.OutputFormat != DefaultOutputFormat || s.MaxChars != DefaultMaxChars {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.Player.Cmd != "mpv" || strings.Join(s.Player.Args, " ") != "--no-terminal --force-window=no --keep-open=no" {
		t.Fatalf("unexpected player %+v", s.Player)
	}
	if len(n.take()) != 0 {
		t.Fatal("announce=false must not toast")
	}
}

func TestProjectWinsOverGlobal(t *testing.T) {
	project, global := t.TempDir(), t.TempDir()
	writeProject(t, project, `{"voiceId":"proj","player":{"cmd":"afplay"}}`)
	if err := os.WriteFile(filepath.Join(global, FileName), []byte(`{"voiceId":"glob"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(project, global, nil, zerolog.Nop())
	if _, err := m.Reload(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	s := m.Current()
	if s.Source != SourceProject || s.VoiceID != "proj" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	// nested default survives a partial player object
	if s.Player.Cmd != "afplay" || len(s.Player.Args) != 3 {
		t.Fatalf("unexpected player %+v", s.Player)
	}

	os.Remove(filepath.Join(project, ".opencode", FileName))
	if _, err := m.Reload(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if s := m.Current(); s.Source != SourceGlobal || s.VoiceID != "glob" {
		t.Fatalf("expected global fallback, got %+v", s)
	}
}

func TestReloadAnnouncesOnlyOnChange(t *testing.T) {
	project := t.TempDir()
	writeProject(t, project, `{"enabled":true,"mode":"continuous","voiceId":"v","outputFormat":"mp3_44100_128"}`)
	n := &recNotifier{}
	m := NewManager(project, "", n, zerolog.Nop())
	ctx := context.Background()

	changed, err := m.Reload(ctx, true)
	if err != nil || !changed {
		t.Fatalf("first reload: changed=%v err=%v", changed, err)
	}
	if got := n.take(); len(got) != 1 || got[0].Variant != types.ToastInfo {
		t.Fatalf("expected one info toast, got %+v", got)
	}

	changed, err = m.Reload(ctx, true)
	if err != nil || changed {
		t.Fatalf("identical reload: changed=%v err=%v", changed, err)
	}
	if got := n.take(); len(got) != 0 {
		t.Fatalf("identical content must not toast, got %+v", got)
	}

	writeProject(t, project, `{"enabled":true,"mode":"continuous","voiceId":"v2","outputFormat":"mp3_44100_128"}`)
	changed, _ = m.Reload(ctx, true)
	if !changed || len(n.take()) != 1 {
		t.Fatal("content change must announce")
	}
}

func TestUnsupportedFormatWarnsEveryTime(t *testing.T) {
	project := t.TempDir()
	writeProject(t, project, `{"voiceId":"v","outputFormat":"pcm_16000"}`)
	n := &recNotifier{}
	m := NewManager(project, "", n, zerolog.Nop())
	ctx := context.Background()

	m.Reload(ctx, true)
	if s := m.Current(); s.OutputFormat != DefaultOutputFormat || s.RequestedFormat != "pcm_16000" {
		t.Fatalf("unexpected format fields %+v", s)
	}
	n.take()

	m.Reload(ctx, true)
	got := n.take()
	if len(got) != 1 || got[0].Variant != types.ToastWarning {
		t.Fatalf("expected the format warning again, got %+v", got)
	}

	m.Reload(ctx, false)
	if len(n.take()) != 0 {
		t.Fatal("announce=false must stay quiet")
	}
}

func TestParseErrorKeepsPrevious(t *testing.T) {
	project := t.TempDir()
	writeProject(t, project, `{"voiceId":"good"}`)
	n := &recNotifier{}
	m := NewManager(project, "", n, zerolog.Nop())
	ctx := context.Background()
	if _, err := m.Reload(ctx, false); err != nil {
		t.Fatal(err)
	}
	before := m.Current()

	writeProject(t, project, `{"voiceId":`)
	if _, err := m.Reload(ctx, false); err == nil {
		t.Fatal("expected parse error")
	}
	if m.Current() != before {
		t.Fatal("snapshot must not change on error")
	}
	if got := n.take(); len(got) != 1 || got[0].Variant != types.ToastError {
		t.Fatalf("expected one error toast, got %+v", got)
	}
}

func TestInvalidModeFallsBack(t *testing.T) {
	project := t.TempDir()
	writeProject(t, project, `{"mode":"shouting","maxChars":50}`)
	m := NewManager(project, "", nil, zerolog.Nop())
	m.Reload(context.Background(), false)
	s := m.Current()
	if s.Mode != types.ModeContinuous {
		t.Fatalf("mode = %q", s.Mode)
	}
	if s.MaxChars != 50 {
		t.Fatalf("maxChars should be kept as configured, got %d", s.MaxChars)
	}
}

func TestOnChangeRunsOnFingerprintChange(t *testing.T) {
	project := t.TempDir()
	writeProject(t, project, `{"enabled":false,"mode":"push-to-talk"}`)
	m := NewManager(project, "", nil, zerolog.Nop())
	var calls int
	var last *Snapshot
	m.OnChange = func(s *Snapshot) { calls++; last = s }

	m.Reload(context.Background(), false)
	m.Reload(context.Background(), false)
	if calls != 1 {
		t.Fatalf("OnChange calls = %d, want 1", calls)
	}
	if last.Enabled || last.Mode != types.ModePushToTalk {
		t.Fatalf("unexpected snapshot %+v", last)
	}
}

func TestPathsAreAbsolute(t *testing.T) {
	m := NewManager("rel/project", "", nil, zerolog.Nop())
	paths := m.Paths()
	if len(paths) != 1 || !filepath.IsAbs(paths[0]) {
		t.Fatalf("unexpected paths %v", paths)
	}
	if !strings.HasSuffix(paths[0], filepath.Join(".opencode", FileName)) {
		t.Fatalf("unexpected project path %q", paths[0])
	}
}
