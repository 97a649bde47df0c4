package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"yuzu/voicebridge/internal/config"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func snapshot(voice, player string) *config.Snapshot {
	s := config.Defaults()
	s.VoiceID = voice
	s.Player.Cmd = player
	return s
}

func find(t *testing.T, h HealthStatus, name string) CheckResult {
	t.Helper()
	for _, c := range h.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing", name)
	return CheckResult{}
}

func TestMissingCredentials(t *testing.T) {
	h := CheckAll(context.Background(), Params{Snapshot: snapshot("v", "sh")})
	if h.OK {
		t.Fatal("expected failure without api key")
	}
	if c := find(t, h, "elevenlabs"); !strings.Contains(c.Error, "ELEVENLABS_API_KEY") {
		t.Fatalf("error = %q", c.Error)
	}

	h = CheckAll(context.Background(), Params{APIKey: "k", Snapshot: snapshot("", "sh")})
	if c := find(t, h, "elevenlabs"); c.OK || !strings.Contains(c.Error, "voiceId") {
		t.Fatalf("unexpected %+v", c)
	}
}

func TestPlayerAndHost(t *testing.T) {
	h := CheckAll(context.Background(), Params{
		APIKey:   "k",
		Snapshot: snapshot("v", "voicebridge-missing-player"),
		Host:     pinger{err: errors.New("connection refused")},
	})
	if find(t, h, "player").OK || find(t, h, "host").OK {
		t.Fatal("player and host should fail")
	}
	if !find(t, h, "elevenlabs").OK {
		t.Fatal("offline elevenlabs check only needs key and voice")
	}
	if !strings.Contains(h.String(), "FAIL") {
		t.Fatalf("String() = %q", h.String())
	}
}

func TestOnlineVoiceLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v1/voices/v" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"voice_id":"v"}`))
	}))
	defer srv.Close()

	cases := []struct {
		key, voice string
		ok         bool
	}{
		{"good", "v", true},
		{"bad", "v", false},
		{"good", "other", false},
	}
	for _, tc := range cases {
		h := CheckAll(context.Background(), Params{APIKey: tc.key, BaseURL: srv.URL, Snapshot: snapshot(tc.voice, "sh"), Online: true})
		if c := find(t, h, "elevenlabs"); c.OK != tc.ok {
			t.Fatalf("key=%s voice=%s: got %+v", tc.key, tc.voice, c)
		}
	}
}
