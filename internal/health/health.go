package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"yuzu/voicebridge/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Pinger is the host reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Params are the inputs of CheckAll. Remote checks are skipped when
// Online is false.
type Params struct {
	APIKey   string
	BaseURL  string
	Snapshot *config.Snapshot
	Host     Pinger
	Online   bool
	HTTP     *http.Client
}

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, p Params) HealthStatus {
	if p.HTTP == nil {
		p.HTTP = http.DefaultClient
	}
	checks := []CheckResult{
		checkElevenLabs(ctx, p),
		checkPlayer(p.Snapshot),
	}
	if p.Host != nil {
		checks = append(checks, checkHost(ctx, p.Host))
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkElevenLabs(ctx context.Context, p Params) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "elevenlabs"}

	if p.APIKey == "" {
		result.Error = config.EnvAPIKey + " not set"
		result.Latency = time.Since(start)
		return result
	}
	if p.Snapshot == nil || p.Snapshot.VoiceID == "" {
		result.Error = "voiceId not set in voice config"
		result.Latency = time.Since(start)
		return result
	}
	if !p.Online {
		result.OK = true
		result.Latency = time.Since(start)
		return result
	}

	// Voice lookup doubles as a credential check.
	u := fmt.Sprintf("%s/v1/voices/%s", strings.TrimRight(p.BaseURL, "/"), url.PathEscape(p.Snapshot.VoiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	req.Header.Set("xi-api-key", p.APIKey)

	resp, err := p.HTTP.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("invalid API key (401): %s", string(body))
		return result
	}
	if resp.StatusCode == http.StatusNotFound {
		result.Error = fmt.Sprintf("voice ID %q not found", p.Snapshot.VoiceID)
		return result
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}
	io.Copy(io.Discard, resp.Body)

	result.OK = true
	return result
}

func checkPlayer(s *config.Snapshot) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "player"}
	cmd := config.DefaultPlayerCmd
	if s != nil && s.Player.Cmd != "" {
		cmd = s.Player.Cmd
	}
	if _, err := exec.LookPath(cmd); err != nil {
		result.Error = fmt.Sprintf("%s not found: %v", cmd, err)
	} else {
		result.OK = true
	}
	result.Latency = time.Since(start)
	return result
}

func checkHost(ctx context.Context, h Pinger) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "host"}
	if err := h.Ping(ctx); err != nil {
		result.Error = err.Error()
	} else {
		result.OK = true
	}
	result.Latency = time.Since(start)
	return result
}
