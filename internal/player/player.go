// Package player plays encoded audio through an external command.
package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"yuzu/voicebridge/internal/types"
)

// ErrPlayback is matched by every non-zero player exit.
var ErrPlayback = errors.New("player exited with an error")

// ErrStopped is returned by Play once Stop has been called.
var ErrStopped = errors.New("player stopped")

// ExitError describes a failed player run.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return s
	}
	return "exit code " + strconv.Itoa(e.Code)
}

func (e *ExitError) Is(target error) bool { return target == ErrPlayback }

// Player writes audio to a temp file and runs the configured command with
// the file path appended to its arguments. One Player may run several
// commands at once but the arbiter only ever starts one.
type Player struct {
	dir string
	log zerolog.Logger

	mu      sync.Mutex
	stopped bool
	procs   map[*exec.Cmd]struct{}
}

func New(tempDir string, log zerolog.Logger) *Player {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Player{
		dir:   tempDir,
		log:   log.With().Str("component", "player").Logger(),
		procs: make(map[*exec.Cmd]struct{}),
	}
}

// Play blocks until the player command exits.
func (p *Player) Play(ctx context.Context, pc types.PlayerCommand, audio []byte, format string) error {
	if strings.TrimSpace(pc.Cmd) == "" {
		return errors.New("player command not configured")
	}
	path := filepath.Join(p.dir, "voicebridge-"+uuid.NewString()+"."+extension(format))
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		playsTotal.WithLabelValues("write_error").Inc()
		return fmt.Errorf("write audio: %w", err)
	}
	defer p.remove(path)

	args := append(append([]string(nil), pc.Args...), path)
	cmd := exec.CommandContext(ctx, pc.Cmd, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := p.start(cmd); err != nil {
		if errors.Is(err, ErrStopped) {
			playsTotal.WithLabelValues("stopped").Inc()
			return err
		}
		playsTotal.WithLabelValues("start_error").Inc()
		return fmt.Errorf("start %s: %w", pc.Cmd, err)
	}
	err := cmd.Wait()
	p.untrack(cmd)
	playDurationMS.Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		playsTotal.WithLabelValues("exit_error").Inc()
		code := exitCodeFromErr(err)
		p.log.Warn().Str("cmd", pc.Cmd).Int("exit_code", code).Str("stderr", strings.TrimSpace(stderr.String())).Msg("player failed")
		return &ExitError{Code: code, Stderr: stderr.String()}
	}
	playsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Stop kills any running player command and makes later Play calls fail
// with ErrStopped. Used on shutdown only.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for cmd := range p.procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// start runs cmd under the lock so Stop either sees it or prevents it.
func (p *Player) start(cmd *exec.Cmd) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	p.procs[cmd] = struct{}{}
	return nil
}

func (p *Player) untrack(cmd *exec.Cmd) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.procs, cmd)
}

func (p *Player) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.Warn().Err(err).Str("path", path).Msg("temp audio cleanup failed")
	}
}

// extension maps an output format like mp3_44100_128 to its file extension.
func extension(format string) string {
	if i := strings.IndexByte(format, '_'); i > 0 {
		return format[:i]
	}
	return "mp3"
}

func exitCodeFromErr(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return 1
}
