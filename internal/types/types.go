// Package types holds the value types shared by the voice bridge packages
// and the interfaces of its external collaborators.
package types

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartTypeText is the only part type that contributes speakable text.
const PartTypeText = "text"

// Part is one content fragment of a message. Parts of any type other than
// "text" carry no speakable payload.
type Part struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Ignored bool   `json:"ignored,omitempty"`
}

// Message is a read-only snapshot of a session message.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`
	Parts     []Part `json:"parts"`
}

// Reason says why speech was requested.
type Reason string

const (
	ReasonIdle   Reason = "idle"
	ReasonManual Reason = "manual"
)

// SpeakRequest asks for the latest eligible assistant message of a session
// to be spoken. ID only identifies the request in logs.
type SpeakRequest struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Reason    Reason `json:"reason"`
}

// Mode controls whether idle sessions are spoken automatically.
type Mode string

const (
	ModeContinuous Mode = "continuous"
	ModePushToTalk Mode = "push-to-talk"
)

// ParseMode returns the mode named by s and whether s was recognized.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeContinuous, ModePushToTalk:
		return Mode(s), true
	}
	return ModeContinuous, false
}

// Event is a host lifecycle event. Properties are decoded by the router
// according to Type.
type Event struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// Activity is one entry of a session's arbitration journal.
type Activity struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Toast variants understood by the host.
const (
	ToastInfo    = "info"
	ToastSuccess = "success"
	ToastWarning = "warning"
	ToastError   = "error"
)

// Toast is a user-facing notification.
type Toast struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Variant string `json:"variant"`
}

// Configuration errors reported by the speak pipeline.
var (
	ErrMissingAPIKey = errors.New("missing ELEVENLABS_API_KEY")
	ErrMissingVoice  = errors.New("missing voiceId in voice config")
)

// MessageSource fetches a session's message history, oldest first.
type MessageSource interface {
	Messages(ctx context.Context, sessionID string) ([]Message, error)
}

// Notifier delivers toasts to the user.
type Notifier interface {
	Notify(ctx context.Context, t Toast) error
}

// SynthesisRequest is the input of a text-to-speech call.
type SynthesisRequest struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Text         string
}

// Synthesizer converts text to encoded audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}

// PlayerCommand is the external audio player invocation.
type PlayerCommand struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args"`
}

// AudioPlayer plays encoded audio and returns once playback has finished.
type AudioPlayer interface {
	Play(ctx context.Context, cmd PlayerCommand, audio []byte, format string) error
}
