// Package arbiter serializes speak requests. At most one pipeline (message
// lookup, text-to-speech, playback) runs at a time; a request arriving while
// one runs waits in a single pending slot, and a newer request replaces it.
package arbiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"yuzu/voicebridge/internal/config"
	"yuzu/voicebridge/internal/extract"
	"yuzu/voicebridge/internal/floor"
	"yuzu/voicebridge/internal/store"
	"yuzu/voicebridge/internal/types"
)

const (
	ModelMultilingual = "eleven_multilingual_v2"
	ModelDefault      = "eleven_turbo_v2_5"
)

// ResolveModel picks the model for a snapshot: the configured one, else the
// multilingual model when a language is set, else the default fast model.
func ResolveModel(s *config.Snapshot) string {
	switch {
	case s.ModelID != "":
		return s.ModelID
	case s.Language != "":
		return ModelMultilingual
	default:
		return ModelDefault
	}
}

// Snapshots yields the voice config in effect.
type Snapshots interface {
	Current() *config.Snapshot
}

// Outcome is what RequestSpeak did with a request.
type Outcome string

const (
	OutcomeDisabled Outcome = "disabled"
	OutcomeStarted  Outcome = "started"
	OutcomeQueued   Outcome = "queued"
)

// Result is how a single pipeline run ended.
type Result string

const (
	ResultSpoken        Result = "spoken"
	ResultNoMessage     Result = "no_message"
	ResultDuplicate     Result = "duplicate"
	ResultDisabled      Result = "disabled"
	ResultConfigError   Result = "config_error"
	ResultFetchError    Result = "fetch_error"
	ResultTTSError      Result = "tts_error"
	ResultPlaybackError Result = "playback_error"
	ResultPanic         Result = "panic"
)

type Deps struct {
	Store    *store.Store
	Config   Snapshots
	Messages types.MessageSource
	TTS      types.Synthesizer
	Player   types.AudioPlayer
	Notifier types.Notifier
	// APIKey is read at the start of every pipeline run.
	APIKey func() string
	Log    zerolog.Logger
}

type Arbiter struct {
	d   Deps
	log zerolog.Logger

	mu    sync.Mutex
	floor *floor.Manager
	wg    sync.WaitGroup
}

func New(d Deps) *Arbiter {
	return &Arbiter{
		d:     d,
		log:   d.Log.With().Str("component", "arbiter").Logger(),
		floor: floor.New(),
	}
}

// RequestSpeak asks for the latest assistant message of the session to be
// spoken. It never blocks on the pipeline: the request either starts a run
// in the background or takes the pending slot.
func (a *Arbiter) RequestSpeak(ctx context.Context, sessionID string, reason types.Reason) Outcome {
	if !a.d.Store.IsEnabledForSession(sessionID) {
		requestsTotal.WithLabelValues(string(OutcomeDisabled)).Inc()
		return OutcomeDisabled
	}
	req := types.SpeakRequest{ID: uuid.NewString(), SessionID: sessionID, Reason: reason}

	a.mu.Lock()
	d := a.floor.Offer(req)
	if d.Start {
		a.wg.Add(1)
	}
	a.mu.Unlock()

	if d.Replaced != nil {
		replacedTotal.Inc()
		a.log.Debug().Str("request_id", d.Replaced.ID).Str("session_id", d.Replaced.SessionID).Msg("pending request replaced")
		a.d.Store.AppendActivity(d.Replaced.SessionID, "speak_replaced", map[string]any{"request_id": d.Replaced.ID, "by": req.ID})
	}
	if !d.Start {
		requestsTotal.WithLabelValues(string(OutcomeQueued)).Inc()
		a.d.Store.AppendActivity(sessionID, "speak_queued", map[string]any{"request_id": req.ID, "reason": string(reason)})
		return OutcomeQueued
	}

	requestsTotal.WithLabelValues(string(OutcomeStarted)).Inc()
	go a.run(context.WithoutCancel(ctx), req)
	return OutcomeStarted
}

// run owns the floor until no request is pending.
func (a *Arbiter) run(ctx context.Context, req types.SpeakRequest) {
	defer a.wg.Done()
	for {
		res := ResultDisabled
		if a.d.Store.IsEnabledForSession(req.SessionID) {
			res = a.attempt(ctx, req)
		}
		a.d.Store.AppendActivity(req.SessionID, "speak_"+string(res), map[string]any{"request_id": req.ID, "reason": string(req.Reason)})

		a.mu.Lock()
		next, ok := a.floor.Finish()
		a.mu.Unlock()
		if !ok {
			return
		}
		req = next
	}
}

func (a *Arbiter) attempt(ctx context.Context, req types.SpeakRequest) (res Result) {
	start := time.Now()
	log := a.log.With().Str("request_id", req.ID).Str("session_id", req.SessionID).Str("reason", string(req.Reason)).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("speak pipeline panicked")
			res = ResultPanic
		}
		pipelineTotal.WithLabelValues(string(res)).Inc()
		pipelineDurationMS.Observe(float64(time.Since(start).Milliseconds()))
		log.Debug().Str("result", string(res)).Dur("took", time.Since(start)).Msg("speak pipeline done")
	}()
	return a.speak(ctx, log, req)
}

func (a *Arbiter) speak(ctx context.Context, log zerolog.Logger, req types.SpeakRequest) Result {
	snap := a.d.Config.Current()

	var key string
	if a.d.APIKey != nil {
		key = a.d.APIKey()
	}
	if key == "" {
		a.fail(ctx, log, "Voice config error", types.ErrMissingAPIKey)
		return ResultConfigError
	}
	if snap.VoiceID == "" {
		a.fail(ctx, log, "Voice config error", types.ErrMissingVoice)
		return ResultConfigError
	}
	model := ResolveModel(snap)

	msgs, err := a.d.Messages.Messages(ctx, req.SessionID)
	if err != nil {
		a.fail(ctx, log, "Voice", fmt.Errorf("fetch messages: %w", err))
		return ResultFetchError
	}
	msg, text, ok := extract.LatestSpeakable(msgs)
	if !ok {
		return ResultNoMessage
	}
	if req.Reason == types.ReasonIdle && a.d.Store.WasSpoken(req.SessionID, msg.ID) {
		return ResultDuplicate
	}

	limit := extract.EffectiveMaxChars(snap.MaxChars)
	text, truncated := extract.Truncate(text, limit)
	if truncated {
		a.notify(ctx, log, types.Toast{Title: "Voice", Message: fmt.Sprintf("Message truncated to %d characters", limit), Variant: types.ToastWarning})
	}

	audio, err := a.d.TTS.Synthesize(ctx, types.SynthesisRequest{
		APIKey:       key,
		VoiceID:      snap.VoiceID,
		ModelID:      model,
		OutputFormat: snap.OutputFormat,
		Text:         text,
	})
	if err != nil {
		a.fail(ctx, log, "Text-to-speech failed", err)
		return ResultTTSError
	}

	if err := a.d.Player.Play(ctx, snap.Player, audio, snap.OutputFormat); err != nil {
		a.fail(ctx, log, "Playback failed", err)
		return ResultPlaybackError
	}

	a.d.Store.RecordSpoken(req.SessionID, msg.ID)
	log.Info().Str("message_id", msg.ID).Int("chars", len([]rune(text))).Str("model", model).Msg("spoken")
	return ResultSpoken
}

func (a *Arbiter) fail(ctx context.Context, log zerolog.Logger, title string, err error) {
	log.Error().Err(err).Msg(title)
	a.notify(ctx, log, types.Toast{Title: title, Message: err.Error(), Variant: types.ToastError})
}

func (a *Arbiter) notify(ctx context.Context, log zerolog.Logger, t types.Toast) {
	if a.d.Notifier == nil {
		return
	}
	if err := a.d.Notifier.Notify(ctx, t); err != nil {
		log.Warn().Err(err).Msg("toast failed")
	}
}

// Wait blocks until the arbiter is idle.
func (a *Arbiter) Wait() { a.wg.Wait() }

// Status is a point-in-time view of the arbitration state.
type Status struct {
	Phase   string              `json:"phase"`
	Current *types.SpeakRequest `json:"current,omitempty"`
	Pending *types.SpeakRequest `json:"pending,omitempty"`
}

func (a *Arbiter) Status() Status {
	a.mu.Lock()
	st := a.floor.State()
	a.mu.Unlock()
	switch s := st.(type) {
	case floor.Speaking:
		return Status{Phase: "speaking", Current: &s.Current}
	case floor.SpeakingPending:
		return Status{Phase: "speaking", Current: &s.Current, Pending: &s.Pending}
	default:
		return Status{Phase: "idle"}
	}
}
