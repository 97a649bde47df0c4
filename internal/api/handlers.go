package api

import (
	"context"
	"encoding/json"
	"net/http"

	"yuzu/voicebridge/internal/arbiter"
	"yuzu/voicebridge/internal/health"
	"yuzu/voicebridge/internal/router"
	"yuzu/voicebridge/internal/store"
	"yuzu/voicebridge/internal/types"
)

// EventRouter is the subset of router.Router the API drives.
type EventRouter interface {
	HandleEvent(ctx context.Context, evt types.Event)
	Execute(ctx context.Context, cmd string) bool
	Status() router.Status
}

type ArbiterStatus interface {
	Status() arbiter.Status
}

type ReadyFunc func(ctx context.Context) health.HealthStatus

type Handlers struct {
	router  EventRouter
	arbiter ArbiterStatus
	store   *store.Store
	ready   ReadyFunc
}

func NewHandlers(rt EventRouter, arb ArbiterStatus, st *store.Store, ready ReadyFunc) *Handlers {
	return &Handlers{router: rt, arbiter: arb, store: st, ready: ready}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil {
		w.Write([]byte("ok\n"))
		return
	}
	st := h.ready(r.Context())
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"voice":   h.router.Status(),
		"arbiter": h.arbiter.Status(),
	})
}

// HandlePostEvent routes a single host event. Events route on a context
// detached from the request so a started pipeline is not tied to it.
func (h *Handlers) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	var evt types.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&evt); err != nil {
		http.Error(w, "invalid event: "+err.Error(), http.StatusBadRequest)
		return
	}
	if evt.Type == "" {
		http.Error(w, "missing event type", http.StatusBadRequest)
		return
	}
	h.router.HandleEvent(context.WithoutCancel(r.Context()), evt)
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil || body.Command == "" {
		http.Error(w, "missing command", http.StatusBadRequest)
		return
	}
	if !h.router.Execute(context.WithoutCancel(r.Context()), body.Command) {
		http.Error(w, "unknown command", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": body.Command})
}

func (h *Handlers) HandleListActivity(w http.ResponseWriter, r *http.Request, id string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     h.store.ListActivity(id),
	})
}
