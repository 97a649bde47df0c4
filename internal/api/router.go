package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yuzu/voicebridge/internal/auth"
)

type Options struct {
	// TokenSecret protects /events, /commands and /ws/events when set.
	TokenSecret   string
	TokenSkewSecs int
	// EventsWS serves /ws/events; nil leaves the route unregistered.
	EventsWS http.HandlerFunc
}

func NewRouter(h *Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()
	protect := func(next http.HandlerFunc) http.Handler {
		return auth.Require(opts.TokenSecret, opts.TokenSkewSecs, next)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", h.HandleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleStatus(w, r)
	})

	mux.Handle("/events", protect(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandlePostEvent(w, r)
	}))

	mux.Handle("/commands", protect(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleCommand(w, r)
	}))

	if opts.EventsWS != nil {
		// the ws server checks its own token so it can read ?token=
		mux.HandleFunc("/ws/events", opts.EventsWS)
	}

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		// /sessions/{id}/activity
		path := strings.TrimSuffix(r.URL.Path, "/")
		rest := strings.TrimPrefix(path, "/sessions/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			http.NotFound(w, r)
			return
		}
		id, tail := parts[0], parts[1]

		switch tail {
		case "activity":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.HandleListActivity(w, r, id)
		default:
			http.NotFound(w, r)
		}
	})

	return mux
}
