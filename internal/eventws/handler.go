// Package eventws accepts a websocket stream of host events. Each
// connection's events are routed one at a time, in arrival order.
package eventws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"yuzu/voicebridge/internal/auth"
	"yuzu/voicebridge/internal/types"

	ws "nhooyr.io/websocket"
)

// EventHandler consumes routed host events.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt types.Event)
}

type Server struct {
	Handler       EventHandler
	Reg           *Registry
	TokenSecret   string
	TokenSkewSecs int
	Log           zerolog.Logger
}

func NewServer(h EventHandler, reg *Registry, secret string, skewSecs int, log zerolog.Logger) *Server {
	return &Server{
		Handler:       h,
		Reg:           reg,
		TokenSecret:   secret,
		TokenSkewSecs: skewSecs,
		Log:           log.With().Str("component", "eventws").Logger(),
	}
}

// HandleEventsWS serves /ws/events. A client may name itself with
// ?client_id=; a second connection with the same id replaces the first.
func (s *Server) HandleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.TokenSecret != "" {
		token, err := auth.FromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if _, _, err := auth.ValidateToken(s.TokenSecret, token, "", time.Now(), s.TokenSkewSecs); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.Log.Warn().Err(err).Msg("ws accept")
		return
	}
	log := s.Log.With().Str("client_id", clientID).Logger()
	if s.Reg.Replace(clientID, c) {
		log.Info().Msg("event stream replaced")
	}
	connectedGauge.Inc()
	log.Info().Msg("event stream connected")

	// Routing outlives the request: a speak pipeline started here keeps
	// running after the client goes away.
	routeCtx := context.WithoutCancel(r.Context())
	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var evt types.Event
		if err := json.Unmarshal(data, &evt); err != nil || evt.Type == "" {
			invalidTotal.Inc()
			log.Debug().Err(err).Msg("invalid event frame")
			continue
		}
		s.Handler.HandleEvent(routeCtx, evt)
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Reg.Remove(clientID, c)
	connectedGauge.Dec()
	log.Info().Msg("event stream disconnected")
}
