package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"yuzu/voicebridge/internal/api"
	"yuzu/voicebridge/internal/arbiter"
	"yuzu/voicebridge/internal/auth"
	"yuzu/voicebridge/internal/config"
	"yuzu/voicebridge/internal/eventws"
	"yuzu/voicebridge/internal/health"
	"yuzu/voicebridge/internal/hostapi"
	"yuzu/voicebridge/internal/player"
	"yuzu/voicebridge/internal/router"
	"yuzu/voicebridge/internal/store"
	"yuzu/voicebridge/internal/tts"
	"yuzu/voicebridge/internal/watch"
)

var (
	check     = flag.Bool("check", false, "run readiness checks against ElevenLabs, the player and the host, then exit")
	mintToken = flag.String("mint-token", "", "print a bearer token for the given subject and exit")
	tokenTTL  = flag.Duration("token-ttl", 24*time.Hour, "lifetime of a minted token")
)

func main() {
	flag.Parse()

	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg.Server.LogLevel)

	if *mintToken != "" {
		tok, err := auth.GenerateToken(cfg.Auth.TokenSecret, *mintToken, time.Now().Add(*tokenTTL).Unix())
		if err != nil {
			fmt.Fprintln(os.Stderr, "mint token:", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := hostapi.NewClient(cfg.Host.URL)
	st := store.New()
	mgr := config.NewManager(cfg.Host.ProjectDir, cfg.Host.GlobalDir, host, log)
	pl := player.New(cfg.Player.TempDir, log)

	arb := arbiter.New(arbiter.Deps{
		Store:    st,
		Config:   mgr,
		Messages: host,
		TTS:      tts.NewClient(tts.WithBaseURL(cfg.Eleven.BaseURL)),
		Player:   pl,
		Notifier: host,
		APIKey:   config.APIKey,
		Log:      log,
	})
	rt := router.New(router.Deps{
		Store:    st,
		Speaker:  arb,
		Config:   mgr,
		Notifier: host,
		BaseDir:  cfg.Host.ProjectDir,
		Log:      log,
	})
	mgr.OnChange = rt.ApplySnapshot
	if _, err := mgr.Reload(ctx, false); err != nil {
		log.Warn().Err(err).Msg("starting with default voice config")
	}

	ready := func(ctx context.Context) health.HealthStatus {
		return health.CheckAll(ctx, health.Params{
			APIKey:   config.APIKey(),
			BaseURL:  cfg.Eleven.BaseURL,
			Snapshot: mgr.Current(),
			Host:     host,
			Online:   *check,
		})
	}
	if *check {
		cctx, ccancel := context.WithTimeout(ctx, 15*time.Second)
		status := ready(cctx)
		ccancel()
		fmt.Print(status.String())
		if !status.OK {
			os.Exit(1)
		}
		return
	}

	if cfg.Watch {
		if err := watch.New(mgr.Paths(), rt, log).Start(ctx); err != nil {
			log.Warn().Err(err).Msg("config watcher disabled")
		}
	}

	reg := eventws.NewRegistry()
	wss := eventws.NewServer(rt, reg, cfg.Auth.TokenSecret, cfg.Auth.TokenSkewSecs, log)
	h := api.NewHandlers(rt, arb, st, ready)
	mux := api.NewRouter(h, api.Options{
		TokenSecret:   cfg.Auth.TokenSecret,
		TokenSkewSecs: cfg.Auth.TokenSkewSecs,
		EventsWS:      wss.HandleEventsWS,
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info().Msg("shutdown signal received; stopping server")
		cancel()
		reg.CloseAll("shutting down")
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info().Str("addr", addr).Str("host", cfg.Host.URL).Strs("config_paths", mgr.Paths()).Msg("voicebridge starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}

	// A pending request re-checks the enabled flag before it runs, so
	// turning voice off drains the arbiter without new speech. A stopped
	// player refuses runs that reach playback after this point.
	st.SetGlobalEnabled(false)
	pl.Stop()
	done := make(chan struct{})
	go func() { arb.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("speak pipeline still running at exit")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", "voicebridge").Logger()
}

func logMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("http")
	})
}
