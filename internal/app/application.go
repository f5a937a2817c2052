// Package app wires the race server together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"racetrack/internal/api"
	"racetrack/internal/config"
	"racetrack/internal/course"
	"racetrack/internal/dispatch"
	"racetrack/internal/hub"
	"racetrack/internal/race"
	"racetrack/internal/websocket"
)

// limiterSweep is how often idle rate limiter windows are discarded.
const limiterSweep = time.Minute

// Application coordinates all system components.
// Initialization order: Races → Dispatcher → Hub → Transport → API → HTTP
type Application struct {
	config      *config.Config
	races       *race.Registry
	limiter     *dispatch.RateLimiter
	dispatcher  *dispatch.Dispatcher
	messageHub  *hub.Hub
	connections *websocket.Registry
	apiServer   *api.Server
	httpServer  *http.Server

	listener net.Listener
	cancel   context.CancelFunc
}

// NewApplication builds every component from cfg. A nil cfg means defaults.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	clock := clockwork.NewRealClock()

	races := race.NewRegistry(race.Options{
		Generator:     course.NewHedges(cfg.Race.CourseLength, cfg.Race.ObstacleInterval),
		Clock:         clock,
		SpectatorID:   cfg.Race.SpectatorID,
		CountdownFrom: cfg.Race.CountdownFrom,
		CountdownStep: cfg.Race.CountdownStep,
	})

	limiter := dispatch.NewRateLimiter(cfg.WebSocket.RateLimit, cfg.WebSocket.RateWindow, clock)
	dispatcher := dispatch.NewDispatcher(races, limiter)
	messageHub := hub.NewHub(dispatcher, hub.DefaultInboxSize)

	connections := websocket.NewRegistry()
	wsHandler := websocket.NewHandler(connections, messageHub, websocket.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		BufferSize:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, cfg.HTTP.AllowedOrigins)

	apiServer := api.NewServer(races, connections, wsHandler, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		StaticDir:      cfg.HTTP.StaticDir,
		Inbox:          messageHub,
	})

	// Upgraded connections manage their own deadlines per frame.
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		races:       races,
		limiter:     limiter,
		dispatcher:  dispatcher,
		messageHub:  messageHub,
		connections: connections,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start binds the listener, starts the hub and serves in the background.
// It returns once the listener is bound.
func (app *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := app.messageHub.Start(runCtx); err != nil {
		cancel()
		_ = ln.Close()
		return fmt.Errorf("failed to start message hub: %w", err)
	}
	app.listener = ln
	app.cancel = cancel

	go app.sweepLimiter(runCtx)
	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	raceOpts := app.races.Options()
	log.Info().
		Str("addr", ln.Addr().String()).
		Int("countdown_from", raceOpts.CountdownFrom).
		Dur("countdown_step", raceOpts.CountdownStep).
		Str("spectator_id", raceOpts.SpectatorID).
		Bool("static_pages", app.config.HTTP.StaticDir != "").
		Msg("racetrack server started")
	return nil
}

// Stop shuts down in reverse order: HTTP, transport, hub, races.
func (app *Application) Stop(ctx context.Context) error {
	log.Info().Msg("shutting down racetrack server")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	closed := app.connections.CloseAll()

	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.races.Shutdown()

	log.Info().Int("connections_closed", closed).Int("sessions", app.races.Len()).Msg("shutdown complete")
	return errors.Join(errs...)
}

// Addr is the bound listen address once started, the configured one before.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the full HTTP surface.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

func (app *Application) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.limiter.Cleanup()
		}
	}
}
