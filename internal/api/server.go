// Package api serves the HTTP surface: health, stats, optional static pages
// and the websocket endpoint.
package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"racetrack/internal/race"
)

// RaceStats is the part of race.Registry the server reports on.
type RaceStats interface {
	Len() int
	Stats() []race.SessionStats
}

// ConnectionCounter reports live transport connections.
type ConnectionCounter interface {
	Len() int
}

// InboxDepth reports how many inbound events wait to be processed.
type InboxDepth interface {
	Pending() int
}

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// StaticDir enables page delivery when set.
	StaticDir string
	// Inbox, when set, adds the event queue depth to the stats.
	Inbox InboxDepth
}

// pageAliases maps the short page paths browsers are given to the files
// that back them.
var pageAliases = map[string]string{
	"/":                     "receiver-aerial-view.html",
	"/receiver.html":        "receiver-aerial-view.html",
	"/selection.html":       "selection.html",
	"/controller-game.html": "controller-game-immersive.html",
}

type Server struct {
	races       RaceStats
	connections ConnectionCounter
	ws          http.Handler
	opts        Options
	started     time.Time

	mux     *http.ServeMux
	handler http.Handler
}

type HealthResponse struct {
	Status string `json:"status"`
}

type StatsResponse struct {
	Connections  int                 `json:"connections"`
	SessionCount int                 `json:"session_count"`
	Sessions     []race.SessionStats `json:"sessions"`
	InboxPending int                 `json:"inbox_pending"`
	Uptime       string              `json:"uptime"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewServer wires the routes. ws handles websocket upgrades, both on /ws
// and on any other path a client upgrades from.
func NewServer(races RaceStats, connections ConnectionCounter, ws http.Handler, opts Options) *Server {
	s := &Server{
		races:       races,
		connections: connections,
		ws:          ws,
		opts:        opts,
		started:     time.Now(),
		mux:         http.NewServeMux(),
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	s.handler = c.Handler(s.mux)
	return s
}

func (s *Server) setupRoutes() {
	s.mux.Handle("GET /health", jsonMiddleware(http.HandlerFunc(s.healthCheck)))
	s.mux.Handle("GET /api/stats", jsonMiddleware(http.HandlerFunc(s.stats)))
	s.mux.Handle("/ws", s.ws)
	s.mux.HandleFunc("/", s.root)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	sessions := s.races.Stats()
	resp := StatsResponse{
		Connections:  s.connections.Len(),
		SessionCount: len(sessions),
		Sessions:     sessions,
		Uptime:       time.Since(s.started).Round(time.Second).String(),
	}
	if s.opts.Inbox != nil {
		resp.InboxPending = s.opts.Inbox.Pending()
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// root hands websocket upgrades to the transport and everything else to
// the static pages.
func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.ws.ServeHTTP(w, r)
		return
	}
	if s.opts.StaticDir == "" {
		w.Header().Set("Content-Type", "application/json")
		sendError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if page, ok := pageAliases[r.URL.Path]; ok {
		log.Debug().Str("path", r.URL.Path).Str("page", page).Msg("serving page")
		http.ServeFile(w, r, filepath.Join(s.opts.StaticDir, page))
		return
	}
	http.FileServer(http.Dir(s.opts.StaticDir)).ServeHTTP(w, r)
}

func sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
