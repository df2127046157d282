// Package api exposes the local nation and its multiplayer session over HTTP
// and pushes live updates to websocket clients.
package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/game"
	"github.com/user/nation-builder/internal/multiplayer"
	"github.com/user/nation-builder/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server wires the nation, the lobby and the active session to HTTP routes
type Server struct {
	nation *game.NationManager
	store  store.Store
	lobby  *multiplayer.Lobby
	hub    *Hub
	Logger *zap.Logger

	playerName string
	syncConfig config.SyncConfig

	sessionLock sync.RWMutex
	session     *multiplayer.Session

	advanceLock sync.Mutex

	limiters *ipLimiters
}

// NewServer creates a server for nation; st backs multiplayer games
func NewServer(cfg config.Config, nation *game.NationManager, st store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := NewHub()
	hub.Logger = logger
	lobby := multiplayer.NewLobby(st)
	lobby.Logger = logger

	s := &Server{
		nation:     nation,
		store:      st,
		lobby:      lobby,
		hub:        hub,
		Logger:     logger,
		playerName: cfg.Player.Name,
		syncConfig: cfg.Sync,
		limiters:   newIPLimiters(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst),
	}
	nation.Subscribe(hub)
	return s
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Lobby returns the game lobby
func (s *Server) Lobby() *multiplayer.Lobby {
	return s.lobby
}

// Session returns the active multiplayer session, or nil
func (s *Server) Session() *multiplayer.Session {
	s.sessionLock.RLock()
	defer s.sessionLock.RUnlock()
	return s.session
}

// JoinSession starts syncing with gameID, stopping any previous session first
func (s *Server) JoinSession(ctx context.Context, gameID string) (*multiplayer.Session, error) {
	s.Shutdown(ctx)

	session := multiplayer.NewSession(s.store, s.nation, s.syncConfig)
	session.Logger = s.Logger
	session.SetEventSink(s.hub)
	if err := session.Start(ctx, gameID); err != nil {
		return nil, err
	}

	s.sessionLock.Lock()
	s.session = session
	s.sessionLock.Unlock()
	return session, nil
}

// Shutdown stops the active session
func (s *Server) Shutdown(ctx context.Context) {
	s.sessionLock.Lock()
	session := s.session
	s.session = nil
	s.sessionLock.Unlock()

	if session != nil {
		session.Stop(ctx)
	}
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(s.rateLimit)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	router.Get("/ws", s.hub.ServeWs)

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Nation
		r.Get("/nation", s.handleGetNation)
		r.Post("/nation/name", s.handleSetNation)
		r.Post("/nation/leader", s.handleSetLeader)
		r.Get("/techs", s.handleGetTechs)
		r.Post("/techs/{id}/research", s.handleResearch)
		r.Post("/invest/{stat}", s.handleInvest)
		r.Post("/labor", s.handleLabor)
		r.Post("/advance", s.handleAdvance)
		r.Post("/reset", s.handleReset)

		// Games
		r.Get("/games", s.handleListGames)
		r.Post("/games", s.handleCreateGame)
		r.Post("/games/{id}/join", s.handleJoinGame)
		r.Get("/games/{id}/invite.png", s.handleInvite)

		// Session
		r.Get("/session", s.handleGetSession)
		r.Post("/diplomacy", s.handleDiplomacy)
		r.Post("/trades", s.handleSendTrade)
		r.Post("/trades/{id}/respond", s.handleRespondTrade)
		r.Post("/wars", s.handleDeclareWar)
		r.Post("/attacks", s.handleAttack)
	})

	return router
}

// ipLimiters hands out one token bucket per client address
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIPLimiters(limit rate.Limit, burst int) *ipLimiters {
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !s.limiters.get(ip).Allow() {
			s.Logger.Warn("Rate limit exceeded", zap.String("remote_addr", ip), zap.String("path", r.URL.Path))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
