package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/user/nation-builder/internal/multiplayer"
	"github.com/user/nation-builder/internal/tech"
	"github.com/user/nation-builder/internal/types"
	"go.uber.org/zap"
)

// ErrNoSession is returned by multiplayer routes when no game is joined
var ErrNoSession = errors.New("no active game")

// Request DTOs

type nameRequest struct {
	Name string `json:"name"`
}

type laborRequest struct {
	Role  types.Role `json:"role"`
	Delta int        `json:"delta"`
}

type advanceRequest struct {
	Months int `json:"months"`
}

type createGameRequest struct {
	Name string `json:"name"`
}

type stanceRequest struct {
	Target string       `json:"target"`
	Stance types.Stance `json:"stance"`
}

type tradeRequest struct {
	To        string                 `json:"to"`
	Offered   types.NaturalResources `json:"offered"`
	Requested types.NaturalResources `json:"requested"`
}

type respondRequest struct {
	Accept bool `json:"accept"`
}

type warRequest struct {
	Target string `json:"target"`
}

type attackRequest struct {
	Target   string  `json:"target"`
	Strength float64 `json:"strength"`
}

// Response DTOs

type actionResponse struct {
	OK    bool               `json:"ok"`
	Error string             `json:"error,omitempty"`
	State *types.NationState `json:"state,omitempty"`
}

type techView struct {
	tech.Node
	Unlocked  bool `json:"unlocked"`
	Available bool `json:"available"`
}

type sessionResponse struct {
	GameID    string                   `json:"gameId"`
	IsHost    bool                     `json:"isHost"`
	Status    types.SyncStatus         `json:"status"`
	Players   []multiplayer.PlayerView `json:"players"`
	Diplomacy map[string]types.Stance  `json:"diplomacy"`
	Wars      []types.War              `json:"wars"`
	Offers    []types.TradeOffer       `json:"offers"`
	Events    []types.GameEvent        `json:"events"`
}

const maxAdvanceMonths = 120

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, actionResponse{OK: false, Error: err.Error()})
}

// respond answers a nation action: the new state on success, 409 on rejection
func (s *Server) respond(w http.ResponseWriter, ok bool) {
	if !ok {
		writeJSON(w, http.StatusConflict, actionResponse{OK: false})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{OK: true, State: s.nation.State()})
}

// act runs a nation action, relaying it to the active game when there is one
func (s *Server) act(ctx context.Context, action string, payload map[string]any, apply func() bool) bool {
	if session := s.Session(); session != nil {
		return session.Relay(ctx, action, payload, apply)
	}
	return apply()
}

// multiplayerError maps a session error to a response
func (s *Server) multiplayerError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	switch {
	case errors.Is(err, multiplayer.ErrGameNotFound), errors.Is(err, multiplayer.ErrOfferNotFound):
		status = http.StatusNotFound
	case errors.Is(err, multiplayer.ErrNotHost), errors.Is(err, multiplayer.ErrNotYourOffer):
		status = http.StatusForbidden
	}
	writeJSON(w, status, actionResponse{OK: false, Error: err.Error()})
}

func (s *Server) handleGetNation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.nation.State())
}

func (s *Server) handleSetNation(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.respond(w, s.act(r.Context(), "set_nation", map[string]any{"name": req.Name}, func() bool {
		return s.nation.SetNation(req.Name)
	}))
}

func (s *Server) handleSetLeader(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.respond(w, s.act(r.Context(), "set_leader", map[string]any{"name": req.Name}, func() bool {
		return s.nation.SetLeader(req.Name)
	}))
}

func (s *Server) handleGetTechs(w http.ResponseWriter, r *http.Request) {
	state := s.nation.State()
	unlocked := tech.Set(state.UnlockedTechs)
	graph := s.nation.Graph()

	nodes := graph.Nodes()
	techs := make([]techView, 0, len(nodes))
	for _, node := range nodes {
		techs = append(techs, techView{
			Node:      node,
			Unlocked:  unlocked[node.ID],
			Available: graph.IsAvailable(node.ID, unlocked),
		})
	}
	writeJSON(w, http.StatusOK, techs)
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.respond(w, s.act(r.Context(), "research", map[string]any{"tech": id}, func() bool {
		return s.nation.SelectTech(id)
	}))
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	stat := types.Stat(chi.URLParam(r, "stat"))
	s.respond(w, s.act(r.Context(), "invest", map[string]any{"stat": string(stat)}, func() bool {
		return s.nation.InvestInResource(stat)
	}))
}

func (s *Server) handleLabor(w http.ResponseWriter, r *http.Request) {
	var req laborRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	payload := map[string]any{"role": string(req.Role), "delta": req.Delta}
	s.respond(w, s.act(r.Context(), "labor", payload, func() bool {
		return s.nation.DistributePeople(req.Role, req.Delta)
	}))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	req := advanceRequest{Months: 1}
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			s.badRequest(w, err)
			return
		}
	}
	if q := r.URL.Query().Get("months"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		req.Months = n
	}
	if req.Months < 1 || req.Months > maxAdvanceMonths {
		writeJSON(w, http.StatusBadRequest, actionResponse{OK: false, Error: "months must be between 1 and 120"})
		return
	}

	// One relayed action per month; concurrent advances run one after another
	s.advanceLock.Lock()
	reports := make([]types.MonthReport, 0, req.Months)
	for i := 0; i < req.Months; i++ {
		s.act(r.Context(), "advance", map[string]any{"month": i + 1, "of": req.Months}, func() bool {
			reports = append(reports, s.nation.AdvanceMonth())
			return true
		})
	}
	state := s.nation.State()
	s.advanceLock.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"reports": reports,
		"state":   state,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.act(r.Context(), "reset", nil, func() bool {
		s.nation.ResetGame()
		return true
	}))
}

// LocalPlayer builds the roster entry of this process's player
func (s *Server) LocalPlayer() types.PlayerInfo {
	state := s.nation.State()
	return types.PlayerInfo{
		ID:     s.nation.PlayerID(),
		Name:   s.playerName,
		Nation: state.NationName,
		Leader: state.LeaderName,
	}
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.lobby.ListOpenGames(r.Context())
	if err != nil {
		s.Logger.Error("Failed to list games", zap.Error(err))
		http.Error(w, "Failed to list games", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	id, err := s.lobby.CreateGame(r.Context(), s.LocalPlayer(), req.Name)
	if err != nil {
		s.Logger.Error("Failed to create game", zap.Error(err))
		http.Error(w, "Failed to create game", http.StatusInternalServerError)
		return
	}
	if _, err := s.JoinSession(r.Context(), id); err != nil {
		s.Logger.Error("Failed to start session", zap.String("game_id", id), zap.Error(err))
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":     true,
		"gameId": id,
		"invite": s.lobby.InviteCode(id),
	})
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.lobby.JoinGame(r.Context(), id, s.LocalPlayer()); err != nil {
		s.multiplayerError(w, err)
		return
	}
	if _, err := s.JoinSession(r.Context(), id); err != nil {
		s.multiplayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "gameId": id})
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	size := 256
	if q := r.URL.Query().Get("size"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 64 || n > 1024 {
			http.Error(w, "Invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}

	png, err := s.lobby.InviteQR(chi.URLParam(r, "id"), size)
	if err != nil {
		s.Logger.Error("Failed to render invite", zap.Error(err))
		http.Error(w, "Failed to render invite", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session := s.Session()
	if session == nil {
		s.multiplayerError(w, ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		GameID:    session.GameID(),
		IsHost:    session.IsHost(),
		Status:    session.Status(),
		Players:   session.Players(),
		Diplomacy: session.Diplomacy(),
		Wars:      session.Wars(),
		Offers:    session.PendingOffers(),
		Events:    session.Events(),
	})
}

// withSession runs fn against the active session or answers ErrNoSession
func (s *Server) withSession(w http.ResponseWriter, fn func(*multiplayer.Session) (any, error)) {
	session := s.Session()
	if session == nil {
		s.multiplayerError(w, ErrNoSession)
		return
	}
	result, err := fn(session)
	if err != nil {
		s.multiplayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

func (s *Server) handleDiplomacy(w http.ResponseWriter, r *http.Request) {
	var req stanceRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.withSession(w, func(session *multiplayer.Session) (any, error) {
		if err := session.SetDiplomaticStance(r.Context(), req.Target, req.Stance); err != nil {
			return nil, err
		}
		return session.Diplomacy(), nil
	})
}

func (s *Server) handleSendTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.withSession(w, func(session *multiplayer.Session) (any, error) {
		return session.SendTradeOffer(r.Context(), req.To, req.Offered, req.Requested)
	})
}

func (s *Server) handleRespondTrade(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	s.withSession(w, func(session *multiplayer.Session) (any, error) {
		if err := session.RespondToTradeOffer(r.Context(), id, req.Accept); err != nil {
			return nil, err
		}
		return s.nation.State(), nil
	})
}

func (s *Server) handleDeclareWar(w http.ResponseWriter, r *http.Request) {
	var req warRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.withSession(w, func(session *multiplayer.Session) (any, error) {
		return session.DeclareWar(r.Context(), req.Target)
	})
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request) {
	var req attackRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.withSession(w, func(session *multiplayer.Session) (any, error) {
		return session.LaunchAttack(r.Context(), req.Target, req.Strength)
	})
}
