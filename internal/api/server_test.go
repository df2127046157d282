package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/game"
	"github.com/user/nation-builder/internal/store"
	"github.com/user/nation-builder/internal/tech"
	"github.com/user/nation-builder/internal/types"
)

func newTestServer(t *testing.T, st store.Store, playerID string) (*Server, *game.NationManager) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Game.SavePath = ""
	cfg.Player.Name = playerID
	cfg.Server.RateLimit = 0

	graph, err := tech.LoadDefault()
	require.NoError(t, err)
	nation := game.NewNationManager(cfg, graph, playerID, nil)
	nation.SetRandomizer(game.NewSeededDiceRoller(3))

	server := NewServer(cfg, nation, st, nil)
	t.Cleanup(func() { server.Shutdown(context.Background()) })
	return server, nation
}

func do(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, store.NewMemory(), "alice")
	rec := do(t, server.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestNationRoutes(t *testing.T) {
	// Setup
	server, nation := newTestServer(t, store.NewMemory(), "alice")
	router := server.Router()

	// Test case 1: Read the nation
	rec := do(t, router, http.MethodGet, "/api/nation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state types.NationState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "alice", state.PlayerID)
	assert.Equal(t, 1925, state.Year)

	// Test case 2: Naming
	rec = do(t, router, http.MethodPost, "/api/nation/name", nameRequest{Name: "Ruritania"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ruritania", nation.State().NationName)

	rec = do(t, router, http.MethodPost, "/api/nation/leader", nameRequest{Name: "  "})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["ok"])

	// Test case 3: Research
	available := nation.AvailableTechs()
	require.NotEmpty(t, available)
	rec = do(t, router, http.MethodPost, "/api/techs/"+available[0].ID+"/research", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, nation.State().HasTech(available[0].ID))

	rec = do(t, router, http.MethodPost, "/api/techs/no-such-tech/research", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Test case 4: Tech listing
	rec = do(t, router, http.MethodGet, "/api/techs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var techs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &techs))
	assert.Len(t, techs, nation.Graph().Len())

	// Test case 5: Investment
	rec = do(t, router, http.MethodPost, "/api/invest/economy", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/invest/luck", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Test case 6: Labor
	rec = do(t, router, http.MethodPost, "/api/labor", laborRequest{Role: types.RoleWorkers, Delta: 10})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, nation.State().Population.Workers)
	rec = do(t, router, http.MethodPost, "/api/labor", laborRequest{Role: types.RoleWorkers, Delta: 100000})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Test case 7: Advancing months
	rec = do(t, router, http.MethodPost, "/api/advance", advanceRequest{Months: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["reports"], 3)
	assert.Equal(t, 4, nation.State().Month)

	rec = do(t, router, http.MethodPost, "/api/advance?months=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Test case 8: Reset keeps the player
	rec = do(t, router, http.MethodPost, "/api/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, nation.State().Month)
	assert.Equal(t, "alice", nation.State().PlayerID)
}

func TestSessionRoutesNeedAGame(t *testing.T) {
	server, _ := newTestServer(t, store.NewMemory(), "alice")
	router := server.Router()

	rec := do(t, router, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["ok"])

	rec = do(t, router, http.MethodPost, "/api/wars", warRequest{Target: "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMultiplayerRoutes(t *testing.T) {
	// Setup
	st := store.NewMemory()
	aliceServer, aliceNation := newTestServer(t, st, "alice")
	bobServer, bobNation := newTestServer(t, st, "bob")
	alice := aliceServer.Router()
	bob := bobServer.Router()

	// Test case 1: Alice hosts a game
	rec := do(t, alice, http.MethodPost, "/api/games", createGameRequest{Name: "Europe"})
	require.Equal(t, http.StatusCreated, rec.Code)
	gameID := decodeBody(t, rec)["gameId"].(string)
	require.NotEmpty(t, gameID)

	rec = do(t, bob, http.MethodGet, "/api/games", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var games []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &games))
	require.Len(t, games, 1)
	assert.Equal(t, gameID, games[0]["id"])

	// Test case 2: Invite QR
	rec = do(t, bob, http.MethodGet, "/api/games/"+gameID+"/invite.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	// Test case 3: Bob joins
	rec = do(t, bob, http.MethodPost, "/api/games/missing/join", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, bob, http.MethodPost, "/api/games/"+gameID+"/join", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, bob, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, gameID, session.GameID)
	assert.False(t, session.IsHost)
	assert.Len(t, session.Players, 2)

	// Test case 4: Bob trades with Alice
	rec = do(t, bob, http.MethodPost, "/api/trades", tradeRequest{
		To:        "alice",
		Offered:   types.NaturalResources{Water: 40},
		Requested: types.NaturalResources{Minerals: 25},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	offerID := decodeBody(t, rec)["result"].(map[string]any)["id"].(string)

	rec = do(t, bob, http.MethodPost, "/api/trades/"+offerID+"/respond", respondRequest{Accept: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, alice, http.MethodPost, "/api/trades/"+offerID+"/respond", respondRequest{Accept: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(840), aliceNation.State().NaturalResources.Water)
	assert.Equal(t, int64(275), aliceNation.State().NaturalResources.Minerals)
	assert.Equal(t, int64(760), bobNation.State().NaturalResources.Water)
	assert.Equal(t, int64(325), bobNation.State().NaturalResources.Minerals)

	// Test case 5: Diplomacy and war
	rec = do(t, alice, http.MethodPost, "/api/diplomacy", stanceRequest{Target: "bob", Stance: types.Stance("hostile")})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, alice, http.MethodPost, "/api/diplomacy", stanceRequest{Target: "bob", Stance: types.StanceAlliance})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, alice, http.MethodPost, "/api/attacks", attackRequest{Target: "bob", Strength: 100})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, alice, http.MethodPost, "/api/wars", warRequest{Target: "bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, alice, http.MethodPost, "/api/attacks", attackRequest{Target: "bob", Strength: 100})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "win", decodeBody(t, rec)["result"].(map[string]any)["outcome"])
	assert.Equal(t, 45.0, bobNation.State().Resources.Stability)

	// Test case 6: Nation actions are relayed to the game log
	rec = do(t, bob, http.MethodPost, "/api/invest/culture", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	log, err := bobServer.Session().EventLog(context.Background(), 50)
	require.NoError(t, err)
	relayed := false
	for _, e := range log {
		if e.Type == types.EventAction && e.Message == "invest" {
			relayed = true
		}
	}
	assert.True(t, relayed)

	// Test case 7: A multi-month advance relays each month
	rec = do(t, bob, http.MethodPost, "/api/advance", advanceRequest{Months: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	log, err = bobServer.Session().EventLog(context.Background(), 50)
	require.NoError(t, err)
	advances := 0
	for _, e := range log {
		if e.Type == types.EventAction && e.Message == "advance" {
			advances++
		}
	}
	assert.Equal(t, 2, advances)
}

func TestConcurrentAdvances(t *testing.T) {
	// Setup
	server, nation := newTestServer(t, store.NewMemory(), "alice")
	router := server.Router()

	// Test case 1: Two multi-month requests never interleave
	var wg sync.WaitGroup
	recs := make([]*httptest.ResponseRecorder, 2)
	for i := range recs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recs[i] = do(t, router, http.MethodPost, "/api/advance", advanceRequest{Months: 3})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 7, nation.State().Month)
	months := make([]float64, 0, len(recs))
	for _, rec := range recs {
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Len(t, body["reports"], 3)
		months = append(months, body["state"].(map[string]any)["month"].(float64))
	}
	assert.ElementsMatch(t, []float64{4, 7}, months)
}

func TestRateLimit(t *testing.T) {
	// Setup
	cfg := config.DefaultConfig()
	cfg.Game.SavePath = ""
	cfg.Server.RateLimit = 1
	cfg.Server.RateBurst = 2
	graph, err := tech.LoadDefault()
	require.NoError(t, err)
	server := NewServer(cfg, game.NewNationManager(cfg, graph, "alice", nil), store.NewMemory(), nil)
	router := server.Router()

	// Test case 1: The burst passes, the next request is throttled
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodGet, "/health", nil).Code)

	// Test case 2: Other addresses have their own bucket
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebsocketBroadcast(t *testing.T) {
	// Setup
	server, nation := newTestServer(t, store.NewMemory(), "alice")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Hub().Run(ctx)

	httpServer := httptest.NewServer(server.Router())
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a moment to register the client
	time.Sleep(50 * time.Millisecond)

	// Test case 1: Nation changes reach the socket
	require.True(t, nation.SetNation("Freedonia"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string            `json:"type"`
		Payload types.NationState `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageStateChanged, msg.Type)
	assert.Equal(t, "Freedonia", msg.Payload.NationName)

	// Test case 2: Game events reach the socket
	server.Hub().GameEvent(types.GameEvent{ID: "e1", Type: types.EventWarDeclared, From: "bob"})
	var event struct {
		Type    string          `json:"type"`
		Payload types.GameEvent `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, MessageGameEvent, event.Type)
	assert.Equal(t, types.EventWarDeclared, event.Payload.Type)
}
