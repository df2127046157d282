package multiplayer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/conflict"
	"github.com/user/nation-builder/internal/game"
	"github.com/user/nation-builder/internal/store"
	"github.com/user/nation-builder/internal/tech"
	"github.com/user/nation-builder/internal/types"
)

// eventRecorder collects events pushed to a sink
type eventRecorder struct {
	mu     sync.Mutex
	events []types.GameEvent
}

func (r *eventRecorder) GameEvent(event types.GameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(typ types.GameEventType) []types.GameEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.GameEvent, 0)
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type testPlayer struct {
	nation  *game.NationManager
	session *Session
	events  *eventRecorder
}

func newNation(t *testing.T, playerID string) *game.NationManager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Game.SavePath = ""
	graph, err := tech.LoadDefault()
	require.NoError(t, err)
	nm := game.NewNationManager(cfg, graph, playerID, nil)
	nm.SetRandomizer(game.NewSeededDiceRoller(7))
	return nm
}

func newTestPlayer(t *testing.T, st store.Store, playerID string) *testPlayer {
	t.Helper()
	nm := newNation(t, playerID)
	events := &eventRecorder{}
	session := NewSession(st, nm, config.DefaultConfig().Sync)
	session.SetEventSink(events)
	return &testPlayer{nation: nm, session: session, events: events}
}

// setupGame creates a game hosted by alice that bob has joined
func setupGame(t *testing.T) (store.Store, string) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	lobby := NewLobby(st)
	id, err := lobby.CreateGame(ctx, types.PlayerInfo{ID: "alice", Name: "Alice"}, "Test")
	require.NoError(t, err)
	require.NoError(t, lobby.JoinGame(ctx, id, types.PlayerInfo{ID: "bob", Name: "Bob"}))
	return st, id
}

func start(t *testing.T, p *testPlayer, gameID string) {
	t.Helper()
	require.NoError(t, p.session.Start(context.Background(), gameID))
	t.Cleanup(func() { p.session.Stop(context.Background()) })
}

func loadGame(t *testing.T, st store.Store, gameID string) types.GameDocument {
	t.Helper()
	doc, err := st.Get(context.Background(), GamesCollection, gameID)
	require.NoError(t, err)
	var g types.GameDocument
	require.NoError(t, doc.Decode(&g))
	return g
}

func TestSessionStart(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	start(t, alice, id)

	// Test case 1: Host flag and first push
	assert.True(t, alice.session.IsHost())
	assert.Equal(t, id, alice.session.GameID())
	assert.Equal(t, types.SyncSynced, alice.session.Status().State)

	g := loadGame(t, st, id)
	require.Contains(t, g.PlayerData, "alice")
	assert.Equal(t, int64(500), g.PlayerData["alice"].NaturalResources.Wood)
	assert.True(t, g.Players["alice"].Online)

	// Test case 2: Starting twice
	assert.ErrorIs(t, alice.session.Start(ctx, id), ErrAlreadyStarted)

	// Test case 3: Unknown game and foreign players
	stranger := newTestPlayer(t, st, "mallory")
	assert.ErrorIs(t, stranger.session.Start(ctx, "missing"), ErrGameNotFound)
	assert.ErrorIs(t, stranger.session.Start(ctx, id), ErrNotJoined)

	// Test case 4: Actions need a started session
	_, err := stranger.session.DeclareWar(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSessionHydratesOwnSlice(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	snapshot := newNation(t, "bob").State().Snapshot()
	snapshot.NaturalResources.Wood = 1234
	snapshot.Year = 1931
	require.NoError(t, st.Update(ctx, GamesCollection, id, store.Set(playerDataPath("bob"), snapshot)))

	// Test case 1: Rejoining restores the stored nation
	bob := newTestPlayer(t, st, "bob")
	start(t, bob, id)
	state := bob.nation.State()
	assert.Equal(t, int64(1234), state.NaturalResources.Wood)
	assert.Equal(t, 1931, state.Year)
	assert.False(t, bob.session.IsHost())
}

func TestTradeFlow(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	bob := newTestPlayer(t, st, "bob")
	start(t, alice, id)
	start(t, bob, id)

	// Test case 1: Invalid offers
	_, err := alice.session.SendTradeOffer(ctx, "alice", types.NaturalResources{Wood: 1}, types.NaturalResources{})
	assert.ErrorIs(t, err, ErrSelfTarget)
	_, err = alice.session.SendTradeOffer(ctx, "carol", types.NaturalResources{Wood: 1}, types.NaturalResources{})
	assert.ErrorIs(t, err, ErrUnknownPlayer)
	_, err = alice.session.SendTradeOffer(ctx, "bob", types.NaturalResources{}, types.NaturalResources{})
	assert.ErrorIs(t, err, conflict.ErrEmptyOffer)
	_, err = alice.session.SendTradeOffer(ctx, "bob", types.NaturalResources{Wood: 10000}, types.NaturalResources{})
	assert.ErrorIs(t, err, ErrInsufficientResources)

	// Test case 2: 50 wood for 30 food reaches bob
	offer, err := alice.session.SendTradeOffer(ctx, "bob", types.NaturalResources{Wood: 50}, types.NaturalResources{Food: 30})
	require.NoError(t, err)
	assert.Len(t, bob.events.ofType(types.EventTradeOffered), 1)
	require.Len(t, bob.session.PendingOffers(), 1)
	assert.Equal(t, offer.ID, bob.session.PendingOffers()[0].ID)

	// Test case 3: Only the receiver can answer
	assert.ErrorIs(t, alice.session.RespondToTradeOffer(ctx, offer.ID, true), ErrNotYourOffer)
	assert.ErrorIs(t, bob.session.RespondToTradeOffer(ctx, "missing", true), ErrOfferNotFound)

	// Test case 4: Accepting settles both nations
	require.NoError(t, bob.session.RespondToTradeOffer(ctx, offer.ID, true))

	bobState := bob.nation.State()
	assert.Equal(t, int64(550), bobState.NaturalResources.Wood)
	assert.Equal(t, int64(970), bobState.NaturalResources.Food)
	aliceState := alice.nation.State()
	assert.Equal(t, int64(450), aliceState.NaturalResources.Wood)
	assert.Equal(t, int64(1030), aliceState.NaturalResources.Food)
	assert.Len(t, alice.events.ofType(types.EventTradeAccepted), 1)

	g := loadGame(t, st, id)
	assert.Equal(t, types.TradeAccepted, g.TradeOffers[offer.ID].Status)
	assert.Equal(t, int64(450), g.PlayerData["alice"].NaturalResources.Wood)
	assert.Equal(t, int64(550), g.PlayerData["bob"].NaturalResources.Wood)

	// Test case 5: An answered offer stays answered
	assert.ErrorIs(t, bob.session.RespondToTradeOffer(ctx, offer.ID, false), ErrOfferNotPending)
	assert.Empty(t, bob.session.PendingOffers())

	// Test case 6: Later snapshots do not settle the trade again
	bob.session.Push(ctx)
	assert.Equal(t, int64(450), alice.nation.State().NaturalResources.Wood)
}

func TestConcurrentAcceptsSettleOnce(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	bob := newTestPlayer(t, st, "bob")
	start(t, alice, id)
	start(t, bob, id)

	offer, err := alice.session.SendTradeOffer(ctx, "bob", types.NaturalResources{Wood: 50}, types.NaturalResources{Food: 30})
	require.NoError(t, err)

	// Test case 1: Only one of many simultaneous accepts wins
	const answers = 8
	results := make(chan error, answers)
	var wg sync.WaitGroup
	for i := 0; i < answers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- bob.session.RespondToTradeOffer(ctx, offer.ID, true)
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for err := range results {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrOfferNotPending)
	}
	assert.Equal(t, 1, accepted)

	// Test case 2: Both nations moved exactly once
	assert.Equal(t, int64(550), bob.nation.State().NaturalResources.Wood)
	assert.Equal(t, int64(970), bob.nation.State().NaturalResources.Food)
	assert.Equal(t, int64(450), alice.nation.State().NaturalResources.Wood)
	assert.Equal(t, int64(1030), alice.nation.State().NaturalResources.Food)

	g := loadGame(t, st, id)
	assert.Equal(t, int64(550), g.PlayerData["bob"].NaturalResources.Wood)
	assert.Equal(t, int64(450), g.PlayerData["alice"].NaturalResources.Wood)
}

func TestAnsweredOfferSurvivesLaggingSnapshot(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	bob := newTestPlayer(t, st, "bob")
	start(t, alice, id)
	start(t, bob, id)

	offer, err := alice.session.SendTradeOffer(ctx, "bob", types.NaturalResources{Wood: 50}, types.NaturalResources{Food: 30})
	require.NoError(t, err)
	lagging := loadGame(t, st, id)
	require.NoError(t, bob.session.RespondToTradeOffer(ctx, offer.ID, true))

	// Test case 1: A newer snapshot still showing the offer pending
	data, err := store.Encode(lagging)
	require.NoError(t, err)
	bob.session.onSnapshot(&store.Document{Collection: GamesCollection, ID: id, Version: 1 << 40, Data: data})

	assert.Empty(t, bob.session.PendingOffers())
	assert.ErrorIs(t, bob.session.RespondToTradeOffer(ctx, offer.ID, true), ErrOfferNotPending)
	assert.Equal(t, int64(550), bob.nation.State().NaturalResources.Wood)
}

func TestTradeRejected(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	bob := newTestPlayer(t, st, "bob")
	start(t, alice, id)
	start(t, bob, id)

	offer, err := alice.session.SendTradeOffer(ctx, "bob", types.NaturalResources{Minerals: 20}, types.NaturalResources{Water: 20})
	require.NoError(t, err)

	// Test case 1: Rejecting moves nothing
	require.NoError(t, bob.session.RespondToTradeOffer(ctx, offer.ID, false))
	assert.Len(t, alice.events.ofType(types.EventTradeRejected), 1)
	assert.Equal(t, int64(300), alice.nation.State().NaturalResources.Minerals)
	assert.Equal(t, int64(800), bob.nation.State().NaturalResources.Water)

	// Test case 2: Accepting needs the requested goods
	big, err := alice.session.SendTradeOffer(ctx, "bob", types.NaturalResources{Wood: 1}, types.NaturalResources{Water: 5000})
	require.NoError(t, err)
	assert.ErrorIs(t, bob.session.RespondToTradeOffer(ctx, big.ID, true), ErrInsufficientResources)
}

func TestDiplomaticStance(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	bob := newTestPlayer(t, st, "bob")
	start(t, alice, id)
	start(t, bob, id)

	// Test case 1: Everyone starts neutral
	assert.Equal(t, map[string]types.Stance{"bob": types.StanceNeutral}, alice.session.Diplomacy())

	// Test case 2: Stances are directional
	require.NoError(t, alice.session.SetDiplomaticStance(ctx, "bob", types.StanceAlliance))
	assert.Equal(t, types.StanceAlliance, alice.session.Diplomacy()["bob"])
	assert.Equal(t, types.StanceNeutral, bob.session.Diplomacy()["alice"])
	changes := bob.events.ofType(types.EventStanceChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, "alice", changes[0].From)

	// Test case 3: Invalid input
	assert.ErrorIs(t, alice.session.SetDiplomaticStance(ctx, "bob", types.Stance("hostile")), ErrInvalidStance)
	assert.ErrorIs(t, alice.session.SetDiplomaticStance(ctx, "alice", types.StanceRivalry), ErrSelfTarget)
}

func TestWarAndBattle(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	bob := newTestPlayer(t, st, "bob")
	require.True(t, bob.nation.DistributePeople(types.RoleSoldiers, 20))
	start(t, alice, id)
	start(t, bob, id)

	// Test case 1: Attacking needs a war
	_, err := alice.session.LaunchAttack(ctx, "bob", 100)
	assert.ErrorIs(t, err, ErrNotAtWar)

	// Test case 2: Declaring war sets rivalry both ways
	war, err := alice.session.DeclareWar(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", war.Defender)
	assert.Equal(t, types.StanceRivalry, alice.session.Diplomacy()["bob"])
	assert.Equal(t, types.StanceRivalry, bob.session.Diplomacy()["alice"])
	assert.Len(t, bob.events.ofType(types.EventWarDeclared), 1)
	require.Len(t, bob.session.Wars(), 1)

	_, err = alice.session.DeclareWar(ctx, "bob")
	assert.ErrorIs(t, err, ErrAlreadyAtWar)
	_, err = bob.session.DeclareWar(ctx, "alice")
	assert.ErrorIs(t, err, ErrAlreadyAtWar)

	// Test case 3: Strength 100 against military 50 wins
	record, err := alice.session.LaunchAttack(ctx, "bob", 100)
	require.NoError(t, err)
	assert.Equal(t, types.BattleWin, record.Outcome)

	aliceState := alice.nation.State()
	assert.Equal(t, int64(550), aliceState.NaturalResources.Wood)
	assert.Equal(t, int64(330), aliceState.NaturalResources.Minerals)
	assert.Equal(t, int64(1100), aliceState.NaturalResources.Food)
	assert.Equal(t, int64(880), aliceState.NaturalResources.Water)
	assert.Equal(t, int64(200), aliceState.NaturalResources.Land)
	assert.Equal(t, 55.0, aliceState.Resources.Stability)

	// Test case 4: Bob takes the plunder and the casualties once
	bobState := bob.nation.State()
	assert.Equal(t, int64(450), bobState.NaturalResources.Wood)
	assert.Equal(t, int64(900), bobState.NaturalResources.Food)
	assert.Equal(t, 18, bobState.Population.Soldiers)
	assert.Equal(t, 48, bobState.Population.Men)
	assert.Equal(t, 45.0, bobState.Resources.Stability)
	assert.Len(t, bob.events.ofType(types.EventBattle), 1)

	bob.session.Push(ctx)
	alice.session.Push(ctx)
	assert.Equal(t, int64(450), bob.nation.State().NaturalResources.Wood)

	g := loadGame(t, st, id)
	assert.Contains(t, g.Battles, record.ID)
	assert.Equal(t, int64(450), g.PlayerData["bob"].NaturalResources.Wood)
}

func TestRelayAndEventLog(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	start(t, alice, id)

	// Test case 1: A successful action is logged
	ok := alice.session.Relay(ctx, "invest", map[string]any{"stat": "economy"}, func() bool {
		return alice.nation.InvestInResource(types.StatEconomy)
	})
	assert.True(t, ok)

	// Test case 2: A rejected action is not
	ok = alice.session.Relay(ctx, "labor", nil, func() bool {
		return alice.nation.DistributePeople(types.RoleWorkers, 100000)
	})
	assert.False(t, ok)

	log, err := alice.session.EventLog(ctx, 10)
	require.NoError(t, err)
	actions := make([]types.GameEvent, 0)
	for _, e := range log {
		if e.Type == types.EventAction {
			actions = append(actions, e)
		}
	}
	require.Len(t, actions, 1)
	assert.Equal(t, "invest", actions[0].Message)
	assert.Equal(t, "alice", actions[0].From)

	docs, err := st.Query(ctx, ActionsCollection, store.Query{Filters: []store.Filter{{Field: "gameId", Equals: id}}})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestPresence(t *testing.T) {
	// Setup
	ctx := context.Background()
	st, id := setupGame(t)
	alice := newTestPlayer(t, st, "alice")
	bob := newTestPlayer(t, st, "bob")
	start(t, alice, id)
	start(t, bob, id)

	// Test case 1: Both players are online
	players := alice.session.Players()
	require.Len(t, players, 2)
	assert.True(t, players[0].Online)
	assert.True(t, players[0].IsSelf)
	assert.True(t, players[0].IsHost)
	assert.True(t, players[1].Online)

	// Test case 2: Silent players go stale
	alice.session.Clock = func() time.Time { return time.Now().Add(10 * time.Minute) }
	for _, p := range alice.session.Players() {
		assert.False(t, p.Online)
	}
	alice.session.Clock = time.Now

	// Test case 3: A third player joining is announced
	require.NoError(t, NewLobby(st).JoinGame(ctx, id, types.PlayerInfo{ID: "carol", Name: "Carol"}))
	joined := alice.events.ofType(types.EventPlayerJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "carol", joined[0].From)

	// Test case 4: Stopping marks the player offline and mutes the session
	alice.session.Stop(ctx)
	for _, p := range bob.session.Players() {
		if p.ID == "alice" {
			assert.False(t, p.Online)
		}
	}
	_, err := bob.session.SendTradeOffer(ctx, "alice", types.NaturalResources{Wood: 5}, types.NaturalResources{})
	require.NoError(t, err)
	assert.Empty(t, alice.events.ofType(types.EventTradeOffered))
	_, err = alice.session.SendTradeOffer(ctx, "bob", types.NaturalResources{Wood: 5}, types.NaturalResources{})
	assert.ErrorIs(t, err, ErrNotStarted)
}

// Mock Store for testing remote failures
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	args := m.Called(ctx, collection, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Document), args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	args := m.Called(ctx, collection, data)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	args := m.Called(ctx, collection, id, data)
	return args.Error(0)
}

func (m *MockStore) Update(ctx context.Context, collection, id string, updates ...store.Update) error {
	args := m.Called(ctx, collection, id, updates)
	return args.Error(0)
}

func (m *MockStore) Query(ctx context.Context, collection string, q store.Query) ([]*store.Document, error) {
	args := m.Called(ctx, collection, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Document), args.Error(1)
}

func (m *MockStore) Subscribe(ctx context.Context, collection, id string, fn store.SnapshotFunc) (func(), error) {
	args := m.Called(ctx, collection, id, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func (m *MockStore) Batch(ctx context.Context, ops ...store.BatchOp) error {
	args := m.Called(ctx, ops)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

func TestRemoteFailuresSetStatus(t *testing.T) {
	// Setup
	ctx := context.Background()
	gameData, err := store.Encode(types.GameDocument{
		HostID: "alice",
		Players: map[string]types.PlayerInfo{
			"alice": {ID: "alice"},
			"bob":   {ID: "bob"},
		},
	})
	require.NoError(t, err)

	unavailable := errors.New("store unavailable")
	st := new(MockStore)
	st.On("Get", mock.Anything, GamesCollection, "g1").Return(&store.Document{ID: "g1", Version: 1, Data: gameData}, nil)
	st.On("Update", mock.Anything, GamesCollection, "g1", mock.Anything).Return(unavailable)
	st.On("Subscribe", mock.Anything, GamesCollection, "g1", mock.Anything).Return(func() {}, nil)
	st.On("Batch", mock.Anything, mock.Anything).Return(unavailable)

	nm := newNation(t, "alice")
	session := NewSession(st, nm, config.SyncConfig{})

	// Test case 1: Start survives failing pushes
	require.NoError(t, session.Start(ctx, "g1"))
	status := session.Status()
	assert.Equal(t, types.SyncError, status.State)
	assert.Equal(t, "store unavailable", status.LastError)

	// Test case 2: Local results stand when the remote write fails
	assert.True(t, session.Relay(ctx, "invest", nil, func() bool {
		return nm.InvestInResource(types.StatCulture)
	}))
	offer, err := session.SendTradeOffer(ctx, "bob", types.NaturalResources{Wood: 10}, types.NaturalResources{})
	require.NoError(t, err)
	assert.NotEmpty(t, offer.ID)
	assert.Equal(t, types.SyncError, session.Status().State)

	session.Stop(ctx)
	st.AssertExpectations(t)
}

func TestDeltaUpdates(t *testing.T) {
	delta := types.NationDelta{
		Resources:        map[types.Stat]float64{types.StatStability: -5},
		NaturalResources: types.NaturalResources{Wood: 10, Food: -3},
		Soldiers:         -2,
	}

	updates := deltaUpdates("bob", delta)
	paths := make(map[string]any)
	for _, u := range updates {
		assert.Equal(t, store.OpIncrement, u.Kind)
		paths[u.Path] = u.Value
	}
	assert.Equal(t, map[string]any{
		"playerData.bob.naturalResources.wood": 10.0,
		"playerData.bob.naturalResources.food": -3.0,
		"playerData.bob.resources.stability":   -5.0,
		"playerData.bob.population.soldiers":   -2.0,
	}, paths)
}
